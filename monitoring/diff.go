package monitoring

import (
	"github.com/tejiriaustin/tiffwatch/models"
)

// Diff compares two snapshots of the same directory. A file is modified when
// its size or mtime changed. All name lists are sorted.
func Diff(prev, cur models.Snapshot) models.Delta {
	delta := models.Delta{
		Added:     []string{},
		Modified:  []string{},
		Removed:   []string{},
		PrevCount: prev.Count(),
		Count:     cur.Count(),
	}

	for _, name := range cur.Names() {
		old, ok := prev.Files[name]
		if !ok {
			delta.Added = append(delta.Added, name)
			continue
		}
		f := cur.Files[name]
		if f.Size != old.Size || !f.ModTime.Equal(old.ModTime) {
			delta.Modified = append(delta.Modified, name)
		}
	}

	for _, name := range prev.Names() {
		if _, ok := cur.Files[name]; !ok {
			delta.Removed = append(delta.Removed, name)
		}
	}

	return delta
}
