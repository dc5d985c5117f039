package monitoring

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/tejiriaustin/tiffwatch/logger"
	"github.com/tejiriaustin/tiffwatch/models"
)

const tiffMIME = "image/tiff"

var DefaultExtensions = []string{".tif", ".tiff"}

type (
	DirScanner struct {
		dir           string
		extensions    map[string]struct{}
		verifyContent bool
		settleWindow  time.Duration
		activity      *ActivityTracker
		freeSpace     func(path string) (float64, error)
		now           func() time.Time
		logger        *logger.Logger
	}
	Options func(*DirScanner) error
)

var _ Monitor = (*DirScanner)(nil)

func WithExtensions(exts []string) Options {
	return func(s *DirScanner) error {
		if len(exts) == 0 {
			return fmt.Errorf("at least one extension is required")
		}
		s.extensions = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if !strings.HasPrefix(ext, ".") {
				return fmt.Errorf("extension %q must start with a dot", ext)
			}
			s.extensions[ext] = struct{}{}
		}
		return nil
	}
}

// WithContentCheck drops matched files whose leading bytes are not TIFF.
func WithContentCheck(enabled bool) Options {
	return func(s *DirScanner) error {
		s.verifyContent = enabled
		return nil
	}
}

func WithActivityTracker(tracker *ActivityTracker, settle time.Duration) Options {
	return func(s *DirScanner) error {
		s.activity = tracker
		s.settleWindow = settle
		return nil
	}
}

func WithFreeSpaceFunc(fn func(path string) (float64, error)) Options {
	return func(s *DirScanner) error {
		s.freeSpace = fn
		return nil
	}
}

func WithClock(now func() time.Time) Options {
	return func(s *DirScanner) error {
		s.now = now
		return nil
	}
}

func WithLogger(log *logger.Logger) Options {
	return func(s *DirScanner) error {
		s.logger = log
		return nil
	}
}

func NewDirScanner(dir string, opts ...Options) (*DirScanner, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	s := &DirScanner{
		dir:       dir,
		freeSpace: AvailableGigabytes,
		now:       time.Now,
		logger:    logger.NewNop(),
	}
	if err := WithExtensions(DefaultExtensions)(s); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *DirScanner) Dir() string {
	return s.dir
}

func (s *DirScanner) Scan(ctx context.Context) (models.Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}

	now := s.now()
	snap := models.Snapshot{
		Directory: s.dir,
		TakenAt:   now,
		Files:     make(map[string]models.FileEntry),
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return models.Snapshot{}, err
		}
		if entry.IsDir() || !s.matches(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			if os.IsNotExist(err) {
				continue
			}
			return models.Snapshot{}, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		if !info.Mode().IsRegular() {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if s.verifyContent && !isTIFF(path) {
			s.logger.Debugw("Skipping file with non-TIFF content", "path", path)
			continue
		}

		snap.Files[entry.Name()] = models.FileEntry{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Pending: s.pending(entry.Name(), info.ModTime(), now),
		}
	}

	free, err := s.freeSpace(s.dir)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to read free space: %w", err)
	}
	snap.FreeGB = free

	return snap, nil
}

func (s *DirScanner) Close() error {
	if s.activity != nil {
		return s.activity.Close()
	}
	return nil
}

func (s *DirScanner) matches(name string) bool {
	_, ok := s.extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// pending reports whether a file was written to within the settle window,
// either by fsnotify activity or by its mtime.
func (s *DirScanner) pending(name string, modTime, now time.Time) bool {
	if s.settleWindow <= 0 {
		return false
	}
	last := modTime
	if s.activity != nil {
		if t, ok := s.activity.LastActivity(name); ok && t.After(last) {
			last = t
		}
	}
	return now.Sub(last) < s.settleWindow
}

func isTIFF(path string) bool {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	return mt.Is(tiffMIME)
}
