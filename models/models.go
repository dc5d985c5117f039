package models

import (
	"sort"
	"time"
)

// TimestampLayout is the 23 character "YYYY-MM-DD HH:MM:SS.mmm" format used
// in notifications and expected at the start of parsed log lines.
const TimestampLayout = "2006-01-02 15:04:05.000"

type FileEntry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	Pending bool      `json:"pending"`
}

type Snapshot struct {
	Directory string               `json:"directory"`
	TakenAt   time.Time            `json:"taken_at"`
	Files     map[string]FileEntry `json:"files"`
	FreeGB    float64              `json:"free_gb"`
}

func (s Snapshot) Count() int {
	return len(s.Files)
}

func (s Snapshot) PendingCount() int {
	n := 0
	for _, f := range s.Files {
		if f.Pending {
			n++
		}
	}
	return n
}

// Names returns the file names in the snapshot in lexical order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Files))
	for name := range s.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Delta struct {
	Added     []string `json:"added"`
	Modified  []string `json:"modified"`
	Removed   []string `json:"removed"`
	PrevCount int      `json:"prev_count"`
	Count     int      `json:"count"`
}

// Net is the change in file count between the two snapshots.
func (d Delta) Net() int {
	return d.Count - d.PrevCount
}

type PollResult struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Sequence  int       `json:"sequence"`
	Directory string    `json:"directory"`
	PolledAt  time.Time `json:"polled_at"`
	FileCount int       `json:"file_count"`
	Net       int       `json:"net"`
	Added     int       `json:"added"`
	Modified  int       `json:"modified"`
	Removed   int       `json:"removed"`
	Pending   int       `json:"pending"`
	FreeGB    float64   `json:"free_gb"`
	LowSpace  bool      `json:"low_space"`
	Warning   string    `json:"warning,omitempty"`
}
