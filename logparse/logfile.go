// Package logparse turns timestamped log lines into time-offset series.
//
// Every line is expected to start with a "YYYY-MM-DD HH:MM:SS.mmm" stamp.
// Lines without one are kept but carry no timestamp; they are skipped when
// computing diffs.
package logparse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tejiriaustin/tiffwatch/models"
)

// TimestampLength is the width of the stamp at the start of each line.
const TimestampLength = len(models.TimestampLayout)

var ErrNoTimestamps = errors.New("no valid timestamps found")

type Entry struct {
	Line  string
	Time  time.Time
	Valid bool
}

type Offset struct {
	Seconds float64
	Valid   bool
}

type LogFile struct {
	Entries []Entry
	First   time.Time
}

// parseLayout accepts unpadded month, day and hour and one to nine
// fractional digits, so stamps such as "2019-2-8 13:16:00.89012" parse.
const parseLayout = "2006-1-2 15:04:05.999999999"

// ParseTimestamp reads the fixed-width stamp at the start of line.
func ParseTimestamp(line string) (time.Time, bool) {
	line = strings.TrimSpace(line)
	if len(line) < TimestampLength {
		return time.Time{}, false
	}

	t, err := time.ParseInLocation(parseLayout, line[:TimestampLength], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func New(lines []string) (*LogFile, error) {
	lf := &LogFile{Entries: make([]Entry, 0, len(lines))}

	firstFound := false
	for _, line := range lines {
		t, ok := ParseTimestamp(line)
		lf.Entries = append(lf.Entries, Entry{
			Line:  strings.TrimSpace(line),
			Time:  t,
			Valid: ok,
		})
		if ok && !firstFound {
			lf.First = t
			firstFound = true
		}
	}

	if !firstFound {
		return nil, ErrNoTimestamps
	}
	return lf, nil
}

func Load(r io.Reader) (*LogFile, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	return New(lines)
}

// ValidCount returns how many lines carried a parseable timestamp.
func (lf *LogFile) ValidCount() int {
	n := 0
	for _, e := range lf.Entries {
		if e.Valid {
			n++
		}
	}
	return n
}

// Offsets has one element per line: seconds since the first valid timestamp.
func (lf *LogFile) Offsets() []Offset {
	offsets := make([]Offset, len(lf.Entries))
	for i, e := range lf.Entries {
		if !e.Valid {
			continue
		}
		offsets[i] = Offset{Seconds: e.Time.Sub(lf.First).Seconds(), Valid: true}
	}
	return offsets
}

// Diffs returns the gaps between consecutive valid timestamps.
func (lf *LogFile) Diffs() []time.Duration {
	var (
		diffs []time.Duration
		prev  *time.Time
	)
	for i := range lf.Entries {
		e := &lf.Entries[i]
		if !e.Valid {
			continue
		}
		if prev != nil {
			diffs = append(diffs, e.Time.Sub(*prev))
		}
		prev = &e.Time
	}
	return diffs
}

// MaxGap returns the largest gap between consecutive valid timestamps and
// the index of the line that closes it. line is -1 when there are fewer than
// two valid timestamps.
func (lf *LogFile) MaxGap() (gap time.Duration, line int) {
	line = -1
	prev := -1
	for i, e := range lf.Entries {
		if !e.Valid {
			continue
		}
		if prev >= 0 {
			d := e.Time.Sub(lf.Entries[prev].Time)
			if line < 0 || d > gap {
				gap, line = d, i
			}
		}
		prev = i
	}
	return gap, line
}
