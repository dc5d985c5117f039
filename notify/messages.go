// Package notify builds the chat messages a watcher run emits and delivers
// them to the log and warning webhooks.
package notify

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tejiriaustin/tiffwatch/models"
)

const (
	ColorGood    = "good"
	ColorDanger  = "danger"
	ColorWarning = "warning"
	// ColorStopped is not a Slack named color; it renders as the neutral gray
	// bar used for the stop notice.
	ColorStopped = "warn"

	TitleNoFilesAdded = "NO FILES ADDED"
	TitleFilesRemoved = "FILES REMOVED"
	TitleLowDiskSpace = "Low Disk Space"
)

type (
	Payload struct {
		Text        string       `json:"text,omitempty"`
		Attachments []Attachment `json:"attachments,omitempty"`
	}
	Attachment struct {
		Fallback string  `json:"fallback"`
		Color    string  `json:"color"`
		Title    string  `json:"title"`
		Fields   []Field `json:"fields"`
	}
	Field struct {
		Title string `json:"title"`
		Value string `json:"value"`
		Short bool   `json:"short"`
	}
)

func Timestamp(t time.Time) string {
	return t.Format(models.TimestampLayout)
}

// FormatGB renders gb with exactly two decimals.
func FormatGB(gb float64) string {
	return strconv.FormatFloat(math.Round(gb*100)/100, 'f', 2, 64)
}

func InitialMessage(dir string, count int, freeGB float64, at time.Time) Payload {
	fallback := fmt.Sprintf("NOTICE: Started watching %s.\n%d .tif(f) files at start.", dir, count)
	return Payload{Attachments: []Attachment{{
		Fallback: fallback,
		Color:    ColorGood,
		Title:    "New Watcher",
		Fields: []Field{
			{Title: "Start time", Value: Timestamp(at)},
			{Title: "Location", Value: dir},
			{Title: "Initial .tif(f) count", Value: strconv.Itoa(count)},
			{Title: "Space Available", Value: FormatGB(freeGB) + " GB"},
		},
	}}}
}

func StatusMessage(delta models.Delta, pending int, freeGB float64, at time.Time) Payload {
	ts := Timestamp(at)
	pad := strings.Repeat(" ", len(ts)) + "  "

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d .tif(f)s have been added since last poll.\n", ts, delta.Net())
	fmt.Fprintf(&b, "%s%s gigabytes available on the filesystem.", pad, FormatGB(freeGB))
	if n := len(delta.Modified); n > 0 {
		fmt.Fprintf(&b, "\n%s%d .tif(f)s modified since last poll.", pad, n)
	}
	if n := len(delta.Removed); n > 0 {
		fmt.Fprintf(&b, "\n%s%d .tif(f)s removed since last poll.", pad, n)
	}
	if pending > 0 {
		fmt.Fprintf(&b, "\n%s%d .tif(f)s still being written.", pad, pending)
	}
	return Payload{Text: b.String()}
}

// WarningTitle returns the warning raised for a net change in file count, or
// "" when files were added.
func WarningTitle(net int) string {
	switch {
	case net == 0:
		return TitleNoFilesAdded
	case net < 0:
		return TitleFilesRemoved
	default:
		return ""
	}
}

func WarningMessage(net int, dir string, at time.Time) Payload {
	title := WarningTitle(net)
	return Payload{Attachments: []Attachment{{
		Fallback: title,
		Color:    ColorDanger,
		Title:    title,
		Fields: []Field{
			{Title: "Timestamp", Value: Timestamp(at)},
			{Title: "Location", Value: dir},
		},
	}}}
}

func LowDiskSpaceMessage(dir string, freeGB float64, at time.Time) Payload {
	return Payload{Attachments: []Attachment{{
		Fallback: FormatGB(freeGB) + " gigabytes remaining.",
		Color:    ColorWarning,
		Title:    TitleLowDiskSpace,
		Fields: []Field{
			{Title: "Timestamp", Value: Timestamp(at)},
			{Title: "Location", Value: dir},
			{Title: "Space Remaining", Value: FormatGB(freeGB) + " GB"},
		},
	}}}
}

func FinalMessage(dir string, at time.Time) Payload {
	ts := Timestamp(at)
	return Payload{Attachments: []Attachment{{
		Fallback: fmt.Sprintf("%s: Watcher stopped watching directory '%s'.", ts, dir),
		Color:    ColorStopped,
		Title:    "Watcher stopped",
		Fields: []Field{
			{Title: "Timestamp", Value: ts},
			{Title: "Location", Value: dir},
		},
	}}}
}
