// Copyright © 2024 NAME HERE tejiriaustin123@gmail.com

package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tejiriaustin/tiffwatch/logparse"
	"github.com/tejiriaustin/tiffwatch/notify"
)

var (
	parseInput  string
	parseSeries bool
)

var parseLogCmd = &cobra.Command{
	Use:   "parse-log",
	Short: "Summarise the timing of a timestamped log file",
	Long: `Reads a log whose lines start with "YYYY-MM-DD HH:MM:SS.mmm" and reports
how the timestamps are spread out. With --series every line's offset in
seconds from the first timestamp, and from the previous one, is printed instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(parseInput)
		if err != nil {
			return fmt.Errorf("failed to open log: %w", err)
		}
		defer f.Close()

		lf, err := logparse.Load(f)
		if err != nil {
			return err
		}

		if parseSeries {
			printSeries(lf)
			return nil
		}
		printSummary(lf)
		return nil
	},
}

func init() {
	parseLogCmd.Flags().StringVarP(&parseInput, "input", "i", "", "log file to parse")
	parseLogCmd.Flags().BoolVar(&parseSeries, "series", false, "print the offset of every line")
	_ = parseLogCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(parseLogCmd)
}

func printSeries(lf *logparse.LogFile) {
	var prev *time.Time
	for i, off := range lf.Offsets() {
		offset, diff := "-", "-"
		if off.Valid {
			t := lf.Entries[i].Time
			offset = strconv.FormatFloat(off.Seconds, 'f', 3, 64)
			if prev != nil {
				diff = strconv.FormatFloat(t.Sub(*prev).Seconds(), 'f', 3, 64)
			}
			prev = &t
		}
		fmt.Printf("%d\t%s\t%s\n", i+1, offset, diff)
	}
}

func printSummary(lf *logparse.LogFile) {
	bold := color.New(color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	valid := lf.ValidCount()
	skipped := len(lf.Entries) - valid

	fmt.Printf("%s %s\n", bold("Lines:          "), strconv.Itoa(len(lf.Entries)))
	fmt.Printf("%s %d\n", bold("With timestamp: "), valid)
	if skipped > 0 {
		fmt.Printf("%s %s\n", bold("Without:        "), yellow(strconv.Itoa(skipped)))
	}
	fmt.Printf("%s %s\n", bold("First:          "), notify.Timestamp(lf.First))

	offsets := lf.Offsets()
	var span float64
	for _, off := range offsets {
		if off.Valid && off.Seconds > span {
			span = off.Seconds
		}
	}
	fmt.Printf("%s %s\n", bold("Span:           "), (time.Duration(span * float64(time.Second))).Round(time.Millisecond))

	diffs := lf.Diffs()
	if len(diffs) == 0 {
		return
	}
	var total time.Duration
	for _, d := range diffs {
		total += d
	}
	fmt.Printf("%s %s\n", bold("Mean gap:       "), (total / time.Duration(len(diffs))).Round(time.Millisecond))

	gap, line := lf.MaxGap()
	if line >= 0 {
		fmt.Printf("%s %s (before line %d)\n", bold("Largest gap:    "), yellow(gap.Round(time.Millisecond).String()), line+1)
	}
}
