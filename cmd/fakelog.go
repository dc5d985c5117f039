// Copyright © 2024 NAME HERE tejiriaustin123@gmail.com

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tejiriaustin/tiffwatch/logparse"
)

var (
	fakeOutput string
	fakeLines  int
)

var fakeLogCmd = &cobra.Command{
	Use:   "fake-log",
	Short: "Append synthetic timestamped lines to a log file",
	Long: `Writes lines such as "2024-03-01 08:00:00.123 *nis* alpha" with a random
delay of up to half a second between them. Runs until --lines have been
written, or until interrupted when --lines is 0.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.OpenFile(fakeOutput, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open output: %w", err)
		}
		defer f.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		n, err := logparse.NewFakeLogWriter().Write(ctx, f, fakeLines)
		log.Infow("Fake log written", "output", fakeOutput, "lines", n)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	fakeLogCmd.Flags().StringVarP(&fakeOutput, "output", "o", "", "log file to append to")
	fakeLogCmd.Flags().IntVarP(&fakeLines, "lines", "n", 0, "number of lines to write; 0 runs until interrupted")
	_ = fakeLogCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(fakeLogCmd)
}
