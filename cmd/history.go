// Copyright © 2024 NAME HERE tejiriaustin123@gmail.com

package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tejiriaustin/tiffwatch/db"
	"github.com/tejiriaustin/tiffwatch/models"
	"github.com/tejiriaustin/tiffwatch/notify"
)

var (
	historyLimit int
	historyRun   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded poll results, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := db.PollFilter{Limit: historyLimit}
		if historyRun != "" {
			id, err := uuid.Parse(historyRun)
			if err != nil {
				return fmt.Errorf("--run must be a UUID: %w", err)
			}
			filter.RunID = id.String()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		repo, err := db.NewClient(ctx, currentConfig().DatabasePath)
		if err != nil {
			return err
		}
		defer repo.Close()

		results, err := repo.GetPollResults(ctx, filter)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No polls recorded")
			return nil
		}

		printHistory(results)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of polls to show")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "only show polls from this run id")
	rootCmd.AddCommand(historyCmd)
}

func printHistory(results []models.PollResult) {
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POLLED AT\tRUN\tSEQ\tFILES\tNET\tPENDING\tFREE GB\tDIRECTORY")
	for _, r := range results {
		net := fmt.Sprintf("%+d", r.Net)
		switch {
		case r.Net < 0:
			net = red(net)
		case r.Net == 0:
			net = yellow(net)
		default:
			net = green(net)
		}

		free := notify.FormatGB(r.FreeGB)
		if r.LowSpace {
			free = red(free)
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%d\t%s\t%s\n",
			notify.Timestamp(r.PolledAt.Local()),
			shortRunID(r.RunID),
			r.Sequence,
			r.FileCount,
			net,
			r.Pending,
			free,
			r.Directory,
		)
	}
	w.Flush()
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
