package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"symfetch/internal/history"
)

var (
	historyLimit int
	historyRun   string
)

// historyCmd shows the run ledger
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs, or the per-module outcomes of one run",
	Args:  cobra.NoArgs,
	RunE:  showHistory,
}

func showHistory(cmd *cobra.Command, args []string) error {
	if cfg.State.HistoryDB == "" {
		return errors.New("run history is disabled (state.history_db is empty)")
	}
	store, err := history.Open(cfg.State.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if historyRun != "" {
		return printAttempts(ctx, store, historyRun)
	}

	runs, err := store.RecentRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}
	fmt.Printf("%-36s  %-19s  %8s  %5s  %7s  %6s  %8s  %s\n",
		"RUN", "STARTED", "DURATION", "CANDS", "FETCHED", "FAILED", "TIMEOUTS", "ARCHIVE")
	for _, r := range runs {
		archive := r.Archive
		switch {
		case archive == "":
			archive = "-"
		case !r.Published:
			archive += " (unpublished)"
		}
		fmt.Printf("%-36s  %-19s  %8s  %5d  %7d  %6d  %8d  %s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
			r.Candidates, r.Fetched, r.Failed, r.TimedOut, archive)
	}
	return nil
}

func printAttempts(ctx context.Context, store *history.Store, runID string) error {
	attempts, err := store.Attempts(ctx, runID)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Printf("No attempts recorded for run %s\n", runID)
		return nil
	}
	for _, a := range attempts {
		line := fmt.Sprintf("%-40s %-34s %-18s", a.DebugFile, a.DebugID, a.Outcome)
		if a.ExitCode >= 0 {
			line += fmt.Sprintf(" exit=%d", a.ExitCode)
		}
		if a.Reason != "" {
			line += " " + a.Reason
		}
		fmt.Println(line)
	}
	return nil
}
