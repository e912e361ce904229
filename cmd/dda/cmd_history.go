package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ddaharness/cmd/dda/ui"
	"ddaharness/internal/store"
)

var historyLimit int

// historyCmd shows recorded runs
var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded runs, or show one run's results",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list (0 = all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("run history is disabled (store.enabled: false)")
	}
	defer st.Close()

	ctx, cancel := commandContext()
	defer cancel()

	w := cmd.OutOrStdout()
	if len(args) == 1 {
		rec, err := st.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(w, rec)
		}
		printRun(cmd, rec)
		return nil
	}

	runs, err := st.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(w, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, styles.Muted.Render("no runs recorded"))
		return nil
	}

	table := ui.NewSimpleTable("Runs", []string{"ID", "Started", "Input", "Variants", "Status", "Exit"})
	for _, r := range runs {
		table.AddRow(r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.InputPath,
			fmt.Sprint(r.Variants), statusText(r.Status), strconv.Itoa(r.ExitCode))
	}
	fmt.Fprint(w, table.View(styles))
	return nil
}

func printRun(cmd *cobra.Command, rec *store.RunRecord) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s %s\n", styles.Title.Render("Run "+rec.ID), statusText(rec.Status))
	fmt.Fprintf(w, "input:    %s\nformat:   %s\nexit:     %d\nduration: %s\n", rec.InputPath, rec.Format, rec.ExitCode, rec.Duration)
	if rec.Error != "" {
		fmt.Fprintf(w, "error:    %s (%s)\n", rec.Error, rec.ErrorKind)
	}
	fmt.Fprintln(w)

	table := ui.NewSimpleTable("Results", []string{"Variant", "Rows", "Windows", "Warnings"})
	for _, res := range rec.Results {
		table.AddRow(res.Variant, strconv.Itoa(res.Rows), strconv.Itoa(res.Cols), strconv.Itoa(len(res.Warnings)))
	}
	fmt.Fprint(w, table.View(styles))
}

func statusText(status string) string {
	switch status {
	case store.StatusSuccess:
		return styles.Success.Render(status)
	case store.StatusKilled:
		return styles.Warning.Render(status)
	default:
		return styles.Error.Render(status)
	}
}
