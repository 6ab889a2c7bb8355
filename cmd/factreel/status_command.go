package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"factreel/internal/runstore"
)

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
)

func newStatusCommand(cmdCtx *commandContext) *cobra.Command {
	var limit int
	var showStages bool

	cmd := &cobra.Command{
		Use:   "status [source-url]",
		Short: "Show recent pipeline runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := runstore.Open(filepath.Join(cfg.Paths.LogDir, "history.db"))
			if err != nil {
				return err
			}
			defer store.Close()

			source := ""
			if len(args) > 0 {
				source = args[0]
			}
			runs, err := store.Runs(cmd.Context(), source, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No recorded runs")
				return nil
			}

			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.SessionID,
					run.Episode,
					colorOutcome(run.Outcome, colorize),
					run.StartedAt.Local().Format(time.DateTime),
					formatRunDuration(run),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Session", "Episode", "Outcome", "Started", "Duration"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))

			if showStages {
				for _, run := range runs {
					records, err := store.StageRecords(cmd.Context(), run.SessionID)
					if err != nil {
						return err
					}
					stageRows := make([][]string, 0, len(records))
					for _, rec := range records {
						duration := ""
						if rec.Duration > 0 {
							duration = rec.Duration.Round(time.Millisecond).String()
						}
						stageRows = append(stageRows, []string{rec.Stage, rec.Status, duration, rec.Error})
					}
					fmt.Fprintf(out, "\n%s:\n", run.SessionID)
					fmt.Fprintln(out, renderTable(
						[]string{"Stage", "Status", "Duration", "Error"},
						stageRows,
						[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
					))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().BoolVar(&showStages, "stages", false, "Include per-stage records")

	return cmd
}

func colorOutcome(outcome string, colorize bool) string {
	if !colorize {
		return outcome
	}
	switch outcome {
	case "succeeded":
		return ansiGreen + outcome + ansiReset
	case "failed":
		return ansiRed + outcome + ansiReset
	default:
		return outcome
	}
}

func formatRunDuration(run runstore.Run) string {
	if run.FinishedAt.IsZero() {
		return ""
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
}
