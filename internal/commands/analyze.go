package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/autometric/autometric/pkg/types"
)

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	var maxRuns int

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Process queued analyzer runs",
		Long:  "Claims queued push runs one at a time and processes each to a terminal state.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(maxRuns)
		},
	}

	cmd.Flags().IntVar(&maxRuns, "max", 1, "Maximum number of runs to process")
	return cmd
}

func runAnalyze(maxRuns int) error {
	ctx := context.Background()
	logger := slog.Default()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	deps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	if deps.worker == nil {
		return fmt.Errorf("github is not configured; the analyzer needs hosting API access")
	}

	processed := 0
	for processed < maxRuns {
		report, err := deps.worker.RunOnce(ctx)
		if err != nil {
			return err
		}
		if !report.Picked {
			break
		}
		processed++
		printReport(report.Repository, string(report.Status), report.Skipped, report.Fallback, report.Error)
	}

	if processed == 0 {
		fmt.Println("No queued runs.")
	}
	return nil
}

func printReport(repo, status string, skipped, fallback bool, errText string) {
	switch types.RunStatus(status) {
	case types.RunCompleted:
		label := color.GreenString("COMPLETED")
		if skipped {
			label = color.YellowString("SKIPPED")
		} else if fallback {
			label += color.YellowString(" (fallback)")
		}
		fmt.Printf("%s %s\n", label, repo)
	case types.RunFailed:
		fmt.Printf("%s %s: %s\n", color.RedString("FAILED"), repo, errText)
	default:
		fmt.Printf("%s %s\n", status, repo)
	}
}
