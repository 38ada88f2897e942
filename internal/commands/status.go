package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/autometric/autometric/internal/store"
	"github.com/autometric/autometric/pkg/types"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status <owner/repo>",
		Short: "Show a repository's analyzer runs and resolved schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(args[0], limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of recent runs to show")
	return cmd
}

func runStatus(fullName string, limit int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger := slog.Default()

	owner, name, err := types.SplitFullName(fullName)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	deps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	repo, err := deps.store.FindRepository(ctx, types.DefaultProvider, owner, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("repository %s is unknown", fullName)
		}
		return err
	}

	bold := color.New(color.Bold)
	_, _ = bold.Printf("%s (default branch %s)\n\n", repo.FullName(), repo.DefaultBranch)

	resolved, err := deps.resolver.Resolve(ctx, repo.ID)
	if err != nil {
		return fmt.Errorf("resolving schema: %w", err)
	}
	if len(resolved.Events) == 0 {
		fmt.Println("No known events.")
	} else {
		_, _ = bold.Println("Events:")
		for _, ev := range resolved.Events {
			fmt.Printf("  %s (required: %d, optional: %d)\n", ev.Name, len(ev.Required), len(ev.Optional))
		}
	}
	fmt.Println()

	runs, err := deps.store.ListRuns(ctx, repo.ID, limit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No analyzer runs.")
		return nil
	}

	_, _ = bold.Println("Recent runs:")
	for _, run := range runs {
		fmt.Printf("  %s  %s  %s  %s\n",
			run.CreatedAt.Format(time.RFC3339), statusLabel(run.Status), run.TriggerKind, shortSHA(run.CommitSHA))
	}
	return nil
}

func statusLabel(status types.RunStatus) string {
	switch status {
	case types.RunCompleted:
		return color.GreenString("%-9s", status)
	case types.RunFailed:
		return color.RedString("%-9s", status)
	case types.RunRunning:
		return color.CyanString("%-9s", status)
	default:
		return color.YellowString("%-9s", status)
	}
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	if sha == "" {
		return "-"
	}
	return sha
}
