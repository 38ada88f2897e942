package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/autometric/autometric/internal/pr"
	"github.com/autometric/autometric/internal/store"
	"github.com/autometric/autometric/pkg/types"
)

// NewApproveCmd creates the approve command.
func NewApproveCmd() *cobra.Command {
	var (
		commitSHA string
		force     bool
		fileArgs  []string
	)

	cmd := &cobra.Command{
		Use:   "approve <owner/repo>",
		Short: "Open a pull request with the approved instrumentation files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprove(args[0], commitSHA, force, fileArgs)
		},
	}

	cmd.Flags().StringVar(&commitSHA, "commit", "", "Target commit sha (required)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite files that already exist at the commit")
	cmd.Flags().StringArrayVar(&fileArgs, "file", nil, "Explicit file as repo-path=local-path (repeatable; default: schema snippets)")
	_ = cmd.MarkFlagRequired("commit")
	return cmd
}

func runApprove(fullName, commitSHA string, force bool, fileArgs []string) error {
	ctx := context.Background()
	logger := slog.Default()

	owner, name, err := types.SplitFullName(fullName)
	if err != nil {
		return err
	}

	files, err := readFileArgs(fileArgs)
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

	if deps.integrator == nil {
		return fmt.Errorf("github is not configured; approve needs hosting API access")
	}

	repo, err := deps.store.FindRepository(ctx, types.DefaultProvider, owner, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("repository %s is unknown; it is created on first webhook delivery", fullName)
		}
		return err
	}

	result, err := deps.integrator.Approve(ctx, repo, &types.ApproveRequest{
		CommitSHA: commitSHA,
		Files:     files,
		Force:     force,
	})
	if err != nil {
		var conflict *pr.ConflictError
		if errors.As(err, &conflict) {
			color.Red("Conflicting files at %s:", commitSHA)
			for _, p := range conflict.Paths {
				fmt.Printf("  %s\n", p)
			}
			return fmt.Errorf("re-run with --force to overwrite")
		}
		return err
	}

	if result.Status == types.ApproveExists {
		color.Yellow("Pull request already open: %s", result.PRURL)
		return nil
	}
	color.Green("Opened pull request #%d on %s", result.PRNumber, result.Branch)
	fmt.Println(result.PRURL)
	return nil
}

// readFileArgs parses repeated repo-path=local-path flags into the explicit
// file set.
func readFileArgs(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	files := make(map[string]string, len(args))
	for _, arg := range args {
		repoPath, localPath, ok := splitPair(arg)
		if !ok {
			return nil, fmt.Errorf("invalid --file %q, want repo-path=local-path", arg)
		}
		content, err := os.ReadFile(filepath.Clean(localPath))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", localPath, err)
		}
		files[repoPath] = string(content)
	}
	return files, nil
}

func splitPair(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], i > 0 && i < len(s)-1
		}
	}
	return "", "", false
}
