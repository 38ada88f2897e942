package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autometric/autometric/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "autometric",
		Short: "Automatic analytics instrumentation for frontend repositories",
		Long: `Autometric watches repository pushes, infers an analytics event schema
for the frontend code it finds, opens pull requests with generated tracking
code, and validates runtime analytics events against the resolved schema.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewMigrateCmd(),
		commands.NewServeCmd(),
		commands.NewAnalyzeCmd(),
		commands.NewApproveCmd(),
		commands.NewStatusCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
