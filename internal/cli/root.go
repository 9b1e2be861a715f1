// Package cli wires cascade's cobra subcommands onto a root command,
// exactly as the teacher's internal/cli wired discuss/run/status onto
// ralph's root.go -- same PersistentFlags/init()-registration shape, new
// subcommands for the issue-to-PR orchestration core.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set by goreleaser via ldflags
	Version = "dev"
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Autonomous issue-to-PR orchestration",
	Long: `Cascade turns a tracked issue into a reviewed pull request: plan, code,
test, review, and open a PR, retrying through bounded fix/fail cycles
(spec.md §4) with no human in the loop unless a gate requires one.

Core Commands:
  cascade serve                    Run the scheduler loop against the store
  cascade task show <id>           Show one task's current state
  cascade task list --status=<s>   List tasks in a given status
  cascade stale-sweep              Run the stale-task cleanup once
  cascade config show              Print the resolved configuration`,
	Version: Version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "workspace directory containing .cascade/config.yaml (default: current directory)")
	rootCmd.SetVersionTemplate(fmt.Sprintf("cascade version %s\n", Version))
}

func exitError(msg string) {
	fmt.Fprintln(os.Stderr, "Error:", msg)
	os.Exit(1)
}

// workspaceDir returns the directory config.Load should read
// .cascade/config.yaml from: the --config flag if set, otherwise the current
// directory.
func workspaceDir() string {
	if cfgFile != "" {
		return cfgFile
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}
