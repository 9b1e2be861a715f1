package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avery-holt/cascade/internal/config"
	"github.com/avery-holt/cascade/internal/display"
	"github.com/avery-holt/cascade/internal/scheduler"
)

var staleSweepCmd = &cobra.Command{
	Use:   "stale-sweep",
	Short: "Run the stale-task cleanup once (spec.md §6.4)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(workspaceDir())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		s, bus := openStore(cfg)
		runner := scheduler.New(nil, s, bus, cfg)

		swept, err := runner.StaleSweep(context.Background())
		if err != nil {
			return fmt.Errorf("stale sweep: %w", err)
		}

		d := display.New()
		if swept == 0 {
			d.Info("stale-sweep", "no stale tasks found")
		} else {
			d.Success(fmt.Sprintf("swept %d stale task(s)", swept))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(staleSweepCmd)
}
