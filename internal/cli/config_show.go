package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/avery-holt/cascade/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the resolved configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration (.cascade/config.yaml + CASCADE_ env overrides + defaults)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(workspaceDir())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		bold := color.New(color.Bold).SprintFunc()
		dim := color.New(color.FgHiBlack).SprintFunc()

		fmt.Println(bold("Attempt budgets"))
		fmt.Printf("  max_attempts              %d\n", cfg.MaxAttempts)
		fmt.Printf("  max_diff_lines            %d\n", cfg.MaxDiffLines)
		fmt.Printf("  stale_task_hours          %d\n", cfg.StaleTaskHours)
		fmt.Printf("  max_subtask_attempts      %d\n", cfg.MaxSubtaskAttempts)
		fmt.Println()

		fmt.Println(bold("Batching"))
		fmt.Printf("  min_batch_size            %d\n", cfg.MinBatchSize)
		fmt.Printf("  max_batch_size            %d\n", cfg.MaxBatchSize)
		fmt.Printf("  batch_timeout_minutes     %d\n", cfg.BatchTimeoutMinutes)
		fmt.Printf("  enable_batch_merge        %v\n", cfg.EnableBatchMerge)
		fmt.Println()

		fmt.Println(bold("Agentic loop"))
		fmt.Printf("  use_agentic_loop          %v\n", cfg.UseAgenticLoop)
		fmt.Printf("  agentic_loop_max_iterations   %d\n", cfg.AgenticLoopMaxIterations)
		fmt.Printf("  agentic_loop_max_replans      %d\n", cfg.AgenticLoopMaxReplans)
		fmt.Printf("  agentic_loop_confidence_threshold  %.2f\n", cfg.AgenticLoopConfidenceThreshold)
		fmt.Println()

		fmt.Println(bold("Multi-agent / visual testing"))
		fmt.Printf("  multi_agent_coding        %v\n", cfg.MultiAgentCoding)
		fmt.Printf("  multi_agent_fixing        %v\n", cfg.MultiAgentFixing)
		fmt.Printf("  enable_visual_testing     %v\n", cfg.EnableVisualTesting)
		fmt.Println()

		fmt.Println(bold("Storage"))
		if cfg.PostgresDSN != "" {
			fmt.Printf("  postgres_dsn              %s\n", dim("(set)"))
		} else {
			fmt.Printf("  postgres_dsn              %s\n", dim("(unset, falling back to in-memory store)"))
		}
		if cfg.RedisAddr != "" {
			fmt.Printf("  redis_addr                %s\n", cfg.RedisAddr)
		} else {
			fmt.Printf("  redis_addr                %s\n", dim("(unset, falling back to in-process locker)"))
		}

		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
