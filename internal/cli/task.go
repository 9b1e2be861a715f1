package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/avery-holt/cascade/internal/config"
	"github.com/avery-holt/cascade/internal/display"
	"github.com/avery-holt/cascade/internal/task"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect tasks tracked by the orchestration core",
}

var taskStatusFilter string

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, optionally filtered by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(workspaceDir())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		s, _ := openStore(cfg)
		ctx := context.Background()

		var tasks []*task.Task
		if taskStatusFilter != "" {
			status := task.Status(taskStatusFilter)
			if !status.IsValid() {
				return fmt.Errorf("unknown status %q", taskStatusFilter)
			}
			tasks, err = s.GetTasksByStatus(ctx, status)
		} else {
			for _, status := range task.AllStatuses() {
				var ts []*task.Task
				ts, err = s.GetTasksByStatus(ctx, status)
				if err != nil {
					break
				}
				tasks = append(tasks, ts...)
			}
		}
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}

		d := display.New()
		if len(tasks) == 0 {
			d.Info("tasks", "none found")
			return nil
		}
		for _, t := range tasks {
			fmt.Printf("%-36s %-20s %-24s attempt=%d/%d\n", t.ID, t.Status, t.Repo+"#"+fmt.Sprint(t.Issue), t.AttemptCount, t.MaxAttempts)
		}
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one task's current state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid task id %q: %w", args[0], err)
		}

		cfg, err := config.Load(workspaceDir())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		s, _ := openStore(cfg)

		t, err := s.GetTask(context.Background(), id)
		if err != nil {
			return fmt.Errorf("get task: %w", err)
		}

		d := display.New()
		d.TitledBox(fmt.Sprintf("%s #%d", t.Repo, t.Issue),
			fmt.Sprintf("id:       %s", t.ID),
			fmt.Sprintf("status:   %s", t.Status),
			fmt.Sprintf("attempt:  %d/%d", t.AttemptCount, t.MaxAttempts),
			fmt.Sprintf("complexity/effort: %s/%s", t.Complexity, t.Effort),
			fmt.Sprintf("branch:   %s", t.Branch),
			fmt.Sprintf("pr:       #%d %s", t.PRNumber, t.PRURL),
		)
		if t.LastError != "" {
			d.Warning("last error: " + t.LastError)
		}

		events, err := s.GetTaskEvents(context.Background(), id)
		if err != nil {
			return fmt.Errorf("get task events: %w", err)
		}
		if len(events) > 0 {
			fmt.Println()
			fmt.Println("Events:")
			for _, e := range events {
				fmt.Printf("  %s  %-24s %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Type, e.OutputSummary)
			}
		}
		return nil
	},
}

func init() {
	taskListCmd.Flags().StringVar(&taskStatusFilter, "status", "", "filter by task status (e.g. coding, tests_failed, pr_created)")
	taskCmd.AddCommand(taskListCmd, taskShowCmd)
	rootCmd.AddCommand(taskCmd)
}
