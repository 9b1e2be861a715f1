package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/avery-holt/cascade/internal/agent/cliagent"
	"github.com/avery-holt/cascade/internal/cmdexec"
	"github.com/avery-holt/cascade/internal/config"
	"github.com/avery-holt/cascade/internal/display"
	"github.com/avery-holt/cascade/internal/logging"
	"github.com/avery-holt/cascade/internal/memory"
	"github.com/avery-holt/cascade/internal/orchestrator"
	"github.com/avery-holt/cascade/internal/scheduler"
	"github.com/avery-holt/cascade/internal/task"
	"github.com/avery-holt/cascade/internal/testutil"
)

var (
	serveDev          bool
	servePollInterval time.Duration
	serveMaxSteps     int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler loop, advancing every ready task until it parks",
	Long: `serve polls the store for tasks that are New or sitting in an
intermediate status, advances each one through the orchestrator
(spec.md §4.11) in parallel, and runs the stale-task sweep (§6.4) on
every poll.

internal/vcs.Host and the six internal/agent families are pluggable,
out-of-scope collaborators (spec.md §1, §6.1): a real deployment links in a
forge-backed Host and production agent implementations. --dev wires the
in-memory fakes from internal/testutil plus the local LLM-CLI-backed agents
in internal/agent/cliagent so the full loop is runnable without either.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(workspaceDir())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger, err := logging.New()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		defer logger.Sync()
		ctx := logging.WithContext(context.Background(), logger)

		if !serveDev {
			return fmt.Errorf("no vcs.Host/agent implementation is linked into this build; rerun with --dev to use the in-memory/local-CLI fakes, or build a deployment binary that injects a real Host")
		}

		s, bus := openStore(cfg)
		host := testutil.NewFakeHost()
		backend := cliagent.NewClaudeCLI("")

		orch := &orchestrator.Orchestrator{
			Store:  s,
			Host:   host,
			Bus:    bus,
			Memory: memory.New(s),
			Exec:   cmdexec.New(),
			Cfg:    cfg,
			Agents: orchestrator.Agents{
				Planner:   &cliagent.Planner{Backend: backend},
				Coder:     &cliagent.Coder{Backend: backend},
				Fixer:     &cliagent.Fixer{Backend: backend},
				Reviewer:  &cliagent.Reviewer{Backend: backend},
				Breakdown: &cliagent.Breakdown{Backend: backend},
				Reflector: &cliagent.Reflector{Backend: backend},
			},
		}
		runner := scheduler.New(orch, s, bus, cfg)

		d := display.New()
		d.Box(fmt.Sprintf("serving in --dev mode (poll every %s)", servePollInterval))

		sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		ticker := time.NewTicker(servePollInterval)
		defer ticker.Stop()

		for {
			if err := tick(sigCtx, runner, s, serveMaxSteps, d); err != nil {
				d.Error(err.Error())
			}
			select {
			case <-sigCtx.Done():
				d.Info("serve", "shutting down")
				return nil
			case <-ticker.C:
			}
		}
	},
}

// readyTaskStore is the slice of store.Store that tick needs to find work.
type readyTaskStore interface {
	GetTasksByStatus(ctx context.Context, status task.Status) ([]*task.Task, error)
}

// tick collects every task in a ready-to-advance status, fans them out
// through RunParallel, and runs the stale sweep -- the same
// pull-dispatch-persist shape the teacher's Loop/LoopWithAnalysis used for a
// single plan, generalized here to every task in play at once.
func tick(ctx context.Context, runner *scheduler.Runner, s readyTaskStore, maxSteps int, d *display.Display) error {
	statuses := append([]task.Status{task.StatusNew}, task.IntermediateStates()...)

	var ids []uuid.UUID
	for _, status := range statuses {
		tasks, err := s.GetTasksByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("list %s tasks: %w", status, err)
		}
		for _, t := range tasks {
			ids = append(ids, t.ID)
		}
	}

	if len(ids) > 0 {
		for _, res := range runner.RunParallel(ctx, ids, maxSteps, 0) {
			if res.Err != nil {
				d.Error(fmt.Sprintf("task %s: %v", res.TaskID, res.Err))
				continue
			}
			if res.Task != nil {
				d.Info(res.TaskID.String(), string(res.Task.Status))
			}
		}
	}

	swept, err := runner.StaleSweep(ctx)
	if err != nil {
		return fmt.Errorf("stale sweep: %w", err)
	}
	if swept > 0 {
		d.Warning(fmt.Sprintf("stale-swept %d task(s)", swept))
	}
	return nil
}

func init() {
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "use in-memory/local-CLI fakes for vcs.Host and the agent families")
	serveCmd.Flags().DurationVar(&servePollInterval, "poll-interval", 10*time.Second, "how often to scan for ready tasks and run the stale sweep")
	serveCmd.Flags().IntVar(&serveMaxSteps, "max-steps", 10, "max Process ticks per task per poll (scheduler.Runner.Advance)")
	rootCmd.AddCommand(serveCmd)
}
