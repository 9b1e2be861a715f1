// Package cmdexec implements the CommandExecutor from spec.md §4.4: a
// fixed, enumerated set of side-effectful commands, each with a fixed
// argument shape, refusing anything outside that set. Grounded on the
// teacher's internal/executor/build_verify.go exec.CommandContext +
// cmd.Dir + CombinedOutput pattern.
package cmdexec

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/avery-holt/cascade/internal/cerr"
)

// Command identifies one member of the enumerated command set spec.md
// §4.4 allows. No other command name is ever accepted.
type Command string

const (
	CommandInstallPackage    Command = "install_package"
	CommandMigrationGenerate Command = "migration_generate"
	CommandMigrationApply    Command = "migration_apply"
	CommandMigrationPush     Command = "migration_push"
	CommandCreateDirectory   Command = "create_directory"
	CommandTypecheck         Command = "typecheck"
	CommandLintFix           Command = "lint_fix"
	CommandFormat            Command = "format"
)

// PackageManager enumerates the choice of installer CommandInstallPackage
// may be parameterized with.
type PackageManager string

const (
	ManagerNpm    PackageManager = "npm"
	ManagerPnpm   PackageManager = "pnpm"
	ManagerYarn   PackageManager = "yarn"
	ManagerGoMod  PackageManager = "go"
	ManagerPip    PackageManager = "pip"
)

// MigrationTool enumerates the two schema tools the migration commands
// support.
type MigrationTool string

const (
	MigrationToolGoose  MigrationTool = "goose"
	MigrationToolPrisma MigrationTool = "prisma"
)

// Phase tags a command as running before or after the coder's diff is
// applied, per spec.md §4.4 ("Planner output may attach an ordered command
// list with a phase tag before_diff... or after_diff...").
type Phase string

const (
	PhaseBeforeDiff Phase = "before_diff"
	PhaseAfterDiff  Phase = "after_diff"
)

// Spec is one command invocation request. Only Command, WorkDir and Phase
// are required; the remaining fields are interpreted per-Command and are
// ignored (not silently accepted as arbitrary args) for commands that
// don't use them.
type Spec struct {
	Command    Command
	WorkDir    string
	Phase      Phase
	Manager    PackageManager
	Package    string
	Tool       MigrationTool
	Name       string // migration name, or directory path for create_directory
	Timeout    time.Duration
}

// Output is the (success, exitCode, stdoutTail, stderrTail, durationMs)
// tuple spec.md §4.4 specifies.
type Output struct {
	Success    bool
	ExitCode   int
	StdoutTail string
	StderrTail string
	DurationMs int64
}

const tailLimit = 4000

// Executor runs Specs against the real OS, refusing anything outside the
// enumerated Command set.
type Executor struct {
	// DefaultTimeout bounds a single command when Spec.Timeout is zero.
	DefaultTimeout time.Duration
}

// New returns an Executor with spec.md §6.3's implicit per-command bound.
func New() *Executor {
	return &Executor{DefaultTimeout: 5 * time.Minute}
}

// Run builds and executes the concrete argv for spec.Command, refusing any
// command not in the enumerated set with a non-recoverable CommandFailed
// error.
func (e *Executor) Run(ctx context.Context, spec Spec) (Output, error) {
	argv, err := buildArgv(spec)
	if err != nil {
		return Output{}, err
	}

	timeout := spec.Timeout
	if timeout == 0 {
		timeout = e.DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = spec.WorkDir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	duration := time.Since(start)

	out := Output{
		StdoutTail: tail(stdout.String(), tailLimit),
		StderrTail: tail(stderr.String(), tailLimit),
		DurationMs: duration.Milliseconds(),
	}
	if runErr == nil {
		out.Success = true
		out.ExitCode = 0
		return out, nil
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	return out, cerr.Wrap(cerr.CommandFailed, "failed to start command", "", true, runErr)
}

// buildArgv translates spec into a fixed argv shape per command, refusing
// any Command value outside the enumerated set.
func buildArgv(spec Spec) ([]string, error) {
	switch spec.Command {
	case CommandInstallPackage:
		return installArgv(spec)
	case CommandMigrationGenerate:
		return migrationArgv(spec, "generate")
	case CommandMigrationApply:
		return migrationArgv(spec, "apply")
	case CommandMigrationPush:
		return migrationArgv(spec, "push")
	case CommandCreateDirectory:
		if spec.Name == "" {
			return nil, cerr.New(cerr.CommandFailed, "create_directory requires Name", "", false)
		}
		return []string{"mkdir", "-p", spec.Name}, nil
	case CommandTypecheck:
		return []string{"sh", ".cascade/typecheck.sh"}, nil
	case CommandLintFix:
		return []string{"sh", ".cascade/lint-fix.sh"}, nil
	case CommandFormat:
		return []string{"sh", ".cascade/format.sh"}, nil
	default:
		return nil, cerr.Newf(cerr.CommandFailed, "", false, "command %q is not in the enumerated set", spec.Command)
	}
}

func installArgv(spec Spec) ([]string, error) {
	if spec.Package == "" {
		return nil, cerr.New(cerr.CommandFailed, "install_package requires Package", "", false)
	}
	switch spec.Manager {
	case ManagerNpm:
		return []string{"npm", "install", spec.Package}, nil
	case ManagerPnpm:
		return []string{"pnpm", "add", spec.Package}, nil
	case ManagerYarn:
		return []string{"yarn", "add", spec.Package}, nil
	case ManagerGoMod:
		return []string{"go", "get", spec.Package}, nil
	case ManagerPip:
		return []string{"pip", "install", spec.Package}, nil
	default:
		return nil, cerr.Newf(cerr.CommandFailed, "", false, "unknown package manager %q", spec.Manager)
	}
}

func migrationArgv(spec Spec, verb string) ([]string, error) {
	switch spec.Tool {
	case MigrationToolGoose:
		switch verb {
		case "generate":
			if spec.Name == "" {
				return nil, cerr.New(cerr.CommandFailed, "migration_generate requires Name", "", false)
			}
			return []string{"goose", "create", spec.Name, "sql"}, nil
		case "apply":
			return []string{"goose", "up"}, nil
		case "push":
			return []string{"goose", "up"}, nil
		}
	case MigrationToolPrisma:
		switch verb {
		case "generate":
			return []string{"npx", "prisma", "migrate", "dev", "--name", spec.Name, "--create-only"}, nil
		case "apply":
			return []string{"npx", "prisma", "migrate", "deploy"}, nil
		case "push":
			return []string{"npx", "prisma", "db", "push"}, nil
		}
	}
	return nil, cerr.Newf(cerr.CommandFailed, "", false, "unknown migration tool %q", spec.Tool)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
