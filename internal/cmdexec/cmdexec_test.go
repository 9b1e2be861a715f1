package cmdexec_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/cmdexec"
)

func TestRunCreateDirectorySucceeds(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "child")

	exec := cmdexec.New()
	out, err := exec.Run(context.Background(), cmdexec.Spec{
		Command: cmdexec.CommandCreateDirectory,
		WorkDir: dir,
		Phase:   cmdexec.PhaseBeforeDiff,
		Name:    target,
	})
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, 0, out.ExitCode)

	info, statErr := os.Stat(target)
	require.NoError(t, statErr)
	require.True(t, info.IsDir())
}

func TestRunRefusesUnknownCommand(t *testing.T) {
	exec := cmdexec.New()
	_, err := exec.Run(context.Background(), cmdexec.Spec{
		Command: cmdexec.Command("rm_dash_rf"),
		WorkDir: t.TempDir(),
	})
	require.Error(t, err)
}

func TestRunInstallPackageRequiresPackage(t *testing.T) {
	exec := cmdexec.New()
	_, err := exec.Run(context.Background(), cmdexec.Spec{
		Command: cmdexec.CommandInstallPackage,
		Manager: cmdexec.ManagerNpm,
		WorkDir: t.TempDir(),
	})
	require.Error(t, err)
}
