package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhubert/gemini-acp/config"
	"github.com/zhubert/gemini-acp/exec"
	"github.com/zhubert/gemini-acp/logger"
	"github.com/zhubert/gemini-acp/paths"
)

func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	paths.Reset()
	logger.Reset()
	t.Cleanup(func() {
		logger.Reset()
		paths.Reset()
	})
	return home
}

func doctorCommand() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&buf)
	return c, &buf
}

func TestDoctor_AllGood(t *testing.T) {
	setupTestHome(t)
	cfg = config.Defaults()

	mock := exec.NewMockExecutor()
	mock.AddPath("gemini", "/usr/bin/gemini")
	mock.AddExactMatch("/usr/bin/gemini", []string{"--version"}, exec.MockResponse{Stdout: []byte("0.9.1\n")})
	mock.AddExactMatch("gemini", []string{"--version"}, exec.MockResponse{Stdout: []byte("0.9.1\n")})

	c, out := doctorCommand()
	require.NoError(t, runDoctor(context.Background(), c, mock))

	assert.Contains(t, out.String(), "✓ gemini (0.9.1)")
	assert.Contains(t, out.String(), "○ node [optional]")
	assert.Contains(t, out.String(), "Authentication: ✓")
	assert.Contains(t, out.String(), "Permission mode: default")
}

func TestDoctor_MissingCLI(t *testing.T) {
	setupTestHome(t)
	cfg = config.Defaults()

	c, out := doctorCommand()
	err := runDoctor(context.Background(), c, exec.NewMockExecutor())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required CLI tools")
	assert.Contains(t, out.String(), "✗ gemini [REQUIRED]")
}

func TestDoctor_NotAuthenticated(t *testing.T) {
	setupTestHome(t)
	cfg = config.Defaults()

	mock := exec.NewMockExecutor()
	mock.AddPath("gemini", "/usr/bin/gemini")
	mock.AddExactMatch("gemini", []string{"--version"}, exec.MockResponse{Err: errors.New("exit status 1")})

	c, out := doctorCommand()
	err := runDoctor(context.Background(), c, mock)

	require.Error(t, err)
	assert.Contains(t, out.String(), "Authentication: ✗")
}

func TestDoctor_ReportsOrphans(t *testing.T) {
	setupTestHome(t)
	cfg = config.Defaults()
	t.Cleanup(func() { doctorClean = false })

	mock := exec.NewMockExecutor()
	mock.AddPath("gemini", "/usr/bin/gemini")
	mock.AddExactMatch("gemini", []string{"--version"}, exec.MockResponse{Stdout: []byte("0.9.1\n")})
	mock.AddExactMatch("ps", []string{"-eo", "pid=,ppid=,args="}, exec.MockResponse{
		Stdout: []byte("  77     1 gemini --prompt stuck\n  78   900 gemini --prompt live\n"),
	})

	c, out := doctorCommand()
	require.NoError(t, runDoctor(context.Background(), c, mock))
	assert.Contains(t, out.String(), "Orphaned processes: 1")
	assert.Contains(t, out.String(), "77 gemini --prompt stuck")

	doctorClean = true
	c, out = doctorCommand()
	require.NoError(t, runDoctor(context.Background(), c, mock))
	assert.Contains(t, out.String(), "Orphaned processes: 1 terminated")

	var killed []string
	for _, call := range mock.GetCalls() {
		if call.Name == "kill" {
			killed = append(killed, call.Args...)
		}
	}
	assert.Equal(t, []string{"-TERM", "77"}, killed)
}

func TestConfigInit_WritesDefaultFile(t *testing.T) {
	home := setupTestHome(t)
	path := filepath.Join(home, "out", "config.yaml")

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"config", "init", path})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "Wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "executable: gemini")

	rootCmd.SetArgs([]string{"config", "init", path})
	require.ErrorIs(t, rootCmd.Execute(), config.ErrConfigExists)
}

func TestSetVersion(t *testing.T) {
	old := version
	t.Cleanup(func() { SetVersion(old) })

	SetVersion("1.2.3 (commit: abc, built: today)")
	assert.Equal(t, "1.2.3 (commit: abc, built: today)", rootCmd.Version)
}
