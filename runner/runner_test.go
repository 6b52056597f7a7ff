package runner

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOpts(t *testing.T) {
	t.Parallel()

	r, err := New(
		ExecPath("/opt/chrome/chrome"),
		RemoteDebuggingPort(9333),
		WindowSize(1350, 940),
		NoSandbox,
		Flag("disable-sync", false),
	)
	require.NoError(t, err)

	opts := r.buildOpts()
	assert.Contains(t, opts, "--headless")
	assert.Contains(t, opts, "--remote-debugging-port=9333")
	assert.Contains(t, opts, "--window-size=1350,940")
	assert.Contains(t, opts, "--no-sandbox")
	assert.Contains(t, opts, "--disable-background-timer-throttling")
	assert.Contains(t, opts, "--disable-background-networking")
	assert.NotContains(t, opts, "--disable-sync")
	assert.Equal(t, "about:blank", opts[len(opts)-1])
	for _, o := range opts {
		assert.NotContains(t, o, "exec-path")
		assert.NotContains(t, o, "cmd-opts")
	}

	// stable ordering
	assert.Equal(t, opts, r.buildOpts())
	assert.Equal(t, 9333, r.Port())
	assert.Equal(t, "/opt/chrome/chrome", r.ExecPath())
}

func TestHeadful(t *testing.T) {
	t.Parallel()

	r, err := New(ExecPath("chrome"), Headful)
	require.NoError(t, err)
	assert.NotContains(t, r.buildOpts(), "--headless")
}

func TestNewInvalidPort(t *testing.T) {
	t.Parallel()

	_, err := New(Flag("remote-debugging-port", "9222"))
	assert.ErrorIs(t, err, ErrInvalidPort)
}

func TestStartBadExecPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r, err := New(
		ExecPath(filepath.Join(dir, "no-such-chrome")),
		UserDataDir(dir),
	)
	require.NoError(t, err)

	err = r.Start(context.Background())
	require.Error(t, err)

	// kill after a failed start must be harmless
	r.Kill()
	r.Kill()
}

func TestStartRemovesTempDirOnFailure(t *testing.T) {
	t.Parallel()

	r, err := New(ExecPath(filepath.Join(t.TempDir(), "missing")))
	require.NoError(t, err)

	require.Error(t, r.Start(context.Background()))
	_, hasDir := r.opts["user-data-dir"]
	assert.False(t, hasDir)
	assert.Empty(t, r.removeDir)
}

func TestKillWithoutStart(t *testing.T) {
	t.Parallel()

	r, err := New(ExecPath("chrome"))
	require.NoError(t, err)
	assert.NotPanics(t, r.Kill)
}

func TestStartAndKill(t *testing.T) {
	t.Parallel()

	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep binary not available")
	}

	// swap the chrome flags for a plain duration so sleep just waits.
	r, err := New(ExecPath(sleep), CmdOpt(func(cmd *exec.Cmd) error {
		cmd.Args = []string{sleep, "30"}
		return nil
	}))
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	assert.ErrorIs(t, r.Start(context.Background()), ErrAlreadyStarted)

	dir := r.removeDir
	require.NotEmpty(t, dir)

	r.Kill()
	assert.NoDirExists(t, dir)
	assert.Nil(t, r.cmd)
}

func TestParseMajorVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"Google Chrome 120.0.6099.109", 120, false},
		{"Chromium 118.0.5993.88 built on Debian", 118, false},
		{"HeadlessChrome", 0, true},
	}
	for _, test := range tests {
		test := test
		t.Run(test.in, func(t *testing.T) {
			t.Parallel()
			got, err := parseMajorVersion([]byte(test.in))
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

// Not parallel: executing a freshly written file races with concurrent
// forks holding its write descriptor.
func TestMajorVersion(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}

	bin := filepath.Join(t.TempDir(), "chromium")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho 'Chromium 121.0.6167.85'\n"), 0o755))

	major, err := MajorVersion(bin)
	require.NoError(t, err)
	assert.Equal(t, 121, major)

	_, err = MajorVersion(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
