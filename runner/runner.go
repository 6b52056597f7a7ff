// Package runner provides the headless Chrome process runner used for
// measurements.
package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/perfprobe/perfprobe/client"
)

const (
	// DefaultPort is the default remote debugging port.
	DefaultPort = 9222

	// DefaultUserDataDirPrefix is the default user data directory prefix.
	DefaultUserDataDirPrefix = "perfprobe-runner.%d."
)

// Error is a runner error.
type Error string

// Error satisfies the error interface.
func (err Error) Error() string {
	return string(err)
}

// Error values.
const (
	// ErrAlreadyStarted is the already started error.
	ErrAlreadyStarted Error = "already started"

	// ErrInvalidCmdOpts is the invalid cmd-opts error.
	ErrInvalidCmdOpts Error = "invalid cmd-opts"

	// ErrInvalidExecPath is the invalid exec-path error.
	ErrInvalidExecPath Error = "invalid exec-path"

	// ErrInvalidPort is the invalid remote-debugging-port error.
	ErrInvalidPort Error = "invalid remote-debugging-port"
)

// DefaultFlags are the flags every measurement browser is started with.
var DefaultFlags = map[string]interface{}{
	"headless":                               true,
	"disable-gpu":                            true,
	"no-first-run":                           true,
	"no-default-browser-check":               true,
	"disable-background-networking":          true,
	"disable-background-timer-throttling":    true,
	"disable-backgrounding-occluded-windows": true,
	"disable-renderer-backgrounding":         true,
	"disable-client-side-phishing-detection": true,
	"disable-component-update":               true,
	"disable-default-apps":                   true,
	"disable-extensions":                     true,
	"disable-sync":                           true,
	"disable-hang-monitor":                   true,
	"disable-domain-reliability":             true,
	"metrics-recording-only":                 true,
	"mute-audio":                             true,
	"safebrowsing-disable-auto-update":       true,
	"remote-debugging-port":                  DefaultPort,
}

// Runner holds information about a running Chrome process.
type Runner struct {
	opts      map[string]interface{}
	cmd       *exec.Cmd
	removeDir string
	rw        sync.RWMutex
}

// New creates a new Chrome process runner using the supplied command line
// options on top of DefaultFlags.
func New(opts ...CommandLineOption) (*Runner, error) {
	cliOpts := make(map[string]interface{}, len(DefaultFlags))
	for k, v := range DefaultFlags {
		cliOpts[k] = v
	}

	// apply opts
	for _, o := range opts {
		if err := o(cliOpts); err != nil {
			return nil, err
		}
	}

	if _, ok := cliOpts["exec-path"]; !ok {
		cliOpts["exec-path"] = LookChromeNames()
	}

	// make sure the child dies with us, unless the caller set their own
	// cmd opts
	if _, ok := cliOpts["cmd-opts"]; !ok {
		if err := ForceKill(cliOpts); err != nil {
			return nil, err
		}
	}

	if _, ok := cliOpts["remote-debugging-port"].(int); !ok {
		return nil, ErrInvalidPort
	}

	return &Runner{
		opts: cliOpts,
	}, nil
}

// cliOptRE is a regular expression to validate a chrome cli option.
var cliOptRE = regexp.MustCompile(`^[a-z0-9\-]+$`)

// buildOpts generates the command line options for Chrome, sorted by name so
// the command line is stable between runs.
func (r *Runner) buildOpts() []string {
	keys := maps.Keys(r.opts)
	slices.Sort(keys)

	var opts []string
	for _, k := range keys {
		v := r.opts[k]
		if !cliOptRE.MatchString(k) || v == nil {
			continue
		}

		switch k {
		case "exec-path", "cmd-opts":
			continue
		}

		switch z := v.(type) {
		case bool:
			if z {
				opts = append(opts, "--"+k)
			}

		case string:
			opts = append(opts, "--"+k+"="+z)

		default:
			opts = append(opts, "--"+k+"="+fmt.Sprintf("%v", v))
		}
	}

	return append(opts, "about:blank")
}

// Start starts the Chrome process. A start failure (typically a bad binary
// path) is returned as is and is not retried.
func (r *Runner) Start(ctx context.Context) error {
	r.rw.Lock()
	defer r.rw.Unlock()

	if r.cmd != nil {
		return ErrAlreadyStarted
	}

	execPath, ok := r.opts["exec-path"].(string)
	if !ok || execPath == "" {
		return ErrInvalidExecPath
	}

	// set user data dir, if not provided
	if _, ok := r.opts["user-data-dir"]; !ok {
		dir, err := os.MkdirTemp("", fmt.Sprintf(DefaultUserDataDirPrefix, r.port()))
		if err != nil {
			return err
		}
		r.opts["user-data-dir"], r.removeDir = dir, dir
	}

	cmd := exec.CommandContext(ctx, execPath, r.buildOpts()...)

	// apply cmd opts
	if cmdOpts, ok := r.opts["cmd-opts"]; ok {
		for _, co := range cmdOpts.([]func(*exec.Cmd) error) {
			if err := co(cmd); err != nil {
				r.cleanup()
				return err
			}
		}
	}

	if err := cmd.Start(); err != nil {
		r.cleanup()
		return err
	}
	r.cmd = cmd

	return nil
}

// Kill terminates the Chrome process and removes any user data directory
// the runner created. It is safe to call at any time, any number of times,
// and never fails: termination errors are swallowed.
func (r *Runner) Kill() {
	r.rw.Lock()
	defer r.rw.Unlock()

	if r.cmd != nil && r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
		_ = r.cmd.Wait()
	}
	r.cmd = nil
	r.cleanup()
}

// cleanup removes the temporary user data dir. Callers must hold rw.
func (r *Runner) cleanup() {
	if r.removeDir == "" {
		return
	}
	_ = os.RemoveAll(r.removeDir)
	delete(r.opts, "user-data-dir")
	r.removeDir = ""
}

// Port returns the port the process was launched with.
func (r *Runner) Port() int {
	r.rw.RLock()
	defer r.rw.RUnlock()
	return r.port()
}

func (r *Runner) port() int {
	p, _ := r.opts["remote-debugging-port"].(int)
	return p
}

// ExecPath returns the browser binary the runner starts.
func (r *Runner) ExecPath() string {
	r.rw.RLock()
	defer r.rw.RUnlock()
	p, _ := r.opts["exec-path"].(string)
	return p
}

// Client returns a DevTools introspection client for the running Chrome
// process.
func (r *Runner) Client(opts ...client.Option) *client.Client {
	return client.New(append([]client.Option{
		client.URL(fmt.Sprintf("http://localhost:%d/json", r.Port())),
	}, opts...)...)
}

// CommandLineOption is a runner command line option.
//
// see: http://peter.sh/experiments/chromium-command-line-switches/
type CommandLineOption func(map[string]interface{}) error

// Flag is a generic command line option to pass a name=value flag to
// Chrome. A nil or false value removes the flag.
func Flag(name string, value interface{}) CommandLineOption {
	return func(m map[string]interface{}) error {
		m[name] = value
		return nil
	}
}

// ExecPath is a command line option to set the exec path. An empty path
// keeps the looked-up default.
func ExecPath(path string) CommandLineOption {
	return func(m map[string]interface{}) error {
		if path != "" {
			m["exec-path"] = path
		}
		return nil
	}
}

// UserDataDir is the command line option to set the user data dir.
//
// Note: when this is not set, a temporary directory is created on Start and
// removed on Kill.
func UserDataDir(dir string) CommandLineOption {
	return Flag("user-data-dir", dir)
}

// WindowSize is the command line option to set the initial window size.
func WindowSize(width, height int) CommandLineOption {
	return Flag("window-size", fmt.Sprintf("%d,%d", width, height))
}

// NoSandbox is the Chrome command line option to disable the sandbox.
func NoSandbox(m map[string]interface{}) error {
	return Flag("no-sandbox", true)(m)
}

// Headful is the command line option to show the browser window, mostly
// useful when debugging a measurement.
func Headful(m map[string]interface{}) error {
	return Flag("headless", false)(m)
}

// RemoteDebuggingPort is the command line option to set the remote
// debugging port.
func RemoteDebuggingPort(port int) CommandLineOption {
	return Flag("remote-debugging-port", port)
}

// CmdOpt is a command line option to modify the underlying exec.Cmd
// prior to the call to exec.Cmd.Start.
func CmdOpt(o func(*exec.Cmd) error) CommandLineOption {
	return func(m map[string]interface{}) error {
		var opts []func(*exec.Cmd) error
		if e, ok := m["cmd-opts"]; ok {
			opts, ok = e.([]func(*exec.Cmd) error)
			if !ok {
				return ErrInvalidCmdOpts
			}
		}
		m["cmd-opts"] = append(opts, o)
		return nil
	}
}

// LookChromeNames looks for the platform's DefaultChromeNames and any
// additional names using exec.LookPath, returning the first encountered
// location or the platform's DefaultChromePath if no names are found on the
// path.
func LookChromeNames(additional ...string) string {
	for _, p := range append(additional, DefaultChromeNames...) {
		path, err := exec.LookPath(p)
		if err == nil {
			return path
		}
	}

	return DefaultChromePath
}
