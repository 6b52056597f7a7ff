//go:build linux

package runner

import (
	"os"
	"os/exec"
	"syscall"
)

// ForceKill is a command line option that makes the kernel kill the browser
// when the parent (Go) process dies.
//
// Note: sets exec.Cmd.SysProcAttr.Pdeathsig, and does nothing on AWS Lambda.
func ForceKill(m map[string]interface{}) error {
	return CmdOpt(func(cmd *exec.Cmd) error {
		if _, isLambda := os.LookupEnv("LAMBDA_TASK_ROOT"); isLambda {
			return nil
		}
		if cmd.SysProcAttr == nil {
			cmd.SysProcAttr = new(syscall.SysProcAttr)
		}
		cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL
		return nil
	})(m)
}
