//go:build unix

package tool

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own group so a kill also reaches
// whatever it spawned (npm runs node, pm2 talks to its daemon).
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}
