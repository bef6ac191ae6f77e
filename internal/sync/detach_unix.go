//go:build unix

package sync

import (
	"os/exec"
	"syscall"
)

// detach puts the child in its own process group so it outlives the CLI
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
