//go:build windows

package exec

import (
	osexec "os/exec"
)

func configureProcessGroup(cmd *osexec.Cmd) {}

// signalGroup has no graceful step on windows; both stages kill.
func signalGroup(cmd *osexec.Cmd, kill bool) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
