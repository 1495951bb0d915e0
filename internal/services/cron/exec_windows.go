//go:build windows

package cron

import "os/exec"

func shellCommand(command string) *exec.Cmd {
	return exec.Command("cmd", "/C", command)
}

// Running as another user and process groups are not supported on Windows;
// jobs execute as the panel process user.
func configureCommand(cmd *exec.Cmd, username string) error {
	return nil
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
}
