//go:build !windows

package cron

import (
	"fmt"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"
)

func shellCommand(command string) *exec.Cmd {
	return exec.Command("sh", "-c", command)
}

// configureCommand puts the child in its own process group and, when the
// job requests a different OS user, switches credentials and gives the
// child a minimal environment for that user.
func configureCommand(cmd *exec.Cmd, username string) error {
	attr := &syscall.SysProcAttr{Setpgid: true}

	if username != "" {
		if current, err := user.Current(); err != nil || current.Username != username {
			u, err := user.Lookup(username)
			if err != nil {
				return fmt.Errorf("lookup user %q: %w", username, err)
			}
			uid, err := strconv.ParseUint(u.Uid, 10, 32)
			if err != nil {
				return fmt.Errorf("parse uid for %q: %w", username, err)
			}
			gid, err := strconv.ParseUint(u.Gid, 10, 32)
			if err != nil {
				return fmt.Errorf("parse gid for %q: %w", username, err)
			}
			attr.Credential = &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}
			cmd.Env = []string{
				"HOME=" + u.HomeDir,
				"USER=" + username,
				"LOGNAME=" + username,
				"SHELL=/bin/sh",
				"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
			}
		}
	}

	cmd.SysProcAttr = attr
	return nil
}

// killProcessGroup signals the whole group; killing only the shell would
// orphan its children.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		cmd.Process.Kill()
	}
}
