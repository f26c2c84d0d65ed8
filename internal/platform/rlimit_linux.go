//go:build linux

// Package platform carries the handful of OS-level knobs a socket
// daemon needs turned before it opens its first listener: principally
// raising RLIMIT_NOFILE so a busy tcp/vsock fan-in doesn't exhaust the
// process's file descriptor table under load.
//
// Grounded on the build-tag split the teacher uses for
// cmd/agent/mount_linux.go (a Linux-only syscall file guarded by
// //go:build linux, with the rest of the tree staying portable).
package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// RaiseNoFileLimit raises the process's open-file soft limit to want,
// capped at the kernel's hard limit. It is a no-op if the current
// limit already meets or exceeds want.
func RaiseNoFileLimit(want uint64) (uint64, error) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0, fmt.Errorf("platform: getrlimit: %w", err)
	}

	if rlim.Cur >= want {
		return rlim.Cur, nil
	}

	newCur := want
	if rlim.Max != unix.RLIM_INFINITY && newCur > rlim.Max {
		newCur = rlim.Max
	}

	rlim.Cur = newCur
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0, fmt.Errorf("platform: setrlimit to %d: %w", newCur, err)
	}
	return newCur, nil
}
