//go:build unix

package lock

import "golang.org/x/sys/unix"

// processAlive sends signal 0. EPERM means the process exists but belongs to
// another user.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
