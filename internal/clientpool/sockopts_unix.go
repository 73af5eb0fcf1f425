//go:build !windows

package clientpool

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setNoDelay is a net.Dialer.Control callback that sets TCP_NODELAY on a
// freshly dialed connection before the Go runtime hands the fd to the
// caller.
func setNoDelay(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
