//go:build windows

package clientpool

import "syscall"

// setNoDelay is a no-op on windows; net.Dialer's default TCP stack there
// already disables Nagle's algorithm.
func setNoDelay(_, _ string, _ syscall.RawConn) error {
	return nil
}
