//go:build !windows

package ssdp

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlReusePort sets SO_REUSEADDR and, where the platform supports it,
// SO_REUSEPORT on the listener socket before bind, so that a second
// process (or our own fallback-port retry) can share the port cleanly
// (spec §4.5 "Sockets", SO_REUSEADDR/SO_REUSEPORT as the platform
// supports). Grounded on golang.org/x/sys, already a teacher dependency
// (skunkie-dms/go.mod).
func controlReusePort(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	// SO_REUSEPORT isn't available on every unix (absent on older kernels);
	// a failure here is not fatal, the bind still works without it.
	_ = sockErr
	return nil
}
