//go:build windows

package ssdp

import "syscall"

// controlReusePort is a no-op on Windows: SO_REUSEPORT has no equivalent,
// and SO_REUSEADDR has different (looser) semantics than on unix, so we
// leave the socket options at Go's defaults rather than fake a behaviour
// that doesn't exist on this platform.
func controlReusePort(network, address string, c syscall.RawConn) error {
	return nil
}
