// Package netbind binds outbound TCP connections to a specific network
// interface, so a RouterOS dial to a device behind a WireGuard tunnel goes
// out that tunnel even when the host's routing table would otherwise
// prefer a different path. Adapted from the teacher's internal/vpn bind
// helper (SO_BINDTODEVICE via net.Dialer.Control), dropped down to the one
// case this domain needs: origin dials, not general interface monitoring.
package netbind

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"
)

// dialer returns a net.Dialer whose connections are bound to interfaceName
// via SO_BINDTODEVICE.
func dialer(interfaceName string) *net.Dialer {
	return &net.Dialer{
		Timeout: 30 * time.Second,
		Control: func(network, address string, c syscall.RawConn) error {
			var bindErr error
			err := c.Control(func(fd uintptr) {
				bindErr = syscall.SetsockoptString(
					int(fd),
					syscall.SOL_SOCKET,
					syscall.SO_BINDTODEVICE,
					interfaceName,
				)
			})
			if err != nil {
				return fmt.Errorf("netbind: raw conn control: %w", err)
			}
			if bindErr != nil {
				return fmt.Errorf("netbind: SO_BINDTODEVICE to %s: %w", interfaceName, bindErr)
			}
			return nil
		},
	}
}

// DialContext opens network/address bound to interfaceName. An empty
// interfaceName falls back to the default route.
func DialContext(ctx context.Context, interfaceName, network, address string) (net.Conn, error) {
	if interfaceName == "" {
		return (&net.Dialer{Timeout: 30 * time.Second}).DialContext(ctx, network, address)
	}
	return dialer(interfaceName).DialContext(ctx, network, address)
}
