// Package routeros wraps the RouterOS API (TCP 8728, plain-text login, no
// TLS) behind a process-wide connection pool and a credential prober, so
// sensor workers never dial or authenticate a device themselves — they just
// ask the pool for a session and invalidate it on error.
package routeros

import (
	"context"
	"fmt"
	"net"

	ros "github.com/go-routeros/routeros/v3"

	"github.com/m360/sentinel/internal/netbind"
)

// Conn is the wire behavior a Session needs from an authenticated RouterOS
// connection; *ros.Client satisfies it. Exposed so tests (and any future
// caller that manages its own dial/login) can hand Session a fake.
type Conn interface {
	Run(sentence ...string) (*ros.Reply, error)
	Close()
}

// Session is one authenticated RouterOS API connection.
type Session struct {
	client Conn
}

// NewSession wraps an already-dialed, already-authenticated connection.
func NewSession(c Conn) *Session {
	return &Session{client: c}
}

var dialFunc = dial

// dial opens a new plain-text RouterOS API session on port 8728, using the
// default route. ctx bounds the TCP connect, handshake, and login.
func dial(ctx context.Context, ip, username, password string) (*Session, error) {
	return dialVia(ctx, ip, username, password, "")
}

// dialVia opens a RouterOS API session bound to ifName — the WireGuard
// tunnel interface for the device's VpnProfile, if it has one. An empty
// ifName dials via the default route. ctx bounds the TCP connect, handshake,
// and login; callers wrap it with the configured RouterOS timeout.
func dialVia(ctx context.Context, ip, username, password, ifName string) (*Session, error) {
	addr := net.JoinHostPort(ip, "8728")
	conn, err := netbind.DialContext(ctx, ifName, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("routeros: dial %s via %q: %w", addr, ifName, err)
	}

	client, err := ros.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("routeros: handshake %s via %q: %w", addr, ifName, err)
	}
	if err := client.Login(username, password); err != nil {
		client.Close()
		return nil, fmt.Errorf("routeros: login %s via %q: %w", addr, ifName, err)
	}
	return &Session{client: client}, nil
}

// Run executes a RouterOS sentence, e.g. Run("/ping", "=address=10.0.0.1", "=count=1").
func (s *Session) Run(sentence ...string) (*ros.Reply, error) {
	return s.client.Run(sentence...)
}

// Close releases the underlying connection.
func (s *Session) Close() {
	s.client.Close()
}

// FirstRow returns the first result row's field map, or nil if the reply has
// no rows (e.g. a ping that received no responses).
func FirstRow(reply *ros.Reply) map[string]string {
	if reply == nil || len(reply.Re) == 0 {
		return nil
	}
	return reply.Re[0].Map
}
