package routeros

import (
	"context"
	"net"
	"time"

	"github.com/m360/sentinel/internal/model"
)

// defaultTCPProbeTimeout mirrors config's own SchedulerConfig.TCPProbeTimeout
// default, used when NewProber is given a non-positive value.
const defaultTCPProbeTimeout = 1500 * time.Millisecond

// CredentialLister fetches every credential configured for a tenant.
type CredentialLister interface {
	ListCredentialsByOwner(ownerID string) ([]model.Credential, error)
}

// Prober tries each of a tenant's credentials against a device until one
// authenticates.
type Prober struct {
	creds           CredentialLister
	tcpProbeTimeout time.Duration
}

// NewProber creates a Prober backed by creds, with tcpProbeTimeout bounding
// the reachability check before any credential is tried (the configured
// Scheduler.TCPProbeTimeout).
func NewProber(creds CredentialLister, tcpProbeTimeout time.Duration) *Prober {
	if tcpProbeTimeout <= 0 {
		tcpProbeTimeout = defaultTCPProbeTimeout
	}
	return &Prober{creds: creds, tcpProbeTimeout: tcpProbeTimeout}
}

// reachableFunc and dialFunc (declared in client.go) are package-level so
// tests can substitute a fake dial/login without a live TCP connection.
var reachableFunc = reachable

// Probe returns the ID of the first credential that authenticates against
// ip, or nil if none do (including the case of zero configured credentials
// or an unreachable device).
func (p *Prober) Probe(ctx context.Context, tenant, ip string) (*string, error) {
	creds, err := p.creds.ListCredentialsByOwner(tenant)
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, nil
	}

	if !reachableFunc(ctx, ip, p.tcpProbeTimeout) {
		return nil, nil
	}

	for _, cred := range creds {
		s, err := dialFunc(ctx, ip, cred.Username, cred.Password)
		if err != nil {
			continue
		}
		_, err = s.Run("/system/identity/print")
		s.Close()
		if err == nil {
			id := cred.ID
			return &id, nil
		}
	}
	return nil, nil
}

func reachable(ctx context.Context, ip string, timeout time.Duration) bool {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ip, "8728"))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
