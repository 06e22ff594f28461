package routeros

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/m360/sentinel/internal/model"
)

// defaultDialTimeout mirrors config's own SchedulerConfig.RouterOSTimeout
// default, used when NewPool is given a non-positive value.
const defaultDialTimeout = 10 * time.Second

// Pool is the process-wide, IP-keyed cache of authenticated RouterOS
// sessions. It is mutated from every sensor worker and the credential
// prober, so all access is mutex-guarded — the same discipline the teacher
// applied to its NNTP ConnectionPool/PoolManager, just keyed by device
// instead of by upstream server.
type Pool struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	dialTimeout time.Duration
}

// NewPool creates an empty connection pool that bounds every dial+login by
// dialTimeout (the configured Scheduler.RouterOSTimeout).
func NewPool(dialTimeout time.Duration) *Pool {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	return &Pool{sessions: make(map[string]*Session), dialTimeout: dialTimeout}
}

// Get returns the pooled session for ip, opening a new one if none exists.
// ifName, if non-empty, is the WireGuard tunnel interface the dial must be
// bound to (the device's VpnProfile, if it has one). Callers MUST call
// Invalidate(ip) on any probe error — a poisoned session is never
// self-healing.
func (p *Pool) Get(ctx context.Context, ip string, cred model.Credential, ifName string) (*Session, error) {
	p.mu.Lock()
	if s, ok := p.sessions[ip]; ok {
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()

	s, err := dialVia(dialCtx, ip, cred.Username, cred.Password, ifName)
	if err != nil {
		return nil, fmt.Errorf("routeros pool: get %s: %w", ip, err)
	}

	p.mu.Lock()
	// Another worker may have beaten us to it; keep whichever was inserted
	// first and close ours if so, to avoid leaking a connection.
	if existing, ok := p.sessions[ip]; ok {
		p.mu.Unlock()
		s.Close()
		return existing, nil
	}
	p.sessions[ip] = s
	p.mu.Unlock()

	return s, nil
}

// Invalidate closes and removes ip's pooled session, if any. The next Get
// reopens a fresh one.
func (p *Pool) Invalidate(ip string) {
	p.mu.Lock()
	s, ok := p.sessions[ip]
	if ok {
		delete(p.sessions, ip)
	}
	p.mu.Unlock()

	if ok {
		s.Close()
	}
}

// CloseAll closes every pooled session, best-effort. Called at shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
