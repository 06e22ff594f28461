// Package vpnmgr owns the process-wide mapping of WireGuard profile to live
// tunnel, reference-counted across the sensor workers that need it. Bringing
// a tunnel up is expensive and racy, so EnsureUp/Release amortise the cost
// across sibling sensors instead of each one managing its own interface —
// the same incremental-refcount shape the teacher used for pooled NNTP
// connections, applied here to WireGuard interfaces instead of sockets.
package vpnmgr

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/m360/sentinel/internal/cmdrun"
)

// ErrActivationFailed is returned when wg-quick up (and the down-then-retry
// fallback) both fail.
var ErrActivationFailed = errors.New("vpnmgr: activation failed")

// ErrNotUp is returned when the interface never reports UP within the poll
// window, even though wg-quick itself reported success.
var ErrNotUp = errors.New("vpnmgr: interface did not come up in time")

// ProfileLoader fetches a profile's WireGuard config text by ID.
type ProfileLoader func(ctx context.Context, profileID string) (configText string, err error)

type tunnelState struct {
	ifName   string
	confPath string
	refcount int
	up       bool
}

// Manager is the process-wide WireGuard tunnel manager.
type Manager struct {
	load ProfileLoader

	mu     sync.Mutex
	states map[string]*tunnelState

	tempDir string
}

// New creates a Manager that loads profile config text via load and writes
// tunnel conf files under tempDir (the configured Storage.TempDir). An empty
// tempDir falls back to os.TempDir().
func New(load ProfileLoader, tempDir string) *Manager {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Manager{
		load:    load,
		states:  make(map[string]*tunnelState),
		tempDir: tempDir,
	}
}

func ifaceName(profileID string) string {
	return "m360-p" + profileID
}

func confFileName(profileID string) string {
	return "m360-p" + profileID + ".conf"
}

// EnsureUp brings profileID's tunnel up if it isn't already, and increments
// its reference count. Returns the interface name callers should bind
// connections to.
func (m *Manager) EnsureUp(ctx context.Context, profileID string) (string, error) {
	m.mu.Lock()
	st, known := m.states[profileID]
	if known && st.up {
		ifName := st.ifName
		m.mu.Unlock()
		if linkIsUp(ctx, ifName) {
			m.mu.Lock()
			st.refcount++
			m.mu.Unlock()
			return ifName, nil
		}
		// State says up but the kernel disagrees — fall through and redo setup.
		m.mu.Lock()
	}
	m.mu.Unlock()

	ifName := ifaceName(profileID)
	confPath, err := m.writeConf(ctx, profileID)
	if err != nil {
		return "", fmt.Errorf("vpnmgr: write conf for profile %s: %w", profileID, err)
	}

	if err := m.bringUp(ctx, ifName, confPath); err != nil {
		return "", err
	}

	if !m.pollUntilUp(ctx, ifName) {
		return "", fmt.Errorf("%w: %s", ErrNotUp, ifName)
	}

	m.mu.Lock()
	prev := 0
	if st, ok := m.states[profileID]; ok {
		prev = st.refcount
	}
	m.states[profileID] = &tunnelState{
		ifName:   ifName,
		confPath: confPath,
		refcount: prev + 1,
		up:       true,
	}
	m.mu.Unlock()

	log.Printf("vpnmgr: profile %s up on %s", profileID, ifName)
	return ifName, nil
}

// Release decrements profileID's reference count, floored at zero. The
// tunnel is deliberately NOT torn down here — lingering interfaces avoid
// flapping the tunnel when a sensor restarts moments later; tunnels only
// come down in TeardownAll.
func (m *Manager) Release(profileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[profileID]
	if !ok {
		return
	}
	if st.refcount > 0 {
		st.refcount--
	}
}

// Refcount returns the current reference count for profileID (0 if unknown).
func (m *Manager) Refcount(profileID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[profileID]; ok {
		return st.refcount
	}
	return 0
}

// IsUp reports whether profileID currently has a live interface.
func (m *Manager) IsUp(profileID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[profileID]
	return ok && st.up
}

// TeardownAll brings every known tunnel down, best-effort. Called at process
// shutdown only.
func (m *Manager) TeardownAll(ctx context.Context) {
	m.mu.Lock()
	states := make(map[string]*tunnelState, len(m.states))
	for k, v := range m.states {
		states[k] = v
	}
	m.mu.Unlock()

	for profileID, st := range states {
		res := cmdrun.RunWireGuard(ctx, []string{"wg-quick", "down", st.confPath}, nil)
		if !res.OK {
			log.Printf("vpnmgr: teardown profile %s: %s", profileID, res.Output)
		}
		os.Remove(st.confPath)

		m.mu.Lock()
		if cur, ok := m.states[profileID]; ok {
			cur.up = false
		}
		m.mu.Unlock()
	}
}

// writeConf materializes the profile's config to a 0600 temp file, commenting
// out any DNS= line (wg-quick's DNS directive isn't handled here — DNS is
// intentionally not managed by this manager) and ensuring a trailing newline.
func (m *Manager) writeConf(ctx context.Context, profileID string) (string, error) {
	text, err := m.load(ctx, profileID)
	if err != nil {
		return "", err
	}

	normalized := normalizeConf(text)

	path := filepath.Join(m.tempDir, confFileName(profileID))
	if err := os.WriteFile(path, []byte(normalized), 0600); err != nil {
		return "", err
	}
	return path, nil
}

// normalizeConf comments out DNS lines (key "DNS" case-insensitive, with any
// whitespace around the key and "=") and guarantees the text ends with a
// newline.
func normalizeConf(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		key, _, found := strings.Cut(line, "=")
		if found && strings.EqualFold(strings.TrimSpace(key), "dns") {
			lines[i] = "#" + line
		}
	}
	out := strings.Join(lines, "\n")
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}

func (m *Manager) bringUp(ctx context.Context, ifName, confPath string) error {
	res := cmdrun.RunWireGuard(ctx, []string{"wg-quick", "up", confPath}, nil)
	if res.OK {
		return nil
	}

	showRes := cmdrun.RunWireGuard(ctx, []string{"wg", "show", ifName}, nil)
	if showRes.OK {
		// The interface is actually present despite the reported failure —
		// treat as success (wg-quick occasionally errors on already-applied
		// side effects like routes).
		return nil
	}

	// Clean up any partial state, then retry once.
	cmdrun.RunWireGuard(ctx, []string{"wg-quick", "down", confPath}, nil)
	retryRes := cmdrun.RunWireGuard(ctx, []string{"wg-quick", "up", confPath}, nil)
	if retryRes.OK {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrActivationFailed, retryRes.Output)
}

func (m *Manager) pollUntilUp(ctx context.Context, ifName string) bool {
	for i := 0; i < 30; i++ {
		if linkIsUp(ctx, ifName) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return false
}

// linkIsUp runs "ip link show <iface>" and looks for the UP token the way
// the kernel reports it (either the flag "UP" or "state UP").
func linkIsUp(ctx context.Context, ifName string) bool {
	res := cmdrun.Run(ctx, []string{"ip", "link", "show", ifName}, nil)
	if !res.OK {
		return false
	}
	out := res.Output
	return strings.Contains(out, "UP") || strings.Contains(out, "state UP")
}
