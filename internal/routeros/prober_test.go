package routeros

import (
	"context"
	"errors"
	"testing"
	"time"

	ros "github.com/go-routeros/routeros/v3"

	"github.com/m360/sentinel/internal/model"
)

var errListFailed = errors.New("list credentials failed")

type fakeCredLister struct {
	creds []model.Credential
	err   error
}

func (f *fakeCredLister) ListCredentialsByOwner(ownerID string) ([]model.Credential, error) {
	return f.creds, f.err
}

func TestProbeNoCredentialsConfigured(t *testing.T) {
	p := NewProber(&fakeCredLister{}, 0)
	id, err := p.Probe(context.Background(), "tenant-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != nil {
		t.Fatalf("expected nil credential id, got %v", *id)
	}
}

func TestProbeUnreachableDeviceReturnsNilWithoutError(t *testing.T) {
	p := NewProber(&fakeCredLister{creds: []model.Credential{{ID: "cred-1", Username: "admin", Password: "x"}}}, 0)
	// 192.0.2.0/24 is reserved for documentation (TEST-NET-1); nothing listens there.
	id, err := p.Probe(context.Background(), "tenant-1", "192.0.2.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != nil {
		t.Fatalf("expected nil credential id for unreachable device, got %v", *id)
	}
}

func TestProbePropagatesListerError(t *testing.T) {
	p := NewProber(&fakeCredLister{err: errListFailed}, 0)
	_, err := p.Probe(context.Background(), "tenant-1", "10.0.0.1")
	if err == nil {
		t.Fatal("expected error to propagate from the credential lister")
	}
}

// fakeConn is a Conn double that records the sentences it was asked to run
// and replies (or errors) per leading word, so tests never need a live
// RouterOS device.
type fakeConn struct {
	replies map[string]*ros.Reply
	errs    map[string]error
	calls   [][]string
	closed  bool
}

func (f *fakeConn) Run(sentence ...string) (*ros.Reply, error) {
	f.calls = append(f.calls, sentence)
	if len(sentence) == 0 {
		return &ros.Reply{}, nil
	}
	if err, ok := f.errs[sentence[0]]; ok {
		return nil, err
	}
	if reply, ok := f.replies[sentence[0]]; ok {
		return reply, nil
	}
	return &ros.Reply{}, nil
}

func (f *fakeConn) Close() { f.closed = true }

func withFakeDial(t *testing.T, reachableResult bool, fc *fakeConn) {
	t.Helper()
	origReachable := reachableFunc
	origDial := dialFunc
	t.Cleanup(func() {
		reachableFunc = origReachable
		dialFunc = origDial
	})
	reachableFunc = func(ctx context.Context, ip string, timeout time.Duration) bool { return reachableResult }
	dialFunc = func(ctx context.Context, ip, username, password string) (*Session, error) {
		return NewSession(fc), nil
	}
}

func TestProbeAuthenticatedCredentialSucceeds(t *testing.T) {
	fc := &fakeConn{
		replies: map[string]*ros.Reply{
			"/system/identity/print": {Re: []*ros.Sentence{{Map: map[string]string{"name": "router1"}}}},
		},
	}
	withFakeDial(t, true, fc)

	p := NewProber(&fakeCredLister{creds: []model.Credential{{ID: "cred-1", Username: "admin", Password: "x"}}}, 0)
	id, err := p.Probe(context.Background(), "tenant-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == nil || *id != "cred-1" {
		t.Fatalf("expected cred-1 to authenticate, got %v", id)
	}

	if len(fc.calls) != 1 || len(fc.calls[0]) != 1 || fc.calls[0][0] != "/system/identity/print" {
		t.Fatalf("expected a single-word /system/identity/print sentence, got %v", fc.calls)
	}
	if !fc.closed {
		t.Fatal("expected the session to be closed after probing")
	}
}

func TestProbeAuthenticatedCredentialFailsTriesNext(t *testing.T) {
	fc := &fakeConn{
		errs: map[string]error{"/system/identity/print": errors.New("no such command")},
	}
	withFakeDial(t, true, fc)

	p := NewProber(&fakeCredLister{creds: []model.Credential{{ID: "cred-1", Username: "admin", Password: "wrong"}}}, 0)
	id, err := p.Probe(context.Background(), "tenant-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != nil {
		t.Fatalf("expected nil credential id when identity print fails, got %v", *id)
	}
}
