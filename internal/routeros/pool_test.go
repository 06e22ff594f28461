package routeros

import (
	"context"
	"testing"
	"time"

	"github.com/m360/sentinel/internal/model"
)

func TestPoolGetUnreachableDeviceReturnsError(t *testing.T) {
	p := NewPool(500 * time.Millisecond)
	_, err := p.Get(context.Background(), "192.0.2.1", model.Credential{Username: "admin", Password: "x"}, "")
	if err == nil {
		t.Fatal("expected an error dialing an unreachable device")
	}
}

func TestPoolInvalidateUnknownIPNoops(t *testing.T) {
	p := NewPool(0)
	p.Invalidate("10.0.0.1") // must not panic
}

func TestPoolCloseAllOnEmptyPoolNoops(t *testing.T) {
	p := NewPool(0)
	p.CloseAll() // must not panic
}

func TestFirstRowNilReply(t *testing.T) {
	if FirstRow(nil) != nil {
		t.Fatal("expected nil for a nil reply")
	}
}
