package netbind

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestDialContextWithoutInterfaceDialsNormally(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := DialContext(ctx, "", "tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial without interface: %v", err)
	}
	conn.Close()
}
