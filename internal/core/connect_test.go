package core

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"chatd/internal/retry"
	"chatd/internal/transport"
	"chatd/util"
)

func quickBackoff(attempts int) *retry.Backoff {
	return &retry.Backoff{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxAttempts: attempts}
}

// TestConnectMode_Output verifies that server output reaches stdout.
func TestConnectMode_Output(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("Welcome to chatd!\n")) //nolint:errcheck
	}()

	output := &bytes.Buffer{}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	mode := &ConnectMode{
		Dialer:  &transport.TCPDialer{Timeout: 2 * time.Second},
		Address: ln.Addr().String(),
		Backoff: quickBackoff(1),
		Logger:  util.NewLogger(0),
		Stdin:   strings.NewReader(""),
		Stdout:  output,
	}
	if err := mode.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := output.String(); got != "Welcome to chatd!\n" {
		t.Errorf("output = %q", got)
	}
}

// TestConnectMode_SendsInput verifies that typed lines reach the server.
func TestConnectMode_SendsInput(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var buf bytes.Buffer
		io.Copy(&buf, conn) //nolint:errcheck
		received <- buf.String()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	mode := &ConnectMode{
		Dialer:  &transport.TCPDialer{Timeout: 2 * time.Second},
		Address: ln.Addr().String(),
		Logger:  util.NewLogger(0),
		Stdin:   strings.NewReader("Alice\n/quit\n"),
		Stdout:  io.Discard,
	}
	_ = mode.Run(ctx)

	select {
	case got := <-received:
		if got != "Alice\n/quit\n" {
			t.Errorf("server got %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for data")
	}
}

// TestConnectMode_GivesUp verifies the retry budget is honoured when
// nothing is listening.
func TestConnectMode_GivesUp(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}

	mode := &ConnectMode{
		Dialer:  &transport.TCPDialer{Timeout: 500 * time.Millisecond},
		Address: util.FormatAddr("127.0.0.1", port),
		Backoff: quickBackoff(3),
		Logger:  util.NewLogger(0),
		Stdin:   strings.NewReader(""),
		Stdout:  io.Discard,
	}
	err = mode.Run(context.Background())
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if !strings.Contains(err.Error(), "max retries (3)") {
		t.Errorf("error = %v, want retry budget exhausted", err)
	}
}

// TestConnectMode_Cancelled verifies that a cancelled context stops
// retrying immediately.
func TestConnectMode_Cancelled(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mode := &ConnectMode{
		Dialer:  &transport.TCPDialer{Timeout: 500 * time.Millisecond},
		Address: util.FormatAddr("127.0.0.1", port),
		Backoff: &retry.Backoff{InitialDelay: time.Hour},
		Logger:  util.NewLogger(0),
	}
	start := time.Now()
	if err := mode.Run(ctx); err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Run kept retrying after cancel")
	}
}
