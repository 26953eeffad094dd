package client_test

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/pithecene-io/clippy/internal/broker/server"
	"github.com/pithecene-io/clippy/internal/client"
	"github.com/pithecene-io/clippy/internal/ipc/codec"
	"github.com/pithecene-io/clippy/internal/ipc/protocol"
)

func startBroker(t *testing.T) string {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "broker.sock")
	lis, err := server.Bind(sockPath)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	srv := server.New(lis, sockPath, server.Config{RingDepth: 8, MaxTurnSize: 1 << 20})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Run(ctx, "")
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return sockPath
}

// registerWrapperTurn dials a throwaway wrapper connection, registers
// a session, and delivers one completed turn so there is something for
// the client under test to capture.
func registerWrapperTurn(t *testing.T, sockPath, session, content string) {
	t.Helper()
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("dial wrapper: %v", err)
	}
	defer conn.Close()
	reader := codec.NewReader(conn)

	send := func(msg protocol.Message) protocol.Message {
		if err := codec.WriteMessage(conn, msg); err != nil {
			t.Fatalf("write: %v", err)
		}
		var resp protocol.Message
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := reader.ReadFrame(&resp); err != nil {
			t.Fatalf("read: %v", err)
		}
		return resp
	}

	ack := send(protocol.Message{Type: protocol.TypeHello, ID: 0, Version: protocol.ProtocolVersion, Role: protocol.RoleWrapper})
	if ack.Status != protocol.StatusOK {
		t.Fatalf("hello failed: %+v", ack)
	}
	resp := send(protocol.Message{Type: protocol.TypeRegister, ID: 1, Session: session, PID: 99})
	if resp.Status != protocol.StatusOK {
		t.Fatalf("register failed: %+v", resp)
	}
	resp = send(protocol.Message{Type: protocol.TypeTurnCompleted, ID: 2, Session: session, Content: []byte(content), Timestamp: 1})
	if resp.Status != protocol.StatusOK {
		t.Fatalf("turn_completed failed: %+v", resp)
	}
}

func TestClientCaptureAndGetTurn(t *testing.T) {
	sockPath := startBroker(t)
	registerWrapperTurn(t, sockPath, "s1", "hello world")

	c, err := client.Connect(sockPath)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	sessions, err := c.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Session != "s1" {
		t.Fatalf("sessions = %+v", sessions)
	}

	result, err := c.Capture("s1")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if result.Size != uint64(len("hello world")) {
		t.Fatalf("captured size = %d", result.Size)
	}

	turn, err := c.GetTurn(result.TurnID)
	if err != nil {
		t.Fatalf("GetTurn: %v", err)
	}
	if string(turn.Content) != "hello world" {
		t.Fatalf("turn content = %q", turn.Content)
	}

	turns, err := c.ListTurns("s1", 0)
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("turns = %+v", turns)
	}
}

func TestClientPasteDeliversToWrapper(t *testing.T) {
	sockPath := startBroker(t)
	registerWrapperTurn(t, sockPath, "s1", "payload")

	c, err := client.Connect(sockPath)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if _, err := c.Capture("s1"); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := c.Paste("s1"); err != nil {
		t.Fatalf("Paste: %v", err)
	}
}

func TestClientGetTurnNotFound(t *testing.T) {
	sockPath := startBroker(t)
	c, err := client.Connect(sockPath)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if _, err := c.GetTurn("s1:999"); err == nil {
		t.Fatal("expected an error for an unknown turn id")
	}
}
