package ptywrap

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pithecene-io/clippy/internal/ipc/codec"
	"github.com/pithecene-io/clippy/internal/ipc/protocol"
	"github.com/pithecene-io/clippy/internal/turn"
)

// listenFakeBroker starts a Unix listener at $XDG_RUNTIME_DIR/clippy/broker.sock
// so ConnectBrokerClient's hardcoded path resolution finds it.
func listenFakeBroker(t *testing.T) net.Listener {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	if err := os.MkdirAll(filepath.Join(dir, "clippy"), 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	lis, err := net.Listen("unix", filepath.Join(dir, "clippy", "broker.sock"))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return lis
}

func TestResolveSocketPathMissingEnv(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	if _, err := ResolveSocketPath(); err == nil {
		t.Fatal("expected an error when XDG_RUNTIME_DIR is unset")
	}
}

func TestResolveSocketPathJoinsRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	path, err := ResolveSocketPath()
	if err != nil {
		t.Fatalf("ResolveSocketPath: %v", err)
	}
	if path != "/run/user/1000/clippy/broker.sock" {
		t.Fatalf("path = %q", path)
	}
}

func TestConnectBrokerClientSuccessfulHandshake(t *testing.T) {
	lis := listenFakeBroker(t)
	defer lis.Close()

	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := codec.NewReader(conn)

		var hello protocol.Message
		if err := reader.ReadFrame(&hello); err != nil || hello.Type != protocol.TypeHello {
			return
		}
		codec.WriteMessage(conn, protocol.Message{Type: protocol.TypeHelloAck, ID: 0, Status: protocol.StatusOK})

		var reg protocol.Message
		if err := reader.ReadFrame(&reg); err != nil || reg.Type != protocol.TypeRegister {
			return
		}
		codec.WriteMessage(conn, protocol.OKResponse(reg.ID))

		// Keep the connection open for a follow-up turn send.
		var turnMsg protocol.Message
		if err := reader.ReadFrame(&turnMsg); err == nil {
			codec.WriteMessage(conn, protocol.OKResponse(turnMsg.ID))
		}
	}()

	client, err := ConnectBrokerClient("s1", 42, "default")
	if err != nil {
		t.Fatalf("ConnectBrokerClient: %v", err)
	}
	defer client.Close()

	if err := client.SendTurn(turn.Turn{Content: []byte("hi"), TimestampMillis: 1000}); err != nil {
		t.Fatalf("SendTurn: %v", err)
	}
}

func TestConnectBrokerClientRejectedHandshake(t *testing.T) {
	lis := listenFakeBroker(t)
	defer lis.Close()

	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := codec.NewReader(conn)
		var hello protocol.Message
		if err := reader.ReadFrame(&hello); err != nil {
			return
		}
		errText := protocol.ErrVersionMismatch
		codec.WriteMessage(conn, protocol.Message{
			Type: protocol.TypeHelloAck, ID: 0, Status: protocol.StatusError, Error: &errText,
		})
	}()

	if _, err := ConnectBrokerClient("s1", 42, "default"); err == nil {
		t.Fatal("expected handshake rejection to surface as an error")
	}
}

func TestConnectBrokerClientNoListener(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	if _, err := ConnectBrokerClient("s1", 42, "default"); err == nil {
		t.Fatal("expected connect failure with nothing listening")
	}
}

func TestSendTurnTimesOutWhenBrokerStalls(t *testing.T) {
	lis := listenFakeBroker(t)
	defer lis.Close()

	accepted := make(chan struct{})
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := codec.NewReader(conn)
		var hello protocol.Message
		reader.ReadFrame(&hello)
		codec.WriteMessage(conn, protocol.Message{Type: protocol.TypeHelloAck, ID: 0, Status: protocol.StatusOK})
		var reg protocol.Message
		reader.ReadFrame(&reg)
		codec.WriteMessage(conn, protocol.OKResponse(reg.ID))
		close(accepted)
		// Never respond to the turn — simulate a stalled broker.
		var turnMsg protocol.Message
		reader.ReadFrame(&turnMsg)
		time.Sleep(time.Second)
	}()

	client, err := ConnectBrokerClient("s1", 42, "default")
	if err != nil {
		t.Fatalf("ConnectBrokerClient: %v", err)
	}
	defer client.Close()
	<-accepted

	err = client.SendTurn(turn.Turn{Content: []byte("hi")})
	if err == nil {
		t.Fatal("expected SendTurn to time out against a stalled broker")
	}
}
