package ptywrap

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pithecene-io/clippy/internal/ipc/codec"
	"github.com/pithecene-io/clippy/internal/ipc/protocol"
	"github.com/pithecene-io/clippy/internal/turn"
)

// BrokerIOTimeout bounds every broker round trip made from the main I/O
// loop, so a stalled or misbehaving broker can never stall PTY I/O.
const BrokerIOTimeout = 100 * time.Millisecond

// BrokerClient is the wrapper's connection to the broker, registered
// under Role wrapper. The broker is optional infrastructure: the wrapper
// runs standalone, without turn delivery, when it is unreachable.
//
// A single background goroutine owns the connection's read side and
// publishes every decoded frame to Frames. SendTurn and the main loop's
// inject handling both consume from Frames, but never concurrently —
// SendTurn is only ever called synchronously from the same loop
// iteration that would otherwise be reading Frames for an inject, so
// there is exactly one reader at a time, matching the strictly
// sequential request/response-or-inject handling it is grounded on.
type BrokerClient struct {
	conn      net.Conn
	nextID    uint32
	sessionID string

	// Frames delivers every message the broker sends: an ack for a
	// pending request, or an unsolicited "inject".
	Frames <-chan protocol.Message
	// Closed is closed when the read loop hits an error (the broker
	// disconnected).
	Closed <-chan struct{}

	frames chan protocol.Message
	closed chan struct{}
}

// ConnectBrokerClient dials the broker socket, performs the hello/
// register handshake, and starts the background read loop. Returns an
// error on any handshake failure — the caller should log it and
// continue standalone.
func ConnectBrokerClient(sessionID string, pid uint32, pattern string) (*BrokerClient, error) {
	sockPath, err := ResolveSocketPath()
	if err != nil {
		return nil, err
	}

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("connect failed: %w", err)
	}

	reader := codec.NewReader(conn)
	conn.SetDeadline(time.Now().Add(BrokerIOTimeout))

	if err := codec.WriteMessage(conn, protocol.Message{
		Type:    protocol.TypeHello,
		ID:      0,
		Version: protocol.ProtocolVersion,
		Role:    protocol.RoleWrapper,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	var ack protocol.Message
	if err := reader.ReadFrame(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read hello_ack: %w", err)
	}
	if ack.Type != protocol.TypeHelloAck || ack.Status != protocol.StatusOK {
		conn.Close()
		errText := ""
		if ack.Error != nil {
			errText = *ack.Error
		}
		return nil, fmt.Errorf("handshake rejected: %s", errText)
	}

	if err := codec.WriteMessage(conn, protocol.Message{
		Type:    protocol.TypeRegister,
		ID:      1,
		Session: sessionID,
		PID:     pid,
		Pattern: pattern,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send register: %w", err)
	}

	var regResp protocol.Message
	if err := reader.ReadFrame(&regResp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read register response: %w", err)
	}
	if regResp.Status != protocol.StatusOK {
		conn.Close()
		errText := ""
		if regResp.Error != nil {
			errText = *regResp.Error
		}
		return nil, fmt.Errorf("register failed: %s", errText)
	}

	conn.SetDeadline(time.Time{})

	frames := make(chan protocol.Message, 8)
	closed := make(chan struct{})
	bc := &BrokerClient{
		conn:      conn,
		nextID:    2, // 0=hello, 1=register
		sessionID: sessionID,
		Frames:    frames,
		Closed:    closed,
		frames:    frames,
		closed:    closed,
	}
	go bc.readLoop(reader)
	return bc, nil
}

// readLoop owns the connection's read side for the rest of its
// lifetime, publishing every frame to frames until a read fails.
func (b *BrokerClient) readLoop(reader *codec.Reader) {
	defer close(b.closed)
	for {
		var msg protocol.Message
		if err := reader.ReadFrame(&msg); err != nil {
			return
		}
		b.frames <- msg
	}
}

// SendTurn delivers a completed turn to the broker and waits up to
// BrokerIOTimeout for a reply. An interleaved "inject" arriving instead
// of the ack is accepted and dropped — the main loop's Frames channel
// will still receive future injects, so only this one is lost.
func (b *BrokerClient) SendTurn(t turn.Turn) error {
	id := b.nextID
	b.nextID++

	b.conn.SetWriteDeadline(time.Now().Add(BrokerIOTimeout))
	defer b.conn.SetWriteDeadline(time.Time{})

	if err := codec.WriteMessage(b.conn, protocol.Message{
		Type:        protocol.TypeTurnCompleted,
		ID:          id,
		Session:     b.sessionID,
		Content:     t.Content,
		Interrupted: t.Interrupted,
		Timestamp:   t.TimestampMillis,
	}); err != nil {
		return fmt.Errorf("send turn: %w", err)
	}

	select {
	case _, ok := <-b.frames:
		if !ok {
			return fmt.Errorf("broker disconnected")
		}
		return nil
	case <-b.closed:
		return fmt.Errorf("broker disconnected")
	case <-time.After(BrokerIOTimeout):
		return fmt.Errorf("turn ack timed out")
	}
}

// Deregister sends a best-effort deregister bounded by BrokerIOTimeout.
// Errors are not returned — the caller is shutting down regardless.
func (b *BrokerClient) Deregister() {
	id := b.nextID
	b.nextID++
	b.conn.SetWriteDeadline(time.Now().Add(BrokerIOTimeout))
	defer b.conn.SetWriteDeadline(time.Time{})
	_ = codec.WriteMessage(b.conn, protocol.Message{
		Type:    protocol.TypeDeregister,
		ID:      id,
		Session: b.sessionID,
	})
}

// Close closes the underlying connection.
func (b *BrokerClient) Close() error {
	return b.conn.Close()
}

// ResolveSocketPath locates the broker's Unix socket under
// $XDG_RUNTIME_DIR/clippy/broker.sock.
func ResolveSocketPath() (string, error) {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("$XDG_RUNTIME_DIR not set")
	}
	return filepath.Join(runtimeDir, "clippy", "broker.sock"), nil
}
