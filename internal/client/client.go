// Package client is the broker's request/response side: the one-shot
// connection a CLI invocation makes to run exactly one operation and
// exit, as opposed to ptywrap.BrokerClient's long-lived wrapper
// connection with its background read loop and unsolicited injects.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/pithecene-io/clippy/internal/ipc/codec"
	"github.com/pithecene-io/clippy/internal/ipc/protocol"
)

// IOTimeout bounds every round trip a Client makes to the broker.
const IOTimeout = 5 * time.Second

// Client is a single connection registered under Role client. Every
// method performs one send-then-receive round trip and is not safe for
// concurrent use — a CLI invocation only ever issues one request at a
// time.
type Client struct {
	conn   net.Conn
	reader *codec.Reader
	nextID uint32
}

// Connect dials socketPath and performs the hello handshake as a
// client. Unlike a wrapper, a client never registers a session — it
// only ever reads or mutates sessions a wrapper already registered.
func Connect(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}

	c := &Client{conn: conn, reader: codec.NewReader(conn), nextID: 1}

	conn.SetDeadline(time.Now().Add(IOTimeout))
	defer conn.SetDeadline(time.Time{})

	ack, err := c.roundTrip(protocol.Message{
		Type:    protocol.TypeHello,
		ID:      0,
		Version: protocol.ProtocolVersion,
		Role:    protocol.RoleClient,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if ack.Type != protocol.TypeHelloAck || ack.Status != protocol.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("client: handshake rejected: %s", errText(ack))
	}
	return c, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) roundTrip(req protocol.Message) (protocol.Message, error) {
	c.conn.SetDeadline(time.Now().Add(IOTimeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := codec.WriteMessage(c.conn, req); err != nil {
		return protocol.Message{}, fmt.Errorf("client: write %s: %w", req.Type, err)
	}
	var resp protocol.Message
	if err := c.reader.ReadFrame(&resp); err != nil {
		return protocol.Message{}, fmt.Errorf("client: read %s response: %w", req.Type, err)
	}
	return resp, nil
}

// request assigns the next correlation id, round-trips req, and
// translates an error response into a Go error.
func (c *Client) request(req protocol.Message) (protocol.Message, error) {
	req.ID = c.nextID
	c.nextID++

	resp, err := c.roundTrip(req)
	if err != nil {
		return protocol.Message{}, err
	}
	if resp.Status == protocol.StatusError {
		return protocol.Message{}, fmt.Errorf("client: %s: %s", req.Type, errText(resp))
	}
	return resp, nil
}

func errText(m protocol.Message) string {
	if m.Error != nil {
		return *m.Error
	}
	return "unknown error"
}

// ListSessions returns every session currently registered with the
// broker.
func (c *Client) ListSessions() ([]protocol.SessionDescriptor, error) {
	resp, err := c.request(protocol.Message{Type: protocol.TypeListSessions})
	if err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// CaptureResult is the outcome of a capture or capture_by_id call.
type CaptureResult struct {
	TurnID string
	Size   uint64
}

// Capture copies the most recent completed turn on session into the
// broker's relay buffer.
func (c *Client) Capture(session string) (CaptureResult, error) {
	resp, err := c.request(protocol.Message{Type: protocol.TypeCapture, Session: session})
	if err != nil {
		return CaptureResult{}, err
	}
	return captureResult(resp), nil
}

// CaptureByID copies a specific turn, looked up by id, into the relay
// buffer.
func (c *Client) CaptureByID(turnID string) (CaptureResult, error) {
	resp, err := c.request(protocol.Message{Type: protocol.TypeCaptureByID, TurnID: turnID})
	if err != nil {
		return CaptureResult{}, err
	}
	return captureResult(resp), nil
}

func captureResult(resp protocol.Message) CaptureResult {
	size := uint64(0)
	if resp.Size != nil {
		size = *resp.Size
	}
	return CaptureResult{TurnID: resp.TurnID, Size: size}
}

// Paste injects the broker's relay buffer into session's wrapper.
func (c *Client) Paste(session string) error {
	_, err := c.request(protocol.Message{Type: protocol.TypePaste, Session: session})
	return err
}

// Turn is a stored turn's full content and metadata, as returned by
// GetTurn.
type Turn struct {
	TurnID      string
	Content     []byte
	Timestamp   int64
	ByteLength  uint32
	Interrupted bool
	Truncated   bool
}

// GetTurn fetches a turn's content and metadata by id.
func (c *Client) GetTurn(turnID string) (Turn, error) {
	resp, err := c.request(protocol.Message{Type: protocol.TypeGetTurn, TurnID: turnID})
	if err != nil {
		return Turn{}, err
	}
	return Turn{
		TurnID:      resp.TurnID,
		Content:     resp.Content,
		Timestamp:   resp.Timestamp,
		ByteLength:  resp.ByteLength,
		Interrupted: resp.Interrupted,
		Truncated:   resp.Truncated,
	}, nil
}

// ListTurns lists the turns retained for session, most recent first,
// capped at limit (0 means the broker's default).
func (c *Client) ListTurns(session string, limit uint32) ([]protocol.TurnDescriptor, error) {
	req := protocol.Message{Type: protocol.TypeListTurns, Session: session}
	if limit > 0 {
		req.Limit = &limit
	}
	resp, err := c.request(req)
	if err != nil {
		return nil, err
	}
	return resp.Turns, nil
}

// Deliver pushes the broker's relay buffer to a sink: "clipboard",
// "file" (path required), or "inject" (session required — equivalent
// to Paste).
func (c *Client) Deliver(sink, session, path string) error {
	_, err := c.request(protocol.Message{
		Type:    protocol.TypeDeliver,
		Sink:    sink,
		Session: session,
		Path:    path,
	})
	return err
}
