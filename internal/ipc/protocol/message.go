// Package protocol defines Clippy's wire message set: a tagged union of
// request/response/event types exchanged between the broker and its
// connections (PTY wrappers and CLI clients).
//
// Every message carries a "type" discriminator and a correlation "id".
// The one exception is "inject", which the broker sends unsolicited to a
// wrapper connection and always carries id 0.
package protocol

import "fmt"

// ProtocolVersion is the version a connection's hello must declare.
const ProtocolVersion uint32 = 1

// Role identifies which side of the protocol a connection plays.
type Role string

const (
	RoleWrapper Role = "wrapper"
	RoleClient  Role = "client"
)

// Status is the outcome carried by hello_ack and response messages.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Message type discriminators.
const (
	TypeHello         = "hello"
	TypeHelloAck      = "hello_ack"
	TypeRegister      = "register"
	TypeDeregister    = "deregister"
	TypeTurnCompleted = "turn_completed"
	TypeCapture       = "capture"
	TypePaste         = "paste"
	TypeInject        = "inject"
	TypeListSessions  = "list_sessions"
	TypeGetTurn       = "get_turn"
	TypeListTurns     = "list_turns"
	TypeCaptureByID   = "capture_by_id"
	TypeDeliver       = "deliver"
	TypeResponse      = "response"
)

// Error taxonomy — machine-readable strings carried in response.error.
const (
	ErrUnknownType       = "unknown_type"
	ErrInvalidHelloID    = "invalid_hello_id"
	ErrVersionMismatch   = "version_mismatch"
	ErrDuplicateSession  = "duplicate_session"
	ErrSessionNotFound   = "session_not_found"
	ErrSessionDisconnect = "session_disconnected"
	ErrNoTurn            = "no_turn"
	ErrTurnNotFound      = "turn_not_found"
	ErrBufferEmpty       = "buffer_empty"
	ErrUnknownSink       = "unknown_sink"
	ErrClipboardFailed   = "clipboard_failed"
	ErrFileWriteFailed   = "file_write_failed"
)

// SessionDescriptor summarizes one registered session, as returned by
// list_sessions.
type SessionDescriptor struct {
	Session string `codec:"session"`
	PID     uint32 `codec:"pid"`
	HasTurn bool   `codec:"has_turn"`
}

// TurnDescriptor summarizes one stored turn, as returned by list_turns.
type TurnDescriptor struct {
	TurnID      string `codec:"turn_id"`
	Interrupted bool   `codec:"interrupted"`
	Truncated   bool   `codec:"truncated"`
	Timestamp   int64  `codec:"timestamp"`
	ByteLength  uint32 `codec:"byte_length"`
}

// Message is the flat tagged-union envelope for every wire message.
// Fields are grouped by the message Type that populates them; a field
// left at its zero value is simply omitted from the encoded MessagePack
// map (all are "omitempty" except Type and ID, which are always present).
type Message struct {
	Type string `codec:"type"`
	ID   uint32 `codec:"id"`

	// hello
	Version uint32 `codec:"version,omitempty"`
	Role    Role   `codec:"role,omitempty"`

	// hello_ack / response
	Status Status  `codec:"status,omitempty"`
	Error  *string `codec:"error,omitempty"`

	// register / deregister / turn_completed / capture / paste /
	// list_turns / deliver (target session)
	Session string `codec:"session,omitempty"`
	PID     uint32 `codec:"pid,omitempty"`
	Pattern string `codec:"pattern,omitempty"`

	// turn_completed request
	Content     []byte `codec:"content,omitempty"`
	Interrupted bool   `codec:"interrupted,omitempty"`
	Timestamp   int64  `codec:"timestamp,omitempty"`

	// get_turn / capture_by_id request; turn_id is also echoed on
	// turn_completed/capture/capture_by_id/get_turn responses
	TurnID string `codec:"turn_id,omitempty"`

	// get_turn / response extras
	ByteLength uint32 `codec:"byte_length,omitempty"`
	Truncated  bool   `codec:"truncated,omitempty"`

	// list_sessions response
	Sessions []SessionDescriptor `codec:"sessions,omitempty"`

	// list_turns request (limit) / response (turns)
	Turns []TurnDescriptor `codec:"turns,omitempty"`
	Limit *uint32          `codec:"limit,omitempty"`

	// capture / capture_by_id response
	Size *uint64 `codec:"size,omitempty"`

	// deliver request
	Sink string `codec:"sink,omitempty"`
	Path string `codec:"path,omitempty"`
}

// RawEnvelope is the minimal shape decoded when a full Message fails to
// parse or validate. It preserves enough of the original request — its
// type and id — to send back a well-formed unknown_type/malformed
// response without having understood the rest of the payload.
type RawEnvelope struct {
	Type string `codec:"type"`
	ID   uint32 `codec:"id"`
}

// Validate reports whether m carries the fields its Type requires. A
// Message that decodes structurally (right MessagePack shapes) but is
// missing a field its type needs — e.g. a register with no Session — is
// treated the same as an unparseable message: the two-phase decode falls
// back to RawEnvelope and the connection gets an unknown_type-shaped
// response rather than a panic deep in the dispatcher.
func (m *Message) Validate() error {
	switch m.Type {
	case TypeHello:
		return nil
	case TypeHelloAck:
		return nil
	case TypeRegister:
		if m.Session == "" {
			return fmt.Errorf("register: missing session")
		}
		return nil
	case TypeDeregister:
		if m.Session == "" {
			return fmt.Errorf("deregister: missing session")
		}
		return nil
	case TypeTurnCompleted:
		if m.Session == "" {
			return fmt.Errorf("turn_completed: missing session")
		}
		return nil
	case TypeCapture:
		if m.Session == "" {
			return fmt.Errorf("capture: missing session")
		}
		return nil
	case TypePaste:
		if m.Session == "" {
			return fmt.Errorf("paste: missing session")
		}
		return nil
	case TypeInject:
		return nil
	case TypeListSessions:
		return nil
	case TypeGetTurn:
		if m.TurnID == "" {
			return fmt.Errorf("get_turn: missing turn_id")
		}
		return nil
	case TypeListTurns:
		if m.Session == "" {
			return fmt.Errorf("list_turns: missing session")
		}
		return nil
	case TypeCaptureByID:
		if m.TurnID == "" {
			return fmt.Errorf("capture_by_id: missing turn_id")
		}
		return nil
	case TypeDeliver:
		if m.Sink == "" {
			return fmt.Errorf("deliver: missing sink")
		}
		return nil
	case TypeResponse:
		return nil
	case "":
		return fmt.Errorf("missing type")
	default:
		return fmt.Errorf("unrecognized type %q", m.Type)
	}
}

// ErrorResponse builds a response message carrying the given error code.
func ErrorResponse(id uint32, code string) Message {
	c := code
	return Message{Type: TypeResponse, ID: id, Status: StatusError, Error: &c}
}

// OKResponse builds a bare success response.
func OKResponse(id uint32) Message {
	return Message{Type: TypeResponse, ID: id, Status: StatusOK}
}
