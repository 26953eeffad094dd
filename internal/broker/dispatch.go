package broker

import (
	"time"

	"github.com/pithecene-io/clippy/internal/ipc/protocol"
)

// InjectAction asks the broker loop to write an unsolicited inject
// message to a specific connection — produced by a successful paste or
// a deliver{sink:"inject"}.
type InjectAction struct {
	TargetConnection ConnectionID
	Message          protocol.Message
}

// DeliverAction asks the broker loop to perform sink I/O (clipboard
// write or file write) that this package does not do itself. The loop
// performs the write and then sends Response — ok as built here, or an
// error response with the sink's failure code if the write fails.
type DeliverAction struct {
	Sink     string
	Content  []byte
	Path     string
	Metadata SinkMetadata
	// Response is the optimistic ok response for this request. The loop
	// sends it verbatim on success, or substitutes an error response
	// carrying the sink's failure code on I/O failure.
	Response protocol.Message
}

// Result is everything Dispatch produces for one request: the response
// to send back to the requesting connection (the zero Message if a
// DeliverAction is pending — see DeliverAction.Response), and at most
// one side effect for the broker loop to carry out.
type Result struct {
	Response protocol.Message
	Inject   *InjectAction
	Deliver  *DeliverAction
}

// Dispatch routes one decoded request to its handler and returns the
// response plus any side effect. Pure: no I/O, no goroutines. The
// broker loop sends Result.Response to the requester and, if present,
// carries out Result.Inject or Result.Deliver.
func Dispatch(state *State, connID ConnectionID, req protocol.Message) Result {
	switch req.Type {
	case protocol.TypeHello:
		return Result{Response: handleHello(state, connID, req)}

	case protocol.TypeRegister:
		if !isWrapper(state, connID) {
			return Result{Response: protocol.ErrorResponse(req.ID, protocol.ErrUnknownType)}
		}
		return Result{Response: handleRegister(state, connID, req)}

	case protocol.TypeDeregister:
		if !isWrapper(state, connID) {
			return Result{Response: protocol.ErrorResponse(req.ID, protocol.ErrUnknownType)}
		}
		state.DeregisterSession(req.Session)
		return Result{Response: protocol.OKResponse(req.ID)}

	case protocol.TypeTurnCompleted:
		if !isWrapper(state, connID) {
			return Result{Response: protocol.ErrorResponse(req.ID, protocol.ErrUnknownType)}
		}
		return Result{Response: handleTurnCompleted(state, req)}

	case protocol.TypeCapture:
		return Result{Response: handleCapture(state, req)}

	case protocol.TypePaste:
		return handlePaste(state, req)

	case protocol.TypeListSessions:
		return Result{Response: handleListSessions(state, req)}

	case protocol.TypeGetTurn:
		return Result{Response: handleGetTurn(state, req)}

	case protocol.TypeListTurns:
		return Result{Response: handleListTurns(state, req)}

	case protocol.TypeCaptureByID:
		return Result{Response: handleCaptureByID(state, req)}

	case protocol.TypeDeliver:
		return handleDeliver(state, req)

	// Server-originated variants are never valid incoming requests.
	case protocol.TypeHelloAck, protocol.TypeResponse, protocol.TypeInject:
		return Result{Response: protocol.ErrorResponse(req.ID, protocol.ErrUnknownType)}

	default:
		return Result{Response: protocol.ErrorResponse(req.ID, protocol.ErrUnknownType)}
	}
}

func isWrapper(state *State, connID ConnectionID) bool {
	role, ok := state.ConnectionRole(connID)
	return ok && role == protocol.RoleWrapper
}

// handleHello validates and records a connection's hello. hello_ack
// always carries id 0, regardless of the request's id, and a rejection
// is itself a hello_ack (never a generic response) so the caller can
// distinguish "my hello was malformed" from "the thing I asked for
// failed".
func handleHello(state *State, connID ConnectionID, req protocol.Message) protocol.Message {
	if req.ID != 0 {
		code := protocol.ErrInvalidHelloID
		return protocol.Message{Type: protocol.TypeHelloAck, ID: 0, Status: protocol.StatusError, Error: &code}
	}
	if req.Version != protocol.ProtocolVersion {
		code := protocol.ErrVersionMismatch
		return protocol.Message{Type: protocol.TypeHelloAck, ID: 0, Status: protocol.StatusError, Error: &code}
	}
	state.AddConnection(connID, req.Role)
	return protocol.Message{Type: protocol.TypeHelloAck, ID: 0, Status: protocol.StatusOK}
}

func handleRegister(state *State, connID ConnectionID, req protocol.Message) protocol.Message {
	if err := state.RegisterSession(req.Session, connID, req.PID); err != nil {
		return protocol.ErrorResponse(req.ID, err.Error())
	}
	return protocol.OKResponse(req.ID)
}

// handleTurnCompleted falls back to broker receipt time when the
// wrapper sent a zero timestamp, so a stored turn is never zero-timed.
func handleTurnCompleted(state *State, req protocol.Message) protocol.Message {
	ts := req.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	turnID, err := state.StoreTurn(req.Session, req.Content, req.Interrupted, ts)
	if err != nil {
		return protocol.ErrorResponse(req.ID, err.Error())
	}
	resp := protocol.OKResponse(req.ID)
	resp.TurnID = turnID
	return resp
}

func handleCapture(state *State, req protocol.Message) protocol.Message {
	result, err := state.Capture(req.Session)
	if err != nil {
		return protocol.ErrorResponse(req.ID, err.Error())
	}
	resp := protocol.OKResponse(req.ID)
	size := uint64(result.Size)
	resp.Size = &size
	resp.TurnID = result.TurnID
	return resp
}

func handlePaste(state *State, req protocol.Message) Result {
	content, targetConn, err := state.PasteContent(req.Session)
	if err != nil {
		return Result{Response: protocol.ErrorResponse(req.ID, err.Error())}
	}
	return Result{
		Response: protocol.OKResponse(req.ID),
		Inject: &InjectAction{
			TargetConnection: targetConn,
			Message:          protocol.Message{Type: protocol.TypeInject, ID: 0, Content: content},
		},
	}
}

func handleListSessions(state *State, req protocol.Message) protocol.Message {
	resp := protocol.OKResponse(req.ID)
	resp.Sessions = state.ListSessions()
	return resp
}

func handleGetTurn(state *State, req protocol.Message) protocol.Message {
	record, err := state.GetTurn(req.TurnID)
	if err != nil {
		return protocol.ErrorResponse(req.ID, err.Error())
	}
	resp := protocol.OKResponse(req.ID)
	resp.TurnID = record.TurnID
	resp.Content = record.Content
	resp.Timestamp = record.TimestampMillis
	resp.ByteLength = record.ByteLength
	resp.Interrupted = record.Interrupted
	resp.Truncated = record.Truncated
	return resp
}

func handleListTurns(state *State, req protocol.Message) protocol.Message {
	limit := 0
	if req.Limit != nil {
		limit = int(*req.Limit)
	}
	records, err := state.ListTurns(req.Session, limit)
	if err != nil {
		return protocol.ErrorResponse(req.ID, err.Error())
	}
	turns := make([]protocol.TurnDescriptor, len(records))
	for i, r := range records {
		turns[i] = protocol.TurnDescriptor{
			TurnID:      r.TurnID,
			Timestamp:   r.TimestampMillis,
			ByteLength:  r.ByteLength,
			Interrupted: r.Interrupted,
			Truncated:   r.Truncated,
		}
	}
	resp := protocol.OKResponse(req.ID)
	resp.Turns = turns
	return resp
}

func handleCaptureByID(state *State, req protocol.Message) protocol.Message {
	result, err := state.CaptureByID(req.TurnID)
	if err != nil {
		return protocol.ErrorResponse(req.ID, err.Error())
	}
	resp := protocol.OKResponse(req.ID)
	size := uint64(result.Size)
	resp.Size = &size
	resp.TurnID = result.TurnID
	return resp
}

// handleDeliver dispatches on sink name. "inject" with a session is
// equivalent to paste. "clipboard" and "file" require a non-empty relay
// buffer and defer the actual write to the broker loop via
// Result.Deliver.
func handleDeliver(state *State, req protocol.Message) Result {
	switch req.Sink {
	case "inject":
		return handlePaste(state, req)

	case "clipboard":
		entry, ok := state.RelayBuffer()
		if !ok {
			return Result{Response: protocol.ErrorResponse(req.ID, protocol.ErrBufferEmpty)}
		}
		return Result{Deliver: &DeliverAction{
			Sink:     req.Sink,
			Content:  entry.Content,
			Metadata: entry.Metadata,
			Response: protocol.OKResponse(req.ID),
		}}

	case "file":
		if req.Path == "" {
			return Result{Response: protocol.ErrorResponse(req.ID, protocol.ErrFileWriteFailed)}
		}
		entry, ok := state.RelayBuffer()
		if !ok {
			return Result{Response: protocol.ErrorResponse(req.ID, protocol.ErrBufferEmpty)}
		}
		return Result{Deliver: &DeliverAction{
			Sink:     req.Sink,
			Content:  entry.Content,
			Path:     req.Path,
			Metadata: entry.Metadata,
			Response: protocol.OKResponse(req.ID),
		}}

	default:
		return Result{Response: protocol.ErrorResponse(req.ID, protocol.ErrUnknownSink)}
	}
}
