// Package broker implements the broker's in-memory state and dispatcher:
// the session table, per-session turn ring buffers, the relay buffer, and
// the pure (state, request, connection) -> (response, side effect)
// dispatch function. No I/O happens in this package — the broker loop
// (internal/broker/server) owns sockets, goroutines, and timers.
package broker

import (
	"strings"
	"sync/atomic"

	"github.com/pithecene-io/clippy/internal/ipc/protocol"
)

// ConnectionID identifies one accepted connection. IDs are assigned by a
// monotonically increasing counter and never reused.
type ConnectionID uint64

var connectionCounter uint64

// NewConnectionID returns a fresh, never-reused connection ID.
func NewConnectionID() ConnectionID {
	return ConnectionID(atomic.AddUint64(&connectionCounter, 1))
}

// SinkMetadata mirrors a TurnRecord's fields, minus the content bytes
// themselves. It travels alongside relay buffer content to delivery
// sinks, which in v1 accept but ignore it.
type SinkMetadata struct {
	TurnID          string
	TimestampMillis int64
	ByteLength      uint32
	Interrupted     bool
	Truncated       bool
}

// RelayEntry is the broker's single-slot relay buffer: the most recently
// captured turn, held until overwritten by the next capture.
type RelayEntry struct {
	Content  []byte
	Metadata SinkMetadata
}

// session is the broker's session-table entry.
type session struct {
	connectionID ConnectionID
	pid          uint32
	turns        *TurnRingBuffer
}

// CaptureResult is returned by Capture and CaptureByID.
type CaptureResult struct {
	Size   uint32
	TurnID string
}

// State is the broker's entire in-memory state: the session table, the
// relay buffer, and live connection roles. Owned exclusively by the
// broker loop — no concurrent access.
type State struct {
	sessions     map[string]*session
	connections  map[ConnectionID]protocol.Role
	relayBuffer  *RelayEntry
	ringCapacity int
	maxTurnBytes int
}

// NewState creates empty broker state. ringCapacity and maxTurnBytes are
// applied to every session's turn ring buffer at registration time.
func NewState(ringCapacity, maxTurnBytes int) *State {
	return &State{
		sessions:     make(map[string]*session),
		connections:  make(map[ConnectionID]protocol.Role),
		ringCapacity: ringCapacity,
		maxTurnBytes: maxTurnBytes,
	}
}

// UpdateConfig changes the ring capacity and max turn size applied to
// sessions registered from this point on. Sessions already registered
// keep the turn ring buffer they were created with — its capacity is
// fixed at construction, not read live.
func (s *State) UpdateConfig(ringCapacity, maxTurnBytes int) {
	s.ringCapacity = ringCapacity
	s.maxTurnBytes = maxTurnBytes
}

// AddConnection records a newly handshaken connection and its role.
func (s *State) AddConnection(id ConnectionID, role protocol.Role) {
	s.connections[id] = role
}

// ConnectionRole reports the role a connection declared at hello, if any.
func (s *State) ConnectionRole(id ConnectionID) (protocol.Role, bool) {
	role, ok := s.connections[id]
	return role, ok
}

// RemoveConnection drops a connection and implicitly deregisters any
// session it owns — if a wrapper disconnects without sending
// deregister, its session is removed anyway.
func (s *State) RemoveConnection(id ConnectionID) {
	delete(s.connections, id)
	for sessionID, sess := range s.sessions {
		if sess.connectionID == id {
			delete(s.sessions, sessionID)
		}
	}
}

// RegisterSession creates a new session with a fresh turn ring buffer.
// Returns ErrDuplicateSession if sessionID is already registered.
func (s *State) RegisterSession(sessionID string, connID ConnectionID, pid uint32) error {
	if _, exists := s.sessions[sessionID]; exists {
		return errString(protocol.ErrDuplicateSession)
	}
	s.sessions[sessionID] = &session{
		connectionID: connID,
		pid:          pid,
		turns:        NewTurnRingBuffer(sessionID, s.ringCapacity, s.maxTurnBytes),
	}
	return nil
}

// DeregisterSession removes a session. Idempotent: deregistering an
// already-absent session is not an error. The relay buffer is untouched
// — content already captured survives session teardown.
func (s *State) DeregisterSession(sessionID string) {
	delete(s.sessions, sessionID)
}

// StoreTurn appends a completed turn to a session's ring buffer,
// returning its assigned turn ID. Returns ErrSessionNotFound if the
// session doesn't exist.
func (s *State) StoreTurn(sessionID string, content []byte, interrupted bool, timestampMillis int64) (string, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return "", errString(protocol.ErrSessionNotFound)
	}
	record := sess.turns.Push(content, interrupted, timestampMillis)
	return record.TurnID, nil
}

// Capture copies a session's most recent turn into the relay buffer.
// Returns ErrSessionNotFound or ErrNoTurn.
func (s *State) Capture(sessionID string) (CaptureResult, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return CaptureResult{}, errString(protocol.ErrSessionNotFound)
	}
	head, ok := sess.turns.Head()
	if !ok {
		return CaptureResult{}, errString(protocol.ErrNoTurn)
	}
	s.storeRelay(head)
	return CaptureResult{Size: uint32(len(head.Content)), TurnID: head.TurnID}, nil
}

// CaptureByID copies a specific turn, looked up by its turn ID, into the
// relay buffer. The turn ID's session prefix (everything before the
// first ':') selects the session; an unrecognized prefix or missing turn
// both yield ErrTurnNotFound.
func (s *State) CaptureByID(turnID string) (CaptureResult, error) {
	record, err := s.lookupTurn(turnID)
	if err != nil {
		return CaptureResult{}, err
	}
	s.storeRelay(record)
	return CaptureResult{Size: uint32(len(record.Content)), TurnID: record.TurnID}, nil
}

// GetTurn looks up a single turn by ID, without affecting the relay
// buffer.
func (s *State) GetTurn(turnID string) (TurnRecord, error) {
	return s.lookupTurn(turnID)
}

// ListTurns returns a session's turns, newest first. limit <= 0 means no
// limit. Returns ErrSessionNotFound if the session doesn't exist.
func (s *State) ListTurns(sessionID string, limit int) ([]TurnRecord, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, errString(protocol.ErrSessionNotFound)
	}
	return sess.turns.IterNewestFirst(limit), nil
}

// PasteContent reads the relay buffer and resolves the target session's
// live connection. The relay buffer is left untouched — the same
// content may be pasted more than once.
func (s *State) PasteContent(sessionID string) ([]byte, ConnectionID, error) {
	if s.relayBuffer == nil {
		return nil, 0, errString(protocol.ErrBufferEmpty)
	}
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, 0, errString(protocol.ErrSessionNotFound)
	}
	if _, live := s.connections[sess.connectionID]; !live {
		return nil, 0, errString(protocol.ErrSessionDisconnect)
	}
	return s.relayBuffer.Content, sess.connectionID, nil
}

// RelayBuffer returns the current relay buffer entry, for delivery
// sinks (deliver clipboard/file). Returns false if nothing has been
// captured yet.
func (s *State) RelayBuffer() (RelayEntry, bool) {
	if s.relayBuffer == nil {
		return RelayEntry{}, false
	}
	return *s.relayBuffer, true
}

// ListSessions returns a descriptor for every registered session.
func (s *State) ListSessions() []protocol.SessionDescriptor {
	out := make([]protocol.SessionDescriptor, 0, len(s.sessions))
	for id, sess := range s.sessions {
		_, hasTurn := sess.turns.Head()
		out = append(out, protocol.SessionDescriptor{
			Session: id,
			PID:     sess.pid,
			HasTurn: hasTurn,
		})
	}
	return out
}

func (s *State) storeRelay(record TurnRecord) {
	s.relayBuffer = &RelayEntry{
		Content: record.Content,
		Metadata: SinkMetadata{
			TurnID:          record.TurnID,
			TimestampMillis: record.TimestampMillis,
			ByteLength:      record.ByteLength,
			Interrupted:     record.Interrupted,
			Truncated:       record.Truncated,
		},
	}
}

func (s *State) lookupTurn(turnID string) (TurnRecord, error) {
	sessionID, _, found := strings.Cut(turnID, ":")
	if !found {
		return TurnRecord{}, errString(protocol.ErrTurnNotFound)
	}
	sess, ok := s.sessions[sessionID]
	if !ok {
		return TurnRecord{}, errString(protocol.ErrTurnNotFound)
	}
	record, ok := sess.turns.Get(turnID)
	if !ok {
		return TurnRecord{}, errString(protocol.ErrTurnNotFound)
	}
	return record, nil
}

// errString adapts a machine-readable error code string (from the
// protocol package's error taxonomy) into an error value. Dispatch
// recovers the code via Error() to populate a response's error field.
type errString string

func (e errString) Error() string { return string(e) }
