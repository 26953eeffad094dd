package broker

import "fmt"

// TurnRecord is a single completed turn stored in a session's ring
// buffer.
type TurnRecord struct {
	// TurnID is the stable identifier "<session_id>:<seq>".
	TurnID string
	// Content is the raw turn content (truncated to MaxTurnBytes if the
	// original content was longer).
	Content []byte
	// TimestampMillis is the Unix epoch time, in milliseconds, at which
	// the turn was detected (set by the wrapper; the broker substitutes
	// its receipt time when the wrapper sends 0).
	TimestampMillis int64
	// ByteLength is the length of the original content, before any
	// truncation.
	ByteLength uint32
	// Interrupted reports whether the turn was interrupted.
	Interrupted bool
	// Truncated reports whether Content was shortened to fit MaxTurnBytes.
	Truncated bool
}

// TurnRingBuffer is a per-session bounded ring buffer of completed turns,
// newest entry first. When full, pushing a new turn evicts the oldest.
// Turn sequence numbers are monotonic and never reused, even across
// eviction.
type TurnRingBuffer struct {
	entries      []TurnRecord // index 0 is newest
	capacity     int
	maxTurnBytes int
	nextSeq      uint64
	sessionID    string
}

// NewTurnRingBuffer creates a ring buffer for sessionID. capacity must be
// at least 1.
func NewTurnRingBuffer(sessionID string, capacity, maxTurnBytes int) *TurnRingBuffer {
	if capacity < 1 {
		panic("broker: ring buffer capacity must be >= 1")
	}
	return &TurnRingBuffer{
		entries:      make([]TurnRecord, 0, capacity),
		capacity:     capacity,
		maxTurnBytes: maxTurnBytes,
		nextSeq:      1,
		sessionID:    sessionID,
	}
}

// Push inserts a new turn, assigning the next sequence number, truncating
// content if it exceeds maxTurnBytes, and evicting the oldest turn if the
// buffer is at capacity. timestampMillis is the detection-time timestamp
// set by the wrapper, not generated here. Returns the newly stored
// record.
func (r *TurnRingBuffer) Push(content []byte, interrupted bool, timestampMillis int64) TurnRecord {
	turnID := fmt.Sprintf("%s:%d", r.sessionID, r.nextSeq)
	r.nextSeq++

	byteLength := uint32(len(content))
	truncated := len(content) > r.maxTurnBytes
	stored := content
	if truncated {
		stored = make([]byte, r.maxTurnBytes)
		copy(stored, content)
	}

	record := TurnRecord{
		TurnID:          turnID,
		Content:         stored,
		TimestampMillis: timestampMillis,
		ByteLength:      byteLength,
		Interrupted:     interrupted,
		Truncated:       truncated,
	}

	if len(r.entries) == r.capacity {
		r.entries = r.entries[:len(r.entries)-1]
	}
	r.entries = append([]TurnRecord{record}, r.entries...)

	return r.entries[0]
}

// Head returns the most recent turn, or false if the buffer is empty.
func (r *TurnRingBuffer) Head() (TurnRecord, bool) {
	if len(r.entries) == 0 {
		return TurnRecord{}, false
	}
	return r.entries[0], true
}

// Get looks up a turn by its turn ID. Linear scan — ring capacity is
// always small.
func (r *TurnRingBuffer) Get(turnID string) (TurnRecord, bool) {
	for _, rec := range r.entries {
		if rec.TurnID == turnID {
			return rec, true
		}
	}
	return TurnRecord{}, false
}

// IterNewestFirst returns up to limit turns, newest first. A limit of 0
// means no limit.
func (r *TurnRingBuffer) IterNewestFirst(limit int) []TurnRecord {
	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}
	out := make([]TurnRecord, limit)
	copy(out, r.entries[:limit])
	return out
}

// Len reports how many turns are currently stored.
func (r *TurnRingBuffer) Len() int {
	return len(r.entries)
}

// IsEmpty reports whether the ring buffer holds no turns.
func (r *TurnRingBuffer) IsEmpty() bool {
	return len(r.entries) == 0
}
