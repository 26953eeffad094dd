package protocol

import (
	"fmt"

	"github.com/pithecene-io/clippy/internal/ipc/codec"
)

// ErrMalformed indicates a payload that didn't even decode into a
// RawEnvelope — the connection this arrived on should be closed, since
// there is no reliable id to respond with.
var ErrMalformed = fmt.Errorf("ipc: malformed message")

// Decode performs a two-phase decode: first attempt a strict decode into
// a full Message and validate it against its Type; if that fails, fall
// back to RawEnvelope so the caller can still send back an unknown_type
// response carrying the right id. If even the envelope fails to decode,
// Decode returns ErrMalformed and the caller should close the
// connection.
func Decode(payload []byte) (msg *Message, envelope *RawEnvelope, err error) {
	var m Message
	if decErr := codec.Unmarshal(payload, &m); decErr == nil {
		if valErr := m.Validate(); valErr == nil {
			return &m, nil, nil
		}
	}

	var env RawEnvelope
	if decErr := codec.Unmarshal(payload, &env); decErr == nil && env.Type != "" {
		return nil, &env, nil
	}

	return nil, nil, ErrMalformed
}
