// Package codec implements the length-prefixed MessagePack framing used
// between the broker and every connection (PTY wrappers and CLI clients
// alike).
//
// Each frame on the wire is a 4-byte big-endian length header followed by
// exactly that many bytes of MessagePack payload. There is no magic
// number and no checksum — the Unix socket transport is assumed reliable
// and ordered.
package codec

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/hashicorp/go-msgpack/codec"
)

const (
	// LengthPrefixSize is the width of the frame length header in bytes.
	LengthPrefixSize = 4

	// MaxPayloadSize is the largest payload a frame may declare.
	MaxPayloadSize = 16 * 1024 * 1024
)

// ErrPayloadTooLarge is returned when a frame's declared length exceeds
// MaxPayloadSize, either while decoding from a buffer or while reading
// from a stream.
var ErrPayloadTooLarge = errors.New("ipc: frame payload exceeds maximum size")

var msgpackHandle = &codec.MsgpackHandle{}

// Marshal encodes v as a MessagePack payload, with no length prefix.
func Marshal(v interface{}) ([]byte, error) {
	var payload []byte
	enc := codec.NewEncoderBytes(&payload, msgpackHandle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return payload, nil
}

// Unmarshal decodes a MessagePack payload (with no length prefix) into v.
func Unmarshal(payload []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(payload, msgpackHandle)
	return dec.Decode(v)
}

// EncodePayload prefixes payload with its big-endian length, producing a
// complete frame ready to write to the wire.
func EncodePayload(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	frame := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(frame[:LengthPrefixSize], uint32(len(payload)))
	copy(frame[LengthPrefixSize:], payload)
	return frame, nil
}

// EncodeFrame marshals v and wraps the result in a length-prefixed frame.
func EncodeFrame(v interface{}) ([]byte, error) {
	payload, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	return EncodePayload(payload)
}

// WriteMessage encodes v as a frame and writes it to w in one call.
func WriteMessage(w io.Writer, v interface{}) error {
	frame, err := EncodeFrame(v)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// DecodeFrame attempts to decode exactly one frame from the front of buf.
//
// On success, ok is true, payload holds the frame's MessagePack bytes,
// and consumed is the number of bytes (header + payload) the caller
// should drop from the front of buf before the next call.
//
// When buf does not yet contain a complete frame — a partial header or a
// complete header but partial payload — ok is false and err is nil: the
// caller should wait for more bytes and try again. err is only non-nil
// when the declared length exceeds MaxPayloadSize, which is a protocol
// violation rather than a need for more data.
func DecodeFrame(buf []byte) (payload []byte, consumed int, ok bool, err error) {
	if len(buf) < LengthPrefixSize {
		return nil, 0, false, nil
	}
	n := binary.BigEndian.Uint32(buf[:LengthPrefixSize])
	if n > MaxPayloadSize {
		return nil, 0, false, ErrPayloadTooLarge
	}
	total := LengthPrefixSize + int(n)
	if len(buf) < total {
		return nil, 0, false, nil
	}
	payload = make([]byte, n)
	copy(payload, buf[LengthPrefixSize:total])
	return payload, total, true, nil
}

// Reader decodes a stream of frames from an underlying io.Reader,
// buffering partial reads across calls. It is the streaming counterpart
// to DecodeFrame, used by the broker's per-connection read loop and by
// every broker client.
type Reader struct {
	r   io.Reader
	buf []byte
}

// NewReader wraps r in a frame Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFrame blocks until one full frame is available, decodes it into v,
// and returns. It returns io.EOF (or the underlying read error) when the
// connection closes with no partial frame pending.
func (fr *Reader) ReadFrame(v interface{}) error {
	payload, err := fr.next()
	if err != nil {
		return err
	}
	return Unmarshal(payload, v)
}

// ReadPayload blocks until one full frame is available and returns its
// raw MessagePack bytes, undecoded. Used by callers that need a two-phase
// decode — try a strict type, fall back to a looser one on failure —
// which requires the payload bytes survive past a first failed decode.
func (fr *Reader) ReadPayload() ([]byte, error) {
	return fr.next()
}

// next returns the raw MessagePack payload of the next complete frame.
func (fr *Reader) next() ([]byte, error) {
	for {
		payload, consumed, ok, err := DecodeFrame(fr.buf)
		if err != nil {
			return nil, err
		}
		if ok {
			remaining := len(fr.buf) - consumed
			rest := make([]byte, remaining)
			copy(rest, fr.buf[consumed:])
			fr.buf = rest
			return payload, nil
		}

		chunk := make([]byte, 32*1024)
		n, readErr := fr.r.Read(chunk)
		if n > 0 {
			fr.buf = append(fr.buf, chunk[:n]...)
		}
		if readErr != nil {
			if n > 0 {
				// Give the freshly appended bytes one more decode pass
				// before surfacing the read error.
				continue
			}
			return nil, readErr
		}
	}
}
