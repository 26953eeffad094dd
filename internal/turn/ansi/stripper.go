// Package ansi strips ANSI escape sequences from a byte stream while
// preserving all other content. It exists purely for prompt detection —
// turn content recorded by the broker always retains escape sequences
// verbatim, since only the matching view needs them stripped.
package ansi

// state is an internal parser state for the stripping state machine.
type state int

const (
	stateGround state = iota
	stateEscape
	stateCsi
	stateEscapeIntermediate
	stateOsc
	stateOscEscape
)

// Stripper is a stateful ANSI escape sequence stripper. It keeps parser
// state across calls to Strip so that a sequence split across chunk
// boundaries — the common case when reading a PTY a read(2) at a time —
// is still handled correctly.
type Stripper struct {
	state state
}

// New returns a Stripper starting in the Ground state.
func New() *Stripper {
	return &Stripper{state: stateGround}
}

// Strip removes ANSI escape sequences from input, returning the visible
// text content. State persists between calls on the same Stripper.
func (s *Stripper) Strip(input []byte) []byte {
	output := make([]byte, 0, len(input))

	for _, b := range input {
		switch s.state {
		case stateGround:
			if b == 0x1B {
				s.state = stateEscape
			} else {
				output = append(output, b)
			}

		case stateEscape:
			switch {
			case b == '[':
				s.state = stateCsi
			case b == ']':
				s.state = stateOsc
			case b >= 0x20 && b <= 0x2F:
				// Intermediate byte — start of an nF escape sequence
				// (e.g. ESC ( B for charset select).
				s.state = stateEscapeIntermediate
			default:
				// Single-character escape sequence (ESC M, ESC 7, ...).
				s.state = stateGround
			}

		case stateCsi:
			// CSI: ESC [ (params 0x30-0x3F)* (intermediates 0x20-0x2F)* (final 0x40-0x7E)
			if b >= 0x40 && b <= 0x7E {
				s.state = stateGround
			}

		case stateEscapeIntermediate:
			// nF: ESC (intermediate 0x20-0x2F)+ (final 0x30-0x7E)
			if b >= 0x20 && b <= 0x2F {
				// More intermediate bytes — stay.
			} else {
				s.state = stateGround
			}

		case stateOsc:
			// OSC ends with BEL (0x07) or ST (ESC \).
			switch b {
			case 0x07:
				s.state = stateGround
			case 0x1B:
				s.state = stateOscEscape
			}

		case stateOscEscape:
			if b == '\\' {
				s.state = stateGround
			} else {
				// Malformed ST — recover rather than holding state
				// indefinitely: '[' re-enters CSI, ']' re-enters OSC,
				// and any other byte is consumed and returns to Ground.
				switch b {
				case '[':
					s.state = stateCsi
				case ']':
					s.state = stateOsc
				default:
					s.state = stateGround
				}
			}
		}
	}

	return output
}

// StripAll is a stateless convenience wrapper: it strips a complete,
// self-contained buffer with no carried-over state.
func StripAll(input []byte) []byte {
	return New().Strip(input)
}
