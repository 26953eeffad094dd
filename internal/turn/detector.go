// Package turn implements prompt-pattern turn detection: consuming
// agent output byte-by-byte, matching prompt lines after ANSI stripping,
// and emitting events at turn boundaries.
package turn

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pithecene-io/clippy/internal/turn/ansi"
	"github.com/pithecene-io/clippy/internal/turn/presets"
)

// ErrMultiLinePattern is returned when a prompt pattern contains a
// literal newline — multi-line patterns aren't supported.
var ErrMultiLinePattern = errors.New("turn: prompt pattern contains literal newline")

// Turn is a completed turn — the agent output between user input and the
// next prompt.
type Turn struct {
	// Content is the raw bytes of the turn, ANSI sequences preserved.
	Content []byte
	// Interrupted is true if the user interrupted the agent (e.g. Ctrl+C)
	// during this turn.
	Interrupted bool
	// TimestampMillis is the Unix epoch time, in milliseconds, at which
	// the turn was detected. Only ever 0 before a turn has been
	// recorded — a Turn returned from an event always carries a
	// nonzero timestamp.
	TimestampMillis int64
}

// EventKind distinguishes the two events the detector can emit.
type EventKind int

const (
	// EventSessionReady fires when the agent's first prompt is seen —
	// the session is now ready for user input. No turn accompanies it.
	EventSessionReady EventKind = iota
	// EventTurnCompleted fires when a turn boundary is found; Turn holds
	// the completed turn.
	EventTurnCompleted
)

// Event is one event produced by feeding output to a Detector.
type Event struct {
	Kind EventKind
	Turn Turn
}

type detectorState int

const (
	stateAwaitingFirstPrompt detectorState = iota
	stateAwaitingUserInput
	stateAccumulatingOutput
)

// Detector is a prompt-pattern turn detector.
//
// Feed agent output via FeedOutput and user input notifications via
// NotifyUserInput. The detector emits Events when turn boundaries are
// found.
//
// Contract:
//   - Prompt matching is per-line, after ANSI stripping.
//   - First prompt -> EventSessionReady (no turn).
//   - Consecutive prompts without output -> no empty turns.
//   - Interrupted turns are marked.
//   - ANSI sequences are preserved in turn content.
type Detector struct {
	pattern  *regexp.Regexp
	state    detectorState
	stripper *ansi.Stripper

	lineBuf    []byte // accumulates the current line (ANSI-stripped) for matching
	contentBuf []byte // accumulates raw bytes for the current turn
	rawLineBuf []byte // accumulates raw bytes for the current (possibly partial) line

	interrupted bool
}

// NewDetector creates a Detector for the given prompt pattern.
//
// If pattern matches a known preset name, the preset regex is used.
// Otherwise pattern is compiled as a custom regex. Returns an error if
// the pattern contains a literal newline or is not a valid regex.
func NewDetector(pattern string) (*Detector, error) {
	patternStr := pattern
	if preset, ok := presets.Pattern(pattern); ok {
		patternStr = preset
	}

	if strings.Contains(patternStr, "\n") {
		return nil, ErrMultiLinePattern
	}

	re, err := regexp.Compile(patternStr)
	if err != nil {
		return nil, fmt.Errorf("turn: invalid regex pattern: %w", err)
	}

	return &Detector{
		pattern:  re,
		state:    stateAwaitingFirstPrompt,
		stripper: ansi.New(),
	}, nil
}

// FeedOutput feeds agent output bytes to the detector.
//
// Output is processed byte-by-byte: lines are assembled and checked
// against the prompt pattern after ANSI stripping. Echoed user input is
// not excluded: whatever the PTY master produces, echo included, is
// treated as output.
func (d *Detector) FeedOutput(data []byte) []Event {
	var events []Event

	for _, b := range data {
		d.rawLineBuf = append(d.rawLineBuf, b)

		stripped := d.stripper.Strip([]byte{b})
		d.lineBuf = append(d.lineBuf, stripped...)

		if b == '\n' {
			d.processLine(&events)
		}
	}

	return events
}

// NotifyUserInput tells the detector that the user has submitted input.
//
// Transitions from AwaitingUserInput to AccumulatingOutput. No-op in
// other states.
func (d *Detector) NotifyUserInput() {
	if d.state == stateAwaitingUserInput {
		d.state = stateAccumulatingOutput
		d.contentBuf = nil
		d.interrupted = false
	}
}

// NotifyInterrupt tells the detector the user interrupted the agent.
//
// Sets the interrupted flag on the current turn. Only meaningful in
// AccumulatingOutput state.
func (d *Detector) NotifyInterrupt() {
	if d.state == stateAccumulatingOutput {
		d.interrupted = true
	}
}

// FlushLine checks a partial (unterminated) line for a prompt match.
//
// Some agents emit a prompt with no trailing newline. The PTY wrapper
// should call this after an idle read timeout to detect such prompts.
func (d *Detector) FlushLine() []Event {
	if len(d.lineBuf) == 0 {
		return nil
	}
	var events []Event
	d.processLine(&events)
	return events
}

func (d *Detector) processLine(events *[]Event) {
	line := d.lineBuf
	trimmed := line
	if n := len(line); n > 0 && line[n-1] == '\n' {
		end := n - 1
		if end > 0 && line[end-1] == '\r' {
			trimmed = line[:end-1]
		} else {
			trimmed = line[:end]
		}
	}

	isPrompt := d.pattern.Match(trimmed)

	if isPrompt {
		switch d.state {
		case stateAwaitingFirstPrompt:
			*events = append(*events, Event{Kind: EventSessionReady})
			d.state = stateAwaitingUserInput

		case stateAwaitingUserInput:
			// Consecutive prompt without intervening output — no empty
			// turn produced.

		case stateAccumulatingOutput:
			content := d.contentBuf
			d.contentBuf = nil

			if len(content) > 0 {
				*events = append(*events, Event{
					Kind: EventTurnCompleted,
					Turn: Turn{
						Content:         content,
						Interrupted:     d.interrupted,
						TimestampMillis: nowMillis(),
					},
				})
			}
			d.interrupted = false
			d.state = stateAwaitingUserInput
		}
	} else if d.state == stateAccumulatingOutput {
		d.contentBuf = append(d.contentBuf, d.rawLineBuf...)
	}

	d.lineBuf = d.lineBuf[:0]
	d.rawLineBuf = d.rawLineBuf[:0]
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
