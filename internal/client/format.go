package client

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/pithecene-io/clippy/internal/ipc/protocol"
)

// PrintSessions writes session descriptors as a table to w.
func PrintSessions(w io.Writer, sessions []protocol.SessionDescriptor) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no active sessions")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tPID\tHAS_TURN")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Session, s.PID, yesNo(s.HasTurn))
	}
	tw.Flush()
}

// PrintTurns writes turn descriptors as a table to w.
func PrintTurns(w io.Writer, turns []protocol.TurnDescriptor) {
	if len(turns) == 0 {
		fmt.Fprintln(w, "no turns in history")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TURN_ID\tSIZE\tTIMESTAMP\tFLAGS")
	for _, t := range turns {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", t.TurnID, humanize.Bytes(uint64(t.ByteLength)), t.Timestamp, FormatFlags(t.Interrupted, t.Truncated))
	}
	tw.Flush()
}

// PrintTurn writes a turn's metadata and content. Metadata goes to
// stderr and raw content to stdout, so a pipeline like
// "clippy client get-turn s1:5 | less" sees only the content. With
// metadataOnly, everything goes to stdout and the content is omitted.
func PrintTurn(t Turn, metadataOnly bool) error {
	flags := FormatFlags(t.Interrupted, t.Truncated)

	meta := os.Stdout
	if !metadataOnly {
		meta = os.Stderr
	}
	fmt.Fprintf(meta, "Turn:      %s\n", t.TurnID)
	fmt.Fprintf(meta, "Size:      %s\n", humanize.Bytes(uint64(t.ByteLength)))
	fmt.Fprintf(meta, "Timestamp: %d\n", t.Timestamp)
	fmt.Fprintf(meta, "Flags:     %s\n", flags)

	if metadataOnly {
		return nil
	}
	fmt.Fprintln(os.Stderr, "---")
	_, err := os.Stdout.Write(t.Content)
	return err
}

// PrintCapture reports a capture or capture-by-id result.
func PrintCapture(w io.Writer, result CaptureResult) {
	fmt.Fprintf(w, "captured %s (%s)\n", result.TurnID, humanize.Bytes(result.Size))
}

// PrintPaste reports a successful paste.
func PrintPaste(w io.Writer, session string) {
	fmt.Fprintf(w, "pasted to session %s\n", session)
}

// PrintDeliver reports a successful deliver.
func PrintDeliver(w io.Writer, sink string) {
	fmt.Fprintf(w, "delivered to %s sink\n", sink)
}

// FormatFlags joins the flag names set on a turn, or "-" if neither is
// set.
func FormatFlags(interrupted, truncated bool) string {
	var flags []string
	if interrupted {
		flags = append(flags, "interrupted")
	}
	if truncated {
		flags = append(flags, "truncated")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
