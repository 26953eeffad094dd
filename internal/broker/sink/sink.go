// Package sink performs the actual I/O for deliver{sink:"clipboard"} and
// deliver{sink:"file"} requests. The dispatcher (internal/broker) never
// touches the filesystem or the system clipboard itself — it hands the
// broker loop a DeliverAction, and the loop calls these functions.
package sink

import (
	"os"

	"github.com/atotto/clipboard"

	"github.com/pithecene-io/clippy/internal/broker"
)

// DeliverClipboard writes content to the system clipboard. Metadata is
// accepted per the wire contract but unused by the clipboard sink. The
// caller maps a non-nil error to the fixed "clipboard_failed" wire code;
// the error itself is for logging only.
func DeliverClipboard(content []byte, _ broker.SinkMetadata) error {
	return clipboard.WriteAll(string(content))
}

// DeliverFile writes content to path, creating or truncating it.
// Metadata is accepted per the wire contract but unused by the file
// sink. The caller maps a non-nil error to the fixed
// "file_write_failed" wire code; the error itself is for logging only.
func DeliverFile(path string, content []byte, _ broker.SinkMetadata) error {
	return os.WriteFile(path, content, 0o644)
}
