package client

import "fmt"

// ValidateDeliverArgs checks the cross-field constraints a deliver
// request needs before it is worth a round trip to the broker: inject
// requires a session, file requires a path, and the sink name itself
// must be one the broker recognizes.
func ValidateDeliverArgs(sink, session, path string) error {
	switch sink {
	case "clipboard":
		return nil
	case "inject":
		if session == "" {
			return fmt.Errorf("--session is required for inject sink")
		}
		return nil
	case "file":
		if path == "" {
			return fmt.Errorf("--path is required for file sink")
		}
		return nil
	default:
		return fmt.Errorf("unknown sink: %s (expected: clipboard, file, inject)", sink)
	}
}
