// Package presets holds prompt-regex patterns for common agent CLIs.
// Exact patterns are placeholders until validated against real agent
// output; a custom pattern passed to `clippy wrap --pattern` is always
// available as an escape hatch.
package presets

// Prompt-pattern presets.
const (
	// Claude is the Claude Code CLI prompt pattern. Matches a line that
	// holds only a '>', with optional whitespace on either side.
	Claude = `(?:^|\n)\s*>\s*$`

	// Aider is the Aider CLI prompt pattern, which typically looks like
	// "aider> " or embeds the repo name before the '>'.
	Aider = `(?:^|\n)[\w/.-]*>\s*$`

	// Generic is a broad shell-style prompt pattern ("$ ", "> ", "# ",
	// "% " at end of line), used as the default fallback.
	Generic = `[>$#%]\s*$`
)

// Pattern returns the regex pattern string for a named preset, and
// whether name was recognized. An unrecognized name should be treated as
// a custom regex supplied directly by the caller.
func Pattern(name string) (string, bool) {
	switch name {
	case "claude":
		return Claude, true
	case "aider":
		return Aider, true
	case "generic":
		return Generic, true
	default:
		return "", false
	}
}
