package presets

import (
	"regexp"
	"testing"
)

func TestKnownPresetsResolve(t *testing.T) {
	for _, name := range []string{"claude", "aider", "generic"} {
		if _, ok := Pattern(name); !ok {
			t.Fatalf("preset %q should resolve", name)
		}
	}
}

func TestUnknownNamesReturnFalse(t *testing.T) {
	for _, name := range []string{"unknown", ""} {
		if _, ok := Pattern(name); ok {
			t.Fatalf("preset %q should not resolve", name)
		}
	}
}

func TestPresetPatternsAreValidRegex(t *testing.T) {
	for _, name := range []string{"claude", "aider", "generic"} {
		pattern, _ := Pattern(name)
		if _, err := regexp.Compile(pattern); err != nil {
			t.Fatalf("preset %q has invalid regex: %v", name, err)
		}
	}
}

func TestGenericMatchesCommonPrompts(t *testing.T) {
	re := regexp.MustCompile(Generic)
	for _, s := range []string{"$ ", "> ", "# ", "user@host:~$ "} {
		if !re.MatchString(s) {
			t.Fatalf("expected %q to match generic preset", s)
		}
	}
}

func TestGenericDoesNotMatchPlainText(t *testing.T) {
	re := regexp.MustCompile(Generic)
	for _, s := range []string{"hello world", "no prompt here"} {
		if re.MatchString(s) {
			t.Fatalf("expected %q not to match generic preset", s)
		}
	}
}
