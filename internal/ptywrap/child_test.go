package ptywrap

import (
	"errors"
	"os/exec"
	"testing"
)

// wrap.go maps a missing executable to exit code 127 by checking
// errors.Is(err, exec.ErrNotFound) on whatever SpawnChild returns —
// this pins down that the lookup failure is actually reachable that
// way, since creack/pty performs it in this process rather than in a
// forked child.
func TestSpawnChildMissingExecutableIsExecErrNotFound(t *testing.T) {
	_, err := SpawnChild([]string{"clippy-definitely-not-a-real-binary"}, 24, 80)
	if err == nil {
		t.Fatal("expected an error spawning a nonexistent executable")
	}
	if !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("err = %v, want a chain containing exec.ErrNotFound", err)
	}
}
