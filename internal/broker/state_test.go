package broker

import (
	"testing"

	"github.com/pithecene-io/clippy/internal/ipc/protocol"
)

func freshState() *State {
	return NewState(8, 4*1024*1024)
}

func TestAddAndRemoveConnection(t *testing.T) {
	s := freshState()
	c := NewConnectionID()
	s.AddConnection(c, protocol.RoleWrapper)
	if _, ok := s.ConnectionRole(c); !ok {
		t.Fatal("expected connection to be tracked")
	}
	s.RemoveConnection(c)
	if _, ok := s.ConnectionRole(c); ok {
		t.Fatal("expected connection to be removed")
	}
}

func TestRegisterSessionSuccess(t *testing.T) {
	s := freshState()
	c := NewConnectionID()
	if err := s.RegisterSession("s1", c, 100); err != nil {
		t.Fatalf("RegisterSession: %v", err)
	}
	if len(s.ListSessions()) != 1 {
		t.Fatalf("expected one session")
	}
}

func TestRegisterDuplicateSession(t *testing.T) {
	s := freshState()
	c := NewConnectionID()
	s.RegisterSession("s1", c, 100)
	err := s.RegisterSession("s1", c, 200)
	if err == nil || err.Error() != protocol.ErrDuplicateSession {
		t.Fatalf("err = %v, want %s", err, protocol.ErrDuplicateSession)
	}
}

func TestDeregisterSessionRemovesEntry(t *testing.T) {
	s := freshState()
	c := NewConnectionID()
	s.RegisterSession("s1", c, 100)
	s.DeregisterSession("s1")
	if len(s.ListSessions()) != 0 {
		t.Fatal("expected no sessions")
	}
}

func TestDeregisterNonexistentIsOK(t *testing.T) {
	s := freshState()
	s.DeregisterSession("nonexistent") // must not panic
}

func TestRemoveConnectionDeregistersSession(t *testing.T) {
	s := freshState()
	c := NewConnectionID()
	s.RegisterSession("s1", c, 100)
	s.RemoveConnection(c)
	if len(s.ListSessions()) != 0 {
		t.Fatal("expected session to be implicitly deregistered")
	}
}

func TestRemoveConnectionLeavesOtherSessions(t *testing.T) {
	s := freshState()
	c1, c2 := NewConnectionID(), NewConnectionID()
	s.RegisterSession("s1", c1, 100)
	s.RegisterSession("s2", c2, 200)
	s.RemoveConnection(c1)
	sessions := s.ListSessions()
	if len(sessions) != 1 || sessions[0].Session != "s2" {
		t.Fatalf("sessions = %+v", sessions)
	}
}

func TestStoreTurnSuccess(t *testing.T) {
	s := freshState()
	c := NewConnectionID()
	s.RegisterSession("s1", c, 100)
	if _, err := s.StoreTurn("s1", []byte("turn content"), false, 1000); err != nil {
		t.Fatalf("StoreTurn: %v", err)
	}
}

func TestStoreTurnSessionNotFound(t *testing.T) {
	s := freshState()
	_, err := s.StoreTurn("nonexistent", []byte("data"), false, 1000)
	if err == nil || err.Error() != protocol.ErrSessionNotFound {
		t.Fatalf("err = %v", err)
	}
}

func TestCaptureSuccess(t *testing.T) {
	s := freshState()
	c := NewConnectionID()
	s.RegisterSession("s1", c, 100)
	s.StoreTurn("s1", []byte("turn data"), false, 1000)
	result, err := s.Capture("s1")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if result.Size != 9 {
		t.Fatalf("size = %d", result.Size)
	}
	entry, ok := s.RelayBuffer()
	if !ok || string(entry.Content) != "turn data" {
		t.Fatalf("relay buffer = %+v", entry)
	}
}

func TestCaptureSessionNotFound(t *testing.T) {
	s := freshState()
	_, err := s.Capture("nonexistent")
	if err == nil || err.Error() != protocol.ErrSessionNotFound {
		t.Fatalf("err = %v", err)
	}
}

func TestCaptureNoTurn(t *testing.T) {
	s := freshState()
	c := NewConnectionID()
	s.RegisterSession("s1", c, 100)
	_, err := s.Capture("s1")
	if err == nil || err.Error() != protocol.ErrNoTurn {
		t.Fatalf("err = %v", err)
	}
}

func TestCaptureDoesNotClearSessionTurn(t *testing.T) {
	s := freshState()
	c := NewConnectionID()
	s.RegisterSession("s1", c, 100)
	s.StoreTurn("s1", []byte("turn data"), false, 1000)
	s.Capture("s1")
	turns, err := s.ListTurns("s1", 0)
	if err != nil || len(turns) != 1 {
		t.Fatalf("turns = %+v err = %v", turns, err)
	}
}

func TestCaptureOverwritesRelayBuffer(t *testing.T) {
	s := freshState()
	c := NewConnectionID()
	s.RegisterSession("s1", c, 100)
	s.StoreTurn("s1", []byte("first"), false, 1000)
	s.Capture("s1")
	s.StoreTurn("s1", []byte("second"), false, 1000)
	s.Capture("s1")
	entry, _ := s.RelayBuffer()
	if string(entry.Content) != "second" {
		t.Fatalf("content = %q", entry.Content)
	}
}

func TestPasteSuccess(t *testing.T) {
	s := freshState()
	c1, c2 := NewConnectionID(), NewConnectionID()
	s.RegisterSession("s1", c1, 100)
	s.RegisterSession("s2", c2, 200)
	s.AddConnection(c2, protocol.RoleWrapper)
	s.StoreTurn("s1", []byte("turn data"), false, 1000)
	s.Capture("s1")

	content, target, err := s.PasteContent("s2")
	if err != nil {
		t.Fatalf("PasteContent: %v", err)
	}
	if string(content) != "turn data" || target != c2 {
		t.Fatalf("content=%q target=%v", content, target)
	}
}

func TestPasteBufferEmpty(t *testing.T) {
	s := freshState()
	c := NewConnectionID()
	s.RegisterSession("s1", c, 100)
	_, _, err := s.PasteContent("s1")
	if err == nil || err.Error() != protocol.ErrBufferEmpty {
		t.Fatalf("err = %v", err)
	}
}

func TestPasteSessionNotFound(t *testing.T) {
	s := freshState()
	c := NewConnectionID()
	s.RegisterSession("s1", c, 100)
	s.StoreTurn("s1", []byte("data"), false, 1000)
	s.Capture("s1")
	_, _, err := s.PasteContent("nonexistent")
	if err == nil || err.Error() != protocol.ErrSessionNotFound {
		t.Fatalf("err = %v", err)
	}
}

func TestPasteSessionDisconnected(t *testing.T) {
	s := freshState()
	c := NewConnectionID()
	s.RegisterSession("s1", c, 100)
	s.StoreTurn("s1", []byte("turn data"), false, 1000)
	s.Capture("s1")
	// Connection was never added to s.connections (simulates a drop
	// without an explicit deregister reaching state via RemoveConnection).
	_, _, err := s.PasteContent("s1")
	if err == nil || err.Error() != protocol.ErrSessionDisconnect {
		t.Fatalf("err = %v", err)
	}
}

func TestPasteDoesNotClearRelayBuffer(t *testing.T) {
	s := freshState()
	c := NewConnectionID()
	s.RegisterSession("s1", c, 100)
	s.AddConnection(c, protocol.RoleWrapper)
	s.StoreTurn("s1", []byte("data"), false, 1000)
	s.Capture("s1")
	s.PasteContent("s1")
	if _, ok := s.RelayBuffer(); !ok {
		t.Fatal("expected relay buffer to still hold content")
	}
}

func TestListSessionsPopulated(t *testing.T) {
	s := freshState()
	c1 := NewConnectionID()
	s.RegisterSession("s1", c1, 100)
	s.StoreTurn("s1", []byte("data"), false, 1000)

	c2 := NewConnectionID()
	s.RegisterSession("s2", c2, 200)

	list := s.ListSessions()
	if len(list) != 2 {
		t.Fatalf("list = %+v", list)
	}
	byID := map[string]protocol.SessionDescriptor{}
	for _, d := range list {
		byID[d.Session] = d
	}
	if !byID["s1"].HasTurn || byID["s1"].PID != 100 {
		t.Fatalf("s1 = %+v", byID["s1"])
	}
	if byID["s2"].HasTurn || byID["s2"].PID != 200 {
		t.Fatalf("s2 = %+v", byID["s2"])
	}
}

func TestGetTurnAndCaptureByIDSplitOnColon(t *testing.T) {
	s := freshState()
	c := NewConnectionID()
	s.RegisterSession("s1", c, 100)
	s.StoreTurn("s1", []byte("hello world"), false, 5000)

	record, err := s.GetTurn("s1:1")
	if err != nil {
		t.Fatalf("GetTurn: %v", err)
	}
	if string(record.Content) != "hello world" || record.TimestampMillis != 5000 {
		t.Fatalf("record = %+v", record)
	}

	if _, err := s.GetTurn("s1:999"); err == nil || err.Error() != protocol.ErrTurnNotFound {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.GetTurn("no-colon-here"); err == nil || err.Error() != protocol.ErrTurnNotFound {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.GetTurn("unknown-session:1"); err == nil || err.Error() != protocol.ErrTurnNotFound {
		t.Fatalf("err = %v", err)
	}
}

func TestCaptureByIDCapturesNonLatestTurn(t *testing.T) {
	s := freshState()
	c := NewConnectionID()
	s.RegisterSession("s1", c, 100)
	s.StoreTurn("s1", []byte("first"), false, 1000)
	s.StoreTurn("s1", []byte("second"), false, 2000)

	result, err := s.CaptureByID("s1:1")
	if err != nil {
		t.Fatalf("CaptureByID: %v", err)
	}
	if result.Size != 5 || result.TurnID != "s1:1" {
		t.Fatalf("result = %+v", result)
	}
	entry, _ := s.RelayBuffer()
	if string(entry.Content) != "first" {
		t.Fatalf("relay content = %q, want first (not latest)", entry.Content)
	}
}

// CaptureByID and Capture must agree on what "size" means for a
// truncated turn: the bytes actually stored, not the original length.
func TestCaptureByIDSizeMatchesStoredContentWhenTruncated(t *testing.T) {
	s := NewState(8, 4)
	c := NewConnectionID()
	s.RegisterSession("s1", c, 100)
	s.StoreTurn("s1", []byte("hello world"), false, 1000)

	result, err := s.CaptureByID("s1:1")
	if err != nil {
		t.Fatalf("CaptureByID: %v", err)
	}
	if result.Size != 4 {
		t.Fatalf("Size = %d, want 4 (stored length, not original ByteLength)", result.Size)
	}
}

func TestListTurnsOrderingAndLimit(t *testing.T) {
	s := freshState()
	c := NewConnectionID()
	s.RegisterSession("s1", c, 100)
	for i := 0; i < 5; i++ {
		s.StoreTurn("s1", []byte("x"), false, 1000)
	}

	turns, err := s.ListTurns("s1", 0)
	if err != nil || len(turns) != 5 {
		t.Fatalf("turns = %+v err = %v", turns, err)
	}
	if turns[0].TurnID != "s1:5" || turns[4].TurnID != "s1:1" {
		t.Fatalf("ordering wrong: %+v", turns)
	}

	limited, err := s.ListTurns("s1", 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("limited = %+v err = %v", limited, err)
	}
}

func TestListTurnsSessionNotFound(t *testing.T) {
	s := freshState()
	_, err := s.ListTurns("nonexistent", 0)
	if err == nil || err.Error() != protocol.ErrSessionNotFound {
		t.Fatalf("err = %v", err)
	}
}
