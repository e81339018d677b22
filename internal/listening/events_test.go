package listening

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestFanOut(t *testing.T) {
	t.Parallel()

	f := NewFanOut()
	a, unsubA := f.Subscribe(4)
	b, unsubB := f.Subscribe(1)
	if f.Subscribers() != 2 {
		t.Fatalf("Subscribers() = %d, want 2", f.Subscribers())
	}

	f.Emit(Event{Type: EventState, Decision: "listening"})
	f.Emit(Event{Type: EventResult, Decision: "transcript"})

	if got := len(a); got != 2 {
		t.Errorf("subscriber a buffered %d events, want 2", got)
	}
	// b has room for one event; the second is dropped.
	if got := len(b); got != 1 {
		t.Errorf("subscriber b buffered %d events, want 1", got)
	}
	if e := <-b; e.Decision != "listening" {
		t.Errorf("b got %+v", e)
	}

	unsubB()
	unsubB()
	if _, ok := <-b; ok {
		t.Error("b should be closed after unsubscribe")
	}
	if f.Subscribers() != 1 {
		t.Errorf("Subscribers() = %d, want 1", f.Subscribers())
	}

	unsubA()
	f.Emit(Event{Type: EventError})
	n := 0
	for range a {
		n++
	}
	if n != 2 {
		t.Errorf("a drained %d events, want 2", n)
	}
}

func TestUserFanOut(t *testing.T) {
	t.Parallel()

	u := NewUserFanOut()
	alice, unsubAlice := u.Subscribe("alice", 1)
	bob, unsubBob := u.Subscribe("bob", 1)

	u.Emit(Event{UserID: "alice", Decision: "a1"})
	u.Emit(Event{UserID: "alice", Decision: "a2"})
	u.Emit(Event{UserID: "bob", Decision: "b1"})
	u.Emit(Event{UserID: "carol", Decision: "c1"})

	if got := len(alice); got != 1 {
		t.Errorf("alice buffered %d events, want 1", got)
	}
	if e := <-alice; e.Decision != "a1" {
		t.Errorf("alice got %+v", e)
	}
	// alice's overflow leaves bob's buffer untouched.
	if got := len(bob); got != 1 {
		t.Fatalf("bob buffered %d events, want 1", got)
	}
	if e := <-bob; e.Decision != "b1" {
		t.Errorf("bob got %+v", e)
	}

	unsubAlice()
	unsubAlice()
	if u.Subscribers("alice") != 0 {
		t.Errorf("Subscribers(alice) = %d, want 0", u.Subscribers("alice"))
	}
	if _, ok := <-alice; ok {
		t.Error("alice should be closed after unsubscribe")
	}
	if u.Subscribers("bob") != 1 {
		t.Errorf("Subscribers(bob) = %d, want 1", u.Subscribers("bob"))
	}
	u.Emit(Event{UserID: "alice", Decision: "a3"})

	unsubBob()
	if _, ok := <-bob; ok {
		t.Error("bob should be closed after unsubscribe")
	}
}

func TestMultiSinkAndSinkFunc(t *testing.T) {
	t.Parallel()

	var got []EventType
	sink := MultiSink{
		SinkFunc(func(e Event) { got = append(got, e.Type) }),
		SinkFunc(func(e Event) { got = append(got, e.Type) }),
	}
	sink.Emit(Event{Type: EventStage})
	if len(got) != 2 {
		t.Errorf("got %v, want two deliveries", got)
	}
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := LogSink{Logger: slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	sink.Emit(Event{Type: EventError, UserID: "u1", Stage: StageTranscribe, Status: StatusFailed})

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if rec["level"] != "WARN" || rec["user_id"] != "u1" {
		t.Errorf("log record = %v", rec)
	}
	if !strings.Contains(buf.String(), string(StageTranscribe)) {
		t.Errorf("stage missing from %s", buf.String())
	}
}

func TestTraceName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ev   Event
		want TraceName
	}{
		{"vad boundary", Event{Type: EventStage, Stage: StageIngest, Decision: "speech_start"}, TraceVAD},
		{"verify", Event{Type: EventStage, Stage: StageVerify, Status: StatusDone}, TraceSpeaker},
		{"transcribe", Event{Type: EventStage, Stage: StageTranscribe, Status: StatusDone}, TraceTranscript},
		{"relevance", Event{Type: EventStage, Stage: StageRelevance, Status: StatusDone}, TraceNoiseFilter},
		{"command sent", Event{Type: EventStage, Stage: StageDispatch, Status: StatusDone, Decision: "command"}, TraceCommand},
		{"memory written", Event{Type: EventStage, Stage: StageDispatch, Status: StatusDone, Decision: "memory"}, TraceMemory},
		{"failed dispatch", Event{Type: EventStage, Stage: StageDispatch, Status: StatusFailed, Decision: "memory"}, ""},
		{"error", Event{Type: EventError, Stage: StageIntent}, TraceError},
		{"context window", Event{Type: EventStage, Stage: StageContext}, ""},
		{"result", Event{Type: EventResult, Stage: StageSegment}, ""},
	}
	for _, tc := range tests {
		if got := traceName(tc.ev); got != tc.want {
			t.Errorf("%s: traceName = %q, want %q", tc.name, got, tc.want)
		}
	}
}
