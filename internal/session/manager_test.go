package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/hearken/internal/listening"
	"github.com/MrWong99/hearken/internal/observe"
	"github.com/MrWong99/hearken/internal/relevance"
	relevancemock "github.com/MrWong99/hearken/internal/relevance/mock"
	"github.com/MrWong99/hearken/internal/session"
	"github.com/MrWong99/hearken/internal/speaker"
	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/provider/stt"
	sttmock "github.com/MrWong99/hearken/pkg/provider/stt/mock"
	vadmock "github.com/MrWong99/hearken/pkg/provider/vad/mock"
)

func TestManager_StartStop(t *testing.T) {
	t.Parallel()

	m, reader := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Start(ctx, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.UserID() != "alice" {
		t.Errorf("UserID = %q", sess.UserID())
	}
	if got, ok := m.Get("alice"); !ok || got != sess {
		t.Error("Get did not return the started session")
	}
	if _, err := m.Start(ctx, "alice"); !errors.Is(err, session.ErrAlreadyRunning) {
		t.Errorf("second Start err = %v, want ErrAlreadyRunning", err)
	}
	if active := activeSessions(t, reader); active != 1 {
		t.Errorf("active sessions metric = %d, want 1", active)
	}

	if err := m.Stop(ctx, "alice"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok := m.Get("alice"); ok {
		t.Error("session still registered after Stop")
	}
	if _, err := sess.Ingest(ctx, audio.Chunk{Data: make([]byte, 320)}); !errors.Is(err, listening.ErrStopped) {
		t.Errorf("Ingest after Stop err = %v, want ErrStopped", err)
	}
	if err := m.Stop(ctx, "alice"); !errors.Is(err, session.ErrNotRunning) {
		t.Errorf("second Stop err = %v, want ErrNotRunning", err)
	}
	if active := activeSessions(t, reader); active != 0 {
		t.Errorf("active sessions metric = %d, want 0", active)
	}

	// A stopped user can start again.
	if _, err := m.Start(ctx, "alice"); err != nil {
		t.Fatalf("restart: %v", err)
	}
}

func TestManager_SessionsAreIndependent(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	ctx := context.Background()
	a, _ := m.Start(ctx, "alice")
	b, _ := m.Start(ctx, "bob")

	if _, err := a.Process(ctx, segment()); err != nil {
		t.Fatalf("Process alice: %v", err)
	}
	if a.Window().Appended() != 1 || b.Window().Appended() != 0 {
		t.Errorf("windows share state: alice=%d bob=%d", a.Window().Appended(), b.Window().Appended())
	}

	list := m.List()
	if len(list) != 2 || list[0].UserID != "alice" || list[1].UserID != "bob" {
		t.Errorf("List = %+v", list)
	}
}

func TestManager_UpdatePreferences(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	ctx := context.Background()
	a, _ := m.Start(ctx, "alice")

	want := listening.Settings{Preferences: relevance.Preferences{Sensitivity: 0.9}, AutoRespond: true}
	m.UpdatePreferences(want)
	if got := a.Settings(); got != want {
		t.Errorf("running session settings = %+v, want %+v", got, want)
	}

	b, _ := m.Start(ctx, "bob")
	if got := b.Settings(); got != want {
		t.Errorf("new session settings = %+v, want %+v", got, want)
	}

	only := listening.Settings{Preferences: relevance.DefaultPreferences()}
	if err := m.UpdateUserSettings("bob", only); err != nil {
		t.Fatalf("UpdateUserSettings: %v", err)
	}
	if a.Settings() != want || b.Settings() != only {
		t.Error("per-user update leaked to another session")
	}
	if err := m.UpdateUserSettings("carol", only); !errors.Is(err, session.ErrNotRunning) {
		t.Errorf("UpdateUserSettings(carol) err = %v", err)
	}
}

func TestManager_StopAll(t *testing.T) {
	t.Parallel()

	m, reader := newTestManager(t)
	ctx := context.Background()
	var sessions []*listening.Session
	for i := range 5 {
		s, err := m.Start(ctx, fmt.Sprintf("user-%d", i))
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		sessions = append(sessions, s)
	}

	if err := m.StopAll(ctx); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if m.Active() != 0 {
		t.Errorf("Active() = %d after StopAll", m.Active())
	}
	for _, s := range sessions {
		if _, err := s.Process(ctx, segment()); !errors.Is(err, listening.ErrStopped) {
			t.Errorf("%s still running: %v", s.UserID(), err)
		}
	}
	if active := activeSessions(t, reader); active != 0 {
		t.Errorf("active sessions metric = %d, want 0", active)
	}
}

func TestManager_ConcurrentStart(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Start(context.Background(), "alice"); err == nil {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if started != 1 {
		t.Errorf("%d concurrent Starts succeeded, want 1", started)
	}
}

// ── helpers ──

func newTestManager(t *testing.T) (*session.Manager, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	met, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	deps := listening.Deps{
		VAD:         &vadmock.Engine{},
		Verifier:    targetVerifier{},
		Transcriber: &sttmock.Transcriber{Result: stt.Transcript{Text: "remember the milk", Confidence: 1}},
		Relevance: relevance.NewFilter(&relevancemock.Classifier{Result: relevance.Classification{
			Category: "meaningful", Confidence: 0.9, Action: relevance.ActionProcess,
		}}, relevance.Config{}),
		Sink:    listening.SinkFunc(func(listening.Event) {}),
		Metrics: met,
	}
	m := session.NewManager(deps, listening.Config{})
	t.Cleanup(func() { _ = m.StopAll(context.Background()) })
	return m, reader
}

type targetVerifier struct{}

func (targetVerifier) Identify(_ context.Context, userID string, _ audio.Segment) speaker.Identification {
	return speaker.Identification{IsTargetUser: true, SpeakerID: userID, Confidence: 0.9, Similarity: 0.9, Threshold: 0.7}
}

func segment() audio.Segment {
	return audio.Segment{
		ID:         "seg",
		Data:       make([]byte, audio.BytesFor(2*time.Second, audio.SampleRate)),
		SampleRate: audio.SampleRate,
		Duration:   2 * time.Second,
		ArrivedAt:  time.Now(),
	}
}

func activeSessions(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, mt := range sm.Metrics {
			if mt.Name != "hearken.active_sessions" {
				continue
			}
			sum, ok := mt.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("active_sessions data = %T", mt.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}
