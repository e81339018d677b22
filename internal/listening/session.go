package listening

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/hearken/internal/dispatch"
	"github.com/MrWong99/hearken/internal/intent"
	"github.com/MrWong99/hearken/internal/observe"
	"github.com/MrWong99/hearken/internal/profile"
	"github.com/MrWong99/hearken/internal/relevance"
	"github.com/MrWong99/hearken/internal/speaker"
	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/provider/stt"
	"github.com/MrWong99/hearken/pkg/provider/vad"
)

// Deps are the collaborators shared by every session. VAD, Verifier,
// Transcriber and Relevance are required.
type Deps struct {
	VAD         vad.Engine
	Verifier    Verifier
	Transcriber stt.Transcriber
	Relevance   Relevance

	// Learner is optional; without it no profile adaptation happens.
	Learner Learner

	// Runner carries learner submissions. Required when Learner is set.
	Runner *Runner

	// WakeWords is optional; without it only auto-respond dispatches.
	WakeWords WakeWords

	// Intent is optional; without it nothing is auto-dispatched or stored
	// on intent.
	Intent intent.Classifier

	// Commands and Memories default to the log adapters.
	Commands dispatch.CommandExecutor
	Memories dispatch.MemoryStore

	// Summariser and Counter configure the context window.
	Summariser Summariser
	Counter    TokenCounter

	// Sink receives events. Defaults to [LogSink].
	Sink Sink

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Settings are the per-user knobs that may change while a session runs.
type Settings struct {
	Preferences relevance.Preferences
	AutoRespond bool
}

// Option configures a [Session].
type Option func(*Session)

// WithSettings sets the initial settings.
func WithSettings(s Settings) Option {
	return func(sess *Session) { sess.settings.Store(&s) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is the listening pipeline of one user.
type Session struct {
	userID string
	cfg    Config
	deps   Deps
	now    func() time.Time

	state    atomic.Int32
	stopped  atomic.Bool
	settings atomic.Pointer[Settings]

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	// runMu orders segment starts against Stop so that wg.Add never races
	// wg.Wait.
	runMu sync.Mutex
	wg    sync.WaitGroup

	window *ContextWindow

	// mu guards the ingest-side state below. Ingest is sequential by
	// contract; the lock only orders it against Stop.
	mu        sync.Mutex
	converter audio.FormatConverter
	detector  vad.Detector
	preroll   *audio.RingBuffer
	acc       *audio.SegmentAccumulator
}

// NewSession returns a session in StateIdle.
func NewSession(userID string, deps Deps, cfg Config, opts ...Option) (*Session, error) {
	if userID == "" {
		return nil, errors.New("listening: user id is required")
	}
	if deps.VAD == nil || deps.Verifier == nil || deps.Transcriber == nil || deps.Relevance == nil {
		return nil, errors.New("listening: vad, verifier, transcriber and relevance are required")
	}
	if deps.Learner != nil && deps.Runner == nil {
		return nil, errors.New("listening: a learner needs a runner")
	}
	if deps.Commands == nil {
		deps.Commands = dispatch.LogExecutor{}
	}
	if deps.Memories == nil {
		deps.Memories = dispatch.LogMemory{}
	}
	if deps.Sink == nil {
		deps.Sink = LogSink{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	cfg = cfg.withDefaults()

	vcfg := cfg.VAD
	if vcfg.SampleRate == 0 {
		vcfg.SampleRate = audio.SampleRate
	}
	det, err := deps.VAD.NewDetector(vcfg)
	if err != nil {
		return nil, fmt.Errorf("listening: create vad detector: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		userID:   userID,
		cfg:      cfg,
		deps:     deps,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		detector: det,
		preroll:  audio.NewRingBuffer(audio.BytesFor(cfg.PreRoll, audio.SampleRate), audio.SampleRate),
		acc:      audio.NewSegmentAccumulator(audio.SampleRate, cfg.MaxSegment),
		window: NewContextWindow(WindowConfig{
			MaxTokens:  cfg.ContextTokens,
			MaxAge:     cfg.ContextAge,
			Counter:    deps.Counter,
			Summariser: deps.Summariser,
		}),
	}
	s.settings.Store(&Settings{Preferences: relevance.DefaultPreferences()})
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// UserID returns the session's user.
func (s *Session) UserID() string { return s.userID }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Window exposes the rolling context.
func (s *Session) Window() *ContextWindow { return s.window }

// Settings returns the current settings.
func (s *Session) Settings() Settings { return *s.settings.Load() }

// UpdateSettings replaces the settings. Segments already being processed
// keep the settings they started with.
func (s *Session) UpdateSettings(set Settings) {
	s.settings.Store(&set)
}

// Ingest feeds one chunk. It returns quickly: a completed segment is
// processed on its own goroutine and its outcome is reported as an
// [EventResult]. The returned outcome describes the chunk itself: silence,
// speech_detected, or ignored when a segment completed while the previous
// one was still processing.
func (s *Session) Ingest(_ context.Context, chunk audio.Chunk) (Outcome, error) {
	if err := s.usable(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.CompareAndSwap(int32(StateIdle), int32(StateListening)) {
		s.emit(Event{Type: EventState, Decision: StateListening.String()})
	}

	c := s.converter.Convert(chunk)
	if len(c.Data) == 0 {
		return OutcomeSilence, nil
	}
	at := c.At
	if at.IsZero() {
		at = s.now()
	}

	res, err := s.detector.Analyze(c.Data)
	if err != nil {
		s.emit(Event{Type: EventError, Stage: StageIngest, Status: StatusFailed, Data: map[string]any{"err": err.Error()}})
		return OutcomeSilence, fmt.Errorf("listening: vad: %w", err)
	}

	if res.IsSpeech && !s.acc.Active() {
		s.emitVAD(res, "speech_start", "", nil)
		pre := s.preroll.Read()
		s.acc.Start(at.Add(-audio.DurationOf(len(pre), audio.SampleRate)))
		s.acc.Append(pre)
	}
	s.preroll.Write(c.Data)

	if !s.acc.Active() {
		return OutcomeSilence, nil
	}
	s.acc.Append(c.Data)

	if !s.detector.HasSpeechEnded() && !s.acc.Full() {
		return OutcomeSpeechDetected, nil
	}

	ended := s.detector.HasSpeechEnded()
	seg, _ := s.acc.Flush()
	s.detector.Reset()
	s.preroll.Clear()

	decision := "speech_end"
	if !ended {
		decision = "max_duration"
	}
	if seg.Duration < s.cfg.MinSegment {
		s.emitVAD(res, "too_short", seg.ID, map[string]any{"duration": seg.Duration, "min": s.cfg.MinSegment})
		return OutcomeSilence, nil
	}
	s.emitVAD(res, decision, seg.ID, map[string]any{"duration": seg.Duration})
	return s.trigger(seg)
}

// emitVAD reports a speech boundary. Steady-state chunks are not reported.
func (s *Session) emitVAD(res vad.Result, decision, segID string, extra map[string]any) {
	data := map[string]any{
		"is_speech":    res.IsSpeech,
		"confidence":   res.Confidence,
		"energy_level": res.EnergyLevel,
	}
	maps.Copy(data, extra)
	s.emit(Event{
		Type:      EventStage,
		Stage:     StageIngest,
		Status:    StatusDone,
		Decision:  decision,
		SegmentID: segID,
		Data:      data,
	})
}

// trigger starts processing seg unless a segment is already in flight.
func (s *Session) trigger(seg audio.Segment) (Outcome, error) {
	ok, err := s.begin()
	if err != nil {
		return "", err
	}
	if !ok {
		s.dropBusy(seg)
		return OutcomeIgnored, nil
	}
	go func() {
		defer s.wg.Done()
		_, _ = s.execute(s.ctx, seg)
	}()
	return OutcomeSpeechDetected, nil
}

// Process runs the decision pipeline on seg synchronously. It is what
// Ingest runs in the background and lets callers with pre-segmented audio
// skip VAD. A busy session drops seg with OutcomeIgnored.
func (s *Session) Process(ctx context.Context, seg audio.Segment) (Outcome, error) {
	ok, err := s.begin()
	if err != nil {
		return "", err
	}
	if !ok {
		s.dropBusy(seg)
		return OutcomeIgnored, nil
	}
	defer s.wg.Done()
	ctx, cancel := mergeCancel(ctx, s.ctx)
	defer cancel()
	return s.execute(ctx, seg)
}

// Stop cancels in-flight processing, waits for it and clears all audio
// buffers. The result of a segment that was in flight is not reported.
// Stop is idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.runMu.Lock()
		s.stopped.Store(true)
		s.runMu.Unlock()
		s.cancel()
		s.wg.Wait()

		s.mu.Lock()
		s.acc.Clear()
		s.preroll.Clear()
		s.detector.Reset()
		s.mu.Unlock()
		s.window.Reset()
	})
}

func (s *Session) usable() error {
	if s.State() == StateError {
		return ErrSessionFailed
	}
	if s.stopped.Load() {
		return ErrStopped
	}
	return nil
}

// begin claims the session for one segment. On success the caller owns a
// wg slot and must release it when processing ends.
func (s *Session) begin() (bool, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if err := s.usable(); err != nil {
		return false, err
	}
	ok := s.state.CompareAndSwap(int32(StateListening), int32(StateProcessing)) ||
		s.state.CompareAndSwap(int32(StateIdle), int32(StateProcessing))
	if ok {
		s.wg.Add(1)
	}
	return ok, nil
}

func (s *Session) dropBusy(seg audio.Segment) {
	s.emit(Event{
		Type:      EventResult,
		Stage:     StageSegment,
		Status:    StatusSkipped,
		Decision:  string(OutcomeIgnored),
		SegmentID: seg.ID,
		Data:      map[string]any{"reason": "busy"},
	})
	s.deps.Metrics.RecordOutcome(context.Background(), string(OutcomeIgnored))
}

// execute runs process with panic recovery. The session must already be in
// StateProcessing.
func (s *Session) execute(ctx context.Context, seg audio.Segment) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.fail(seg.ID, fmt.Errorf("panic: %v", r))
			out, err = OutcomeIgnored, ErrSessionFailed
			return
		}
		s.state.CompareAndSwap(int32(StateProcessing), int32(StateListening))
	}()

	out, err = s.process(ctx, seg)
	if err != nil {
		s.fail(seg.ID, err)
		return OutcomeIgnored, ErrSessionFailed
	}
	return out, nil
}

// fail moves the session into StateError for good.
func (s *Session) fail(segID string, err error) {
	s.state.Store(int32(StateError))
	slog.Error("listening: session failed", "user_id", s.userID, "segment_id", segID, "err", err)
	s.emit(Event{Type: EventError, SegmentID: segID, Status: StatusFailed, Data: map[string]any{"err": err.Error()}})
	s.emit(Event{Type: EventState, SegmentID: segID, Decision: StateError.String()})
}

// process runs the per-segment pipeline. A returned error is an invariant
// break; collaborator failures are folded into the outcome.
func (s *Session) process(ctx context.Context, seg audio.Segment) (Outcome, error) {
	ctx, span := observe.StartSegmentSpan(ctx, s.userID, seg.ID)
	defer span.End()

	start := s.now()
	set := s.Settings()
	out, reason, err := s.decide(ctx, seg, set)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("outcome", string(out)))

	if ctx.Err() != nil || s.stopped.Load() {
		// Stopped mid-flight: the result is suppressed.
		return OutcomeIgnored, nil
	}
	s.deps.Metrics.RecordStage(ctx, string(StageSegment), s.now().Sub(start))
	s.deps.Metrics.RecordOutcome(ctx, string(out))
	s.emit(Event{
		Type:      EventResult,
		Stage:     StageSegment,
		Status:    StatusDone,
		Duration:  s.now().Sub(start),
		Decision:  string(out),
		SegmentID: seg.ID,
		Data:      reason,
	})
	return out, nil
}

func (s *Session) decide(ctx context.Context, seg audio.Segment, set Settings) (Outcome, map[string]any, error) {
	// 1. Verify and transcribe in parallel.
	var (
		id    speaker.Identification
		tr    stt.Transcript
		trErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		vctx, done := s.track(ctx, StageVerify, seg.ID)
		vctx, cancel := context.WithTimeout(vctx, s.cfg.VerifyTimeout)
		defer cancel()
		id = s.deps.Verifier.Identify(vctx, s.userID, seg)
		done(StatusDone, id.SpeakerID, map[string]any{
			"similarity": id.Similarity,
			"threshold":  id.Threshold,
			"fail_open":  id.FailOpen,
		})
		return nil
	})
	g.Go(func() error {
		tctx, done := s.track(ctx, StageTranscribe, seg.ID)
		tctx, cancel := context.WithTimeout(tctx, s.cfg.TranscribeTimeout)
		defer cancel()
		tr, trErr = s.deps.Transcriber.Transcribe(tctx, seg)
		if trErr != nil {
			done(StatusFailed, "", map[string]any{"err": trErr.Error()})
			return nil
		}
		done(StatusDone, "", map[string]any{
			"text":       tr.Text,
			"language":   tr.Language,
			"confidence": tr.Confidence,
		})
		return nil
	})
	_ = g.Wait()
	if ctx.Err() != nil {
		return OutcomeIgnored, nil, nil
	}

	// 2. Learn from any real comparison, whoever spoke.
	s.submit(seg, id)

	// 3. Abort on another voice.
	if !id.IsTargetUser {
		out := OutcomeSpeakerUnknown
		if id.SpeakerID == speaker.OtherSpeaker || id.Similarity < s.cfg.NegativeThreshold {
			out = OutcomeSpeakerOther
		}
		return out, map[string]any{"reason": id.Reason, "similarity": id.Similarity}, nil
	}

	// 4. Transcript.
	if trErr != nil {
		s.deps.Metrics.RecordProviderError(ctx, "stt", "transcribe")
		s.emit(Event{Type: EventError, Stage: StageTranscribe, Status: StatusFailed, SegmentID: seg.ID,
			Data: map[string]any{"err": trErr.Error()}})
		return OutcomeIgnored, map[string]any{"reason": "transcription failed"}, nil
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return OutcomeIgnored, map[string]any{"reason": "empty transcript"}, nil
	}

	// 5. Context window. The relevance history excludes the new text.
	now := seg.ArrivedAt
	if now.IsZero() {
		now = s.now()
	}
	rc := s.relevanceContext(now, id)
	wctx, done := s.track(ctx, StageContext, seg.ID)
	wctx, cancel := context.WithTimeout(wctx, s.cfg.SummariseTimeout)
	err := s.window.Append(wctx, text, now)
	cancel()
	if err != nil {
		observe.Logger(ctx).Warn("listening: context summary failed, kept verbatim", "err", err)
		done(StatusFailed, "", map[string]any{"err": err.Error()})
	} else {
		done(StatusDone, "", map[string]any{"tokens": s.window.Tokens()})
	}

	// 6. Relevance.
	rctx, done := s.track(ctx, StageRelevance, seg.ID)
	rctx, cancel = context.WithTimeout(rctx, s.cfg.RelevanceTimeout)
	rel := s.deps.Relevance.Evaluate(rctx, text, rc, set.Preferences)
	cancel()
	done(StatusDone, string(rel.Action), map[string]any{
		"category":   rel.Category,
		"confidence": rel.Confidence,
		"stage":      rel.Stage,
		"fallback":   rel.Fallback,
	})
	if ctx.Err() != nil {
		return OutcomeIgnored, nil, nil
	}

	data := map[string]any{"text": text, "category": rel.Category}
	switch rel.Action {
	case relevance.ActionDiscard:
		data["reason"] = "noise"
		return OutcomeIgnored, data, nil
	case relevance.ActionStoreMinimal:
		if err := s.remember(ctx, seg, text, dispatch.MemoryMinimal, 0); err != nil {
			data["reason"] = "memory store failed"
			return OutcomeIgnored, data, nil
		}
		return OutcomeMemoryStored, data, nil
	case relevance.ActionAskUser:
		data["ask"] = true
		return OutcomeTranscript, data, nil
	case relevance.ActionProcess:
	default:
		return "", nil, fmt.Errorf("listening: relevance returned unknown action %q", rel.Action)
	}

	// 7. Wake word, then intent.
	if s.deps.WakeWords != nil {
		_, done := s.track(ctx, StageWakeWord, seg.ID)
		m := s.deps.WakeWords.Detect(text)
		if m.Found {
			done(StatusDone, "found", map[string]any{"phrase": m.Phrase, "phonetic": m.Phonetic})
			if err := s.command(ctx, seg, m.Remainder, dispatch.SourceWakeWord); err != nil {
				data["reason"] = "command failed"
				return OutcomeIgnored, data, nil
			}
			data["command"] = m.Remainder
			return OutcomeCommand, data, nil
		}
		done(StatusDone, "absent", nil)
	}

	if s.deps.Intent == nil {
		return OutcomeTranscript, data, nil
	}
	ictx, done := s.track(ctx, StageIntent, seg.ID)
	ictx, cancel = context.WithTimeout(ictx, s.cfg.IntentTimeout)
	in, err := s.deps.Intent.Classify(ictx, text, s.window.Summary())
	cancel()
	if err != nil {
		done(StatusFailed, "", map[string]any{"err": err.Error()})
		s.deps.Metrics.RecordProviderError(ctx, "llm", "intent")
		s.emit(Event{Type: EventError, Stage: StageIntent, Status: StatusFailed, SegmentID: seg.ID,
			Data: map[string]any{"err": err.Error()}})
		data["reason"] = "intent classification failed"
		return OutcomeIgnored, data, nil
	}
	done(StatusDone, string(in.Kind), map[string]any{"confidence": in.Confidence, "importance": in.Importance})
	data["intent"] = in.Kind

	switch {
	case set.AutoRespond && in.Kind == intent.KindQuestion && in.Confidence >= s.cfg.QuestionThreshold:
		if err := s.command(ctx, seg, text, dispatch.SourceAutoRespond); err != nil {
			data["reason"] = "command failed"
			return OutcomeIgnored, data, nil
		}
		if err := s.remember(ctx, seg, text, dispatch.MemoryFull, in.Importance); err != nil {
			data["memory_error"] = err.Error()
		} else {
			data["memory"] = true
		}
		return OutcomeCommand, data, nil
	case in.Kind == intent.KindStore && in.Importance >= s.cfg.ImportanceThreshold:
		if err := s.remember(ctx, seg, text, dispatch.MemoryFull, in.Importance); err != nil {
			data["reason"] = "memory store failed"
			return OutcomeIgnored, data, nil
		}
		return OutcomeMemoryStored, data, nil
	default:
		// Relevant but not actionable: kept in the context window, not dropped.
		return OutcomeTranscript, data, nil
	}
}

// submit hands the voice sample to the learner on the runner. Fail-open
// verdicts carry no embedding, and contrastively overturned matches are
// left alone.
func (s *Session) submit(seg audio.Segment, id speaker.Identification) {
	if s.deps.Learner == nil || id.FailOpen || len(id.Embedding) == 0 {
		return
	}
	if id.SpeakerID == speaker.OtherSpeaker && id.Similarity >= s.cfg.NegativeThreshold {
		return
	}
	sub := profile.Submission{
		UserID:     s.userID,
		Embedding:  id.Embedding,
		Similarity: id.Similarity,
		Segment:    seg,
	}
	learner, metrics := s.deps.Learner, s.deps.Metrics
	s.deps.Runner.Go("learner", func(ctx context.Context) error {
		start := time.Now()
		d, err := learner.Evaluate(ctx, sub)
		if err != nil {
			return fmt.Errorf("learner evaluate %s: %w", seg.ID, err)
		}
		metrics.RecordLearnerDecision(ctx, string(d.Outcome))
		if !s.stopped.Load() {
			s.emit(Event{
				Type:      EventLearner,
				Stage:     StageLearn,
				Status:    StatusDone,
				Duration:  time.Since(start),
				Decision:  string(d.Outcome),
				SegmentID: seg.ID,
				Data:      map[string]any{"reason": d.Reason, "frozen": d.Frozen},
			})
		}
		return nil
	})
}

func (s *Session) relevanceContext(now time.Time, id speaker.Identification) relevance.Context {
	rc := relevance.Context{
		Now:                  now,
		History:              s.window.History(),
		Summary:              s.window.Summary(),
		ChunkCount:           s.window.Appended(),
		SpeakerConfidence:    id.Confidence,
		HasSpeakerConfidence: !id.FailOpen,
	}
	if last, ok := s.window.Last(); ok {
		rc.PreviousText = last.Text
		rc.Elapsed = now.Sub(last.At)
		rc.IsContinuation = rc.Elapsed <= s.cfg.ContinuationGap
	}
	return rc
}

func (s *Session) command(ctx context.Context, seg audio.Segment, text string, src dispatch.Source) error {
	ctx, done := s.track(ctx, StageDispatch, seg.ID)
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	defer cancel()

	res, err := s.deps.Commands.Execute(ctx, dispatch.Command{
		UserID:    s.userID,
		SegmentID: seg.ID,
		Text:      text,
		Summary:   s.window.Summary(),
		Source:    src,
		At:        s.now(),
	})
	if err != nil {
		s.deps.Metrics.RecordCommand(ctx, string(src), "error")
		done(StatusFailed, "command", map[string]any{"err": err.Error()})
		s.emit(Event{Type: EventError, Stage: StageDispatch, Status: StatusFailed, SegmentID: seg.ID,
			Data: map[string]any{"err": err.Error()}})
		return err
	}
	s.deps.Metrics.RecordCommand(ctx, string(src), "ok")
	done(StatusDone, "command", map[string]any{"source": src, "output": res.Output})
	return nil
}

func (s *Session) remember(ctx context.Context, seg audio.Segment, text string, kind dispatch.MemoryKind, importance float64) error {
	ctx, done := s.track(ctx, StageDispatch, seg.ID)
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	defer cancel()

	err := s.deps.Memories.Store(ctx, dispatch.Memory{
		UserID:     s.userID,
		SegmentID:  seg.ID,
		Text:       text,
		Summary:    s.window.Summary(),
		Kind:       kind,
		Importance: importance,
		At:         s.now(),
	})
	if err != nil {
		done(StatusFailed, "memory", map[string]any{"err": err.Error()})
		s.emit(Event{Type: EventError, Stage: StageDispatch, Status: StatusFailed, SegmentID: seg.ID,
			Data: map[string]any{"err": err.Error()}})
		return err
	}
	done(StatusDone, "memory", map[string]any{"kind": kind})
	return nil
}

// track opens a span for stage and returns a function that closes it,
// records the stage latency and emits the stage event.
func (s *Session) track(ctx context.Context, stage Stage, segID string) (context.Context, func(Status, string, map[string]any)) {
	ctx, span := observe.StartSpan(ctx, "listening."+string(stage))
	start := s.now()
	return ctx, func(status Status, decision string, data map[string]any) {
		d := s.now().Sub(start)
		span.SetAttributes(attribute.String("status", string(status)))
		span.End()
		s.deps.Metrics.RecordStage(ctx, string(stage), d)
		s.emit(Event{
			Type:      EventStage,
			Stage:     stage,
			Status:    status,
			Duration:  d,
			Decision:  decision,
			SegmentID: segID,
			Data:      data,
		})
	}
}

func (s *Session) emit(e Event) {
	e.UserID = s.userID
	if e.Name == "" {
		e.Name = traceName(e)
	}
	if e.At.IsZero() {
		e.At = s.now()
	}
	s.deps.Sink.Emit(e)
}

// mergeCancel returns a context that is cancelled when either parent is.
// Values and deadline come from a.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
