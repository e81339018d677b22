package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/hearken/internal/health"
	"github.com/MrWong99/hearken/internal/listening"
	"github.com/MrWong99/hearken/internal/observe"
	"github.com/MrWong99/hearken/internal/session"
	"github.com/MrWong99/hearken/pkg/audio"
)

const (
	// maxChunkBytes bounds one binary websocket message: one second of
	// 48 kHz stereo PCM16.
	maxChunkBytes = 48000 * 2 * 2

	// eventBuffer is the per-connection event backlog. A client that falls
	// further behind loses events.
	eventBuffer = 64
)

// Handler returns the ops and ingest routes, instrumented by
// [observe.Middleware]:
//
//	GET /healthz             liveness
//	GET /readyz              readiness (postgres, embedding service, breakers)
//	GET /metrics             Prometheus scrape
//	GET /v1/sessions         running sessions as JSON
//	GET /v1/listen/{user}    websocket: binary PCM16 in, JSON events out
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	health.New(a.checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/sessions", a.listSessions)
	mux.HandleFunc("GET /v1/listen/{user}", a.listen)
	return observe.Middleware(a.metrics)(mux)
}

type sessionInfo struct {
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
	State     string    `json:"state"`
}

func (a *App) listSessions(w http.ResponseWriter, _ *http.Request) {
	list := a.manager.List()
	out := make([]sessionInfo, len(list))
	for i, s := range list {
		out[i] = sessionInfo{UserID: s.UserID, StartedAt: s.StartedAt, State: s.State.String()}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		slog.Warn("encode sessions", "err", err)
	}
}

// settingsMessage is the text frame a client sends to change its own
// filter preferences. Absent fields keep their current value.
type settingsMessage struct {
	Sensitivity      *float64 `json:"sensitivity"`
	FilterMedia      *bool    `json:"filter_media"`
	FilterSelfTalk   *bool    `json:"filter_self_talk"`
	FilterThirdParty *bool    `json:"filter_third_party"`
	FilterBackground *bool    `json:"filter_background"`
	AskOnUncertain   *bool    `json:"ask_on_uncertain"`
	AutoRespond      *bool    `json:"auto_respond"`
}

func (m settingsMessage) apply(s listening.Settings) (listening.Settings, error) {
	if v := m.Sensitivity; v != nil {
		if *v < 0 || *v > 1 {
			return s, fmt.Errorf("sensitivity %.2f is out of range [0, 1]", *v)
		}
		s.Preferences.Sensitivity = *v
	}
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&s.Preferences.FilterMedia, m.FilterMedia)
	set(&s.Preferences.FilterSelfTalk, m.FilterSelfTalk)
	set(&s.Preferences.FilterThirdParty, m.FilterThirdParty)
	set(&s.Preferences.FilterBackground, m.FilterBackground)
	set(&s.Preferences.AskOnUncertain, m.AskOnUncertain)
	set(&s.AutoRespond, m.AutoRespond)
	return s, nil
}

// listen runs one user's session for the lifetime of a websocket. Query
// parameters sample_rate and channels describe the incoming PCM.
func (a *App) listen(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")
	rate, channels, err := streamFormat(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := a.manager.Start(r.Context(), userID)
	switch {
	case errors.Is(err, session.ErrAlreadyRunning):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := a.manager.Stop(context.WithoutCancel(r.Context()), userID); err != nil {
			slog.Debug("session already stopped", "user_id", userID, "err", err)
		}
	}()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("websocket accept failed", "user_id", userID, "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxChunkBytes)

	events, unsubscribe := a.events.Subscribe(userID, eventBuffer)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		defer cancel()
		return a.readStream(ctx, conn, sess, rate, channels)
	})
	g.Go(func() error {
		return writeEvents(ctx, conn, events)
	})

	if err := g.Wait(); err != nil {
		observe.Logger(r.Context()).Warn("listen stream ended with error", "user_id", userID, "err", err)
		conn.Close(websocket.StatusInternalError, truncate(err.Error(), 120))
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// readStream feeds binary frames to the session and applies text frames as
// settings changes. It returns nil when the client closes normally.
func (a *App) readStream(ctx context.Context, conn *websocket.Conn, sess *listening.Session, rate, channels int) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch typ {
		case websocket.MessageBinary:
			chunk := audio.Chunk{Data: data, SampleRate: rate, Channels: channels, At: time.Now()}
			if _, err := sess.Ingest(ctx, chunk); err != nil {
				return err
			}
		case websocket.MessageText:
			var msg settingsMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				slog.Warn("ignoring malformed settings message", "user_id", sess.UserID(), "err", err)
				continue
			}
			next, err := msg.apply(sess.Settings())
			if err != nil {
				slog.Warn("ignoring invalid settings message", "user_id", sess.UserID(), "err", err)
				continue
			}
			if err := a.manager.UpdateUserSettings(sess.UserID(), next); err != nil {
				return err
			}
		}
	}
}

// writeEvents forwards the user's events until ctx ends.
func writeEvents(ctx context.Context, conn *websocket.Conn, events <-chan listening.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("write event: %w", err)
			}
		}
	}
}

func streamFormat(r *http.Request) (rate, channels int, err error) {
	q := r.URL.Query()
	rate, channels = audio.SampleRate, 1
	if v := q.Get("sample_rate"); v != "" {
		if rate, err = strconv.Atoi(v); err != nil || rate < 8000 || rate > 48000 {
			return 0, 0, fmt.Errorf("sample_rate %q must be an integer in [8000, 48000]", v)
		}
	}
	if v := q.Get("channels"); v != "" {
		if channels, err = strconv.Atoi(v); err != nil || channels < 1 || channels > 2 {
			return 0, 0, fmt.Errorf("channels %q must be 1 or 2", v)
		}
	}
	return rate, channels, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
