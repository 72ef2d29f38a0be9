package trakt

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

// scrobbleRecorder captures the /scrobble/{action} sequence a test run
// produced while answering every report with a success.
type scrobbleRecorder struct {
	mu      sync.Mutex
	actions []string
}

func (r *scrobbleRecorder) transport() roundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		action := strings.TrimPrefix(req.URL.Path, "/scrobble/")
		r.mu.Lock()
		r.actions = append(r.actions, action)
		r.mu.Unlock()
		body := fmt.Sprintf(`{"id":1,"action":%q,"progress":1,"movie":{"title":"Heat","year":1995,"ids":{"trakt":77}}}`, action)
		return jsonResponse(http.StatusCreated, body), nil
	}
}

func (r *scrobbleRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.actions...)
}

func assertActions(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected actions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected actions %v, got %v", want, got)
		}
	}
}

func TestEngineLifecycleFullSession(t *testing.T) {
	rec := &scrobbleRecorder{}
	client := newConnectedClient(t, rec.transport())

	var transitions []EngineState
	engine := NewEngine(client, movieRequest("Heat", 1995), func(state EngineState, message string) {
		transitions = append(transitions, state)
	})

	ctx := context.Background()
	engine.HandleEvent(ctx, PlaybackPlaying, 1)
	engine.HandleEvent(ctx, PlaybackPaused, 20)
	engine.HandleEvent(ctx, PlaybackPlaying, 20)
	engine.HandleEvent(ctx, PlaybackEnded, 95)

	assertActions(t, rec.recorded(), []string{"start", "pause", "start", "stop"})

	state, _ := engine.State()
	if state != EngineScrobbled {
		t.Fatalf("expected scrobbled, got %s", state)
	}
	assertActions(t, func() []string {
		out := make([]string, len(transitions))
		for i, s := range transitions {
			out[i] = string(s)
		}
		return out
	}(), []string{"started", "paused", "started", "scrobbled"})

	// Terminal state absorbs everything.
	engine.HandleEvent(ctx, PlaybackPlaying, 10)
	assertActions(t, rec.recorded(), []string{"start", "pause", "start", "stop"})
}

func TestEngineRedundantEventsAreNoOps(t *testing.T) {
	rec := &scrobbleRecorder{}
	client := newConnectedClient(t, rec.transport())
	engine := NewEngine(client, movieRequest("Heat", 1995), nil)

	ctx := context.Background()
	// Paused before anything started: nothing to report.
	engine.HandleEvent(ctx, PlaybackPaused, 0)
	engine.HandleEvent(ctx, PlaybackPlaying, 1)
	// Playing while already started: nothing to report.
	engine.HandleEvent(ctx, PlaybackPlaying, 5)

	assertActions(t, rec.recorded(), []string{"start"})
}

func TestEngineConflictOnPauseMeansScrobbled(t *testing.T) {
	calls := 0
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if req.URL.Path == "/scrobble/pause" {
			return jsonResponse(http.StatusConflict, `{}`), nil
		}
		return jsonResponse(http.StatusCreated,
			`{"id":1,"action":"start","progress":1,"movie":{"title":"Heat","year":1995,"ids":{"trakt":77}}}`), nil
	})

	client := newConnectedClient(t, rt)
	engine := NewEngine(client, movieRequest("Heat", 1995), nil)

	ctx := context.Background()
	engine.HandleEvent(ctx, PlaybackPlaying, 1)
	engine.HandleEvent(ctx, PlaybackPaused, 50)

	state, msg := engine.State()
	if state != EngineScrobbled {
		t.Fatalf("conflict on pause must mean already scrobbled, got %s (%s)", state, msg)
	}

	// Absorbing: later events make no further calls.
	before := calls
	engine.HandleEvent(ctx, PlaybackPlaying, 55)
	engine.HandleEvent(ctx, PlaybackEnded, 99)
	if calls != before {
		t.Fatalf("terminal engine made %d extra calls", calls-before)
	}
}

func TestEngineNotFoundIsTerminal(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/scrobble/start":
			return jsonResponse(http.StatusNotFound, `{}`), nil
		case "/search/movie":
			return jsonResponse(http.StatusOK, `[]`), nil
		default:
			t.Fatalf("unexpected request to %s", req.URL.Path)
			return nil, nil
		}
	})

	client := newConnectedClient(t, rt)
	engine := NewEngine(client, movieRequest("Obscure Home Video", 0), nil)

	engine.HandleEvent(context.Background(), PlaybackPlaying, 1)

	state, msg := engine.State()
	if state != EngineNotFound {
		t.Fatalf("expected notfound, got %s", state)
	}
	if msg == "" {
		t.Fatalf("expected a failure message for notfound")
	}
}

func TestEngineServerErrorIsTerminal(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, `{}`), nil
	})

	client := newConnectedClient(t, rt)
	engine := NewEngine(client, movieRequest("Heat", 1995), nil)
	engine.HandleEvent(context.Background(), PlaybackPlaying, 1)

	state, msg := engine.State()
	if state != EngineError {
		t.Fatalf("expected error state, got %s", state)
	}
	if msg == "" {
		t.Fatalf("expected a failure message for error state")
	}
}

func TestEngineDropsEventsWhileBusy(t *testing.T) {
	release := make(chan struct{})
	rec := &scrobbleRecorder{}
	inner := rec.transport()
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/scrobble/start" {
			<-release
		}
		return inner(req)
	})

	client := newConnectedClient(t, rt)
	engine := NewEngine(client, movieRequest("Heat", 1995), nil)

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		engine.HandleEvent(ctx, PlaybackPlaying, 1)
		close(done)
	}()

	// Wait until the start report is in flight.
	deadline := time.After(2 * time.Second)
	for {
		state, _ := engine.State()
		if state == EngineResolving {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("engine never entered resolving")
		case <-time.After(time.Millisecond):
		}
	}

	// This pause arrives mid-flight and must be dropped, not queued.
	engine.HandleEvent(ctx, PlaybackPaused, 10)

	close(release)
	<-done

	state, _ := engine.State()
	if state != EngineStarted {
		t.Fatalf("dropped event leaked into state, got %s", state)
	}
	assertActions(t, rec.recorded(), []string{"start"})
}

func TestEngineCloseSendsFinalStop(t *testing.T) {
	rec := &scrobbleRecorder{}
	client := newConnectedClient(t, rec.transport())
	engine := NewEngine(client, movieRequest("Heat", 1995), nil)

	ctx := context.Background()
	engine.HandleEvent(ctx, PlaybackPlaying, 1)
	engine.Close(ctx)

	assertActions(t, rec.recorded(), []string{"start", "stop"})
	state, _ := engine.State()
	if state != EngineScrobbled {
		t.Fatalf("expected scrobbled after close, got %s", state)
	}

	// Closing again has nothing left to report.
	engine.Close(ctx)
	assertActions(t, rec.recorded(), []string{"start", "stop"})
}

func TestEngineCloseWithoutTrackingIsSilent(t *testing.T) {
	client := newConnectedClient(t, func(req *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected network call to %s", req.URL.Path)
		return nil, nil
	})

	engine := NewEngine(client, movieRequest("Heat", 1995), nil)
	engine.Close(context.Background())

	state, _ := engine.State()
	if state != EngineIdle {
		t.Fatalf("close on idle engine changed state to %s", state)
	}
}

func TestEngineDisconnectDuringTrackingEndsInError(t *testing.T) {
	rec := &scrobbleRecorder{}
	inner := rec.transport()
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/oauth/revoke" {
			return jsonResponse(http.StatusOK, `{}`), nil
		}
		return inner(req)
	})

	s := newMemStore()
	seedRecord(t, s, TokenRecord{
		AccessToken: "valid-token",
		ExpiresAtMS: time.Now().Add(time.Hour).UnixMilli(),
	})
	m := newTestManager(rt, s)
	m.LoadOrRefresh(context.Background())
	client := NewClient(m, &http.Client{Transport: rt})
	engine := NewEngine(client, movieRequest("Heat", 1995), nil)

	ctx := context.Background()
	engine.HandleEvent(ctx, PlaybackPlaying, 1)
	m.Disconnect(ctx)

	// The next report finds the credentials gone and must settle the
	// session instead of wedging it with a dangling in-flight operation.
	engine.HandleEvent(ctx, PlaybackPaused, 40)

	state, msg := engine.State()
	if state != EngineError {
		t.Fatalf("expected error state after disconnect, got %s", state)
	}
	if msg == "" {
		t.Fatalf("expected a failure message after disconnect")
	}

	// Terminal: the final ended event and Close stay local.
	engine.HandleEvent(ctx, PlaybackEnded, 90)
	engine.Close(ctx)
	assertActions(t, rec.recorded(), []string{"start"})
}

func TestEngineCloseWaitsForInFlightReport(t *testing.T) {
	release := make(chan struct{})
	rec := &scrobbleRecorder{}
	inner := rec.transport()
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/scrobble/start" {
			<-release
		}
		return inner(req)
	})

	client := newConnectedClient(t, rt)
	engine := NewEngine(client, movieRequest("Heat", 1995), nil)

	ctx := context.Background()
	started := make(chan struct{})
	go func() {
		engine.HandleEvent(ctx, PlaybackPlaying, 1)
		close(started)
	}()

	deadline := time.After(2 * time.Second)
	for {
		state, _ := engine.State()
		if state == EngineResolving {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("engine never entered resolving")
		case <-time.After(time.Millisecond):
		}
	}

	// Unload while the start report is still in flight: the final stop
	// must wait its turn, not be skipped.
	closed := make(chan struct{})
	go func() {
		engine.Close(ctx)
		close(closed)
	}()

	close(release)
	<-started
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close never returned")
	}

	assertActions(t, rec.recorded(), []string{"start", "stop"})
	state, _ := engine.State()
	if state != EngineScrobbled {
		t.Fatalf("expected scrobbled after close, got %s", state)
	}
}

func TestEngineResolverScrobbleActionShortCircuits(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		// Past the scrobble threshold the service acknowledges a start
		// report with the scrobble action directly.
		return jsonResponse(http.StatusCreated,
			`{"id":1,"action":"scrobble","progress":95,"movie":{"title":"Heat","year":1995,"ids":{"trakt":77}}}`), nil
	})

	client := newConnectedClient(t, rt)
	engine := NewEngine(client, movieRequest("Heat", 1995), nil)
	engine.HandleEvent(context.Background(), PlaybackPlaying, 95)

	state, _ := engine.State()
	if state != EngineScrobbled {
		t.Fatalf("expected scrobbled, got %s", state)
	}
}
