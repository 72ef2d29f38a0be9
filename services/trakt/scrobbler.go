package trakt

import (
	"context"
	"log"
	"sync"
)

// PlaybackState is an input event from the player.
type PlaybackState string

const (
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
	PlaybackEnded   PlaybackState = "ended"
)

// EngineState is the scrobble engine's position in its lifecycle. The
// terminal states (scrobbled, notfound, error) are absorbing: once reached,
// no further reports are attempted for the media load.
type EngineState string

const (
	EngineIdle      EngineState = "idle"
	EngineResolving EngineState = "resolving"
	EngineStarted   EngineState = "started"
	EnginePaused    EngineState = "paused"
	EngineScrobbled EngineState = "scrobbled"
	EngineNotFound  EngineState = "notfound"
	EngineError     EngineState = "error"
)

// terminal reports whether s is absorbing.
func (s EngineState) terminal() bool {
	return s == EngineScrobbled || s == EngineNotFound || s == EngineError
}

// StatusListener is notified after every engine state change. The message
// is empty except for the error states, where it carries the last
// human-readable failure.
type StatusListener func(state EngineState, message string)

// Engine drives scrobble reports from playback-state transitions. One
// engine serves exactly one media load: the first Playing event triggers
// resolution, later events map to pause/start/stop reports. A single
// operation may be in flight at any time; events arriving meanwhile are
// dropped, never queued, because a stale queued event could fire against
// state that has already moved on.
type Engine struct {
	client   *Client
	resolver *Resolver
	listener StatusListener

	mu      sync.Mutex
	idle    *sync.Cond // signaled whenever busy clears
	busy    bool
	state   EngineState
	lastErr string
	req     *ScrobbleRequest
}

// NewEngine creates an engine for one media load. The request is the
// metadata provider's best guess and is enriched in place during
// resolution. listener may be nil.
func NewEngine(client *Client, req *ScrobbleRequest, listener StatusListener) *Engine {
	e := &Engine{
		client:   client,
		resolver: NewResolver(client),
		listener: listener,
		state:    EngineIdle,
		req:      req,
	}
	e.idle = sync.NewCond(&e.mu)
	return e
}

// State returns the current engine state and, for the error states, the
// last recorded message.
func (e *Engine) State() (EngineState, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.lastErr
}

// Request exposes the (possibly enriched) scrobble request.
func (e *Engine) Request() *ScrobbleRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.req
}

// HandleEvent consumes one playback-state transition. Events delivered
// while an operation is in flight, or after a terminal state, are ignored.
func (e *Engine) HandleEvent(ctx context.Context, input PlaybackState, progress float64) {
	progress = clampProgress(progress)

	e.mu.Lock()
	if e.busy {
		log.Printf("[scrobbler] dropping %s event: operation in flight", input)
		e.mu.Unlock()
		return
	}
	if e.state.terminal() {
		e.mu.Unlock()
		return
	}

	var action Action
	resolve := false
	switch input {
	case PlaybackPlaying:
		if e.state == EngineIdle {
			resolve = true
		} else if e.state == EnginePaused {
			action = ActionStart
		}
	case PlaybackPaused:
		if e.state == EngineStarted {
			action = ActionPause
		}
	case PlaybackEnded:
		if e.state == EngineStarted || e.state == EnginePaused {
			action = ActionStop
		}
	}
	if !resolve && action == "" {
		e.mu.Unlock()
		return
	}

	e.busy = true
	e.req.Progress = progress
	if resolve {
		e.state = EngineResolving
	}
	e.mu.Unlock()

	var next EngineState
	var message string
	if resolve {
		next, message = e.runResolve(ctx)
	} else {
		next, message = e.runReport(ctx, action)
	}

	e.mu.Lock()
	e.busy = false
	e.state = next
	e.lastErr = message
	e.idle.Broadcast()
	e.mu.Unlock()

	e.notify(next, message)
}

// Close forces one final stop report when a tracking state is still
// active, then renders the engine inert. An in-flight operation is waited
// out first so an unload racing a report cannot skip the stop. The report
// itself is best-effort: a failure is logged, never retried, because the
// session is ending anyway.
func (e *Engine) Close(ctx context.Context) {
	e.mu.Lock()
	for e.busy {
		e.idle.Wait()
	}
	if e.state != EngineStarted && e.state != EnginePaused {
		e.mu.Unlock()
		return
	}
	e.busy = true
	e.mu.Unlock()

	_, err := e.client.Scrobble(ctx, ActionStop, e.req)

	e.mu.Lock()
	e.busy = false
	e.idle.Broadcast()
	if err != nil {
		log.Printf("[scrobbler] final stop report failed (ignored): %v", err)
	} else {
		e.state = EngineScrobbled
	}
	state, message := e.state, e.lastErr
	e.mu.Unlock()

	if err == nil {
		e.notify(state, message)
	}
}

// runResolve drives the match resolver and maps its outcome to a state.
func (e *Engine) runResolve(ctx context.Context) (EngineState, string) {
	resp, err := e.resolver.Resolve(ctx, e.req)
	if err != nil {
		return stateForError(err)
	}
	if resp.Action == "scrobble" {
		return EngineScrobbled, ""
	}
	return EngineStarted, ""
}

// runReport issues one pause/start/stop report and maps the outcome. A
// conflict means the item was already scrobbled elsewhere; the engine
// adopts that and goes quiet.
func (e *Engine) runReport(ctx context.Context, action Action) (EngineState, string) {
	resp, err := e.client.Scrobble(ctx, action, e.req)
	if err != nil {
		if IsConflict(err) {
			log.Printf("[scrobbler] %s report conflicted, already scrobbled elsewhere", action)
			return EngineScrobbled, ""
		}
		return stateForError(err)
	}
	adoptResponse(e.req, resp)

	switch action {
	case ActionPause:
		return EnginePaused, ""
	case ActionStop:
		// The service may answer a stop with "pause" below its scrobble
		// threshold; the session is over either way.
		return EngineScrobbled, ""
	default:
		return EngineStarted, ""
	}
}

// stateForError maps a resolution/report failure to its absorbing state.
func stateForError(err error) (EngineState, string) {
	if IsNotFound(err) {
		return EngineNotFound, err.Error()
	}
	return EngineError, err.Error()
}

func (e *Engine) notify(state EngineState, message string) {
	if e.listener != nil {
		e.listener(state, message)
	}
}

func clampProgress(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
