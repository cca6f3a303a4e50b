package search

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/pkg/logger"
)

// State of a search session. Transitions:
//
//	Idle -> Pending (keystroke)
//	Pending -> Pending (keystroke restarts the quiescence timer)
//	Pending -> Fetching (timer elapses)
//	Fetching -> Superseded (keystroke while a lookup is in flight)
//	Superseded -> Fetching (timer elapses for the newer query)
//	any -> Idle (empty query, or a lookup for the current generation lands)
type State int32

const (
	Idle State = iota
	Pending
	Fetching
	Superseded
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Fetching:
		return "Fetching"
	case Superseded:
		return "Superseded"
	default:
		return "Idle"
	}
}

// LookupFunc performs the actual search. The coalescer guarantees at most one
// logical lookup per quiescent query; a cancelled ctx means the result will
// be discarded anyway.
type LookupFunc func(ctx context.Context, query string) ([]*model.Post, error)

// RenderFunc receives the single result set that may be shown. It is only
// ever called with the most recent query the user finished typing.
type RenderFunc func(query string, posts []*model.Post)

// Coalescer debounces keystrokes into at most one in-flight lookup and
// discards superseded results by generation, not by arrival order. The
// generation counter is the whole trick: every keystroke bumps it, and a
// lookup result is rendered only if the generation it was issued under is
// still current.
type Coalescer struct {
	window time.Duration
	lookup LookupFunc
	render RenderFunc
	onIdle func()

	mu     sync.Mutex
	state  State
	query  string
	gen    uint64
	timer  *time.Timer
	cancel context.CancelFunc
	closed bool
}

// NewCoalescer builds a session. window <= 0 falls back to one second; the
// value is a tunable, not a contract. onIdle may be nil; it fires when an
// empty query restores normal feed pagination.
func NewCoalescer(window time.Duration, lookup LookupFunc, render RenderFunc, onIdle func()) *Coalescer {
	if window <= 0 {
		window = time.Second
	}
	return &Coalescer{window: window, lookup: lookup, render: render, onIdle: onIdle, state: Idle}
}

// Input feeds one keystroke's worth of query text into the session.
func (c *Coalescer) Input(query string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	// Whatever was pending or in flight is stale from this moment on.
	c.gen++

	if query == "" {
		c.query = ""
		c.state = Idle
		c.stopTimerLocked()
		c.cancelLookupLocked()
		onIdle := c.onIdle
		c.mu.Unlock()
		if onIdle != nil {
			onIdle()
		}
		return
	}

	c.query = query
	switch c.state {
	case Fetching:
		c.state = Superseded
		c.cancelLookupLocked()
	case Superseded:
		// stay Superseded until the timer elapses for the newer query
	default:
		c.state = Pending
	}

	c.stopTimerLocked()
	gen := c.gen
	c.timer = time.AfterFunc(c.window, func() { c.fire(gen) })
	c.mu.Unlock()
}

// fire runs when the quiescence timer elapses with no further keystroke.
func (c *Coalescer) fire(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.gen || c.query == "" {
		c.mu.Unlock()
		return
	}
	c.state = Fetching
	query := c.query
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	go func() {
		posts, err := c.lookup(ctx, query)
		cancel()

		c.mu.Lock()
		if c.closed || gen != c.gen {
			// Superseded while in flight: drop the result on the floor,
			// never rendered, never surfaced as an error.
			c.mu.Unlock()
			return
		}
		c.state = Idle
		c.cancel = nil
		c.mu.Unlock()

		if err != nil {
			logger.Warn("search lookup failed", zap.String("query", query), zap.Error(err))
			return
		}
		if c.render != nil {
			c.render(query, posts)
		}
	}()
}

// State reports the current session state (for diagnostics and tests).
func (c *Coalescer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close tears the session down; late timers and lookups become no-ops.
func (c *Coalescer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.gen++
	c.stopTimerLocked()
	c.cancelLookupLocked()
}

func (c *Coalescer) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coalescer) cancelLookupLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
