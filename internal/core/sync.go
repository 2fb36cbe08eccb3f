package core

// sync.go pushes an EditBuffer to the remote store.
//
// State machine:
//
//	Clean      --edit-->          Dirty (timer armed)
//	Dirty      --edit-->          Dirty (timer re-armed)
//	Dirty      --timer/flush-->   Saving
//	Saving     --edit-->          Saving (pending)
//	Saving     --ok, pending-->   Dirty (timer armed)
//	Saving     --ok-->            Clean
//	Saving     --error-->         SaveFailed
//	SaveFailed --edit-->          Dirty (timer armed)
//	SaveFailed --flush-->         Saving
//
// At most one push is in flight per controller. Every push sends the full
// schema and record set of the buffer at the moment it starts, so an edit
// made during a push is carried by the next one and never lost.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/landrecords/internal/clock"
)

// SyncOptions configures a SyncController.
type SyncOptions struct {
	Debounce    time.Duration // Quiet period before a push
	PushTimeout time.Duration // Deadline for one push; 0 means none
	Clock       clock.Clock
	OnError     func(error) // Called, outside locks, after a failed push
}

// DefaultDebounce is the quiet period used when SyncOptions.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// SyncController debounces edits to one dataset and pushes them.
type SyncController struct {
	key   string
	buf   *EditBuffer
	store Pusher
	opts  SyncOptions

	mu         sync.Mutex
	state      SyncState
	pending    bool
	gen        int
	timer      clock.Timer
	idle       chan struct{} // closed when no push is in flight
	pushes     int
	lastErr    error
	lastPushed time.Time
	closed     bool
	suspended  bool
}

// NewSyncController creates a controller for buf writing to store.
func NewSyncController(buf *EditBuffer, store Pusher, opts SyncOptions) *SyncController {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	idle := make(chan struct{})
	close(idle)
	return &SyncController{
		key:   buf.Key(),
		buf:   buf,
		store: store,
		opts:  opts,
		state: StateClean,
		idle:  idle,
	}
}

// MarkDirty records that the buffer changed and (re)arms the debounce timer.
func (c *SyncController) MarkDirty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.state == StateSaving {
		c.pending = true
		return
	}
	c.state = StateDirty
	c.armLocked()
}

func (c *SyncController) armLocked() {
	if c.suspended {
		c.disarmLocked()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.timer = c.opts.Clock.AfterFunc(c.opts.Debounce, func() { c.fire(gen) })
}

func (c *SyncController) disarmLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

// fire runs when the debounce timer expires.
func (c *SyncController) fire(gen int) {
	c.mu.Lock()
	if c.closed || gen != c.gen || c.state != StateDirty {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.beginLocked()
	c.mu.Unlock()

	ctx, cancel := c.pushContext(context.Background())
	defer cancel()
	c.push(ctx)
}

// beginLocked enters Saving. The caller must then call push exactly once.
func (c *SyncController) beginLocked() {
	c.state = StateSaving
	c.pending = false
	c.idle = make(chan struct{})
}

func (c *SyncController) pushContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.PushTimeout > 0 {
		return context.WithTimeout(ctx, c.opts.PushTimeout)
	}
	return context.WithCancel(ctx)
}

// push sends the current buffer contents and settles the state.
func (c *SyncController) push(ctx context.Context) error {
	snap := c.buf.Snapshot()
	ds, err := c.store.Replace(ctx, c.key, Update{Schema: snap.Schema, Records: snap.Records})

	c.mu.Lock()
	c.pushes++
	close(c.idle)

	if err != nil {
		err = &SyncError{Key: c.key, Err: err}
		c.state = StateSaveFailed
		c.pending = false
		c.lastErr = err
		c.mu.Unlock()

		slog.Warn("dataset push failed", "dataset", c.key, "error", err)
		if c.opts.OnError != nil {
			c.opts.OnError(err)
		}
		return err
	}

	c.lastErr = nil
	c.lastPushed = c.opts.Clock.Now()
	if c.pending && !c.closed {
		c.pending = false
		c.state = StateDirty
		c.armLocked()
	} else {
		c.state = StateClean
	}
	c.mu.Unlock()

	if ds != nil {
		c.buf.touch(ds.UpdatedAt)
	}
	return nil
}

// waitIdleLocked releases c.mu until no push is in flight, then reacquires
// it and reports ctx's error if the wait was cut short.
func (c *SyncController) waitIdleLocked(ctx context.Context) error {
	for c.state == StateSaving {
		idle := c.idle
		c.mu.Unlock()
		select {
		case <-idle:
		case <-ctx.Done():
			c.mu.Lock()
			return ctx.Err()
		}
		c.mu.Lock()
	}
	return nil
}

// Flush pushes unsaved changes now, bypassing the debounce. It waits for an
// in-flight push first. A failed earlier push is retried. It returns nil
// when there was nothing to save.
func (c *SyncController) Flush(ctx context.Context) error {
	c.mu.Lock()
	if err := c.waitIdleLocked(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state == StateClean {
		c.mu.Unlock()
		return nil
	}
	c.disarmLocked()
	c.beginLocked()
	c.mu.Unlock()

	ctx, cancel := c.pushContext(ctx)
	defer cancel()
	return c.push(ctx)
}

// ReplaceAndPush swaps the buffer contents and pushes them immediately.
// Used by import, which persists without waiting for the debounce.
func (c *SyncController) ReplaceAndPush(ctx context.Context, schema []ColumnSchema, records []Record) error {
	c.mu.Lock()
	if err := c.waitIdleLocked(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("session %s closed: %w", c.key, ErrNotFound)
	}
	c.buf.Replace(schema, records)
	c.disarmLocked()
	c.beginLocked()
	c.mu.Unlock()

	ctx, cancel := c.pushContext(ctx)
	defer cancel()
	return c.push(ctx)
}

// Status reports the controller's current state.
func (c *SyncController) Status() SyncStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := SyncStatus{
		State:      c.state,
		Pending:    c.pending,
		Pushes:     c.pushes,
		LastPushed: c.lastPushed,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// Dirty reports whether the buffer holds changes not yet stored.
func (c *SyncController) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateClean || c.pending
}

// Suspend stops the debounce timer and waits for an in-flight push. Edits
// made while suspended are recorded but not pushed until Resume. If ctx ends
// first the controller stays suspended and ctx's error is returned.
func (c *SyncController) Suspend(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspended = true
	c.disarmLocked()
	return c.waitIdleLocked(ctx)
}

// Resume undoes Suspend and re-arms the timer if edits are unsaved.
func (c *SyncController) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspended = false
	if c.state == StateDirty && !c.closed {
		c.armLocked()
	}
}

// Close stops the debounce timer. Unsaved changes are not pushed; call
// Flush first to keep them.
func (c *SyncController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.disarmLocked()
}
