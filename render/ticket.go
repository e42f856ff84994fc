package render

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/b1naryth1ef/tilemap/logger"
)

// Ticket is the handle of one scheduled render. Tickets with the same tile and
// renderer are interchangeable for coalescing.
type Ticket struct {
	key TileKey

	// held for the duration of the render
	processMu sync.Mutex

	mu        sync.Mutex
	done      atomic.Bool
	err       error
	listeners []func(*Ticket)
	successor *Ticket
}

func newTicket(tile WorldTile, renderer TileRenderer) *Ticket {
	return &Ticket{
		key: TileKey{Tile: tile, Renderer: renderer},
	}
}

func (t *Ticket) Tile() WorldTile {
	return t.key.Tile
}

func (t *Ticket) Renderer() TileRenderer {
	return t.key.Renderer
}

func (t *Ticket) Key() TileKey {
	return t.key
}

func (t *Ticket) String() string {
	return fmt.Sprintf("ticket(%s, %T)", t.key.Tile, t.key.Renderer)
}

// IsDone reports whether the ticket has been processed.
func (t *Ticket) IsDone() bool {
	return t.done.Load()
}

// Check returns the error the renderer failed with, or nil if it succeeded.
// Calling Check before the ticket is done is an error.
func (t *Ticket) Check() error {
	if !t.done.Load() {
		return fmt.Errorf("%w: %s is not done yet", ErrIllegalState, t)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// AddListener registers fn to be called once the ticket is done. If the ticket
// is already done fn is called immediately on the calling goroutine. The order
// listeners are called in is not defined.
func (t *Ticket) AddListener(fn func(*Ticket)) {
	t.mu.Lock()
	if t.successor != nil {
		next := t.successor
		t.mu.Unlock()
		next.AddListener(fn)
		return
	}
	if t.done.Load() {
		t.mu.Unlock()
		fn(t)
		return
	}
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// supersede moves all listeners of t over to next. Listeners added to t later
// on are forwarded as well. t must not be queued anywhere anymore.
func (t *Ticket) supersede(next *Ticket) {
	t.mu.Lock()
	listeners := t.listeners
	t.listeners = nil
	t.successor = next
	t.mu.Unlock()

	for _, fn := range listeners {
		next.AddListener(fn)
	}
}

// process runs the renderer, records its result and notifies listeners.
func (t *Ticket) process(ctx context.Context, log *logger.Logger) error {
	t.processMu.Lock()
	if t.done.Load() {
		t.processMu.Unlock()
		return fmt.Errorf("%w: %s is already done", ErrIllegalState, t)
	}

	err := t.render(ctx)

	t.mu.Lock()
	t.err = err
	t.done.Store(true)
	listeners := t.listeners
	t.listeners = nil
	t.mu.Unlock()
	t.processMu.Unlock()

	for _, fn := range listeners {
		t.notify(fn, log)
	}
	return nil
}

func (t *Ticket) render(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &UnexpectedError{Value: r}
		}
	}()
	return t.key.Renderer.Render(ctx, t.key.Tile)
}

func (t *Ticket) notify(fn func(*Ticket), log *logger.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.NoFloodError("listener:"+t.key.Tile.String(), "render: ticket listener failed",
				&UnexpectedError{Value: r}, "tile", t.key.Tile.String())
		}
	}()
	fn(t)
}
