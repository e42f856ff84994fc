package render

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/b1naryth1ef/tilemap/logger"
)

type State int

const (
	StateNew State = iota
	StateRunning
	StatePaused
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

const defaultMaxPromoterWait = 10 * time.Second

var nextInstance atomic.Int64

type Option func(*Manager)

func WithLogger(log *logger.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithMaxPromoterWait caps how long the delay promoter sleeps between scans.
func WithMaxPromoterWait(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.maxWait = d
		}
	}
}

// Manager runs scheduled tickets on a fixed number of worker goroutines.
type Manager struct {
	instance int
	threads  int
	maxWait  time.Duration
	log      *logger.Logger
	metrics  *Metrics

	ready   *readyQueue
	delayed *delayQueue
	wake    chan struct{}

	mu       sync.Mutex
	started  bool
	paused   bool
	resumed  chan struct{}
	shutdown atomic.Bool

	terminated atomic.Bool
	finishOnce sync.Once
	done       chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(threads int, opts ...Option) (*Manager, error) {
	if threads < 1 {
		return nil, fmt.Errorf("render: thread count must be at least 1, got %d", threads)
	}

	resumed := make(chan struct{})
	close(resumed)

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		instance: int(nextInstance.Add(1) - 1),
		threads:  threads,
		maxWait:  defaultMaxPromoterWait,
		ready:    newReadyQueue(),
		delayed:  newDelayQueue(),
		wake:     make(chan struct{}, 1),
		resumed:  resumed,
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Default()
	}
	m.log = m.log.With("manager", m.instance)
	return m, nil
}

// Instance is the process wide sequence number of this manager.
func (m *Manager) Instance() int {
	return m.instance
}

// Schedule queues tile for rendering with renderer as soon as a worker is
// free. A delayed ticket for the same tile and renderer is replaced by the new
// ticket and its listeners are moved over.
func (m *Manager) Schedule(tile WorldTile, renderer TileRenderer) (*Ticket, error) {
	if err := m.checkSchedule(renderer); err != nil {
		return nil, err
	}

	ticket := newTicket(tile, renderer)
	if previous := m.delayed.remove(ticket.key); previous != nil {
		previous.supersede(ticket)
	}
	m.ready.offer(ticket)

	m.metrics.observeScheduled(m.instance, "immediate")
	m.updatePending()
	return ticket, nil
}

// ScheduleDelayed queues tile for rendering once delay has passed. Until then
// every further delayed schedule of the same tile and renderer returns the
// waiting ticket. The window is not extended by those later calls.
func (m *Manager) ScheduleDelayed(tile WorldTile, renderer TileRenderer, delay time.Duration) (*Ticket, error) {
	if delay <= 0 {
		return m.Schedule(tile, renderer)
	}
	if err := m.checkSchedule(renderer); err != nil {
		return nil, err
	}

	ticket, inserted := m.delayed.offer(newTicket(tile, renderer), time.Now().Add(delay))
	if !inserted {
		m.metrics.observeCoalesced(m.instance)
		return ticket, nil
	}

	m.metrics.observeScheduled(m.instance, "delayed")
	m.updatePending()
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return ticket, nil
}

func (m *Manager) checkSchedule(renderer TileRenderer) error {
	if renderer == nil {
		return errors.New("render: renderer must not be nil")
	}
	if !reflect.TypeOf(renderer).Comparable() {
		return fmt.Errorf("%w: renderer %T is not comparable", ErrIllegalState, renderer)
	}
	if m.shutdown.Load() {
		return fmt.Errorf("%w: manager %d has been shut down", ErrIllegalState, m.instance)
	}
	return nil
}

// Start launches the workers and the delay promoter. It may only be called once.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("%w: manager %d already started", ErrIllegalState, m.instance)
	}
	if m.shutdown.Load() {
		return fmt.Errorf("%w: manager %d has been shut down", ErrIllegalState, m.instance)
	}
	m.started = true

	m.wg.Add(m.threads + 1)
	for i := 0; i < m.threads; i++ {
		go m.worker(i)
	}
	go m.promoter()

	go func() {
		m.wg.Wait()
		m.finish()
	}()

	m.log.Info("render: manager started", "threads", m.threads)
	return nil
}

// Pause stops workers from picking up new tickets. Renders already running
// are not interrupted.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.paused {
		m.paused = true
		m.resumed = make(chan struct{})
	}
}

func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		m.paused = false
		close(m.resumed)
	}
}

func (m *Manager) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Shutdown stops the workers and the promoter. Queued tickets are left in
// place and can be collected with DrainScheduled. Calling it more than once
// has no further effect.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.shutdown.Swap(true) {
		m.mu.Unlock()
		return
	}
	started := m.started
	m.mu.Unlock()

	m.cancel()
	if !started {
		m.finish()
	}
	m.log.Info("render: manager shutting down", "pending", m.PendingCount())
}

func (m *Manager) finish() {
	m.finishOnce.Do(func() {
		m.terminated.Store(true)
		close(m.done)
	})
}

// AwaitShutdown blocks until every goroutine of the manager has exited or the
// timeout elapsed. A timeout of 0 waits without bound. It reports whether the
// manager terminated.
func (m *Manager) AwaitShutdown(timeout time.Duration) bool {
	if timeout <= 0 {
		<-m.done
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-m.done:
		return true
	case <-timer.C:
		return false
	}
}

// Done is closed once the manager terminated.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// DrainScheduled removes and returns every ticket that has not been picked up
// by a worker yet, immediate and delayed.
func (m *Manager) DrainScheduled() []*Ticket {
	tickets := m.ready.drain()
	tickets = append(tickets, m.delayed.drainAll()...)
	m.updatePending()
	return tickets
}

// PendingCount is the number of queued tickets. It is only a snapshot.
func (m *Manager) PendingCount() int {
	return m.ready.len() + m.delayed.len()
}

func (m *Manager) State() State {
	if m.terminated.Load() {
		return StateTerminated
	}
	if m.shutdown.Load() {
		return StateShuttingDown
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case !m.started:
		return StateNew
	case m.paused:
		return StatePaused
	default:
		return StateRunning
	}
}

func (m *Manager) updatePending() {
	m.metrics.setPending(m.instance, m.PendingCount())
}

// waitResumed blocks while the manager is paused.
func (m *Manager) waitResumed() error {
	m.mu.Lock()
	resumed := m.resumed
	m.mu.Unlock()

	select {
	case <-resumed:
		return nil
	case <-m.ctx.Done():
		return m.ctx.Err()
	}
}

func (m *Manager) worker(id int) {
	defer m.wg.Done()
	log := m.log.With("worker", fmt.Sprintf("render-%d-%d", m.instance, id))

	for {
		if m.ctx.Err() != nil {
			return
		}
		if err := m.waitResumed(); err != nil {
			return
		}

		ticket, err := m.ready.take(m.ctx)
		if err != nil {
			if m.shutdown.Load() {
				return
			}
			continue
		}

		// paused while we were waiting for the ticket
		if m.IsPaused() {
			m.ready.offerFront(ticket)
			continue
		}

		start := time.Now()
		if err := ticket.process(m.ctx, log); err != nil {
			log.Error("render: failed to process ticket", err, "tile", ticket.Tile().String())
			continue
		}
		elapsed := time.Since(start)

		renderErr := ticket.Check()
		m.metrics.observeCompleted(m.instance, renderErr, elapsed)
		m.updatePending()
		if renderErr != nil && ErrorKind(renderErr) != KindChunkNotGenerated {
			log.Debug("render: ticket failed", "tile", ticket.Tile().String(), "kind", ErrorKind(renderErr).String(), "error", renderErr)
		}
	}
}

// promoteExpired moves due delayed tickets to the ready queue. Nothing is
// promoted once Shutdown was called.
func (m *Manager) promoteExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown.Load() {
		return 0
	}

	expired := m.delayed.drainExpired(now)
	if len(expired) > 0 {
		m.ready.offer(expired...)
	}
	return len(expired)
}

func (m *Manager) promoter() {
	defer m.wg.Done()

	timer := time.NewTimer(m.maxWait)
	defer timer.Stop()

	for {
		now := time.Now()
		m.promoteExpired(now)

		wait := m.maxWait
		if next, ok := m.delayed.nextDue(); ok {
			if d := next.Sub(now); d < wait {
				wait = max(d, 0)
			}
		}
		timer.Reset(wait)

		select {
		case <-m.ctx.Done():
			return
		case <-m.wake:
		case <-timer.C:
		}
	}
}
