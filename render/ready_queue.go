package render

import (
	"context"
	"sync"
)

// readyQueue is an unbounded FIFO of tickets shared by any number of producers
// and consumers.
type readyQueue struct {
	mu      sync.Mutex
	tickets []*Ticket
	notif   chan struct{}
}

func newReadyQueue() *readyQueue {
	return &readyQueue{
		notif: make(chan struct{}, 1),
	}
}

func (q *readyQueue) signal() {
	select {
	case q.notif <- struct{}{}:
	default:
	}
}

func (q *readyQueue) offer(tickets ...*Ticket) {
	if len(tickets) == 0 {
		return
	}
	q.mu.Lock()
	q.tickets = append(q.tickets, tickets...)
	q.mu.Unlock()
	q.signal()
}

// offerFront puts a ticket back at the head of the queue.
func (q *readyQueue) offerFront(ticket *Ticket) {
	q.mu.Lock()
	q.tickets = append([]*Ticket{ticket}, q.tickets...)
	q.mu.Unlock()
	q.signal()
}

// poll removes the head of the queue without blocking.
func (q *readyQueue) poll() *Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tickets) == 0 {
		return nil
	}
	ticket := q.tickets[0]
	q.tickets[0] = nil
	q.tickets = q.tickets[1:]

	// pass the wakeup on so other consumers see the remaining tickets
	if len(q.tickets) > 0 {
		q.signal()
	}
	return ticket
}

// take blocks until a ticket is available or ctx is done.
func (q *readyQueue) take(ctx context.Context) (*Ticket, error) {
	for {
		if ticket := q.poll(); ticket != nil {
			return ticket, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notif:
		}
	}
}

func (q *readyQueue) drain() []*Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()

	tickets := q.tickets
	q.tickets = nil
	return tickets
}

func (q *readyQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tickets)
}
