package render

import (
	"sync"
	"time"
)

type delayedEntry struct {
	ticket *Ticket
	due    time.Time
}

// delayQueue holds tickets waiting for their coalescing window to expire. The
// due time of an entry is fixed by the first offer for its key.
type delayQueue struct {
	sync.Mutex

	entries map[TileKey]*delayedEntry
}

func newDelayQueue() *delayQueue {
	return &delayQueue{
		entries: make(map[TileKey]*delayedEntry),
	}
}

// offer inserts ticket unless an entry for its key already exists, in which
// case the existing ticket is returned and nothing changes.
func (q *delayQueue) offer(ticket *Ticket, due time.Time) (*Ticket, bool) {
	q.Lock()
	defer q.Unlock()

	if existing, ok := q.entries[ticket.key]; ok {
		return existing.ticket, false
	}
	q.entries[ticket.key] = &delayedEntry{ticket: ticket, due: due}
	return ticket, true
}

func (q *delayQueue) remove(key TileKey) *Ticket {
	q.Lock()
	defer q.Unlock()

	entry, ok := q.entries[key]
	if !ok {
		return nil
	}
	delete(q.entries, key)
	return entry.ticket
}

// drainExpired removes and returns every ticket due at or before now.
func (q *delayQueue) drainExpired(now time.Time) []*Ticket {
	q.Lock()
	defer q.Unlock()

	var expired []*Ticket
	for key, entry := range q.entries {
		if !entry.due.After(now) {
			expired = append(expired, entry.ticket)
			delete(q.entries, key)
		}
	}
	return expired
}

func (q *delayQueue) nextDue() (time.Time, bool) {
	q.Lock()
	defer q.Unlock()

	var next time.Time
	found := false
	for _, entry := range q.entries {
		if !found || entry.due.Before(next) {
			next = entry.due
			found = true
		}
	}
	return next, found
}

func (q *delayQueue) drainAll() []*Ticket {
	q.Lock()
	defer q.Unlock()

	tickets := make([]*Ticket, 0, len(q.entries))
	for _, entry := range q.entries {
		tickets = append(tickets, entry.ticket)
	}
	q.entries = make(map[TileKey]*delayedEntry)
	return tickets
}

func (q *delayQueue) len() int {
	q.Lock()
	defer q.Unlock()
	return len(q.entries)
}
