// Package matchmaking pairs waiting players first-come, first-served and starts a match for each pair.
package matchmaking

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/argus-labs/arena/pkg/match"
)

// Ticket is one player's place in the queue.
type Ticket struct {
	ID        string
	Player    match.Identity
	CreatedAt time.Time
}

// Queue is a FIFO of waiting players with at most one ticket per player.
type Queue struct {
	mu sync.Mutex

	// Oldest first.
	waiting []*Ticket

	ticketsByPlayer map[string]*Ticket
}

func NewQueue() *Queue {
	return &Queue{
		waiting:         make([]*Ticket, 0, 64),
		ticketsByPlayer: make(map[string]*Ticket),
	}
}

// Enqueue adds a player to the back of the queue. A player already waiting keeps their ticket and place;
// the existing ticket is returned with added=false.
func (q *Queue) Enqueue(player match.Identity, now time.Time) (ticket *Ticket, added bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.ticketsByPlayer[player.ID]; ok {
		return existing, false
	}

	ticket = &Ticket{ID: uuid.NewString(), Player: player, CreatedAt: now}
	q.waiting = append(q.waiting, ticket)
	q.ticketsByPlayer[player.ID] = ticket
	return ticket, true
}

// Cancel removes a waiting player. It reports whether the player was waiting.
func (q *Queue) Cancel(playerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	ticket, ok := q.ticketsByPlayer[playerID]
	if !ok {
		return false
	}
	delete(q.ticketsByPlayer, playerID)
	for i, t := range q.waiting {
		if t == ticket {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			break
		}
	}
	return true
}

// DequeuePairIfAvailable removes and returns the two longest-waiting tickets when at least two are queued.
func (q *Queue) DequeuePairIfAvailable() (first, second *Ticket, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.waiting) < 2 {
		return nil, nil, false
	}
	first, second = q.waiting[0], q.waiting[1]
	q.waiting[0], q.waiting[1] = nil, nil
	q.waiting = q.waiting[2:]
	delete(q.ticketsByPlayer, first.Player.ID)
	delete(q.ticketsByPlayer, second.Player.ID)
	return first, second, true
}

// requeueFront puts a ticket back at the head of the queue, keeping its original place in line.
func (q *Queue) requeueFront(ticket *Ticket) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.ticketsByPlayer[ticket.Player.ID]; ok {
		return
	}
	q.waiting = append([]*Ticket{ticket}, q.waiting...)
	q.ticketsByPlayer[ticket.Player.ID] = ticket
}

// Contains reports whether the player is waiting.
func (q *Queue) Contains(playerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, ok := q.ticketsByPlayer[playerID]
	return ok
}

// Len returns the number of waiting players.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}
