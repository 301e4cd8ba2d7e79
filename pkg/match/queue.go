package match

import (
	"sync"
)

const (
	initialQueueCapacity = 16
	maxPendingActions    = 64
)

// queue buffers actions submitted from connection goroutines until the match goroutine drains them at the
// start of its next tick.
type queue struct {
	actions []pendingAction
	mu      sync.Mutex
}

type pendingAction struct {
	playerID string
	action   Action
}

func newQueue() *queue {
	return &queue{actions: make([]pendingAction, 0, initialQueueCapacity)}
}

// enqueue appends a player action. Control actions bypass the limit so a forfeit is never dropped.
func (q *queue) enqueue(playerID string, action Action) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.actions) >= maxPendingActions && action.Type != ActionForfeit {
		return ErrTooManyActions
	}
	q.actions = append(q.actions, pendingAction{playerID: playerID, action: action})
	return nil
}

// drain appends all pending actions to target in submission order and empties the queue.
func (q *queue) drain(target *[]pendingAction) {
	q.mu.Lock()
	defer q.mu.Unlock()

	*target = append(*target, q.actions...)
	clear(q.actions)
	q.actions = q.actions[:0]
}
