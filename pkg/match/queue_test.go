package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-labs/arena/pkg/testutils"
)

type queueOp uint8

const (
	opEnqueue queueOp = 70
	opDrain   queueOp = 30
)

// The queue behaves like a plain FIFO slice under any interleaving of enqueues and drains.
func TestQueue_MatchesModel(t *testing.T) {
	r := testutils.NewRand(t)
	q := newQueue()
	var model []pendingAction

	for range 5000 {
		switch testutils.RandWeightedOp(r, []queueOp{opEnqueue, opDrain}) {
		case opEnqueue:
			a := PlayCard(testutils.RandString(r, 4), 1, 1)
			player := testutils.RandString(r, 3)
			err := q.enqueue(player, a)
			if len(model) >= maxPendingActions {
				require.ErrorIs(t, err, ErrTooManyActions)
				continue
			}
			require.NoError(t, err)
			model = append(model, pendingAction{playerID: player, action: a})
		case opDrain:
			var got []pendingAction
			q.drain(&got)
			if len(model) == 0 {
				require.Empty(t, got)
			} else {
				require.Equal(t, model, got)
			}
			model = model[:0]
		}
	}
}

func TestQueue_ForfeitBypassesLimit(t *testing.T) {
	q := newQueue()
	for range maxPendingActions {
		require.NoError(t, q.enqueue("alice", PlayCard("imp", 1, 1)))
	}
	require.ErrorIs(t, q.enqueue("alice", PlayCard("imp", 1, 1)), ErrTooManyActions)
	require.NoError(t, q.enqueue("alice", Action{Type: ActionForfeit}))

	var got []pendingAction
	q.drain(&got)
	assert.Len(t, got, maxPendingActions+1)
	assert.Equal(t, ActionForfeit, got[len(got)-1].action.Type)
}
