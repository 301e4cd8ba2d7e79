package battle

import (
	"github.com/argus-labs/arena/pkg/catalog"
)

func unitCard(id, tag string) catalog.CardDefinition {
	return catalog.CardDefinition{
		ID:               id,
		Category:         catalog.CategoryUnit,
		Cost:             3,
		SynergyTag:       tag,
		BaseHealth:       100,
		BaseDamage:       10,
		Speed:            2,
		Range:            1,
		AttackIntervalMs: 1000,
	}
}

func newTestBoard() *Board {
	return NewBoard([2]string{"alice", "bob"}, 1000)
}
