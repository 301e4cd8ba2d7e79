// Package catalog holds the immutable card definitions loaded once at startup.
package catalog

import (
	"os"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// ErrCatalogLoad marks any failure to read or validate the card file.
var ErrCatalogLoad = eris.New("failed to load card catalog")

type Category string

const (
	CategoryUnit       Category = "unit"
	CategoryAreaEffect Category = "area_effect"
	CategorySpell      Category = "spell"
)

func (c Category) valid() bool {
	switch c {
	case CategoryUnit, CategoryAreaEffect, CategorySpell:
		return true
	}
	return false
}

// CardDefinition is the static description of a card. Speed and Range are in board units
// (speed per second).
type CardDefinition struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Rarity           string   `json:"rarity,omitempty"`
	Category         Category `json:"category"`
	Cost             int      `json:"cost"`
	SynergyTag       string   `json:"synergyTag,omitempty"`
	BaseHealth       float64  `json:"baseHealth"`
	BaseDamage       float64  `json:"baseDamage"`
	Speed            float64  `json:"speed"`
	Range            float64  `json:"range"`
	AttackIntervalMs float64  `json:"attackIntervalMs"`
}

// Catalog is a read-only lookup table. It is safe for concurrent use once built.
type Catalog struct {
	byID map[string]CardDefinition
}

// New validates the definitions and builds a catalog from them.
func New(cards []CardDefinition) (*Catalog, error) {
	c := &Catalog{
		byID: make(map[string]CardDefinition, len(cards)),
	}
	for i, card := range cards {
		if err := validate(card); err != nil {
			return nil, eris.Wrapf(err, "card at index %d", i)
		}
		if _, exists := c.byID[card.ID]; exists {
			return nil, eris.Errorf("duplicate card id %q", card.ID)
		}
		c.byID[card.ID] = card
	}
	return c, nil
}

// Load reads a JSON array of card definitions from path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(ErrCatalogLoad, "reading %s: %v", path, err)
	}
	return Parse(data)
}

// Parse decodes a JSON array of card definitions.
func Parse(data []byte) (*Catalog, error) {
	var cards []CardDefinition
	if err := json.Unmarshal(data, &cards); err != nil {
		return nil, eris.Wrapf(ErrCatalogLoad, "decoding cards: %v", err)
	}
	if len(cards) == 0 {
		return nil, eris.Wrap(ErrCatalogLoad, "catalog is empty")
	}
	c, err := New(cards)
	if err != nil {
		return nil, eris.Wrapf(ErrCatalogLoad, "%v", err)
	}
	return c, nil
}

// Get returns the card with the given id.
func (c *Catalog) Get(id string) (CardDefinition, bool) {
	card, ok := c.byID[id]
	return card, ok
}

// Len returns the number of cards.
func (c *Catalog) Len() int {
	return len(c.byID)
}

func validate(card CardDefinition) error {
	if card.ID == "" {
		return eris.New("card id cannot be empty")
	}
	if !card.Category.valid() {
		return eris.Errorf("card %q has unknown category %q", card.ID, card.Category)
	}
	if card.Cost < 0 {
		return eris.Errorf("card %q has negative cost", card.ID)
	}
	if card.BaseDamage < 0 || card.Range < 0 || card.Speed < 0 || card.AttackIntervalMs < 0 {
		return eris.Errorf("card %q has negative combat attributes", card.ID)
	}
	switch card.Category {
	case CategoryUnit:
		if card.BaseHealth <= 0 {
			return eris.Errorf("unit card %q must have positive health", card.ID)
		}
		if card.AttackIntervalMs <= 0 {
			return eris.Errorf("unit card %q must have a positive attack interval", card.ID)
		}
	case CategoryAreaEffect:
		if card.SynergyTag == "" {
			return eris.Errorf("area effect card %q must have a synergy tag", card.ID)
		}
	case CategorySpell:
	}
	return nil
}
