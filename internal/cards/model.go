package cards

import (
	"errors"
	"fmt"
	"strings"
)

// Category enumerates the three card variants a deck is built from.
type Category string

const (
	// CategoryCreature identifies creature cards sourced from the creature catalog.
	CategoryCreature Category = "creature"
	// CategoryTrainer identifies trainer cards.
	CategoryTrainer Category = "trainer"
	// CategoryEnergy identifies energy cards.
	CategoryEnergy Category = "energy"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryCreature, CategoryTrainer, CategoryEnergy}

var (
	// ErrInvalidCategory indicates an unknown category value.
	ErrInvalidCategory = errors.New("cards: invalid category")
	// ErrInvalidCard indicates a card that cannot be staged or persisted.
	ErrInvalidCard = errors.New("cards: invalid card")
)

// ParseCategory validates raw input and returns a Category.
// The legacy wire names "pokemon", "trainers" and "energies" are accepted.
func ParseCategory(rawInput string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(rawInput)) {
	case string(CategoryCreature), "pokemon", "creatures":
		return CategoryCreature, nil
	case string(CategoryTrainer), "trainers":
		return CategoryTrainer, nil
	case string(CategoryEnergy), "energies":
		return CategoryEnergy, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, rawInput)
	}
}

// String returns the underlying category name.
func (c Category) String() string {
	return string(c)
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryCreature, CategoryTrainer, CategoryEnergy:
		return true
	default:
		return false
	}
}

// Card is a single catalog or deck entry. Fields that do not apply to the
// card's category are left at their zero value.
type Card struct {
	Category   Category `json:"category"`
	ID         int      `json:"id,omitempty"`
	Name       string   `json:"name"`
	Ref        string   `json:"url,omitempty"`
	Strengths  []string `json:"strengths,omitempty"`
	Weaknesses []string `json:"weaknesses,omitempty"`
	Rarity     string   `json:"rarity,omitempty"`
	SetName    string   `json:"set_name,omitempty"`
	ImageURL   string   `json:"image_url,omitempty"`
	EnergyType string   `json:"energy_type,omitempty"`
}

// Clone returns a deep copy of the card.
func (c Card) Clone() Card {
	clone := c
	if c.Strengths != nil {
		clone.Strengths = append([]string(nil), c.Strengths...)
	}
	if c.Weaknesses != nil {
		clone.Weaknesses = append([]string(nil), c.Weaknesses...)
	}
	return clone
}

// CloneAll deep-copies a card sequence. A nil input yields an empty slice.
func CloneAll(source []Card) []Card {
	clones := make([]Card, 0, len(source))
	for _, card := range source {
		clones = append(clones, card.Clone())
	}
	return clones
}

// CountByCategory tallies cards per category.
func CountByCategory(source []Card) map[Category]int {
	counts := make(map[Category]int, len(Categories))
	for _, card := range source {
		counts[card.Category]++
	}
	return counts
}
