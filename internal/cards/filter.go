package cards

import "strings"

// Filter narrows a catalog listing the way the selection view does.
type Filter struct {
	Search     string
	Rarity     string
	EnergyType string
}

// Apply returns the cards matching the filter, preserving order.
// Rarity only constrains trainers and EnergyType only constrains energy cards.
func (f Filter) Apply(source []Card) []Card {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	rarity := strings.TrimSpace(f.Rarity)
	energyType := strings.TrimSpace(f.EnergyType)

	matches := make([]Card, 0, len(source))
	for _, card := range source {
		if search != "" && !strings.Contains(strings.ToLower(card.Name), search) {
			continue
		}
		if rarity != "" && card.Category == CategoryTrainer && card.Rarity != rarity {
			continue
		}
		if energyType != "" && card.Category == CategoryEnergy && card.EnergyType != energyType {
			continue
		}
		matches = append(matches, card)
	}
	return matches
}

// DistinctRarities lists non-empty trainer rarities in first-seen order.
func DistinctRarities(source []Card) []string {
	return distinct(source, func(card Card) string { return card.Rarity })
}

// DistinctEnergyTypes lists non-empty energy types in first-seen order.
func DistinctEnergyTypes(source []Card) []string {
	return distinct(source, func(card Card) string { return card.EnergyType })
}

func distinct(source []Card, field func(Card) string) []string {
	seen := make(map[string]struct{})
	values := make([]string, 0)
	for _, card := range source {
		value := field(card)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		values = append(values, value)
	}
	return values
}
