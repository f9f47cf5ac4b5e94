package cards

import (
	"fmt"
	"strconv"
	"strings"
)

const energySuffix = "energy"

// Normalize resolves derived fields and validates the card for staging.
// Creature ids are derived from the catalog reference, trainer names are
// trimmed and energy types are derived from the name when absent.
func Normalize(card Card) (Card, error) {
	normalized := card.Clone()
	normalized.Name = strings.TrimSpace(normalized.Name)
	if normalized.Name == "" {
		return Card{}, fmt.Errorf("%w: name required", ErrInvalidCard)
	}
	if !normalized.Category.Valid() {
		return Card{}, fmt.Errorf("%w: %w", ErrInvalidCard, ErrInvalidCategory)
	}

	switch normalized.Category {
	case CategoryCreature:
		if normalized.ID == 0 {
			id, err := IDFromRef(normalized.Ref)
			if err != nil {
				return Card{}, err
			}
			normalized.ID = id
		}
	case CategoryEnergy:
		if strings.TrimSpace(normalized.EnergyType) == "" {
			normalized.EnergyType = EnergyTypeFromName(normalized.Name)
		} else {
			normalized.EnergyType = strings.TrimSpace(normalized.EnergyType)
		}
	}

	return normalized, nil
}

// IDFromRef extracts the trailing numeric path segment of a catalog reference,
// e.g. "https://pokeapi.co/api/v2/pokemon/25/" yields 25.
func IDFromRef(ref string) (int, error) {
	segments := strings.Split(strings.TrimSpace(ref), "/")
	last := ""
	for index := len(segments) - 1; index >= 0; index-- {
		if segments[index] != "" {
			last = segments[index]
			break
		}
	}
	if last == "" {
		return 0, fmt.Errorf("%w: creature requires an id or catalog reference", ErrInvalidCard)
	}
	id, err := strconv.Atoi(last)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: catalog reference %q has no numeric id", ErrInvalidCard, ref)
	}
	return id, nil
}

// EnergyTypeFromName strips a trailing "Energy" token (any case) and
// surrounding whitespace. A name consisting only of the token is returned trimmed.
func EnergyTypeFromName(name string) string {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) >= len(energySuffix) && strings.EqualFold(trimmed[len(trimmed)-len(energySuffix):], energySuffix) {
		stripped := strings.TrimSpace(trimmed[:len(trimmed)-len(energySuffix)])
		if stripped != "" {
			return stripped
		}
	}
	return trimmed
}
