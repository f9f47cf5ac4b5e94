package deck

import (
	"encoding/json"
	"strings"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/cards"
)

// PersistedDeck is the client projection of the server-owned deck.
type PersistedDeck struct {
	Creatures []cards.Card `json:"creatures"`
	Trainers  []cards.Card `json:"trainers"`
	Energy    []cards.Card `json:"energy"`
}

// Clone returns a deep copy with non-nil sequences.
func (d PersistedDeck) Clone() PersistedDeck {
	return PersistedDeck{
		Creatures: cards.CloneAll(d.Creatures),
		Trainers:  cards.CloneAll(d.Trainers),
		Energy:    cards.CloneAll(d.Energy),
	}
}

// Count returns the number of cards across all categories.
func (d PersistedDeck) Count() int {
	return len(d.Creatures) + len(d.Trainers) + len(d.Energy)
}

// Sequence returns the card sequence backing the category.
func (d PersistedDeck) Sequence(category cards.Category) []cards.Card {
	switch category {
	case cards.CategoryCreature:
		return d.Creatures
	case cards.CategoryTrainer:
		return d.Trainers
	case cards.CategoryEnergy:
		return d.Energy
	default:
		return nil
	}
}

// withoutCard returns a copy of the deck with every card matching id removed
// from the given category. Other categories are copied unchanged.
func (d PersistedDeck) withoutCard(category cards.Category, cardID int) PersistedDeck {
	next := d.Clone()
	filter := func(source []cards.Card) []cards.Card {
		kept := make([]cards.Card, 0, len(source))
		for _, card := range source {
			if card.ID != cardID {
				kept = append(kept, card)
			}
		}
		return kept
	}
	switch category {
	case cards.CategoryCreature:
		next.Creatures = filter(next.Creatures)
	case cards.CategoryTrainer:
		next.Trainers = filter(next.Trainers)
	case cards.CategoryEnergy:
		next.Energy = filter(next.Energy)
	}
	return next
}

// RecommendationItem is a server-suggested addition. The service may send a
// structured card suggestion or a plain advice string, which lands in Text.
type RecommendationItem struct {
	Category   cards.Category `json:"category,omitempty"`
	ID         int            `json:"id,omitempty"`
	Name       string         `json:"name,omitempty"`
	EnergyType string         `json:"energy_type,omitempty"`
	ImageURL   string         `json:"image_url,omitempty"`
	Strengths  []string       `json:"strengths,omitempty"`
	Weaknesses []string       `json:"weaknesses,omitempty"`
	Text       string         `json:"text,omitempty"`
}

type recommendationWire struct {
	Type        string   `json:"type"`
	Category    string   `json:"category"`
	ID          int      `json:"id"`
	PokemonID   int      `json:"pokemon_id"`
	Name        string   `json:"name"`
	EnergyType  string   `json:"energy_type"`
	ImageURL    string   `json:"image_url"`
	TCGImageURL string   `json:"tcg_image_url"`
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	Text        string   `json:"text"`
	Message     string   `json:"message"`
}

// UnmarshalJSON accepts both plain strings and structured suggestions.
func (r *RecommendationItem) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*r = RecommendationItem{Text: text}
		return nil
	}

	var wire recommendationWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	item := RecommendationItem{
		ID:         wire.ID,
		Name:       strings.TrimSpace(wire.Name),
		EnergyType: wire.EnergyType,
		ImageURL:   wire.ImageURL,
		Strengths:  wire.Strengths,
		Weaknesses: wire.Weaknesses,
		Text:       wire.Text,
	}
	if item.ID == 0 {
		item.ID = wire.PokemonID
	}
	if item.ImageURL == "" {
		item.ImageURL = wire.TCGImageURL
	}
	if item.Text == "" {
		item.Text = wire.Message
	}
	rawCategory := wire.Category
	if rawCategory == "" {
		rawCategory = wire.Type
	}
	if category, err := cards.ParseCategory(rawCategory); err == nil {
		item.Category = category
	}
	*r = item
	return nil
}

// ScoreSnapshot is the opaque server-computed deck strength output.
type ScoreSnapshot struct {
	Score           float64              `json:"score"`
	Recommendations []RecommendationItem `json:"recommendations"`
}

// Clone returns a copy with a non-nil recommendation slice.
func (s ScoreSnapshot) Clone() ScoreSnapshot {
	recommendations := make([]RecommendationItem, 0, len(s.Recommendations))
	recommendations = append(recommendations, s.Recommendations...)
	return ScoreSnapshot{Score: s.Score, Recommendations: recommendations}
}

// DeckView pairs a deck projection with its score snapshot, as returned by the
// Deck Service after a fetch or mutation.
type DeckView struct {
	Deck  PersistedDeck `json:"deck"`
	Score ScoreSnapshot `json:"score"`
}

// Mutation is the add-batch payload derived from a staged buffer.
type Mutation struct {
	CreatureIDs  []int    `json:"pokemon_ids"`
	TrainerNames []string `json:"trainer_names"`
	EnergyTypes  []string `json:"energy_types"`
}

// BuildMutation maps staged cards into the three parallel payload sequences.
// Energy types still missing are derived from the card name.
func BuildMutation(staged []cards.Card) Mutation {
	mutation := Mutation{
		CreatureIDs:  make([]int, 0),
		TrainerNames: make([]string, 0),
		EnergyTypes:  make([]string, 0),
	}
	for _, card := range staged {
		switch card.Category {
		case cards.CategoryCreature:
			mutation.CreatureIDs = append(mutation.CreatureIDs, card.ID)
		case cards.CategoryTrainer:
			mutation.TrainerNames = append(mutation.TrainerNames, strings.TrimSpace(card.Name))
		case cards.CategoryEnergy:
			energyType := strings.TrimSpace(card.EnergyType)
			if energyType == "" {
				energyType = cards.EnergyTypeFromName(card.Name)
			}
			mutation.EnergyTypes = append(mutation.EnergyTypes, energyType)
		}
	}
	return mutation
}
