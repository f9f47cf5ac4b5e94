package catalog

import (
	"strings"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/cards"
)

const noDescription = "No description available."

// CreatureDetail is the expanded creature view shown next to the catalog.
type CreatureDetail struct {
	ID          int            `json:"id"`
	Name        string         `json:"name"`
	ImageURL    string         `json:"image_url,omitempty"`
	Stats       map[string]int `json:"stats"`
	Types       []string       `json:"types"`
	Moves       []string       `json:"moves"`
	Description string         `json:"description"`
}

type namedResource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type namedResourceList struct {
	Results []namedResource `json:"results"`
}

type typeResponse struct {
	Pokemon []struct {
		Pokemon namedResource `json:"pokemon"`
	} `json:"pokemon"`
}

type trainerPayload struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	TCGRarity   string `json:"tcg_rarity"`
	TCGSet      string `json:"tcg_set"`
	TCGImageURL string `json:"tcg_image_url"`
}

type energyPayload struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	EnergyType  string `json:"energy_type"`
	TCGImageURL string `json:"tcg_image_url"`
}

type creaturePayload struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Stats []struct {
		BaseStat int           `json:"base_stat"`
		Stat     namedResource `json:"stat"`
	} `json:"stats"`
	Types []struct {
		Slot int           `json:"slot"`
		Type namedResource `json:"type"`
	} `json:"types"`
	Moves []struct {
		Move namedResource `json:"move"`
	} `json:"moves"`
	Species namedResource `json:"species"`
	Sprites struct {
		FrontDefault string `json:"front_default"`
	} `json:"sprites"`
}

type speciesPayload struct {
	FlavorTextEntries []struct {
		FlavorText string        `json:"flavor_text"`
		Language   namedResource `json:"language"`
	} `json:"flavor_text_entries"`
}

func creaturesFromResources(resources []namedResource) []cards.Card {
	result := make([]cards.Card, 0, len(resources))
	for _, resource := range resources {
		card := cards.Card{
			Category: cards.CategoryCreature,
			Name:     strings.TrimSpace(resource.Name),
			Ref:      resource.URL,
		}
		if id, err := cards.IDFromRef(resource.URL); err == nil {
			card.ID = id
		}
		result = append(result, card)
	}
	return result
}

func trainersFromPayload(payloads []trainerPayload) []cards.Card {
	result := make([]cards.Card, 0, len(payloads))
	for _, payload := range payloads {
		result = append(result, cards.Card{
			Category: cards.CategoryTrainer,
			ID:       payload.ID,
			Name:     strings.TrimSpace(payload.Name),
			Rarity:   payload.TCGRarity,
			SetName:  payload.TCGSet,
			ImageURL: payload.TCGImageURL,
		})
	}
	return result
}

func energyFromPayload(payloads []energyPayload) []cards.Card {
	result := make([]cards.Card, 0, len(payloads))
	for _, payload := range payloads {
		card := cards.Card{
			Category:   cards.CategoryEnergy,
			ID:         payload.ID,
			Name:       strings.TrimSpace(payload.Name),
			EnergyType: strings.TrimSpace(payload.EnergyType),
			ImageURL:   payload.TCGImageURL,
		}
		if card.EnergyType == "" {
			card.EnergyType = cards.EnergyTypeFromName(card.Name)
		}
		result = append(result, card)
	}
	return result
}

func (p creaturePayload) toDetail(description string) CreatureDetail {
	detail := CreatureDetail{
		ID:          p.ID,
		Name:        p.Name,
		ImageURL:    p.Sprites.FrontDefault,
		Stats:       make(map[string]int, len(p.Stats)),
		Types:       make([]string, 0, len(p.Types)),
		Moves:       make([]string, 0, len(p.Moves)),
		Description: description,
	}
	for _, stat := range p.Stats {
		detail.Stats[stat.Stat.Name] = stat.BaseStat
	}
	for _, entry := range p.Types {
		detail.Types = append(detail.Types, entry.Type.Name)
	}
	for _, entry := range p.Moves {
		detail.Moves = append(detail.Moves, entry.Move.Name)
	}
	return detail
}

// englishFlavorText returns the first English entry with layout whitespace
// (newlines, form feeds) collapsed to single spaces.
func (s speciesPayload) englishFlavorText() string {
	for _, entry := range s.FlavorTextEntries {
		if entry.Language.Name == "en" {
			text := strings.Join(strings.Fields(entry.FlavorText), " ")
			if text != "" {
				return text
			}
		}
	}
	return noDescription
}
