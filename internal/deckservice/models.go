package deckservice

import (
	"strings"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/cards"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/deck"
)

type deckResponse struct {
	Deck            deckPayload               `json:"deck"`
	DeckScore       *float64                  `json:"deck_score"`
	Score           *float64                  `json:"score"`
	Recommendations []deck.RecommendationItem `json:"recommendations"`
}

type deckPayload struct {
	Pokemon  []cardPayload `json:"pokemon"`
	Trainers []cardPayload `json:"trainers"`
	Energy   []cardPayload `json:"energy"`
}

type cardPayload struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	ImageURL    string   `json:"image_url"`
	TCGImageURL string   `json:"tcg_image_url"`
	TCGSet      string   `json:"tcg_set"`
	TCGRarity   string   `json:"tcg_rarity"`
	EnergyType  string   `json:"energy_type"`
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
}

type creatureResponse struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	ImageURL   string   `json:"image_url"`
	Types      []string `json:"types"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

func (r deckResponse) toView() deck.DeckView {
	score := 0.0
	switch {
	case r.DeckScore != nil:
		score = *r.DeckScore
	case r.Score != nil:
		score = *r.Score
	}
	recommendations := make([]deck.RecommendationItem, 0, len(r.Recommendations))
	recommendations = append(recommendations, r.Recommendations...)
	return deck.DeckView{
		Deck: deck.PersistedDeck{
			Creatures: toCards(cards.CategoryCreature, r.Deck.Pokemon),
			Trainers:  toCards(cards.CategoryTrainer, r.Deck.Trainers),
			Energy:    toCards(cards.CategoryEnergy, r.Deck.Energy),
		},
		Score: deck.ScoreSnapshot{
			Score:           score,
			Recommendations: recommendations,
		},
	}
}

func toCards(category cards.Category, payloads []cardPayload) []cards.Card {
	result := make([]cards.Card, 0, len(payloads))
	for _, payload := range payloads {
		card := cards.Card{
			Category:   category,
			ID:         payload.ID,
			Name:       strings.TrimSpace(payload.Name),
			ImageURL:   payload.ImageURL,
			Strengths:  payload.Strengths,
			Weaknesses: payload.Weaknesses,
		}
		if card.ImageURL == "" {
			card.ImageURL = payload.TCGImageURL
		}
		switch category {
		case cards.CategoryTrainer:
			card.SetName = payload.TCGSet
			card.Rarity = payload.TCGRarity
		case cards.CategoryEnergy:
			card.SetName = payload.TCGSet
			card.Rarity = payload.TCGRarity
			card.EnergyType = payload.EnergyType
			if card.EnergyType == "" {
				card.EnergyType = cards.EnergyTypeFromName(card.Name)
			}
		}
		result = append(result, card)
	}
	return result
}
