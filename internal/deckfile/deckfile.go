// Package deckfile reads and writes decks as YAML documents and renders them
// for terminals.
package deckfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/cards"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/deck"
	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// ErrInvalidEntry indicates a deck file entry that cannot become a card.
var ErrInvalidEntry = errors.New("deckfile: invalid entry")

// File is the top-level YAML structure of a deck file.
type File struct {
	Name      string  `yaml:"name,omitempty"`
	Creatures []Entry `yaml:"creatures,omitempty"`
	Trainers  []Entry `yaml:"trainers,omitempty"`
	Energy    []Entry `yaml:"energy,omitempty"`
}

// Entry is a card and how many copies of it the deck holds. A missing count
// means one copy.
type Entry struct {
	ID         int    `yaml:"id,omitempty"`
	Name       string `yaml:"name"`
	EnergyType string `yaml:"energy_type,omitempty"`
	Count      int    `yaml:"count,omitempty"`
}

// Parse decodes a YAML deck file.
func Parse(data []byte) (File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return File{}, fmt.Errorf("parse deck YAML: %w", err)
	}
	return file, nil
}

// ReadFile loads and parses the deck file at path.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return Parse(data)
}

// Marshal encodes the deck file as YAML.
func Marshal(file File) ([]byte, error) {
	return yaml.Marshal(file)
}

// Cards expands every entry into normalized cards in file order: creatures,
// then trainers, then energy. No entry may exceed the per-category capacity
// and the expansion never exceeds a full deck.
func (f File) Cards() ([]cards.Card, error) {
	expanded := make([]cards.Card, 0)
	sections := []struct {
		category cards.Category
		entries  []Entry
	}{
		{category: cards.CategoryCreature, entries: f.Creatures},
		{category: cards.CategoryTrainer, entries: f.Trainers},
		{category: cards.CategoryEnergy, entries: f.Energy},
	}
	for _, section := range sections {
		for index, entry := range section.entries {
			copies := entry.Count
			if copies == 0 {
				copies = 1
			}
			if copies < 0 {
				return nil, fmt.Errorf("%w: %s entry %d has negative count", ErrInvalidEntry, section.category, index+1)
			}
			if copies > deck.MaxPerCategory {
				return nil, fmt.Errorf("%w: %s entry %d count %d exceeds %d", ErrInvalidEntry, section.category, index+1, copies, deck.MaxPerCategory)
			}
			if len(expanded)+copies > deck.MaxDeckSize {
				return nil, fmt.Errorf("%w: %s entry %d exceeds the %d card deck", ErrInvalidEntry, section.category, index+1, deck.MaxDeckSize)
			}
			card, err := cards.Normalize(cards.Card{
				Category:   section.category,
				ID:         entry.ID,
				Name:       entry.Name,
				EnergyType: entry.EnergyType,
			})
			if err != nil {
				return nil, fmt.Errorf("%w: %s entry %d: %w", ErrInvalidEntry, section.category, index+1, err)
			}
			for copyIndex := 0; copyIndex < copies; copyIndex++ {
				expanded = append(expanded, card.Clone())
			}
		}
	}
	return expanded, nil
}

// FromDeck collapses a persisted deck into a deck file, counting identical
// cards together in first-seen order.
func FromDeck(name string, persisted deck.PersistedDeck) File {
	return File{
		Name:      name,
		Creatures: collapse(persisted.Creatures, func(card cards.Card) Entry { return Entry{ID: card.ID, Name: card.Name} }),
		Trainers:  collapse(persisted.Trainers, func(card cards.Card) Entry { return Entry{Name: card.Name} }),
		Energy:    collapse(persisted.Energy, func(card cards.Card) Entry { return Entry{Name: card.Name, EnergyType: card.EnergyType} }),
	}
}

func collapse(source []cards.Card, key func(cards.Card) Entry) []Entry {
	entries := make([]Entry, 0, len(source))
	positions := make(map[Entry]int, len(source))
	for _, card := range source {
		entry := key(card)
		if position, ok := positions[entry]; ok {
			entries[position].Count++
			continue
		}
		positions[entry] = len(entries)
		entry.Count = 1
		entries = append(entries, entry)
	}
	return entries
}

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	scoreColor   = color.New(color.FgGreen, color.Bold)
	adviceColor  = color.New(color.FgYellow)
)

// Render writes a human readable summary of the deck, its score and the
// recommendations.
func Render(w io.Writer, view deck.DeckView) error {
	file := FromDeck("", view.Deck)
	sections := []struct {
		title   string
		entries []Entry
	}{
		{title: "Creatures", entries: file.Creatures},
		{title: "Trainers", entries: file.Trainers},
		{title: "Energy", entries: file.Energy},
	}
	for _, section := range sections {
		if _, err := headingColor.Fprintf(w, "%s (%d)\n", section.title, total(section.entries)); err != nil {
			return err
		}
		for _, entry := range section.entries {
			if _, err := fmt.Fprintf(w, "  %dx %s\n", entry.Count, describe(entry)); err != nil {
				return err
			}
		}
	}
	if _, err := scoreColor.Fprintf(w, "Score: %.1f\n", view.Score.Score); err != nil {
		return err
	}
	for _, item := range view.Score.Recommendations {
		if _, err := adviceColor.Fprintf(w, "  * %s\n", describeRecommendation(item)); err != nil {
			return err
		}
	}
	return nil
}

func total(entries []Entry) int {
	count := 0
	for _, entry := range entries {
		count += entry.Count
	}
	return count
}

func describe(entry Entry) string {
	if entry.ID != 0 {
		return fmt.Sprintf("%s #%d", entry.Name, entry.ID)
	}
	return entry.Name
}

func describeRecommendation(item deck.RecommendationItem) string {
	if item.Name == "" {
		return item.Text
	}
	parts := []string{item.Name}
	if item.Category != "" {
		parts = append(parts, "("+item.Category.String()+")")
	}
	if item.Text != "" {
		parts = append(parts, "- "+item.Text)
	}
	return strings.Join(parts, " ")
}
