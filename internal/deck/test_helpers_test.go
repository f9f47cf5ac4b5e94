package deck

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/auth"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/cards"
)

var errServiceDown = errors.New("service down")

// fakeDeckService keeps a server-side deck in memory and records calls.
type fakeDeckService struct {
	mu sync.Mutex

	view      DeckView
	mutations []Mutation
	deletes   []string
	getCalls  int

	getErr      error
	submitErr   error
	deleteErr   error
	creatureErr error
	creature    cards.Card
	nextID      int
}

func newFakeDeckService() *fakeDeckService {
	return &fakeDeckService{nextID: 100, view: DeckView{Deck: PersistedDeck{}.Clone(), Score: ScoreSnapshot{}.Clone()}}
}

func (f *fakeDeckService) GetDeck(context.Context, auth.Session) (DeckView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return DeckView{}, f.getErr
	}
	return cloneView(f.view), nil
}

func (f *fakeDeckService) SubmitDeckMutation(_ context.Context, _ auth.Session, mutation Mutation) (DeckView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return DeckView{}, f.submitErr
	}
	f.mutations = append(f.mutations, mutation)
	for _, id := range mutation.CreatureIDs {
		f.view.Deck.Creatures = append(f.view.Deck.Creatures, cards.Card{Category: cards.CategoryCreature, ID: id, Name: "creature-" + strconv.Itoa(id)})
	}
	for _, name := range mutation.TrainerNames {
		f.nextID++
		f.view.Deck.Trainers = append(f.view.Deck.Trainers, cards.Card{Category: cards.CategoryTrainer, ID: f.nextID, Name: name})
	}
	for _, energyType := range mutation.EnergyTypes {
		f.nextID++
		f.view.Deck.Energy = append(f.view.Deck.Energy, cards.Card{Category: cards.CategoryEnergy, ID: f.nextID, Name: energyType + " Energy", EnergyType: energyType})
	}
	f.view.Score = ScoreSnapshot{
		Score:           float64(f.view.Deck.Count()),
		Recommendations: []RecommendationItem{{Text: "keep going"}},
	}
	return DeckView{}, nil
}

func (f *fakeDeckService) DeleteCard(_ context.Context, _ auth.Session, category cards.Category, cardID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletes = append(f.deletes, category.String()+"/"+strconv.Itoa(cardID))
	f.view.Deck = f.view.Deck.withoutCard(category, cardID)
	return nil
}

func (f *fakeDeckService) GetCreature(_ context.Context, _ auth.Session, creatureID int) (cards.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.creatureErr != nil {
		return cards.Card{}, f.creatureErr
	}
	creature := f.creature.Clone()
	creature.ID = creatureID
	return creature, nil
}

// fakeProjectionCache stores views in memory.
type fakeProjectionCache struct {
	mu    sync.Mutex
	views map[string]DeckView
}

func newFakeProjectionCache() *fakeProjectionCache {
	return &fakeProjectionCache{views: make(map[string]DeckView)}
}

func (f *fakeProjectionCache) SaveDeckView(_ context.Context, accountKey string, view DeckView) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views[accountKey] = cloneView(view)
	return nil
}

func (f *fakeProjectionCache) LoadDeckView(_ context.Context, accountKey string) (DeckView, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	view, ok := f.views[accountKey]
	return cloneView(view), ok, nil
}

func testSession() auth.Session {
	return auth.NewSession("opaque-session-token")
}

func newReadyController(t *testing.T, service *fakeDeckService) *Controller {
	t.Helper()
	controller, err := NewController(ControllerConfig{DeckService: service})
	if err != nil {
		t.Fatalf("failed to build controller: %v", err)
	}
	if err := controller.Load(context.Background(), testSession()); err != nil {
		t.Fatalf("failed to load controller: %v", err)
	}
	return controller
}

func mustStage(t *testing.T, controller *Controller, card cards.Card) []cards.Card {
	t.Helper()
	staged, err := controller.Stage(testSession(), card)
	if err != nil {
		t.Fatalf("unexpected stage error for %s %q: %v", card.Category, card.Name, err)
	}
	return staged
}

func trainerCard(index int) cards.Card {
	return cards.Card{Category: cards.CategoryTrainer, Name: "Trainer " + strconv.Itoa(index)}
}

func energyCard(name string) cards.Card {
	return cards.Card{Category: cards.CategoryEnergy, Name: name}
}

func creatureCard(id int) cards.Card {
	return cards.Card{Category: cards.CategoryCreature, Name: "creature-" + strconv.Itoa(id), Ref: "https://pokeapi.co/api/v2/pokemon/" + strconv.Itoa(id) + "/"}
}
