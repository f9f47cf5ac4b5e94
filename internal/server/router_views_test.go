package server

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/cards"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/deck"
)

type viewPayload struct {
	ViewID string        `json:"view_id"`
	View   deck.Snapshot `json:"view"`
}

func stageBody(category, name, extra string) string {
	body := `{"category":"` + category + `","name":"` + name + `"`
	if extra != "" {
		body += "," + extra
	}
	return body + "}"
}

func TestCatalogEndpointsFilterListings(t *testing.T) {
	harness := newAPIHarness(t)

	recorder := harness.do(t, http.MethodGet, "/catalog/types", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected types status %d", recorder.Code)
	}
	var types struct {
		Types []string `json:"types"`
	}
	decodeBody(t, recorder, &types)
	if len(types.Types) != 2 {
		t.Fatalf("unexpected types %v", types.Types)
	}

	recorder = harness.do(t, http.MethodGet, "/catalog/creatures?search=PIKA", "", "")
	var creatures struct {
		Creatures []cards.Card `json:"creatures"`
	}
	decodeBody(t, recorder, &creatures)
	if len(creatures.Creatures) != 1 || creatures.Creatures[0].ID != 25 {
		t.Fatalf("unexpected creatures %#v", creatures.Creatures)
	}

	recorder = harness.do(t, http.MethodGet, "/catalog/trainers?rarity=Common", "", "")
	var trainers struct {
		Trainers []cards.Card `json:"trainers"`
		Rarities []string     `json:"rarities"`
	}
	decodeBody(t, recorder, &trainers)
	if len(trainers.Trainers) != 2 || len(trainers.Rarities) != 2 || trainers.Rarities[0] != "Common" {
		t.Fatalf("unexpected trainers %#v", trainers)
	}

	recorder = harness.do(t, http.MethodGet, "/catalog/energy?energy_type=Fire", "", "")
	var energy struct {
		Energy      []cards.Card `json:"energy"`
		EnergyTypes []string     `json:"energy_types"`
	}
	decodeBody(t, recorder, &energy)
	if len(energy.Energy) != 1 || energy.Energy[0].Name != "Fire Energy" || len(energy.EnergyTypes) != 2 {
		t.Fatalf("unexpected energy %#v", energy)
	}

	recorder = harness.do(t, http.MethodGet, "/catalog/creatures/detail?ref=pokemon/25", "", "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for relative ref, got %d", recorder.Code)
	}
}

func TestViewStageAndSubmitEndToEnd(t *testing.T) {
	harness := newAPIHarness(t)
	viewID := harness.openView(t, ashToken)
	base := "/views/" + viewID

	recorder := harness.do(t, http.MethodPost, base+"/staged", ashToken,
		stageBody("pokemon", "pikachu", `"url":"https://pokeapi.co/api/v2/pokemon/25/"`))
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected stage status %d: %s", recorder.Code, recorder.Body.String())
	}
	var staged struct {
		Staged []cards.Card `json:"staged"`
	}
	decodeBody(t, recorder, &staged)
	if staged.Staged[0].ID != 25 || staged.Staged[0].Category != cards.CategoryCreature {
		t.Fatalf("expected creature 25, got %#v", staged.Staged[0])
	}

	for index := 0; index < deck.MaxPerCategory; index++ {
		recorder = harness.do(t, http.MethodPost, base+"/staged", ashToken, stageBody("trainer", "Trainer "+strconv.Itoa(index), ""))
		if recorder.Code != http.StatusOK {
			t.Fatalf("unexpected stage status %d for trainer %d", recorder.Code, index)
		}
	}
	recorder = harness.do(t, http.MethodPost, base+"/staged", ashToken, stageBody("trainer", "One Too Many", ""))
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected conflict for 21st trainer, got %d", recorder.Code)
	}
	var rejection struct {
		Error    string `json:"error"`
		Category string `json:"category"`
		Limit    int    `json:"limit"`
	}
	decodeBody(t, recorder, &rejection)
	if rejection.Error != "category_full" || rejection.Category != "trainer" || rejection.Limit != deck.MaxPerCategory {
		t.Fatalf("unexpected rejection %#v", rejection)
	}

	recorder = harness.do(t, http.MethodPost, base+"/submit", ashToken, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected submit status %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = harness.do(t, http.MethodGet, base, ashToken, "")
	var view viewPayload
	decodeBody(t, recorder, &view)
	if len(view.View.Staged) != 0 {
		t.Fatalf("expected empty buffer, got %d", len(view.View.Staged))
	}
	if len(view.View.Deck.Creatures) != 1 || view.View.Deck.Creatures[0].ID != 25 {
		t.Fatalf("unexpected creatures %#v", view.View.Deck.Creatures)
	}
	if len(view.View.Deck.Trainers) != deck.MaxPerCategory {
		t.Fatalf("expected %d trainers, got %d", deck.MaxPerCategory, len(view.View.Deck.Trainers))
	}
	if view.View.Score.Score != 31.5 || len(view.View.Score.Recommendations) != 2 {
		t.Fatalf("unexpected score %#v", view.View.Score)
	}
}

func TestViewSubmitFailureKeepsBuffer(t *testing.T) {
	harness := newAPIHarness(t)
	viewID := harness.openView(t, ashToken)
	base := "/views/" + viewID

	harness.do(t, http.MethodPost, base+"/staged", ashToken, stageBody("energy", "Fire Energy", ""))
	harness.upstream.setFailures(true, false)

	recorder := harness.do(t, http.MethodPost, base+"/submit", ashToken, "")
	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("expected bad gateway, got %d", recorder.Code)
	}
	var failure struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	decodeBody(t, recorder, &failure)
	if failure.Error != "submit_failed" || failure.Code != "deck.submit.mutation_failed" {
		t.Fatalf("unexpected failure %#v", failure)
	}

	recorder = harness.do(t, http.MethodGet, base, ashToken, "")
	var view viewPayload
	decodeBody(t, recorder, &view)
	if len(view.View.Staged) != 1 || view.View.Staged[0].EnergyType != "Fire" {
		t.Fatalf("expected buffer to be retained, got %#v", view.View.Staged)
	}
}

func TestViewDeleteCard(t *testing.T) {
	harness := newAPIHarness(t)
	viewID := harness.openView(t, ashToken)
	base := "/views/" + viewID

	harness.do(t, http.MethodPost, base+"/staged", ashToken, stageBody("creature", "pikachu", `"id":25`))
	harness.do(t, http.MethodPost, base+"/staged", ashToken, stageBody("creature", "charmander", `"id":4`))
	if recorder := harness.do(t, http.MethodPost, base+"/submit", ashToken, ""); recorder.Code != http.StatusOK {
		t.Fatalf("submit failed: %d", recorder.Code)
	}

	harness.upstream.setFailures(false, true)
	recorder := harness.do(t, http.MethodDelete, base+"/deck/pokemon/25", ashToken, "")
	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("expected bad gateway, got %d", recorder.Code)
	}
	var view viewPayload
	decodeBody(t, harness.do(t, http.MethodGet, base, ashToken, ""), &view)
	if len(view.View.Deck.Creatures) != 2 {
		t.Fatalf("failed delete must leave deck untouched, got %#v", view.View.Deck.Creatures)
	}

	harness.upstream.setFailures(false, false)
	recorder = harness.do(t, http.MethodDelete, base+"/deck/pokemon/25", ashToken, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected delete status %d", recorder.Code)
	}
	var remaining struct {
		Deck deck.PersistedDeck `json:"deck"`
	}
	decodeBody(t, recorder, &remaining)
	if len(remaining.Deck.Creatures) != 1 || remaining.Deck.Creatures[0].ID != 4 {
		t.Fatalf("unexpected remaining creatures %#v", remaining.Deck.Creatures)
	}

	for _, path := range []string{base + "/deck/stadium/1", base + "/deck/pokemon/abc", base + "/deck/pokemon/0"} {
		if recorder := harness.do(t, http.MethodDelete, path, ashToken, ""); recorder.Code != http.StatusBadRequest {
			t.Fatalf("expected bad request for %s, got %d", path, recorder.Code)
		}
	}
}

func TestViewStageRecommendation(t *testing.T) {
	harness := newAPIHarness(t)
	viewID := harness.openView(t, ashToken)

	recorder := harness.do(t, http.MethodPost, "/views/"+viewID+"/staged/recommendation", ashToken,
		`{"type":"pokemon","pokemon_id":7,"name":"squirtle"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	var staged struct {
		Staged []cards.Card `json:"staged"`
	}
	decodeBody(t, recorder, &staged)
	if staged.Staged[0].ID != 7 || len(staged.Staged[0].Strengths) != 1 || staged.Staged[0].Weaknesses[0] != "Grass" {
		t.Fatalf("unexpected staged recommendation %#v", staged.Staged[0])
	}

	recorder = harness.do(t, http.MethodPost, "/views/"+viewID+"/staged/recommendation", ashToken, `"Add more energy."`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for advice-only recommendation, got %d", recorder.Code)
	}
}

func TestViewRejectsInvalidCards(t *testing.T) {
	harness := newAPIHarness(t)
	viewID := harness.openView(t, ashToken)
	base := "/views/" + viewID

	testCases := []string{
		stageBody("stadium", "Path to the Peak", ""),
		stageBody("creature", "missingno", ""),
		stageBody("trainer", "   ", ""),
		`{"category":`,
	}
	for _, body := range testCases {
		recorder := harness.do(t, http.MethodPost, base+"/staged", ashToken, body)
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("expected bad request for %s, got %d", body, recorder.Code)
		}
	}
}

func TestViewsAreBoundToTheirAccount(t *testing.T) {
	harness := newAPIHarness(t)
	viewID := harness.openView(t, ashToken)
	base := "/views/" + viewID

	if recorder := harness.do(t, http.MethodGet, base, mistyToken, ""); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found for other account, got %d", recorder.Code)
	}
	if recorder := harness.do(t, http.MethodPost, base+"/staged", mistyToken, stageBody("trainer", "Switch", "")); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found for other account, got %d", recorder.Code)
	}
	if recorder := harness.do(t, http.MethodGet, base, "", ""); recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized without session, got %d", recorder.Code)
	}
	if recorder := harness.do(t, http.MethodDelete, base, mistyToken, ""); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found when closing another account's view, got %d", recorder.Code)
	}

	if recorder := harness.do(t, http.MethodDelete, base, ashToken, ""); recorder.Code != http.StatusNoContent {
		t.Fatalf("expected no content on close, got %d", recorder.Code)
	}
	if recorder := harness.do(t, http.MethodGet, base, ashToken, ""); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected closed view to be gone, got %d", recorder.Code)
	}
	if harness.views.Len() != 0 {
		t.Fatalf("expected empty registry")
	}
}
