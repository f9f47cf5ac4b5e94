package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/catalog"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/deckservice"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ashToken   = "ash-opaque-token"
	mistyToken = "misty-opaque-token"
)

type upstreamCard struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	EnergyType string `json:"energy_type,omitempty"`
}

// fakeUpstream plays both the Deck Service and the public creature catalog.
type fakeUpstream struct {
	mu         sync.Mutex
	server     *httptest.Server
	decks      map[string]map[string][]upstreamCard
	nextID     int
	failSubmit bool
	failDelete bool
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	upstream := &fakeUpstream{decks: make(map[string]map[string][]upstreamCard), nextID: 1000}
	upstream.server = httptest.NewServer(http.HandlerFunc(upstream.serveHTTP))
	t.Cleanup(upstream.server.Close)
	return upstream
}

func (u *fakeUpstream) serveHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/api/v2/type":
		_, _ = io.WriteString(w, `{"results":[{"name":"electric"},{"name":"fire"}]}`)
		return
	case r.URL.Path == "/api/v2/pokemon":
		_, _ = io.WriteString(w, `{"results":[{"name":"bulbasaur","url":"`+u.server.URL+`/api/v2/pokemon/1/"},{"name":"pikachu","url":"`+u.server.URL+`/api/v2/pokemon/25/"}]}`)
		return
	case r.URL.Path == "/tcg/external/trainers":
		_, _ = io.WriteString(w, `[{"id":1,"name":"Switch","tcg_rarity":"Common"},{"id":2,"name":"Boss's Orders","tcg_rarity":"Rare"},{"id":3,"name":"Professor's Research","tcg_rarity":"Common"}]`)
		return
	case r.URL.Path == "/tcg/cached/energy":
		_, _ = io.WriteString(w, `[{"id":1,"name":"Fire Energy"},{"id":2,"name":"Water Energy","energy_type":"Water"}]`)
		return
	}

	account := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if account == "" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Not authenticated"}`)
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	accountDeck := u.deckFor(account)

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/deck":
		u.writeDeck(w, accountDeck)
	case r.Method == http.MethodPost && r.URL.Path == "/deck":
		if u.failSubmit {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"detail":"database unavailable"}`)
			return
		}
		var payload struct {
			PokemonIDs   []int    `json:"pokemon_ids"`
			TrainerNames []string `json:"trainer_names"`
			EnergyTypes  []string `json:"energy_types"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, id := range payload.PokemonIDs {
			accountDeck["pokemon"] = append(accountDeck["pokemon"], upstreamCard{ID: id, Name: "creature-" + strconv.Itoa(id)})
		}
		for _, name := range payload.TrainerNames {
			u.nextID++
			accountDeck["trainers"] = append(accountDeck["trainers"], upstreamCard{ID: u.nextID, Name: name})
		}
		for _, energyType := range payload.EnergyTypes {
			u.nextID++
			accountDeck["energy"] = append(accountDeck["energy"], upstreamCard{ID: u.nextID, Name: energyType + " Energy", EnergyType: energyType})
		}
		_, _ = io.WriteString(w, `{"message":"Deck updated successfully"}`)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/deck/"):
		if u.failDelete {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/deck/"), "/")
		key := map[string]string{"pokemon": "pokemon", "trainer": "trainers", "energy": "energy"}[parts[0]]
		id, _ := strconv.Atoi(parts[1])
		kept := make([]upstreamCard, 0)
		for _, card := range accountDeck[key] {
			if card.ID != id {
				kept = append(kept, card)
			}
		}
		accountDeck[key] = kept
		_, _ = io.WriteString(w, `{"message":"removed"}`)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/pokemon/"):
		id := strings.TrimPrefix(r.URL.Path, "/pokemon/")
		_, _ = io.WriteString(w, `{"id":`+id+`,"name":"creature-`+id+`","strengths":["Water"],"weaknesses":["Grass"]}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (u *fakeUpstream) deckFor(account string) map[string][]upstreamCard {
	accountDeck, ok := u.decks[account]
	if !ok {
		accountDeck = map[string][]upstreamCard{"pokemon": {}, "trainers": {}, "energy": {}}
		u.decks[account] = accountDeck
	}
	return accountDeck
}

func (u *fakeUpstream) writeDeck(w http.ResponseWriter, accountDeck map[string][]upstreamCard) {
	count := len(accountDeck["pokemon"]) + len(accountDeck["trainers"]) + len(accountDeck["energy"])
	_ = json.NewEncoder(w).Encode(map[string]any{
		"deck":            accountDeck,
		"deck_score":      float64(count) * 1.5,
		"recommendations": []any{"Consider adding at least one Trainer card.", map[string]any{"type": "pokemon", "pokemon_id": 7, "name": "squirtle"}},
	})
}

func (u *fakeUpstream) setFailures(submit, remove bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failSubmit = submit
	u.failDelete = remove
}

type apiHarness struct {
	upstream *fakeUpstream
	views    *ViewRegistry
	realtime *RealtimeDispatcher
	handler  http.Handler
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	upstream := newFakeUpstream(t)

	deckClient, err := deckservice.NewClient(deckservice.ClientConfig{BaseURL: upstream.server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("failed to build deck service client: %v", err)
	}
	catalogClient, err := catalog.NewClient(catalog.ClientConfig{
		PokeAPIBaseURL:     upstream.server.URL + "/api/v2",
		DeckServiceBaseURL: upstream.server.URL,
		RateInterval:       time.Millisecond,
		MaxRetries:         -1,
	})
	if err != nil {
		t.Fatalf("failed to build catalog client: %v", err)
	}

	views := NewViewRegistry(nil)
	realtime := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		Catalog:           catalogClient,
		DeckService:       deckClient,
		Views:             views,
		Realtime:          realtime,
		AllowedOrigins:    []string{"*"},
		HeartbeatInterval: time.Hour,
		Logger:            zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return &apiHarness{upstream: upstream, views: views, realtime: realtime, handler: handler}
}

func (h *apiHarness) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	request := httptest.NewRequest(method, path, reader)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	return recorder
}

func (h *apiHarness) openView(t *testing.T, token string) string {
	t.Helper()
	recorder := h.do(t, http.MethodPost, "/views", token, "")
	if recorder.Code != http.StatusCreated {
		t.Fatalf("failed to open view: %d %s", recorder.Code, recorder.Body.String())
	}
	var response struct {
		ViewID string `json:"view_id"`
	}
	decodeBody(t, recorder, &response)
	if response.ViewID == "" {
		t.Fatalf("expected view id")
	}
	return response.ViewID
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode body %q: %v", recorder.Body.String(), err)
	}
}
