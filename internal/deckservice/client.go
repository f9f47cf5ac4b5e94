package deckservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/auth"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/cards"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/deck"
	"go.uber.org/zap"
)

const (
	defaultTimeout  = 30 * time.Second
	maxErrorBodyLen = 512
)

var (
	// ErrInvalidConfig indicates an unusable client configuration.
	ErrInvalidConfig = errors.New("deckservice: invalid config")
	// ErrUnavailable indicates a transport failure reaching the Deck Service.
	ErrUnavailable = errors.New("deckservice: unavailable")
	// ErrNotFound indicates the Deck Service has no such resource.
	ErrNotFound = errors.New("deckservice: not found")
)

// StatusError reports a non-success HTTP response.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("deckservice: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("deckservice: unexpected status %d: %s", e.StatusCode, e.Detail)
}

// Is maps auth and lookup failures onto the package sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case auth.ErrUnauthenticated:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	default:
		return false
	}
}

// ClientConfig configures the Deck Service client.
type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Client talks to the first-party deck persistence service. Every call
// carries the caller's session as a bearer credential.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient validates the configuration and constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	rawBaseURL := strings.TrimSpace(cfg.BaseURL)
	if rawBaseURL == "" {
		return nil, fmt.Errorf("%w: base url required", ErrInvalidConfig)
	}
	baseURL, err := url.Parse(strings.TrimRight(rawBaseURL, "/"))
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("%w: base url %q is not absolute", ErrInvalidConfig, rawBaseURL)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// GetDeck fetches the persisted deck with its score and recommendations.
func (c *Client) GetDeck(ctx context.Context, session auth.Session) (deck.DeckView, error) {
	var response deckResponse
	if err := c.do(ctx, session, http.MethodGet, "/deck", nil, &response); err != nil {
		return deck.DeckView{}, fmt.Errorf("get deck: %w", err)
	}
	return response.toView(), nil
}

// SubmitDeckMutation adds the batch of staged cards to the persisted deck.
func (c *Client) SubmitDeckMutation(ctx context.Context, session auth.Session, mutation deck.Mutation) (deck.DeckView, error) {
	var response deckResponse
	if err := c.do(ctx, session, http.MethodPost, "/deck", mutation, &response); err != nil {
		return deck.DeckView{}, fmt.Errorf("submit deck mutation: %w", err)
	}
	return response.toView(), nil
}

// DeleteCard removes one card from the persisted deck.
func (c *Client) DeleteCard(ctx context.Context, session auth.Session, category cards.Category, cardID int) error {
	segment, err := categoryPathSegment(category)
	if err != nil {
		return err
	}
	path := "/deck/" + segment + "/" + strconv.Itoa(cardID)
	if err := c.do(ctx, session, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete %s %d: %w", category, cardID, err)
	}
	return nil
}

// GetCreature fetches creature detail including type matchups.
func (c *Client) GetCreature(ctx context.Context, session auth.Session, creatureID int) (cards.Card, error) {
	var response creatureResponse
	if err := c.do(ctx, session, http.MethodGet, "/pokemon/"+strconv.Itoa(creatureID), nil, &response); err != nil {
		return cards.Card{}, fmt.Errorf("get creature %d: %w", creatureID, err)
	}
	return cards.Card{
		Category:   cards.CategoryCreature,
		ID:         response.ID,
		Name:       response.Name,
		ImageURL:   response.ImageURL,
		Strengths:  response.Strengths,
		Weaknesses: response.Weaknesses,
	}, nil
}

func (c *Client) do(ctx context.Context, session auth.Session, method, path string, body any, result any) error {
	if !session.Present() {
		return fmt.Errorf("%w: %w", auth.ErrUnauthenticated, auth.ErrMissingSessionToken)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	endpoint := c.baseURL.String() + path
	request, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Authorization", session.AuthorizationHeader())
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyLen))
		statusErr := &StatusError{StatusCode: response.StatusCode, Detail: extractDetail(detail)}
		c.logger.Debug("deck service rejected request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", response.StatusCode))
		return statusErr
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(result); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func categoryPathSegment(category cards.Category) (string, error) {
	switch category {
	case cards.CategoryCreature:
		return "pokemon", nil
	case cards.CategoryTrainer:
		return "trainer", nil
	case cards.CategoryEnergy:
		return "energy", nil
	default:
		return "", cards.ErrInvalidCategory
	}
}

func extractDetail(body []byte) string {
	var payload struct {
		Detail  any    `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Error != "":
			return payload.Error
		case payload.Message != "":
			return payload.Message
		case payload.Detail != nil:
			if text, ok := payload.Detail.(string); ok {
				return text
			}
		}
	}
	return strings.TrimSpace(string(body))
}
