package deck

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/auth"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/cards"
	"go.uber.org/zap"
)

var noOpLogger = zap.NewNop()

// State tracks the controller lifecycle for one view session.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
)

// DeckService is the authenticated persistence backend for decks.
type DeckService interface {
	GetDeck(ctx context.Context, session auth.Session) (DeckView, error)
	SubmitDeckMutation(ctx context.Context, session auth.Session, mutation Mutation) (DeckView, error)
	DeleteCard(ctx context.Context, session auth.Session, category cards.Category, cardID int) error
	GetCreature(ctx context.Context, session auth.Session, creatureID int) (cards.Card, error)
}

// SessionValidator rejects sessions that cannot be used for deck operations.
type SessionValidator interface {
	Validate(session auth.Session) (auth.SessionClaims, error)
}

// ProjectionCache persists the last known deck projection per account.
type ProjectionCache interface {
	SaveDeckView(ctx context.Context, accountKey string, view DeckView) error
	LoadDeckView(ctx context.Context, accountKey string) (DeckView, bool, error)
}

// ChangeKind names the mutation that produced a Change.
type ChangeKind string

const (
	ChangeSubmitted ChangeKind = "submitted"
	ChangeDeleted   ChangeKind = "deleted"
)

// Change describes an applied mutation, delivered to the ChangeListener.
type Change struct {
	Kind     ChangeKind
	Category cards.Category
	CardID   int
	View     DeckView
}

// ChangeListener is notified after each successful mutation.
type ChangeListener func(Change)

// ControllerConfig describes the dependencies of a Controller.
type ControllerConfig struct {
	DeckService DeckService
	Validator   SessionValidator
	Cache       ProjectionCache
	Listener    ChangeListener
	Logger      *zap.Logger
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	State  State         `json:"state"`
	Staged []cards.Card  `json:"staged"`
	Deck   PersistedDeck `json:"deck"`
	Score  ScoreSnapshot `json:"score"`
}

// Controller owns the staged buffer and the cached deck projection of one
// view session. All capacity checks happen locally before any network call.
//
// mu guards the fields below it. mutations serializes Load, Submit and Delete
// so that responses are applied in the order their requests were issued.
type Controller struct {
	service   DeckService
	validator SessionValidator
	cache     ProjectionCache
	listener  ChangeListener
	logger    *zap.Logger

	mutations sync.Mutex

	mu     sync.Mutex
	state  State
	staged []cards.Card
	deck   PersistedDeck
	score  ScoreSnapshot
}

// NewController constructs an uninitialized controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.DeckService == nil {
		return nil, newOperationError(opControllerNew, "missing_deck_service", errMissingDeckService)
	}
	validator := cfg.Validator
	if validator == nil {
		validator = auth.NewSessionValidator(auth.SessionValidatorConfig{})
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Controller{
		service:   cfg.DeckService,
		validator: validator,
		cache:     cfg.Cache,
		listener:  cfg.Listener,
		logger:    logger,
		state:     StateUninitialized,
		staged:    make([]cards.Card, 0),
		deck:      PersistedDeck{}.Clone(),
		score:     ScoreSnapshot{}.Clone(),
	}, nil
}

// Load fetches the persisted deck and score. A controller that is already
// ready keeps its state when a reload fails. An uninitialized controller falls
// back to the cached projection of the account when the fetch fails for any
// reason other than authentication.
func (c *Controller) Load(ctx context.Context, session auth.Session) error {
	if _, err := c.validator.Validate(session); err != nil {
		return err
	}
	accountKey := session.AccountKey()

	c.mutations.Lock()
	defer c.mutations.Unlock()

	c.mu.Lock()
	previous := c.state
	if previous != StateReady {
		c.state = StateLoading
	}
	c.mu.Unlock()

	view, err := c.service.GetDeck(ctx, session)
	if err != nil {
		c.logError(opLoad, "fetch_failed", err, zap.String("session", session.Fingerprint()))
		if previous != StateReady && !isUnauthenticated(err) {
			if cached, ok := c.loadCached(ctx, accountKey); ok {
				c.apply(cached, nil)
				c.logger.Info("deck restored from cache", zap.String("session", session.Fingerprint()))
				return nil
			}
		}
		c.mu.Lock()
		c.state = previous
		c.mu.Unlock()
		return newOperationError(opLoad, "fetch_failed", err)
	}

	c.apply(view, nil)
	c.saveCached(ctx, accountKey, view)
	return nil
}

// Stage validates capacity and appends the normalized card to the staged
// buffer. Identical cards may be staged more than once.
func (c *Controller) Stage(session auth.Session, card cards.Card) ([]cards.Card, error) {
	if _, err := c.validator.Validate(session); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReady {
		return nil, ErrNotReady
	}
	if len(c.staged) >= MaxDeckSize {
		c.logger.Debug("stage rejected", zap.String("operation", opStage), zap.String("reason", "deck_full"))
		return nil, newDeckFullError()
	}
	counts := cards.CountByCategory(c.staged)
	if card.Category.Valid() && counts[card.Category] >= MaxPerCategory {
		c.logger.Debug("stage rejected",
			zap.String("operation", opStage),
			zap.String("reason", "category_full"),
			zap.String("category", card.Category.String()))
		return nil, newCategoryFullError(card.Category)
	}

	normalized, err := cards.Normalize(card)
	if err != nil {
		return nil, err
	}
	c.staged = append(c.staged, normalized)
	return cards.CloneAll(c.staged), nil
}

// StageRecommendation turns a server recommendation into a card and stages it.
// Creature suggestions lacking type matchups are completed from the Deck
// Service first; a failed lookup is logged and the card is staged without them.
func (c *Controller) StageRecommendation(ctx context.Context, session auth.Session, item RecommendationItem) ([]cards.Card, error) {
	if _, err := c.validator.Validate(session); err != nil {
		return nil, err
	}
	if item.Name == "" {
		return nil, fmt.Errorf("%w: recommendation has no name", cards.ErrInvalidCard)
	}

	var card cards.Card
	switch item.Category {
	case cards.CategoryCreature:
		if item.ID == 0 {
			return nil, fmt.Errorf("%w: recommendation has no creature id", cards.ErrInvalidCard)
		}
		card = cards.Card{
			Category:   cards.CategoryCreature,
			ID:         item.ID,
			Name:       item.Name,
			ImageURL:   item.ImageURL,
			Strengths:  item.Strengths,
			Weaknesses: item.Weaknesses,
		}
		if len(card.Strengths) == 0 || len(card.Weaknesses) == 0 {
			detail, err := c.service.GetCreature(ctx, session, item.ID)
			if err != nil {
				c.logger.Warn("creature matchup lookup failed",
					zap.String("operation", opStageRecommendation),
					zap.Int("creature_id", item.ID),
					zap.Error(err))
			} else {
				card.Strengths = detail.Strengths
				card.Weaknesses = detail.Weaknesses
			}
		}
	case cards.CategoryTrainer:
		card = cards.Card{Category: cards.CategoryTrainer, ID: item.ID, Name: item.Name, ImageURL: item.ImageURL}
	case cards.CategoryEnergy:
		card = cards.Card{Category: cards.CategoryEnergy, ID: item.ID, Name: item.Name, EnergyType: item.EnergyType, ImageURL: item.ImageURL}
	default:
		return nil, fmt.Errorf("%w: recommendation has no category", cards.ErrInvalidCard)
	}

	return c.Stage(session, card)
}

// Submit sends the staged buffer as one add-batch mutation and then refetches
// the deck and score. On success the submitted cards leave the buffer and the
// cached projection is replaced. On failure nothing changes locally.
func (c *Controller) Submit(ctx context.Context, session auth.Session) (DeckView, error) {
	if _, err := c.validator.Validate(session); err != nil {
		return DeckView{}, err
	}

	c.mutations.Lock()
	defer c.mutations.Unlock()

	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return DeckView{}, ErrNotReady
	}
	submitted := cards.CloneAll(c.staged)
	c.mu.Unlock()

	mutation := BuildMutation(submitted)
	if _, err := c.service.SubmitDeckMutation(ctx, session, mutation); err != nil {
		c.logError(opSubmit, "mutation_failed", err,
			zap.String("session", session.Fingerprint()),
			zap.Int("staged", len(submitted)))
		return DeckView{}, newOperationError(opSubmit, "mutation_failed", err)
	}

	view, err := c.service.GetDeck(ctx, session)
	if err != nil {
		c.logError(opSubmit, "refetch_failed", err, zap.String("session", session.Fingerprint()))
		return DeckView{}, newOperationError(opSubmit, "refetch_failed", err)
	}

	c.apply(view, func() {
		remaining := make([]cards.Card, 0, len(c.staged))
		if len(c.staged) > len(submitted) {
			remaining = append(remaining, c.staged[len(submitted):]...)
		}
		c.staged = remaining
	})
	c.saveCached(ctx, session.AccountKey(), view)
	c.notify(Change{Kind: ChangeSubmitted, View: cloneView(view)})

	c.logger.Info("deck submitted",
		zap.String("session", session.Fingerprint()),
		zap.Int("submitted", len(submitted)),
		zap.Int("deck_count", view.Deck.Count()))
	return cloneView(view), nil
}

// Delete removes one card from the persisted deck and patches the cached
// projection locally without refetching.
func (c *Controller) Delete(ctx context.Context, session auth.Session, category cards.Category, cardID int) (PersistedDeck, error) {
	if _, err := c.validator.Validate(session); err != nil {
		return PersistedDeck{}, err
	}
	if !category.Valid() {
		return PersistedDeck{}, cards.ErrInvalidCategory
	}

	c.mutations.Lock()
	defer c.mutations.Unlock()

	c.mu.Lock()
	ready := c.state == StateReady
	c.mu.Unlock()
	if !ready {
		return PersistedDeck{}, ErrNotReady
	}

	if err := c.service.DeleteCard(ctx, session, category, cardID); err != nil {
		c.logError(opDelete, "request_failed", err,
			zap.String("session", session.Fingerprint()),
			zap.String("category", category.String()),
			zap.Int("card_id", cardID))
		return PersistedDeck{}, newOperationError(opDelete, "request_failed", err)
	}

	c.mu.Lock()
	c.deck = c.deck.withoutCard(category, cardID)
	view := DeckView{Deck: c.deck.Clone(), Score: c.score.Clone()}
	c.mu.Unlock()

	c.saveCached(ctx, session.AccountKey(), view)
	c.notify(Change{Kind: ChangeDeleted, Category: category, CardID: cardID, View: cloneView(view)})
	return view.Deck.Clone(), nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:  c.state,
		Staged: cards.CloneAll(c.staged),
		Deck:   c.deck.Clone(),
		Score:  c.score.Clone(),
	}
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) apply(view DeckView, alongside func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deck = view.Deck.Clone()
	c.score = view.Score.Clone()
	c.state = StateReady
	if alongside != nil {
		alongside()
	}
}

func (c *Controller) loadCached(ctx context.Context, accountKey string) (DeckView, bool) {
	if c.cache == nil || accountKey == "" {
		return DeckView{}, false
	}
	view, ok, err := c.cache.LoadDeckView(ctx, accountKey)
	if err != nil {
		c.logError(opLoad, "cache_read_failed", err)
		return DeckView{}, false
	}
	return view, ok
}

func (c *Controller) saveCached(ctx context.Context, accountKey string, view DeckView) {
	if c.cache == nil || accountKey == "" {
		return
	}
	if err := c.cache.SaveDeckView(ctx, accountKey, view); err != nil {
		c.logger.Warn("deck cache write failed", zap.Error(err))
	}
}

func (c *Controller) notify(change Change) {
	if c.listener != nil {
		c.listener(change)
	}
}

func (c *Controller) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	c.logger.Error("deck controller error", attrs...)
}

func isUnauthenticated(err error) bool {
	return errors.Is(err, auth.ErrUnauthenticated)
}

func cloneView(view DeckView) DeckView {
	return DeckView{Deck: view.Deck.Clone(), Score: view.Score.Clone()}
}
