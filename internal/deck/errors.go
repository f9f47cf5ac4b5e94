package deck

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/cards"
)

const (
	// MaxDeckSize caps the number of staged cards across all categories.
	MaxDeckSize = 60
	// MaxPerCategory caps the number of staged cards within one category.
	MaxPerCategory = 20
)

var (
	// ErrDeckFull is matched by capacity errors raised at the total limit.
	ErrDeckFull = errors.New("deck: deck is full")
	// ErrCategoryFull is matched by capacity errors raised at a category limit.
	ErrCategoryFull = errors.New("deck: category is full")
	// ErrNotReady indicates an operation issued before the deck finished loading.
	ErrNotReady = errors.New("deck: controller not ready")

	errMissingDeckService = errors.New("deck service dependency required")
)

// CapacityError reports a staging attempt rejected by a slot limit.
type CapacityError struct {
	Kind     error
	Category cards.Category
	Limit    int
}

func (e *CapacityError) Error() string {
	if errors.Is(e.Kind, ErrCategoryFull) {
		return fmt.Sprintf("maximum of %d %s cards allowed", e.Limit, e.Category)
	}
	return fmt.Sprintf("deck is full (max %d cards total)", e.Limit)
}

func (e *CapacityError) Unwrap() error {
	return e.Kind
}

func newDeckFullError() error {
	return &CapacityError{Kind: ErrDeckFull, Limit: MaxDeckSize}
}

func newCategoryFullError(category cards.Category) error {
	return &CapacityError{Kind: ErrCategoryFull, Category: category, Limit: MaxPerCategory}
}

// OperationError wraps a failed network-backed controller operation with a
// stable dotted code such as "deck.submit.mutation_failed".
type OperationError struct {
	code string
	err  error
}

func (e *OperationError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *OperationError) Unwrap() error {
	return e.err
}

func (e *OperationError) Code() string {
	return e.code
}

const (
	opControllerNew       = "deck.controller.new"
	opLoad                = "deck.load"
	opStage               = "deck.stage"
	opStageRecommendation = "deck.stage_recommendation"
	opSubmit              = "deck.submit"
	opDelete              = "deck.delete"
)

func newOperationError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &OperationError{code: code, err: cause}
}
