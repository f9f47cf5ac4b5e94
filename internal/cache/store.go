package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/deck"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("cache: missing database")
	// ErrInvalidKey indicates an empty cache key.
	ErrInvalidKey = errors.New("cache: invalid key")
)

const (
	opStoreNew      = "cache.store.new"
	opPutCatalog    = "cache.put_catalog"
	opGetCatalog    = "cache.get_catalog"
	opPurgeCatalog  = "cache.purge_catalog"
	opSaveDeckView  = "cache.save_deck_view"
	opLoadDeckView  = "cache.load_deck_view"
	queryKindKey    = "kind = ? AND entry_key = ?"
	queryAccountKey = "account_key = ?"

	reasonMissingDatabase = "missing_database"
	reasonInvalidKey      = "invalid_key"
	reasonEncodeFailed    = "encode_failed"
	reasonDecodeFailed    = "decode_failed"
	reasonUpsertFailed    = "upsert_failed"
	reasonQueryFailed     = "query_failed"
	reasonDeleteFailed    = "delete_failed"
)

// StoreError carries a dotted operation code and the underlying cause.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

func (e *StoreError) Code() string {
	return e.code
}

func newStoreError(operation, reason string, cause error) error {
	return &StoreError{code: operation + "." + reason, err: cause}
}

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store persists catalog responses and per-account deck projections in SQLite.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewStore constructs a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opStoreNew, reasonMissingDatabase, errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: cfg.Database, clock: clock, logger: logger}, nil
}

// PutCatalog upserts a raw catalog payload.
func (s *Store) PutCatalog(ctx context.Context, kind, key string, payload []byte) error {
	kind, key = strings.TrimSpace(kind), strings.TrimSpace(key)
	if kind == "" || key == "" {
		return newStoreError(opPutCatalog, reasonInvalidKey, ErrInvalidKey)
	}
	entry := CatalogEntry{
		Kind:             kind,
		Key:              key,
		PayloadJSON:      string(payload),
		FetchedAtSeconds: s.clock().UTC().Unix(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kind"}, {Name: "entry_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload_json", "fetched_at_s"}),
		}).
		Create(&entry).Error
	if err != nil {
		s.logError(opPutCatalog, reasonUpsertFailed, err, zap.String("kind", kind))
		return newStoreError(opPutCatalog, reasonUpsertFailed, err)
	}
	return nil
}

// GetCatalog returns a stored payload and when it was fetched.
func (s *Store) GetCatalog(ctx context.Context, kind, key string) ([]byte, time.Time, bool, error) {
	var entry CatalogEntry
	err := s.db.WithContext(ctx).
		Where(queryKindKey, strings.TrimSpace(kind), strings.TrimSpace(key)).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		s.logError(opGetCatalog, reasonQueryFailed, err, zap.String("kind", kind))
		return nil, time.Time{}, false, newStoreError(opGetCatalog, reasonQueryFailed, err)
	}
	return []byte(entry.PayloadJSON), time.Unix(entry.FetchedAtSeconds, 0).UTC(), true, nil
}

// PurgeCatalog deletes catalog entries fetched before the cutoff and reports
// how many were removed.
func (s *Store) PurgeCatalog(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.clock().UTC().Add(-olderThan).Unix()
	result := s.db.WithContext(ctx).Where("fetched_at_s < ?", cutoff).Delete(&CatalogEntry{})
	if result.Error != nil {
		s.logError(opPurgeCatalog, reasonDeleteFailed, result.Error)
		return 0, newStoreError(opPurgeCatalog, reasonDeleteFailed, result.Error)
	}
	return result.RowsAffected, nil
}

// SaveDeckView stores the deck projection for an account, replacing any
// previous copy.
func (s *Store) SaveDeckView(ctx context.Context, accountKey string, view deck.DeckView) error {
	accountKey = strings.TrimSpace(accountKey)
	if accountKey == "" {
		return newStoreError(opSaveDeckView, reasonInvalidKey, ErrInvalidKey)
	}
	encoded, err := json.Marshal(view)
	if err != nil {
		return newStoreError(opSaveDeckView, reasonEncodeFailed, err)
	}
	snapshot := DeckSnapshot{
		AccountKey:       accountKey,
		PayloadJSON:      string(encoded),
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload_json", "updated_at_s"}),
		}).
		Create(&snapshot).Error
	if err != nil {
		s.logError(opSaveDeckView, reasonUpsertFailed, err)
		return newStoreError(opSaveDeckView, reasonUpsertFailed, err)
	}
	return nil
}

// LoadDeckView returns the stored projection for an account, if any.
func (s *Store) LoadDeckView(ctx context.Context, accountKey string) (deck.DeckView, bool, error) {
	var snapshot DeckSnapshot
	err := s.db.WithContext(ctx).
		Where(queryAccountKey, strings.TrimSpace(accountKey)).
		Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return deck.DeckView{}, false, nil
	}
	if err != nil {
		s.logError(opLoadDeckView, reasonQueryFailed, err)
		return deck.DeckView{}, false, newStoreError(opLoadDeckView, reasonQueryFailed, err)
	}
	var view deck.DeckView
	if err := json.Unmarshal([]byte(snapshot.PayloadJSON), &view); err != nil {
		s.logError(opLoadDeckView, reasonDecodeFailed, err)
		return deck.DeckView{}, false, newStoreError(opLoadDeckView, reasonDecodeFailed, err)
	}
	return view, true, nil
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("cache store error", attrs...)
}
