package cache

// CatalogEntry stores one raw catalog response keyed by kind and key.
type CatalogEntry struct {
	Kind             string `gorm:"column:kind;primaryKey;size:64;not null"`
	Key              string `gorm:"column:entry_key;primaryKey;size:190;not null"`
	PayloadJSON      string `gorm:"column:payload_json;type:text;not null"`
	FetchedAtSeconds int64  `gorm:"column:fetched_at_s;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (CatalogEntry) TableName() string {
	return "catalog_entries"
}

// DeckSnapshot stores the last known deck projection and score per account.
type DeckSnapshot struct {
	AccountKey       string `gorm:"column:account_key;primaryKey;size:190;not null"`
	PayloadJSON      string `gorm:"column:payload_json;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (DeckSnapshot) TableName() string {
	return "deck_snapshots"
}

// Models lists every table owned by this package, for AutoMigrate.
func Models() []any {
	return []any{&CatalogEntry{}, &DeckSnapshot{}}
}
