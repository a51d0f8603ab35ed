package cache

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kyleking/gh-actionboard/internal/pubsub"
)

// Entry is one cache row.
type Entry struct {
	CacheKey  string `gorm:"primaryKey;size:255"`
	Value     []byte
	UpdatedAt time.Time
}

// TableName keeps the table name stable across renames of the struct.
func (Entry) TableName() string { return "cache_entries" }

// SQLStore keeps entries in a SQL database through GORM.
type SQLStore struct {
	*pubsub.Broadcaster[Event]
	db *gorm.DB
}

// NewSQLStore creates a store and migrates its table.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate cache table: %w", err)
	}
	return &SQLStore{Broadcaster: pubsub.New[Event](), db: db}, nil
}

// Get returns the value for key.
func (s *SQLStore) Get(key string) ([]byte, bool, error) {
	var e Entry
	err := s.db.Where("cache_key = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry %q: %w", key, err)
	}
	return e.Value, true, nil
}

// Set upserts value under key.
func (s *SQLStore) Set(key string, value []byte) error {
	e := Entry{CacheKey: key, Value: value, UpdatedAt: time.Now()}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("failed to write cache entry %q: %w", key, err)
	}
	s.Publish(Event{Key: key, Op: OpSet})
	return nil
}

// Clear deletes key.
func (s *SQLStore) Clear(key string) error {
	if err := s.db.Where("cache_key = ?", key).Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("failed to clear cache entry %q: %w", key, err)
	}
	s.Publish(Event{Key: key, Op: OpClear})
	return nil
}

// Keys lists keys starting with prefix.
func (s *SQLStore) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.Model(&Entry{}).
		Where("cache_key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Order("cache_key").
		Pluck("cache_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	return keys, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
