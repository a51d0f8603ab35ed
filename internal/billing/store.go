package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusActive is the subscription status that grants the paid tier.
const StatusActive = "active"

// Subscription is a billing row keyed by GitHub user id.
type Subscription struct {
	GithubUserID string `gorm:"primaryKey;size:64"`
	Status       string `gorm:"size:32;not null"`
	UpdatedAt    time.Time
}

// SubscriptionStore reads and writes subscriptions with GORM.
type SubscriptionStore struct {
	db *gorm.DB
}

// NewSubscriptionStore creates a GORM-backed subscription store.
func NewSubscriptionStore(db *gorm.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// Migrate creates the subscriptions table.
func (s *SubscriptionStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Subscription{})
}

// Tier returns the paid tier when the user has an active subscription.
func (s *SubscriptionStore) Tier(ctx context.Context, githubUserID string) (Tier, error) {
	var sub Subscription
	err := s.db.WithContext(ctx).
		Where("github_user_id = ?", githubUserID).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TierFree, nil
	}
	if err != nil {
		return TierFree, err
	}
	if sub.Status == StatusActive {
		return TierPaid, nil
	}
	return TierFree, nil
}

// Upsert creates or updates a subscription.
func (s *SubscriptionStore) Upsert(ctx context.Context, githubUserID, status string) error {
	sub := Subscription{GithubUserID: githubUserID, Status: status, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "github_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(&sub).Error
}
