package repository

import (
	"time"

	"github.com/moncompte-mobilite/mcm-api/app/models"
	"gorm.io/gorm"
)

// subscriptionTimestampRepository implements the SubscriptionTimestampRepository interface
type subscriptionTimestampRepository struct {
	db *gorm.DB
}

// NewSubscriptionTimestampRepository creates a new timestamp repository instance
func NewSubscriptionTimestampRepository(db *gorm.DB) SubscriptionTimestampRepository {
	return &subscriptionTimestampRepository{db: db}
}

// Create appends a timestamp proof. Rows are never updated or deleted.
func (r *subscriptionTimestampRepository) Create(timestamp *models.SubscriptionTimestamp) error {
	return r.db.Create(timestamp).Error
}

// Find returns timestamp proofs, oldest first. All parameters are optional;
// funderIDs restricts the result to subscriptions financed by those funders.
// The end bound is exclusive, callers pass the midnight after the last day.
func (r *subscriptionTimestampRepository) Find(subscriptionID string, funderIDs []string, start, end *time.Time) ([]models.SubscriptionTimestamp, error) {
	q := r.db.Model(&models.SubscriptionTimestamp{})
	if subscriptionID != "" {
		q = q.Where("subscription_id = ?", subscriptionID)
	}
	if len(funderIDs) > 0 {
		q = q.Where("subscription_id IN (?)",
			r.db.Model(&models.Subscription{}).Select("id").Where("funder_id IN ?", funderIDs))
	}
	if start != nil {
		q = q.Where("created_at >= ?", *start)
	}
	if end != nil {
		q = q.Where("created_at < ?", *end)
	}
	var timestamps []models.SubscriptionTimestamp
	err := q.Order("created_at ASC").Find(&timestamps).Error
	return timestamps, err
}
