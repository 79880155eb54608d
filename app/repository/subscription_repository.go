package repository

import (
	"fmt"
	"time"

	"github.com/moncompte-mobilite/mcm-api/app/models"
	"gorm.io/gorm"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// Create inserts a new subscription
func (r *subscriptionRepository) Create(subscription *models.Subscription) error {
	return r.db.Create(subscription).Error
}

// GetByID retrieves a subscription by its ID
func (r *subscriptionRepository) GetByID(id string) (*models.Subscription, error) {
	var subscription models.Subscription
	err := r.db.First(&subscription, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

// UpdateFields applies a partial update on a subscription row
func (r *subscriptionRepository) UpdateFields(id string, fields map[string]interface{}) error {
	return r.db.Model(&models.Subscription{}).Where("id = ?", id).Updates(fields).Error
}

// UpdateWithStatusGuard applies fields only while the row still carries the
// expected status. A zero rows-affected result means another request moved
// the subscription first; that surfaces as models.ErrBadStatus so terminal
// transitions stay exactly-once.
func (r *subscriptionRepository) UpdateWithStatusGuard(id string, expectedStatus string, fields map[string]interface{}) error {
	res := r.db.Model(&models.Subscription{}).
		Where("id = ? AND status = ?", id, expectedStatus).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: subscription %s left %s concurrently", models.ErrBadStatus, id, expectedStatus)
	}
	return nil
}

func (r *subscriptionRepository) applyFilter(filter SubscriptionFilter) *gorm.DB {
	q := r.db.Model(&models.Subscription{})
	if filter.FunderID != "" {
		q = q.Where("funder_id = ?", filter.FunderID)
	}
	if filter.CitizenID != "" {
		q = q.Where("citizen_id = ?", filter.CitizenID)
	}
	if len(filter.IncentiveIDs) > 0 {
		q = q.Where("incentive_id IN ?", filter.IncentiveIDs)
	}
	if len(filter.IncentiveTypes) > 0 {
		q = q.Where("incentive_type IN ?", filter.IncentiveTypes)
	}
	if filter.LastName != "" {
		q = q.Where("last_name LIKE ?", "%"+filter.LastName+"%")
	}
	if filter.Year > 0 {
		start := time.Date(filter.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		q = q.Where("updated_at >= ? AND updated_at < ?", start, start.AddDate(1, 0, 0))
	}
	// Drafts never leave the citizen's own flow.
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses).Where("status <> ?", models.StatusDraft)
	} else {
		q = q.Where("status <> ?", models.StatusDraft)
	}
	return q
}

// List returns subscriptions matching the filter, newest first
func (r *subscriptionRepository) List(filter SubscriptionFilter) ([]models.Subscription, error) {
	q := r.applyFilter(filter).Order("created_at DESC")
	if filter.Skip > 0 {
		q = q.Offset(filter.Skip)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var subscriptions []models.Subscription
	err := q.Find(&subscriptions).Error
	return subscriptions, err
}

// Count returns the number of subscriptions matching the filter
func (r *subscriptionRepository) Count(filter SubscriptionFilter) (int64, error) {
	var count int64
	err := r.applyFilter(filter).Count(&count).Error
	return count, err
}

// HasValidatedForIncentives reports whether the citizen already holds a
// VALIDEE subscription for any of the given incentive ids.
func (r *subscriptionRepository) HasValidatedForIncentives(citizenID string, incentiveIDs []string) (bool, error) {
	if len(incentiveIDs) == 0 {
		return false, nil
	}
	var count int64
	err := r.db.Model(&models.Subscription{}).
		Where("citizen_id = ? AND status = ? AND incentive_id IN ?", citizenID, models.StatusValidated, incentiveIDs).
		Count(&count).Error
	return count > 0, err
}
