package repository

import (
	"time"

	"github.com/moncompte-mobilite/mcm-api/app/models"
	"gorm.io/gorm"
)

// SubscriptionFilter narrows subscription listings. Zero values mean "no
// constraint"; listings never return BROUILLON rows (drafts are
// citizen-private).
type SubscriptionFilter struct {
	FunderID       string
	CitizenID      string
	IncentiveIDs   []string
	IncentiveTypes []string
	Statuses       []string
	LastName       string
	Year           int
	Skip           int
	Limit          int
}

// SubscriptionRepository defines the interface for subscription database operations
type SubscriptionRepository interface {
	Create(subscription *models.Subscription) error
	GetByID(id string) (*models.Subscription, error)
	UpdateFields(id string, fields map[string]interface{}) error
	// UpdateWithStatusGuard applies fields only while the row still has the
	// expected status. It returns models.ErrBadStatus when the guard does
	// not match, which is how a lost terminal-transition race surfaces.
	UpdateWithStatusGuard(id string, expectedStatus string, fields map[string]interface{}) error
	List(filter SubscriptionFilter) ([]models.Subscription, error)
	Count(filter SubscriptionFilter) (int64, error)
	HasValidatedForIncentives(citizenID string, incentiveIDs []string) (bool, error)
}

// IncentiveRepository defines the interface for incentive read operations
type IncentiveRepository interface {
	GetByID(id string) (*models.Incentive, error)
	GetCheckDefinitionsByIDs(ids []string) ([]models.EligibilityCheckDefinition, error)
}

// CitizenRepository defines the interface for citizen directory lookups
type CitizenRepository interface {
	GetByID(id string) (*models.Citizen, error)
}

// FunderRepository defines the interface for funder directory lookups
type FunderRepository interface {
	GetByID(id string) (*models.Funder, error)
	GetEnterpriseByID(id string) (*models.Funder, error)
	GetByNames(names []string) ([]models.Funder, error)
}

// MetadataRepository defines the interface for invoice metadata operations
type MetadataRepository interface {
	Create(metadata *models.Metadata) error
	GetByID(id string) (*models.Metadata, error)
	Delete(id string) error
}

// SubscriptionTimestampRepository defines the interface for the append-only
// timestamp audit trail
type SubscriptionTimestampRepository interface {
	Create(timestamp *models.SubscriptionTimestamp) error
	Find(subscriptionID string, funderIDs []string, start, end *time.Time) ([]models.SubscriptionTimestamp, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Subscription          SubscriptionRepository
	Incentive             IncentiveRepository
	Citizen               CitizenRepository
	Funder                FunderRepository
	Metadata              MetadataRepository
	SubscriptionTimestamp SubscriptionTimestampRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Subscription:          NewSubscriptionRepository(db),
		Incentive:             NewIncentiveRepository(db),
		Citizen:               NewCitizenRepository(db),
		Funder:                NewFunderRepository(db),
		Metadata:              NewMetadataRepository(db),
		SubscriptionTimestamp: NewSubscriptionTimestampRepository(db),
	}
}
