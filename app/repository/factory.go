package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetSubscriptionRepository returns the subscription repository instance
func (f *Factory) GetSubscriptionRepository() SubscriptionRepository {
	return f.GetRepositories().Subscription
}

// GetIncentiveRepository returns the incentive repository instance
func (f *Factory) GetIncentiveRepository() IncentiveRepository {
	return f.GetRepositories().Incentive
}

// GetCitizenRepository returns the citizen repository instance
func (f *Factory) GetCitizenRepository() CitizenRepository {
	return f.GetRepositories().Citizen
}

// GetFunderRepository returns the funder repository instance
func (f *Factory) GetFunderRepository() FunderRepository {
	return f.GetRepositories().Funder
}

// GetMetadataRepository returns the metadata repository instance
func (f *Factory) GetMetadataRepository() MetadataRepository {
	return f.GetRepositories().Metadata
}

// GetSubscriptionTimestampRepository returns the timestamp repository instance
func (f *Factory) GetSubscriptionTimestampRepository() SubscriptionTimestampRepository {
	return f.GetRepositories().SubscriptionTimestamp
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
}

// GetGlobalFactory returns the global repository factory
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("repository factory not initialized - call InitializeFactory first")
	}
	return globalFactory
}
