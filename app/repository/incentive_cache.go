package repository

import (
	"encoding/json"
	"time"

	"github.com/moncompte-mobilite/mcm-api/app/models"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/cache"
)

// incentiveCacheTTL keeps incentive definitions hot for a short window.
// Incentives change rarely (back-office edits) but are read on every
// subscription create and finalize.
const incentiveCacheTTL = 5 * time.Minute

// cachedIncentiveRepository is a read-through cache in front of the
// database-backed incentive repository. Cache failures fall back to the
// database silently, the cache is an optimization, never a source of truth.
type cachedIncentiveRepository struct {
	inner IncentiveRepository
}

// NewCachedIncentiveRepository wraps repo with a Redis read-through cache.
func NewCachedIncentiveRepository(repo IncentiveRepository) IncentiveRepository {
	return &cachedIncentiveRepository{inner: repo}
}

func (r *cachedIncentiveRepository) GetByID(id string) (*models.Incentive, error) {
	key := "incentive:" + id
	if raw, err := cache.Get(key); err == nil {
		var incentive models.Incentive
		if err := json.Unmarshal([]byte(raw), &incentive); err == nil {
			return &incentive, nil
		}
		// Unreadable entry, drop it and fall through to the database.
		_ = cache.Delete(key)
	}

	incentive, err := r.inner.GetByID(id)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(incentive); err == nil {
		_ = cache.Set(key, raw, incentiveCacheTTL)
	}
	return incentive, nil
}

// GetCheckDefinitionsByIDs is not cached: definitions are only read on
// automatic finalize, which is rare compared to incentive lookups.
func (r *cachedIncentiveRepository) GetCheckDefinitionsByIDs(ids []string) ([]models.EligibilityCheckDefinition, error) {
	return r.inner.GetCheckDefinitionsByIDs(ids)
}
