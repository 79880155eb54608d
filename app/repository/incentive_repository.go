package repository

import (
	"github.com/moncompte-mobilite/mcm-api/app/models"
	"gorm.io/gorm"
)

// incentiveRepository implements the IncentiveRepository interface
type incentiveRepository struct {
	db *gorm.DB
}

// NewIncentiveRepository creates a new incentive repository instance
func NewIncentiveRepository(db *gorm.DB) IncentiveRepository {
	return &incentiveRepository{db: db}
}

// GetByID retrieves an incentive by its ID
func (r *incentiveRepository) GetByID(id string) (*models.Incentive, error) {
	var incentive models.Incentive
	err := r.db.First(&incentive, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &incentive, nil
}

// GetCheckDefinitionsByIDs fetches eligibility check definitions preserving
// no particular order; callers reorder against the incentive's own list.
func (r *incentiveRepository) GetCheckDefinitionsByIDs(ids []string) ([]models.EligibilityCheckDefinition, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var definitions []models.EligibilityCheckDefinition
	err := r.db.Where("id IN ?", ids).Find(&definitions).Error
	return definitions, err
}
