package repository

import (
	"github.com/moncompte-mobilite/mcm-api/app/models"
	"gorm.io/gorm"
)

// funderRepository implements the FunderRepository interface
type funderRepository struct {
	db *gorm.DB
}

// NewFunderRepository creates a new funder repository instance
func NewFunderRepository(db *gorm.DB) FunderRepository {
	return &funderRepository{db: db}
}

// GetByID retrieves a funder by its ID
func (r *funderRepository) GetByID(id string) (*models.Funder, error) {
	var funder models.Funder
	err := r.db.First(&funder, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &funder, nil
}

// GetEnterpriseByID retrieves a funder by ID restricted to the enterprise
// nature. Used when deciding whether a finalized subscription goes to the
// employer's HRIS queue.
func (r *funderRepository) GetEnterpriseByID(id string) (*models.Funder, error) {
	var funder models.Funder
	err := r.db.First(&funder, "id = ? AND type = ?", id, models.FunderTypeEnterprise).Error
	if err != nil {
		return nil, err
	}
	return &funder, nil
}

// GetByNames retrieves funders matching any of the given names
func (r *funderRepository) GetByNames(names []string) ([]models.Funder, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var funders []models.Funder
	err := r.db.Where("name IN ?", names).Find(&funders).Error
	return funders, err
}
