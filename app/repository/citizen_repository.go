package repository

import (
	"github.com/moncompte-mobilite/mcm-api/app/models"
	"gorm.io/gorm"
)

// citizenRepository implements the CitizenRepository interface
type citizenRepository struct {
	db *gorm.DB
}

// NewCitizenRepository creates a new citizen repository instance
func NewCitizenRepository(db *gorm.DB) CitizenRepository {
	return &citizenRepository{db: db}
}

// GetByID retrieves a citizen by its ID
func (r *citizenRepository) GetByID(id string) (*models.Citizen, error) {
	var citizen models.Citizen
	err := r.db.First(&citizen, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &citizen, nil
}
