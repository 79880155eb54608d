package repository

import (
	"github.com/moncompte-mobilite/mcm-api/app/models"
	"gorm.io/gorm"
)

// metadataRepository implements the MetadataRepository interface
type metadataRepository struct {
	db *gorm.DB
}

// NewMetadataRepository creates a new metadata repository instance
func NewMetadataRepository(db *gorm.DB) MetadataRepository {
	return &metadataRepository{db: db}
}

// Create inserts a new invoice metadata record
func (r *metadataRepository) Create(metadata *models.Metadata) error {
	return r.db.Create(metadata).Error
}

// GetByID retrieves a metadata record by its ID
func (r *metadataRepository) GetByID(id string) (*models.Metadata, error) {
	var metadata models.Metadata
	err := r.db.First(&metadata, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &metadata, nil
}

// Delete removes a metadata record once its invoices have been assembled
func (r *metadataRepository) Delete(id string) error {
	return r.db.Delete(&models.Metadata{}, "id = ?", id).Error
}
