package models

import "time"

// Funder natures.
const (
	FunderTypeNational     = "nationale"
	FunderTypeCollectivity = "collectivite"
	FunderTypeEnterprise   = "entreprise"
)

// Funder finances incentives. Enterprise funders may be integrated with
// their HRIS, in which case finalized employer subscriptions are published
// to the message bus instead of being reviewed in the back office.
type Funder struct {
	ID     string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name   string `gorm:"type:varchar(255);not null;index" json:"name"`
	Type   string `gorm:"type:varchar(32);not null" json:"type"`
	IsHris bool   `gorm:"default:false" json:"isHris"`

	// Public half of the funder's attachment-encryption key pair, PEM
	// encoded. Empty when the funder never receives encrypted batches.
	EncryptionKeyID      string    `gorm:"type:varchar(36)" json:"encryptionKeyId,omitempty"`
	EncryptionKeyVersion int       `json:"encryptionKeyVersion,omitempty"`
	EncryptionPublicKey  string    `gorm:"type:text" json:"publicKey,omitempty"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}
