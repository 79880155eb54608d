package models

import "time"

// Identity attribute sources recognised by the platform.
const (
	SourceFranceConnect = "franceconnect.gouv.fr"
	SourceMCM           = "moncomptemobilite.fr"
)

// Citizen is the directory entry a subscription snapshots its identity
// from. The per-attribute sources record whether the value was certified
// by FranceConnect or self-declared.
type Citizen struct {
	ID              string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	LastName        string    `gorm:"type:varchar(255);not null" json:"lastName"`
	FirstName       string    `gorm:"type:varchar(255);not null" json:"firstName"`
	Email           string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	Birthdate       string    `gorm:"type:varchar(10)" json:"birthdate"`
	City            string    `gorm:"type:varchar(255)" json:"city,omitempty"`
	Postcode        string    `gorm:"type:varchar(10)" json:"postcode,omitempty"`
	LastNameSource  string    `gorm:"type:varchar(64);not null;default:'moncomptemobilite.fr'" json:"lastNameSource"`
	FirstNameSource string    `gorm:"type:varchar(64);not null;default:'moncomptemobilite.fr'" json:"firstNameSource"`
	BirthdateSource string    `gorm:"type:varchar(64);not null;default:'moncomptemobilite.fr'" json:"birthdateSource"`
	EnterpriseEmail string    `gorm:"type:varchar(255)" json:"enterpriseEmail,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// IsFranceConnected reports whether the full identity block (last name,
// first name, birthdate) was certified by FranceConnect.
func (c *Citizen) IsFranceConnected() bool {
	return c.LastNameSource == SourceFranceConnect &&
		c.FirstNameSource == SourceFranceConnect &&
		c.BirthdateSource == SourceFranceConnect
}
