package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TimestampRequest records which client and endpoint triggered the
// timestamping of a subscription state.
type TimestampRequest struct {
	Client   string `json:"client,omitempty"`
	Endpoint string `json:"endpoint"`
}

func (r TimestampRequest) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *TimestampRequest) Scan(value interface{}) error {
	return scanJSON(value, r)
}

// SubscriptionTimestamp is an append-only audit record: the subscription
// snapshot at a qualifying mutation, its SHA-256, and the RFC 3161 token
// returned by the timestamping authority. Rows are never updated.
type SubscriptionTimestamp struct {
	ID                 string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	SubscriptionID     string           `gorm:"type:varchar(36);not null;index" json:"subscriptionId"`
	TimestampedData    string           `gorm:"type:longtext;not null" json:"timestampedData"`
	HashedSubscription string           `gorm:"type:varchar(64);not null" json:"hashedSubscription"`
	TimestampToken     []byte           `gorm:"type:blob" json:"timestampToken"`
	SigningTime        time.Time        `json:"signingTime"`
	Request            TimestampRequest `gorm:"type:json" json:"request"`
	CreatedAt          time.Time        `gorm:"autoCreateTime" json:"createdAt"`
}

func (t *SubscriptionTimestamp) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
