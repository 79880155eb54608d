package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Incentive funder types.
const (
	IncentiveTypeNational  = "AideNationale"
	IncentiveTypeTerritory = "AideTerritoire"
	IncentiveTypeEmployer  = "AideEmployeur"
)

// Subscription verification modes of an incentive.
const (
	CheckModeManual    = "MANUEL"
	CheckModeAutomatic = "AUTOMATIQUE"
)

// Labels of the closed eligibility evaluator set.
const (
	CheckLabelFranceConnect     = "FranceConnectID"
	CheckLabelRPCCEERequest     = "RPCCEERequest"
	CheckLabelExcludeIncentives = "ExcludeIncentives"
)

// EligibilityCheckValue is one activatable control carried by an incentive.
// The list order on the incentive is the evaluation order. Value holds the
// check-type specific operand (incentive ids for exclusivity checks).
type EligibilityCheckValue struct {
	ID     string   `json:"id"`
	Active bool     `json:"active"`
	Value  []string `json:"value,omitempty"`
}

type EligibilityCheckValueList []EligibilityCheckValue

func (l EligibilityCheckValueList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *EligibilityCheckValueList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// ActiveIDs returns the ids of active checks in list order.
func (l EligibilityCheckValueList) ActiveIDs() []string {
	ids := make([]string, 0, len(l))
	for _, c := range l {
		if c.Active {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// StringList is stored as a JSON column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// Incentive describes a financial aid published by a funder. The engine
// only reads incentives; authoring lives in the funder back office.
type Incentive struct {
	ID                             string                    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Title                          string                    `gorm:"type:varchar(255);not null" json:"title"`
	FunderID                       string                    `gorm:"type:varchar(36);not null;index" json:"funderId"`
	FunderName                     string                    `gorm:"type:varchar(255);not null" json:"funderName"`
	IncentiveType                  string                    `gorm:"type:varchar(32);not null" json:"incentiveType"`
	SubscriptionCheckMode          string                    `gorm:"type:varchar(16);not null;default:'MANUEL'" json:"subscriptionCheckMode"`
	EligibilityChecks              EligibilityCheckValueList `gorm:"type:json" json:"eligibilityChecks,omitempty"`
	IsCertifiedTimestampRequired   bool                      `gorm:"default:false" json:"isCertifiedTimestampRequired"`
	IsCitizenNotificationsDisabled bool                      `gorm:"default:false" json:"isCitizenNotificationsDisabled"`
	Attachments                    StringList                `gorm:"type:json" json:"attachments,omitempty"`
	SpecificFields                 SpecificFields            `gorm:"type:json" json:"specificFields,omitempty"`
	CreatedAt                      time.Time                 `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt                      time.Time                 `gorm:"autoUpdateTime" json:"updatedAt"`
}

// EligibilityCheckDefinition is the catalog entry behind an
// EligibilityCheckValue: the evaluator label and the rejection motive
// applied when the check fails.
type EligibilityCheckDefinition struct {
	ID              string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name            string    `gorm:"type:varchar(255);not null" json:"name"`
	Label           string    `gorm:"type:varchar(64);not null" json:"label"`
	Description     string    `gorm:"type:text" json:"description"`
	ValueType       string    `gorm:"type:varchar(16)" json:"type"`
	RejectionMotive string    `gorm:"type:varchar(64);not null" json:"motifRejet"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"createdAt"`
}
