package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Subscription lifecycle states. The French wire values are kept as-is
// because funder back offices and the employer bus consume them verbatim.
const (
	StatusDraft     = "BROUILLON"
	StatusToProcess = "A_TRAITER"
	StatusValidated = "VALIDEE"
	StatusRejected  = "REJETEE"
)

// Lifecycle actions driving the transition table.
const (
	ActionFinalizeManual    = "finalize_manual"
	ActionFinalizeAutomatic = "finalize_automatic"
	ActionValidate          = "validate"
	ActionReject            = "reject"
)

// ErrBadStatus is returned for any (status, action) pair that is not in the
// transition table.
var ErrBadStatus = errors.New("subscriptions.error.bad.status")

// transitions enumerates every legal (state, action) pair. Automatic
// finalize resolves to VALIDEE or REJETEE after the eligibility pipeline
// ran, so it is recorded here with both outcomes.
var transitions = map[string]map[string][]string{
	StatusDraft: {
		ActionFinalizeManual:    {StatusToProcess},
		ActionFinalizeAutomatic: {StatusValidated, StatusRejected},
	},
	StatusToProcess: {
		ActionValidate: {StatusValidated},
		ActionReject:   {StatusRejected},
	},
}

// CanTransition reports whether action is legal from the given status.
func CanTransition(status, action string) bool {
	_, ok := transitions[status][action]
	return ok
}

// NextStatuses returns the possible target statuses of an action, or
// ErrBadStatus when the pair is illegal.
func NextStatuses(status, action string) ([]string, error) {
	targets, ok := transitions[status][action]
	if !ok {
		return nil, fmt.Errorf("%w: %s does not allow %s", ErrBadStatus, status, action)
	}
	return targets, nil
}

// IsTerminal reports whether the status allows no further transition.
func IsTerminal(status string) bool {
	return status == StatusValidated || status == StatusRejected
}

// AttachmentRef describes one stored proof file of a subscription.
type AttachmentRef struct {
	OriginalName string    `json:"originalName"`
	UploadDate   time.Time `json:"uploadDate"`
	ProofType    string    `json:"proofType"`
	MimeType     string    `json:"mimeType"`
}

// AttachmentRefList is stored as a JSON column.
type AttachmentRefList []AttachmentRef

func (l AttachmentRefList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *AttachmentRefList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// SpecificFields holds the applicant's answers to the incentive's dynamic
// form, stored as a JSON column.
type SpecificFields map[string]interface{}

func (f SpecificFields) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}

func (f *SpecificFields) Scan(value interface{}) error {
	return scanJSON(value, f)
}

// Subscription is an incentive application. The citizen identity block is a
// snapshot taken at creation and is never refreshed from the citizen
// directory afterwards.
type Subscription struct {
	ID              string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	IncentiveID     string            `gorm:"type:varchar(36);not null;index" json:"incentiveId"`
	IncentiveTitle  string            `gorm:"type:varchar(255);not null" json:"incentiveTitle"`
	IncentiveType   string            `gorm:"type:varchar(32);not null;index" json:"incentiveType"`
	FunderID        string            `gorm:"type:varchar(36);not null;index" json:"funderId"`
	FunderName      string            `gorm:"type:varchar(255);not null" json:"funderName"`
	CitizenID       string            `gorm:"type:varchar(36);not null;index" json:"citizenId"`
	LastName        string            `gorm:"type:varchar(255);not null" json:"lastName"`
	FirstName       string            `gorm:"type:varchar(255);not null" json:"firstName"`
	Email           string            `gorm:"type:varchar(255);not null" json:"email"`
	Birthdate       string            `gorm:"type:varchar(10)" json:"birthdate"`
	City            string            `gorm:"type:varchar(255)" json:"city,omitempty"`
	Postcode        string            `gorm:"type:varchar(10)" json:"postcode,omitempty"`
	EnterpriseEmail string            `gorm:"type:varchar(255)" json:"enterpriseEmail,omitempty"`
	Status          string            `gorm:"type:varchar(16);not null;default:'BROUILLON';index" json:"status"`
	SpecificFields  SpecificFields    `gorm:"type:json" json:"specificFields,omitempty"`
	Attachments     AttachmentRefList `gorm:"type:json" json:"attachments,omitempty"`

	// Exactly one of Validation/Rejection is set once the status is
	// terminal, never both.
	Validation *SubscriptionValidation `gorm:"type:json" json:"subscriptionValidation,omitempty"`
	Rejection  *SubscriptionRejection  `gorm:"type:json" json:"subscriptionRejection,omitempty"`

	// Encryption material for the employer integration: the AES key used
	// for the attachment batch, wrapped with the funder's public key.
	EncryptionKeyID      string `gorm:"type:varchar(36)" json:"encryptionKeyId,omitempty"`
	EncryptionKeyVersion int    `json:"encryptionKeyVersion,omitempty"`
	EncryptedAESKey      string `gorm:"type:text" json:"encryptedAESKey,omitempty"`
	EncryptedIV          string `gorm:"type:text" json:"encryptedIV,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// scanJSON normalizes the driver value ([]byte or string) into dst.
func scanJSON(value interface{}, dst interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
}
