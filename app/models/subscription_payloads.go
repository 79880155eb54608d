package models

import (
	"database/sql/driver"
	"encoding/json"
)

// Payment modes of a manual validation.
const (
	PaymentModeNone     = "aucun"
	PaymentModeUnique   = "unique"
	PaymentModeMultiple = "multiple"
)

// Payment frequencies of a multiple-payment validation.
const (
	PaymentFreqMonthly   = "mensuelle"
	PaymentFreqQuarterly = "trimestrielle"
)

// Rejection reason codes. French wire values, consumed by funder back
// offices and the citizen mails.
const (
	RejectionCondition               = "ConditionsNonRespectees"
	RejectionMissingProof            = "JustificatifManquant"
	RejectionInvalidProof            = "JustificatifInvalide"
	RejectionNotFranceConnect        = "CompteNonFranceConnect"
	RejectionInvalidRPCCEERequest    = "RPCCEEDemandeInvalide"
	RejectionValidSubscriptionExists = "SouscriptionValideeExistante"
	RejectionOther                   = "Autre"
)

// RejectionReasonText maps a rejection code to the text shown in citizen
// notifications. RejectionOther has no fixed text, the free-form `other`
// field is used instead.
var RejectionReasonText = map[string]string{
	RejectionCondition:               "Conditions d'éligibilité non respectées",
	RejectionMissingProof:            "Justificatif manquant",
	RejectionInvalidProof:            "Justificatif invalide ou non lisible",
	RejectionNotFranceConnect:        "Compte du conducteur non FranceConnecté",
	RejectionInvalidRPCCEERequest:    "Demande RPC CEE rejetée",
	RejectionValidSubscriptionExists: "Autre Demande d'aide déjà accordée",
}

// SubscriptionValidation is the payment description attached to a VALIDEE
// subscription. The mode decides which other fields are allowed:
//
//	aucun:    no amount, no frequency, no lastPayment
//	unique:   amount > 0
//	multiple: amount > 0, frequency, lastPayment (yyyy-MM-dd)
type SubscriptionValidation struct {
	Mode        string   `json:"mode" validate:"required,oneof=aucun unique multiple"`
	Amount      *float64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
	Frequency   string   `json:"frequency,omitempty" validate:"omitempty,oneof=mensuelle trimestrielle"`
	LastPayment string   `json:"lastPayment,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Comments    string   `json:"comments,omitempty"`

	// AdditionalProperties carries data returned by an external eligibility
	// evaluator on automatic validation.
	AdditionalProperties map[string]interface{} `json:"additionalProperties,omitempty"`
}

func (v SubscriptionValidation) Value() (driver.Value, error) {
	return json.Marshal(v)
}

func (v *SubscriptionValidation) Scan(value interface{}) error {
	return scanJSON(value, v)
}

// SubscriptionRejection is the reason attached to a REJETEE subscription.
type SubscriptionRejection struct {
	Type     string `json:"type" validate:"required,oneof=ConditionsNonRespectees JustificatifManquant JustificatifInvalide CompteNonFranceConnect RPCCEEDemandeInvalide SouscriptionValideeExistante Autre"`
	Other    string `json:"other,omitempty" validate:"required_if=Type Autre"`
	Comments string `json:"comments,omitempty"`

	AdditionalProperties map[string]interface{} `json:"additionalProperties,omitempty"`
}

func (r SubscriptionRejection) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *SubscriptionRejection) Scan(value interface{}) error {
	return scanJSON(value, r)
}

// NotificationText returns the mail wording for the rejection, resolving
// the free-form text for the Autre type.
func (r SubscriptionRejection) NotificationText() string {
	if r.Type == RejectionOther {
		return r.Other
	}
	return RejectionReasonText[r.Type]
}
