package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InvoiceEnterprise identifies the merchant that issued a purchase proof.
type InvoiceEnterprise struct {
	EnterpriseName string `json:"enterpriseName"`
	SiretNumber    string `json:"sirenNumber,omitempty"`
}

// InvoiceCustomer is the purchaser as printed on the invoice.
type InvoiceCustomer struct {
	CustomerName    string `json:"customerName"`
	CustomerSurname string `json:"customerSurname"`
}

// InvoiceTransaction carries the purchase details of an invoice.
type InvoiceTransaction struct {
	OrderID         string    `json:"orderId,omitempty"`
	PurchaseDate    time.Time `json:"purchaseDate"`
	AmountInclTaxes float64   `json:"amountInclTaxes,omitempty"`
	AmountExclTaxes float64   `json:"amountExclTaxes,omitempty"`
}

// InvoiceProduct is one line of an invoice.
type InvoiceProduct struct {
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity,omitempty"`
	Amount      float64 `json:"amountInclTaxes,omitempty"`
}

// Invoice describes one purchase proof pushed by a mobility operator. It is
// only used to derive a filename and render a PDF; it never outlives the
// Metadata record that carries it.
type Invoice struct {
	Enterprise  InvoiceEnterprise  `json:"enterprise"`
	Customer    InvoiceCustomer    `json:"customer"`
	Transaction InvoiceTransaction `json:"transaction"`
	Products    []InvoiceProduct   `json:"products"`
}

// AttachmentMetadata wraps the invoice list of a Metadata record.
type AttachmentMetadata struct {
	Invoices []Invoice `json:"invoices"`
}

func (m AttachmentMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *AttachmentMetadata) Scan(value interface{}) error {
	return scanJSON(value, m)
}

// Metadata is a single-use record created by a mobility operator before it
// redirects the citizen to the subscription flow. The attachment assembler
// consumes and deletes it.
type Metadata struct {
	ID                 string             `gorm:"type:varchar(36);primaryKey" json:"id"`
	IncentiveID        string             `gorm:"type:varchar(36);not null;index" json:"incentiveId"`
	CitizenID          string             `gorm:"type:varchar(36);not null;index" json:"citizenId"`
	AttachmentMetadata AttachmentMetadata `gorm:"type:json" json:"attachmentMetadata"`
	CreatedAt          time.Time          `gorm:"autoCreateTime" json:"createdAt"`
}

func (Metadata) TableName() string {
	return "metadata"
}

func (m *Metadata) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
