package models

import "time"

// Disbursement request states.
const (
	DisbursementRequested = "requested"
	DisbursementApproved  = "approved"
	DisbursementRejected  = "rejected"
)

// DisbursementRequest groups registered transactions of one machine for
// pickup. Approving it moves the transactions to the in-collection state;
// rejecting it returns them to registered.
type DisbursementRequest struct {
	BaseModel
	DeviceCode   string     `gorm:"size:20;not null;index" json:"device_code"`
	RequestedBy  string     `gorm:"size:50;not null" json:"requested_by"`
	ResolvedBy   string     `gorm:"size:50" json:"resolved_by"`
	Amount       float64    `gorm:"not null" json:"amount"`
	Currency     string     `gorm:"size:20;not null" json:"currency"`
	State        string     `gorm:"size:20;default:'requested';index" json:"state"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	Observation  string     `gorm:"size:500" json:"observation"`
}
