package models

import "time"

// Transaction states. A deposit is registered as soon as the notes are
// stored; collection moves it through 2, 3 and 4.
const (
	TxStateRegistered           = 1 // deposited, not yet scheduled for pickup
	TxStateDisbursementPending  = 2 // included in a generated disbursement request
	TxStateInCollection         = 3 // collector on site, machine being emptied
	TxStateCollected            = 4 // cash removed and reconciled
)

// Transaction is a completed (or in-flight) cash deposit.
type Transaction struct {
	BaseModel
	Number       int                 `gorm:"not null;index" json:"number"` // transaction number sent to the machine
	DeviceCode   string              `gorm:"size:20;not null;index" json:"device_code"`
	Username     string              `gorm:"size:50;not null;index" json:"username"`
	Currency     string              `gorm:"size:20;not null" json:"currency"` // concept abbreviation: BOB, USD
	Amount       float64             `gorm:"not null" json:"amount"`
	State        int                 `gorm:"default:1;index" json:"state"`
	ProcessedAt  *time.Time          `json:"processed_at,omitempty"`
	Details      []TransactionDetail `gorm:"foreignKey:TransactionID" json:"details,omitempty"`
}

// TransactionDetail is one denomination line of a deposit.
type TransactionDetail struct {
	BaseModel
	TransactionID  uint    `gorm:"not null;index" json:"transaction_id"`
	DenominationID int     `gorm:"not null" json:"denomination_id"`
	Description    string  `gorm:"size:100" json:"description"`
	Value          float64 `gorm:"not null" json:"value"`
	Quantity       int     `gorm:"not null" json:"quantity"`
}

// Subtotal is the line amount.
func (d *TransactionDetail) Subtotal() float64 {
	return d.Value * float64(d.Quantity)
}

// BlocksDeposits reports whether the transaction state forbids new
// deposits on its machine. Once a disbursement is generated the
// machine must not receive cash until the collector finishes.
func BlocksDeposits(state int) bool {
	return state == TxStateDisbursementPending || state == TxStateInCollection
}
