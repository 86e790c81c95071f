package models

// BankAccount links a teller user to the account credited on deposit.
type BankAccount struct {
	BaseModel
	Username      string `gorm:"uniqueIndex;size:50;not null" json:"username"`
	AccountNumber string `gorm:"size:30;not null" json:"account_number"`
	AccountType   string `gorm:"size:10" json:"account_type"`
	Currency      string `gorm:"size:20" json:"currency"`
}

// Bank notification audit statuses. The status only moves forward:
// pending is set before the first attempt and replaced exactly once
// with the final outcome.
const (
	BankAuditPending  = "pending"
	BankAuditSuccess  = "success"
	BankAuditError    = "error"    // transport exhausted, money in machine but bank not notified
	BankAuditRejected = "rejected" // bank answered with a non-approval code
	BankAuditSkipped  = "skipped"  // user has no linked account, nothing to notify
)

// BankAPIAudit records one bank notification outcome per deposit.
type BankAPIAudit struct {
	BaseModel
	TransactionID uint    `gorm:"index" json:"transaction_id"`
	URL           string  `gorm:"size:255" json:"url"`
	Status        string  `gorm:"size:20;default:'pending';index" json:"status"`
	Observation   string  `gorm:"size:500" json:"observation"`
	AnswerCode    string  `gorm:"size:10" json:"answer_code"`
	Attempts      int     `gorm:"default:0" json:"attempts"`
	Response      JSONMap `gorm:"type:json" json:"response"`
}

// IsFinal reports whether the audit already carries an outcome.
func (a *BankAPIAudit) IsFinal() bool {
	return a.Status != BankAuditPending
}
