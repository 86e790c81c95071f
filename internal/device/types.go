package device

import (
	"context"
	"time"
)

// CountedRow is one per-denomination counting result as reported by the
// device monitor endpoint. JSON field names match the device firmware and
// must not change.
type CountedRow struct {
	Code              int `json:"dpmtrcode"`
	TransactionNumber int `json:"dpmtrntra"`
	DenominationID    int `json:"dpmtrdsid"`
	Quantity          int `json:"dpmtrcant"`
	Status            int `json:"dpmtrstat"`
}

// Denomination is one row of the device's denomination reference table.
// JSON field names match the device firmware.
type Denomination struct {
	ID             int    `json:"gbcucygnid"`
	DenominationID int    `json:"gbcucydnid"`
	Currency       int    `json:"gbcucycmon"`
	Description    string `json:"gbcucydesc"`
	Value          int    `json:"gbcucyvlor"`
	Series         string `json:"gbcucyseri"`
	Inactive       int    `json:"gbcucymrcb"`
	Quantity       int    `json:"gbcucycant"`
}

// senseResponse mirrors the /sense payload. The firmware duplicates the raw
// SR2 value at the top level; the decoded register map lives under
// "interpretacion".
type senseResponse struct {
	SR2            string            `json:"SR2"`
	Interpretation map[string]string `json:"interpretacion"`
}

// startTransactionResponse mirrors /flujo/iniciar-transaccion. The firmware
// reports errorCode 400 on acceptance.
type startTransactionResponse struct {
	ErrorCode int    `json:"errorCode"`
	Message   string `json:"message"`
}

// startCountResponse mirrors /flujo/iniciar-conteo.
type startCountResponse struct {
	Error   bool         `json:"error"`
	Rows    []CountedRow `json:"registros"`
	Message string       `json:"message"`
}

// Driver is the device protocol surface the flow controller depends on.
// Actions against one device must be issued strictly sequentially; the flow
// controller owns that serialization.
type Driver interface {
	// Sense performs a single status query. Transport failures return an
	// error; no retry happens at this level.
	Sense(ctx context.Context) (*Status, error)

	// StartTransaction selects the currency and locks the device.
	StartTransaction(ctx context.Context, transactionNumber, currency, mode int) error
	// StartCount runs a count cycle and returns per-denomination results.
	StartCount(ctx context.Context, currency int) ([]CountedRow, error)
	// CountStart triggers a raw count cycle without collecting results.
	CountStart(ctx context.Context) error
	// StoreStart commits escrowed cash into the internal vault. Irreversible.
	StoreStart(ctx context.Context) error
	// Unlock returns the device to idle. Bounded; failure is escalated
	// because a locked device blocks all future transactions.
	Unlock(ctx context.Context) error
	// Cancel opens the escrow gate for manual removal.
	Cancel(ctx context.Context) error
	// LockParam applies transaction parameters without starting the flow.
	LockParam(ctx context.Context, transactionNumber, mode, currency int) error

	// CountedRows reads the current counting monitor.
	CountedRows(ctx context.Context) ([]CountedRow, error)
	// Denominations reads the reference table for a currency.
	Denominations(ctx context.Context, currency int) ([]Denomination, error)

	WaitUntil(ctx context.Context, pred Predicate, opts WaitOptions) error
	WaitCountDone(ctx context.Context, opts WaitOptions) error
	WaitReady(ctx context.Context, opts WaitOptions) error
	WaitEscrowDoorClosed(ctx context.Context, opts WaitOptions) error
	WaitCancelComplete(ctx context.Context, opts WaitOptions) error
}

// WaitOptions tunes a condition waiter.
type WaitOptions struct {
	// Interval between status polls.
	Interval time.Duration
	// Timeout bounds the whole wait. Zero means unbounded; the door-close
	// and cancel-confirmation waits are human-paced and carry no bound.
	Timeout time.Duration
	// OnStatus, when set, observes every fresh snapshot. Lets the UI layer
	// show live device state while a sequence is in progress.
	OnStatus func(*Status)
}
