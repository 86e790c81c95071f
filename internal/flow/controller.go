package flow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/venturus/cdm-teller/internal/bank"
	"github.com/venturus/cdm-teller/internal/config"
	"github.com/venturus/cdm-teller/internal/device"
	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/logger"
	"github.com/venturus/cdm-teller/internal/models"
	"github.com/venturus/cdm-teller/internal/repository"
)

// session is the in-flight deposit context, valid from currency
// selection until receipt or cancel.
type session struct {
	username       string
	currency       *models.Concept
	deviceCurrency int
	lines          []DetailLine
	total          float64
}

// Receipt summarizes a completed deposit.
type Receipt struct {
	TransactionID uint         `json:"transaction_id"`
	Number        int          `json:"number"`
	DeviceCode    string       `json:"device_code"`
	Username      string       `json:"username"`
	Currency      string       `json:"currency"`
	Amount        float64      `json:"amount"`
	Lines         []DetailLine `json:"lines"`
	RegisteredAt  time.Time    `json:"registered_at"`
	// BankNotified is false while the notification still runs in the
	// background or when the deposit has no linked account.
	BankNotified bool `json:"bank_notified"`
}

// Snapshot is the flow view pushed to the kiosk UI.
type Snapshot struct {
	State      State        `json:"state"`
	DeviceCode string       `json:"device_code"`
	Blocked    bool         `json:"blocked"`
	InFlight   bool         `json:"in_flight"`
	Currency   string       `json:"currency,omitempty"`
	Lines      []DetailLine `json:"lines,omitempty"`
	Total      float64      `json:"total"`
}

// Controller drives the deposit flow of one machine. Device actions are
// strictly sequential: a second operation while one runs is refused, not
// queued.
type Controller struct {
	drv device.Driver
	sm  *StateMachine
	log *zap.Logger

	deviceCode string
	deviceName string

	deviceCfg *config.DeviceConfig
	flowCfg   *config.FlowConfig
	bankCfg   *config.BankConfig

	txRepo      repository.TransactionRepository
	conceptRepo repository.ConceptRepository
	accountRepo repository.BankAccountRepository
	auditRepo   repository.BankAuditRepository
	denomRepo   repository.DenominationRepository

	notifier *bank.Notifier

	mu       sync.Mutex
	inFlight bool
	sess     *session

	blocked atomic.Bool

	onStatus  func(*device.Status)
	onBlocked func(bool)
	onReceipt func(*Receipt)
}

// ControllerOptions wires a controller.
type ControllerOptions struct {
	Driver     device.Driver
	DeviceCode string
	DeviceName string
	DeviceCfg  *config.DeviceConfig
	FlowCfg    *config.FlowConfig
	BankCfg    *config.BankConfig
	Repos      *repository.Manager
	Notifier   *bank.Notifier
}

// NewController creates the flow controller for one machine.
func NewController(opts ControllerOptions) *Controller {
	log := logger.GetModuleLogger("flow")
	return &Controller{
		drv:         opts.Driver,
		sm:          NewStateMachine(opts.DeviceCode, log),
		log:         log,
		deviceCode:  opts.DeviceCode,
		deviceName:  opts.DeviceName,
		deviceCfg:   opts.DeviceCfg,
		flowCfg:     opts.FlowCfg,
		bankCfg:     opts.BankCfg,
		txRepo:      opts.Repos.Transaction(),
		conceptRepo: opts.Repos.Concept(),
		accountRepo: opts.Repos.BankAccount(),
		auditRepo:   opts.Repos.BankAudit(),
		denomRepo:   opts.Repos.Denomination(),
		notifier:    opts.Notifier,
	}
}

// OnStateChange registers the kiosk push callback.
func (c *Controller) OnStateChange(fn func(from, to State)) {
	c.sm.OnStateChange(fn)
}

// SetStatusObserver registers the waiter progress observer. Every fresh
// device snapshot taken during a wait is forwarded to it.
func (c *Controller) SetStatusObserver(fn func(*device.Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

// SetBlockedObserver registers the collection block observer. It fires
// whenever the blocked flag changes value.
func (c *Controller) SetBlockedObserver(fn func(bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onBlocked = fn
}

// SetReceiptObserver registers the receipt push observer.
func (c *Controller) SetReceiptObserver(fn func(*Receipt)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReceipt = fn
}

// setBlocked updates the blocked flag and notifies the observer on a
// change.
func (c *Controller) setBlocked(blocked bool) {
	was := c.blocked.Swap(blocked)
	if was == blocked {
		return
	}

	c.mu.Lock()
	observer := c.onBlocked
	c.mu.Unlock()
	if observer != nil {
		observer(blocked)
	}
}

// DeviceCurrency maps a currency abbreviation to the machine's numeric
// currency code.
func DeviceCurrency(abbreviation string) (int, error) {
	switch abbreviation {
	case "BOB":
		return 2, nil
	case "USD":
		return 0, nil
	default:
		return 0, apperrors.Newf(apperrors.ErrCurrencyInvalid, "no device currency for %s", abbreviation)
	}
}

func (c *Controller) beginOp() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return apperrors.New(apperrors.ErrFlowBusy, "another device operation is in progress")
	}
	c.inFlight = true
	return nil
}

func (c *Controller) endOp() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

func (c *Controller) guardState(event string) error {
	if c.sm.GetState() == StateDesynchronized && event != EventRecover {
		return apperrors.New(apperrors.ErrFlowDesynchronized,
			"machine state is desynchronized, operator intervention required")
	}
	if !c.sm.CanTrigger(event) {
		return apperrors.Newf(apperrors.ErrFlowState,
			"operation not allowed in state %s", c.sm.GetState())
	}
	return nil
}

func (c *Controller) waitOpts(interval, timeout time.Duration) device.WaitOptions {
	c.mu.Lock()
	observer := c.onStatus
	c.mu.Unlock()
	return device.WaitOptions{
		Interval: interval,
		Timeout:  timeout,
		OnStatus: observer,
	}
}

// SelectCurrency opens a transaction on the machine for the given
// currency. Refused while collection is pending on the machine.
func (c *Controller) SelectCurrency(ctx context.Context, username, abbreviation string) (*models.Concept, error) {
	if err := c.beginOp(); err != nil {
		return nil, err
	}
	defer c.endOp()

	if err := c.guardState(EventSelectCurrency); err != nil {
		return nil, err
	}

	// check the database directly rather than trusting the last poll
	blocked, err := c.txRepo.HasBlocking(ctx, c.deviceCode)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "failed to check collection state")
	}
	c.setBlocked(blocked)
	if blocked {
		return nil, apperrors.New(apperrors.ErrCollectionPending,
			"machine has deposits awaiting collection")
	}

	concept, err := c.conceptRepo.FindCurrency(ctx, abbreviation)
	if err != nil {
		return nil, err
	}
	deviceCurrency, err := DeviceCurrency(abbreviation)
	if err != nil {
		return nil, err
	}

	err = c.drv.StartTransaction(ctx, c.flowCfg.TransactionNumber, deviceCurrency, c.flowCfg.DepositMode)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sess = &session{
		username:       username,
		currency:       concept,
		deviceCurrency: deviceCurrency,
	}
	c.mu.Unlock()

	if err := c.sm.Trigger(ctx, EventSelectCurrency); err != nil {
		return nil, err
	}

	logger.LogFlowEvent("currency_selected", c.deviceCode, map[string]interface{}{
		"currency": abbreviation,
		"username": username,
	})
	return concept, nil
}

// Count runs a counting cycle and returns the merged denomination
// detail. Valid from the instructions screen and again from the detail
// screen to pick up additional notes.
func (c *Controller) Count(ctx context.Context) ([]DetailLine, float64, error) {
	if err := c.beginOp(); err != nil {
		return nil, 0, err
	}
	defer c.endOp()

	if err := c.guardState(EventCount); err != nil {
		return nil, 0, err
	}

	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return nil, 0, apperrors.New(apperrors.ErrFlowState, "no open deposit session")
	}

	if _, err := c.drv.StartCount(ctx, sess.deviceCurrency); err != nil {
		return nil, 0, err
	}

	// the monitor carries the accumulated totals across count cycles
	counted, err := c.drv.CountedRows(ctx)
	if err != nil {
		return nil, 0, err
	}
	catalog, err := c.drv.Denominations(ctx, sess.deviceCurrency)
	if err != nil {
		return nil, 0, err
	}

	c.mirrorCatalog(ctx, sess.currency.Abbreviation, catalog)

	lines, total := MergeDetail(catalog, counted)

	c.mu.Lock()
	sess.lines = lines
	sess.total = total
	c.mu.Unlock()

	if err := c.sm.Trigger(ctx, EventCount); err != nil {
		return nil, 0, err
	}

	logger.LogFlowEvent("count_complete", c.deviceCode, map[string]interface{}{
		"lines": len(lines),
		"total": total,
	})
	return lines, total, nil
}

// mirrorCatalog refreshes the server-side denomination table. Failures
// only log: the catalog mirror is for reporting, not for the flow.
func (c *Controller) mirrorCatalog(ctx context.Context, currency string, catalog []device.Denomination) {
	rows := make([]*models.Denomination, 0, len(catalog))
	for _, d := range catalog {
		rows = append(rows, &models.Denomination{
			Currency:       currency,
			DenominationID: d.DenominationID,
			Description:    d.Description,
			Value:          float64(d.Value),
			Active:         d.Inactive == 0,
		})
	}
	if err := c.denomRepo.Upsert(ctx, rows); err != nil {
		c.log.Warn("failed to mirror denomination catalog",
			zap.String("device", c.deviceCode), zap.Error(err))
	}
}

// Deposit commits the escrowed cash. StoreStart is irreversible: from
// that point on the deposit is registered and a receipt produced no
// matter what else fails.
func (c *Controller) Deposit(ctx context.Context) (*Receipt, error) {
	if err := c.beginOp(); err != nil {
		return nil, err
	}
	defer c.endOp()

	if err := c.guardState(EventDeposit); err != nil {
		return nil, err
	}

	// StoreStart is irreversible; a dropped connection must not abort the
	// sequence halfway.
	ctx = context.WithoutCancel(ctx)

	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil || len(sess.lines) == 0 {
		return nil, apperrors.New(apperrors.ErrEmptyDetail, "no counted notes to deposit")
	}

	if err := c.drv.StoreStart(ctx); err != nil {
		return nil, err
	}

	// cash is moving: everything below must not abort the deposit
	auditID := c.openAudit(ctx, sess)

	waitErr := c.drv.WaitCountDone(ctx, c.waitOpts(c.deviceCfg.SenseInterval, c.deviceCfg.ReadyTimeout))
	if waitErr != nil {
		c.log.Error("store wait did not settle",
			zap.String("device", c.deviceCode), zap.Error(waitErr))
	}

	if err := c.drv.Unlock(ctx); err != nil {
		// the machine holds the cash but stays locked; the deposit is
		// still registered, the lock needs an operator
		c.log.Error("unlock failed after store",
			zap.String("device", c.deviceCode), zap.Error(err))
	}

	receipt, err := c.register(ctx, sess, auditID)
	if err != nil {
		c.log.Error("failed to register deposit, cash already stored",
			zap.String("device", c.deviceCode), zap.Error(err))
		receipt = &Receipt{
			DeviceCode:   c.deviceCode,
			Username:     sess.username,
			Currency:     sess.currency.Abbreviation,
			Amount:       sess.total,
			Lines:        sess.lines,
			RegisteredAt: time.Now(),
		}
	}

	if err := c.sm.Trigger(ctx, EventDeposit); err != nil {
		return receipt, err
	}

	c.mu.Lock()
	onReceipt := c.onReceipt
	c.mu.Unlock()
	if onReceipt != nil {
		onReceipt(receipt)
	}

	logger.LogFlowEvent("deposit_complete", c.deviceCode, map[string]interface{}{
		"amount":   receipt.Amount,
		"currency": receipt.Currency,
		"number":   receipt.Number,
	})
	return receipt, nil
}

// openAudit creates the pending bank audit row before the bank is
// contacted. Only reserve-currency deposits are notified. Returns zero
// when no notification will happen.
func (c *Controller) openAudit(ctx context.Context, sess *session) uint {
	if !sess.currency.IsReserve() || c.notifier == nil {
		return 0
	}

	endpoint, err := c.conceptRepo.FindBankEndpoint(ctx)
	if err != nil {
		c.log.Warn("no bank endpoint configured, skipping notification", zap.Error(err))
		return 0
	}

	audit := &models.BankAPIAudit{
		URL:         bankURL(c.bankCfg.APIURL, endpoint.Mark),
		Observation: fmt.Sprintf("deposit %s currency %s", sess.username, sess.currency.Abbreviation),
	}
	if err := c.auditRepo.CreatePending(ctx, audit); err != nil {
		c.log.Error("failed to create bank audit", zap.Error(err))
		return 0
	}

	if _, err := c.accountRepo.FindByUsername(ctx, sess.username); err != nil {
		if ferr := c.auditRepo.Finalize(ctx, audit.ID, models.BankAuditSkipped,
			"user has no linked bank account", "", 0, nil); ferr != nil {
			c.log.Error("failed to mark audit skipped", zap.Error(ferr))
		}
		return 0
	}

	return audit.ID
}

func bankURL(base, path string) string {
	if base == "" || path == "" {
		return ""
	}
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	return base + "/" + path
}

// register persists the deposit and launches the bank notification.
func (c *Controller) register(ctx context.Context, sess *session, auditID uint) (*Receipt, error) {
	number, err := c.txRepo.NextNumber(ctx, c.deviceCode)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tx := &models.Transaction{
		Number:      number,
		DeviceCode:  c.deviceCode,
		Username:    sess.username,
		Currency:    sess.currency.Abbreviation,
		Amount:      sess.total,
		State:       models.TxStateRegistered,
		ProcessedAt: &now,
	}
	for _, line := range sess.lines {
		tx.Details = append(tx.Details, models.TransactionDetail{
			DenominationID: line.DenominationID,
			Description:    line.Description,
			Value:          line.Value,
			Quantity:       line.Quantity,
		})
	}

	if err := c.txRepo.Register(ctx, tx); err != nil {
		return nil, err
	}

	if auditID != 0 {
		if err := c.auditRepo.AttachTransaction(ctx, auditID, tx.ID); err != nil {
			c.log.Warn("failed to attach audit to transaction", zap.Error(err))
		}
		c.notifyBank(sess, auditID, tx.Amount)
	}

	return &Receipt{
		TransactionID: tx.ID,
		Number:        number,
		DeviceCode:    c.deviceCode,
		Username:      sess.username,
		Currency:      sess.currency.Abbreviation,
		Amount:        sess.total,
		Lines:         sess.lines,
		RegisteredAt:  now,
	}, nil
}

// notifyBank launches the notification in the background so the teller
// sees the receipt immediately.
func (c *Controller) notifyBank(sess *session, auditID uint, amount float64) {
	go func() {
		ctx := context.Background()

		account, err := c.accountRepo.FindByUsername(ctx, sess.username)
		if err != nil {
			c.log.Warn("bank account disappeared before notification", zap.Error(err))
			return
		}
		endpoint, err := c.conceptRepo.FindBankEndpoint(ctx)
		if err != nil {
			c.log.Warn("bank endpoint disappeared before notification", zap.Error(err))
			return
		}

		req := &bank.DepositRequest{
			Terminal:       bank.Terminal(c.deviceName, c.deviceCode),
			AccountNumber:  account.AccountNumber,
			TypeAccount:    account.AccountType,
			Amount:         amount,
			CurrencyAmount: account.Currency,
		}
		if err := c.notifier.Deliver(ctx, auditID, endpoint.Mark, req); err != nil {
			c.log.Warn("bank notification did not succeed",
				zap.String("device", c.deviceCode), zap.Error(err))
		}
	}()
}

// Finish acknowledges the receipt and returns to currency selection.
func (c *Controller) Finish(ctx context.Context) error {
	if err := c.beginOp(); err != nil {
		return err
	}
	defer c.endOp()

	if err := c.guardState(EventFinish); err != nil {
		return err
	}

	c.mu.Lock()
	c.sess = nil
	c.mu.Unlock()
	return c.sm.Trigger(ctx, EventFinish)
}

// Cancel aborts the open transaction: open the gate, wait for the
// operator to take the notes and the door to close, unlock, then wait
// for the machine to confirm it is back in login mode. A failure midway
// moves the flow to the desynchronized state because the machine's real
// position is no longer known.
func (c *Controller) Cancel(ctx context.Context) error {
	if err := c.beginOp(); err != nil {
		return err
	}
	defer c.endOp()

	if err := c.guardState(EventCancel); err != nil {
		return err
	}

	// The gate is about to open; finish the sequence even if the caller
	// goes away.
	ctx = context.WithoutCancel(ctx)

	if err := c.cancelSequence(ctx); err != nil {
		if terr := c.sm.Trigger(ctx, EventDesync); terr != nil {
			c.log.Error("failed to mark flow desynchronized", zap.Error(terr))
		}
		return apperrors.New(apperrors.ErrFlowDesynchronized, "cancel sequence failed").WithCause(err)
	}

	c.mu.Lock()
	c.sess = nil
	c.mu.Unlock()

	if err := c.sm.Trigger(ctx, EventCancel); err != nil {
		return err
	}
	logger.LogFlowEvent("cancel_complete", c.deviceCode, nil)
	return nil
}

func (c *Controller) cancelSequence(ctx context.Context) error {
	if err := c.drv.Cancel(ctx); err != nil {
		return err
	}

	// human-paced: no timeout, the operator decides when to close the door
	if err := c.drv.WaitEscrowDoorClosed(ctx, c.waitOpts(c.deviceCfg.DoorInterval, 0)); err != nil {
		return err
	}

	if err := c.drv.Unlock(ctx); err != nil {
		return err
	}

	return c.drv.WaitCancelComplete(ctx, c.waitOpts(c.deviceCfg.CancelInterval, 0))
}

// Recover clears the desynchronized state after an operator has
// physically verified the machine. The machine must report idle in
// login mode before the flow resumes.
func (c *Controller) Recover(ctx context.Context) error {
	if err := c.beginOp(); err != nil {
		return err
	}
	defer c.endOp()

	if c.sm.GetState() != StateDesynchronized {
		return apperrors.New(apperrors.ErrFlowState, "flow is not desynchronized")
	}

	status, err := c.drv.Sense(ctx)
	if err != nil {
		return err
	}
	if !status.CancelComplete() {
		return apperrors.New(apperrors.ErrDeviceStatus,
			"machine has not returned to login mode")
	}

	c.mu.Lock()
	c.sess = nil
	c.mu.Unlock()
	return c.sm.Trigger(ctx, EventRecover)
}

// Blocked reports whether pending collection blocks new deposits.
func (c *Controller) Blocked() bool {
	return c.blocked.Load()
}

// State returns the current flow snapshot.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:      c.sm.GetState(),
		DeviceCode: c.deviceCode,
		Blocked:    c.blocked.Load(),
		InFlight:   c.inFlight,
	}
	if c.sess != nil {
		snap.Currency = c.sess.currency.Abbreviation
		snap.Lines = c.sess.lines
		snap.Total = c.sess.total
	}
	return snap
}

// RunCollectionGuard polls the collection state until ctx is canceled.
// Meant to run as a goroutine per controller.
func (c *Controller) RunCollectionGuard(ctx context.Context) {
	interval := c.flowCfg.CollectionPollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			blocked, err := c.txRepo.HasBlocking(ctx, c.deviceCode)
			if err != nil {
				c.log.Warn("collection guard query failed",
					zap.String("device", c.deviceCode), zap.Error(err))
				continue
			}
			was := c.blocked.Load()
			c.setBlocked(blocked)
			if was != blocked {
				logger.LogFlowEvent("collection_block_changed", c.deviceCode, map[string]interface{}{
					"blocked": blocked,
				})
			}
		}
	}
}
