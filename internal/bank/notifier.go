package bank

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/venturus/cdm-teller/internal/config"
	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/logger"
	"github.com/venturus/cdm-teller/internal/models"
	"github.com/venturus/cdm-teller/internal/repository"
)

// Caller is the bank call surface the notifier drives. *Client satisfies
// it; tests substitute a scripted implementation.
type Caller interface {
	Notify(ctx context.Context, endpoint string, req *DepositRequest) (*DepositResponse, error)
}

// Notifier delivers deposit notifications with bounded retries and
// records the outcome on the audit row.
//
// Retry policy: transport failures are retried up to the configured
// attempt count with a fixed delay between attempts. An answered request
// never retries, whatever the answer code says. The bank call happens
// after the cash is already stored, so the notifier reports failures but
// never unwinds the deposit.
type Notifier struct {
	caller   Caller
	audits   repository.BankAuditRepository
	attempts int
	delay    time.Duration
	log      *zap.Logger

	// sleep is injectable for tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewNotifier creates a notifier from configuration.
func NewNotifier(caller Caller, audits repository.BankAuditRepository, cfg *config.BankConfig) *Notifier {
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &Notifier{
		caller:   caller,
		audits:   audits,
		attempts: attempts,
		delay:    delay,
		log:      logger.GetModuleLogger("bank"),
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Deliver runs the notification loop and finalizes the audit row.
// Returns nil on bank approval; ErrBankRejected when the bank answered
// with a non-approval code; ErrBankExhausted when every attempt failed
// at the transport level.
func (n *Notifier) Deliver(ctx context.Context, auditID uint, endpoint string, req *DepositRequest) error {
	var lastErr error

	for attempt := 1; attempt <= n.attempts; attempt++ {
		resp, err := n.caller.Notify(ctx, endpoint, req)
		if err != nil {
			lastErr = err
			logger.LogBankAttempt(attempt, "", err)

			if !apperrors.IsRetryable(err) {
				n.finalize(ctx, auditID, models.BankAuditError, err.Error(), "", attempt, nil)
				return err
			}
			if attempt < n.attempts {
				if serr := n.sleep(ctx, n.delay); serr != nil {
					n.finalize(ctx, auditID, models.BankAuditError, "canceled while retrying", "", attempt, nil)
					return apperrors.Wrap(serr, apperrors.ErrCanceled, "bank notification canceled")
				}
			}
			continue
		}

		logger.LogBankAttempt(attempt, resp.AnswerCode, nil)

		if resp.Approved() {
			n.finalize(ctx, auditID, models.BankAuditSuccess, "deposit credited", resp.AnswerCode, attempt, resp.Raw)
			return nil
		}

		// the bank answered: a rejection is final, do not retry
		obs := fmt.Sprintf("bank rejected the deposit: %s", resp.AnswerDetail)
		n.finalize(ctx, auditID, models.BankAuditRejected, obs, resp.AnswerCode, attempt, resp.Raw)
		return apperrors.Newf(apperrors.ErrBankRejected, "bank rejected deposit (code %s)", resp.AnswerCode)
	}

	obs := fmt.Sprintf("bank unreachable after %d attempts", n.attempts)
	n.finalize(ctx, auditID, models.BankAuditError, obs, "", n.attempts, nil)
	return apperrors.Newf(apperrors.ErrBankExhausted, "bank unreachable after %d attempts", n.attempts).WithCause(lastErr)
}

func (n *Notifier) finalize(ctx context.Context, auditID uint, status, observation, answerCode string, attempts int, raw map[string]interface{}) {
	if n.audits == nil || auditID == 0 {
		return
	}
	var response models.JSONMap
	if raw != nil {
		response = models.JSONMap(raw)
	}
	if err := n.audits.Finalize(ctx, auditID, status, observation, answerCode, attempts, response); err != nil {
		n.log.Error("failed to finalize bank audit",
			zap.Uint("audit_id", auditID),
			zap.String("status", status),
			zap.Error(err),
		)
	}
}
