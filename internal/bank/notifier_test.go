package bank

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venturus/cdm-teller/internal/config"
	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/models"
	"github.com/venturus/cdm-teller/internal/repository"
)

// scriptedCaller plays back a fixed sequence of outcomes.
type scriptedCaller struct {
	outcomes []func() (*DepositResponse, error)
	calls    int
}

func (s *scriptedCaller) Notify(ctx context.Context, endpoint string, req *DepositRequest) (*DepositResponse, error) {
	idx := s.calls
	if idx >= len(s.outcomes) {
		idx = len(s.outcomes) - 1
	}
	s.calls++
	return s.outcomes[idx]()
}

func transportFailure() (*DepositResponse, error) {
	return nil, apperrors.New(apperrors.ErrBankUnreachable, "connection refused")
}

func answered(code, detail string) func() (*DepositResponse, error) {
	return func() (*DepositResponse, error) {
		return &DepositResponse{AnswerCode: code, AnswerDetail: detail, Raw: map[string]interface{}{"answerCode": code}}, nil
	}
}

func newTestNotifier(t *testing.T, caller Caller) (*Notifier, repository.BankAuditRepository, *models.BankAPIAudit) {
	t.Helper()

	db := repository.SetupTestDB()
	t.Cleanup(func() { repository.CleanupTestDB(db) })
	audits := repository.NewBankAuditRepository(db)

	audit := &models.BankAPIAudit{TransactionID: 1}
	require.NoError(t, audits.CreatePending(context.Background(), audit))

	n := NewNotifier(caller, audits, &config.BankConfig{
		RetryAttempts: 3,
		RetryDelay:    5 * time.Second,
	})
	n.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return n, audits, audit
}

func TestDeliverApprovedFirstAttempt(t *testing.T) {
	caller := &scriptedCaller{outcomes: []func() (*DepositResponse, error){answered("00", "")}}
	n, audits, audit := newTestNotifier(t, caller)

	err := n.Deliver(context.Background(), audit.ID, "/api/deposits", &DepositRequest{Terminal: "CDM01", Amount: 320})
	assert.NoError(t, err)
	assert.Equal(t, 1, caller.calls)

	found, err := audits.FindByTransaction(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.BankAuditSuccess, found.Status)
	assert.Equal(t, "00", found.AnswerCode)
	assert.Equal(t, 1, found.Attempts)
}

func TestDeliverRetriesTransportThenSucceeds(t *testing.T) {
	caller := &scriptedCaller{outcomes: []func() (*DepositResponse, error){
		transportFailure,
		answered("00", ""),
	}}
	n, audits, audit := newTestNotifier(t, caller)

	var delays []time.Duration
	n.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	err := n.Deliver(context.Background(), audit.ID, "/api/deposits", &DepositRequest{})
	assert.NoError(t, err)
	assert.Equal(t, 2, caller.calls)
	require.Len(t, delays, 1)
	assert.Equal(t, 5*time.Second, delays[0])

	found, _ := audits.FindByTransaction(context.Background(), 1)
	assert.Equal(t, models.BankAuditSuccess, found.Status)
	assert.Equal(t, 2, found.Attempts)
}

func TestDeliverExhaustsTransportFailures(t *testing.T) {
	caller := &scriptedCaller{outcomes: []func() (*DepositResponse, error){transportFailure}}
	n, audits, audit := newTestNotifier(t, caller)

	var delays []time.Duration
	n.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	err := n.Deliver(context.Background(), audit.ID, "/api/deposits", &DepositRequest{})
	assert.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBankExhausted))
	assert.Equal(t, 3, caller.calls)
	// delay between attempts only, never after the last one
	assert.Len(t, delays, 2)

	found, _ := audits.FindByTransaction(context.Background(), 1)
	assert.Equal(t, models.BankAuditError, found.Status)
	assert.Equal(t, 3, found.Attempts)
}

func TestDeliverRejectionIsFinal(t *testing.T) {
	caller := &scriptedCaller{outcomes: []func() (*DepositResponse, error){
		answered("05", "insufficient data"),
		answered("00", ""),
	}}
	n, audits, audit := newTestNotifier(t, caller)

	err := n.Deliver(context.Background(), audit.ID, "/api/deposits", &DepositRequest{})
	assert.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBankRejected))
	assert.Equal(t, 1, caller.calls, "an answered rejection must not retry")

	found, _ := audits.FindByTransaction(context.Background(), 1)
	assert.Equal(t, models.BankAuditRejected, found.Status)
	assert.Equal(t, "05", found.AnswerCode)
}

func TestClientNotifySendsHeadersAndDecodes(t *testing.T) {
	var gotChannel, gotTrace, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotChannel = r.Header.Get("Channel")
		gotTrace = r.Header.Get("Trace")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"answerCode":"00","answerDetail":"ok"}`))
	}))
	defer srv.Close()

	client := NewClient(&config.BankConfig{
		APIURL:         srv.URL,
		Username:       "svc",
		Password:       "secret",
		Channel:        "TEST",
		RequestTimeout: 5 * time.Second,
	})

	resp, err := client.Notify(context.Background(), "/api/deposits", &DepositRequest{Terminal: "CDM01", Amount: 100})
	require.NoError(t, err)
	assert.True(t, resp.Approved())
	assert.Equal(t, "TEST", gotChannel)
	assert.Len(t, gotTrace, 32, "trace is a GUID without dashes")
	assert.NotContains(t, gotTrace, "-")
	assert.Contains(t, gotAuth, "Basic ")
}

func TestClientNotifyTransportFailureIsRetryable(t *testing.T) {
	client := NewClient(&config.BankConfig{
		APIURL:         "http://127.0.0.1:1",
		RequestTimeout: 500 * time.Millisecond,
	})

	_, err := client.Notify(context.Background(), "/api/deposits", &DepositRequest{})
	assert.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestClientNotifyMissingAnswerCodeCountsApproved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"received"}`))
	}))
	defer srv.Close()

	client := NewClient(&config.BankConfig{APIURL: srv.URL, RequestTimeout: 5 * time.Second})

	resp, err := client.Notify(context.Background(), "deposits", &DepositRequest{})
	require.NoError(t, err)
	assert.True(t, resp.Approved())
}
