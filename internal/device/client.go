package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/logger"
	"go.uber.org/zap"
)

// ClientConfig tunes one device client.
type ClientConfig struct {
	// BaseURL is the device's HTTP API root.
	BaseURL string
	// RequestTimeout applies to every call except Unlock.
	RequestTimeout time.Duration
	// UnlockTimeout bounds the unlock call.
	UnlockTimeout time.Duration
}

// DefaultClientConfig returns production defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:        baseURL,
		RequestTimeout: 30 * time.Second,
		UnlockTimeout:  7 * time.Second,
	}
}

// Client drives one cash-deposit machine over its HTTP protocol. It is a
// thin action layer: each method issues a single request and classifies the
// outcome. Retrying and sequencing belong to the callers.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	unlockTimeout time.Duration
	log           *zap.Logger
}

// NewClient creates a device client.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		unlockTimeout: cfg.UnlockTimeout,
		log:           logger.GetModuleLogger("device"),
	}
}

// BaseURL returns the device API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// get issues one GET and returns the raw body on 2xx.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidParam)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrDeviceUnreachable, "GET %s", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrDeviceUnreachable, "GET %s: read body", path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Newf(errors.ErrDeviceRejected, "GET %s: status %d", path, resp.StatusCode)
	}

	return body, nil
}

// Sense performs one status query and decodes the register snapshot. Any
// transport failure or non-success status returns an error so callers treat
// "no status" uniformly with "not yet in the desired state". No retry here;
// that is the waiter's job.
func (c *Client) Sense(ctx context.Context) (*Status, error) {
	body, err := c.get(ctx, "/sense", nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDeviceStatus)
	}

	var resp senseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrDeviceStatus, "malformed sense payload")
	}

	return decodeStatus(&resp), nil
}

// StartTransaction selects the currency and locks the device for a deposit.
// The firmware reports errorCode 400 on acceptance; anything else carries a
// rejection message.
func (c *Client) StartTransaction(ctx context.Context, transactionNumber, currency, mode int) error {
	q := url.Values{}
	q.Set("ntra", fmt.Sprintf("%d", transactionNumber))
	q.Set("moneda", fmt.Sprintf("%d", currency))
	q.Set("modo", fmt.Sprintf("%d", mode))

	body, err := c.get(ctx, "/flujo/iniciar-transaccion", q)
	if err != nil {
		logger.LogDeviceCommand(c.baseURL, "start-transaction", false, err.Error())
		return err
	}

	var resp startTransactionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return errors.Wrap(err, errors.ErrDeviceStatus, "malformed start-transaction payload")
	}

	if resp.ErrorCode != 400 {
		logger.LogDeviceCommand(c.baseURL, "start-transaction", false, resp.Message)
		return errors.New(errors.ErrDeviceRejected, resp.Message)
	}

	logger.LogDeviceCommand(c.baseURL, "start-transaction", true, "")
	return nil
}

// StartCount runs one count cycle and returns the per-denomination results.
func (c *Client) StartCount(ctx context.Context, currency int) ([]CountedRow, error) {
	q := url.Values{}
	q.Set("moneda", fmt.Sprintf("%d", currency))

	body, err := c.get(ctx, "/flujo/iniciar-conteo", q)
	if err != nil {
		logger.LogDeviceCommand(c.baseURL, "start-count", false, err.Error())
		return nil, err
	}

	var resp startCountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrDeviceStatus, "malformed count payload")
	}

	if resp.Error {
		logger.LogDeviceCommand(c.baseURL, "start-count", false, resp.Message)
		return nil, errors.New(errors.ErrDeviceRejected, resp.Message)
	}

	logger.LogDeviceCommand(c.baseURL, "start-count", true, fmt.Sprintf("%d rows", len(resp.Rows)))
	return resp.Rows, nil
}

// CountStart triggers a raw count cycle.
func (c *Client) CountStart(ctx context.Context) error {
	_, err := c.get(ctx, "/countstart", nil)
	logger.LogDeviceCommand(c.baseURL, "count-start", err == nil, "")
	return err
}

// StoreStart commits escrowed cash into the internal vault. Irreversible at
// the hardware level; once this returns the cash has physically moved.
func (c *Client) StoreStart(ctx context.Context) error {
	_, err := c.get(ctx, "/storestart", nil)
	logger.LogDeviceCommand(c.baseURL, "store-start", err == nil, "")
	return err
}

// Unlock returns the device to idle. Hard-bounded: a device stuck locked
// blocks every future transaction, so a timeout here is escalated, never
// swallowed.
func (c *Client) Unlock(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.unlockTimeout)
	defer cancel()

	if _, err := c.get(ctx, "/unlock", nil); err != nil {
		logger.LogDeviceCommand(c.baseURL, "unlock", false, err.Error())
		// Re-code the transport failure: a stuck lock needs an operator,
		// not a retry.
		return errors.New(errors.ErrUnlockFailed, "unlock failed").WithCause(err)
	}

	logger.LogDeviceCommand(c.baseURL, "unlock", true, "")
	return nil
}

// Cancel opens the escrow gate so the operator can remove the cash.
func (c *Client) Cancel(ctx context.Context) error {
	_, err := c.get(ctx, "/cancel", nil)
	logger.LogDeviceCommand(c.baseURL, "cancel", err == nil, "")
	return err
}

// LockParam applies transaction parameters without starting the flow.
func (c *Client) LockParam(ctx context.Context, transactionNumber, mode, currency int) error {
	q := url.Values{}
	q.Set("transactionNumber", fmt.Sprintf("%d", transactionNumber))
	q.Set("mode", fmt.Sprintf("%d", mode))
	q.Set("currency", fmt.Sprintf("%d", currency))

	_, err := c.get(ctx, "/lock-param", q)
	logger.LogDeviceCommand(c.baseURL, "lock-param", err == nil, "")
	return err
}

// CountedRows reads the current counting monitor.
func (c *Client) CountedRows(ctx context.Context) ([]CountedRow, error) {
	body, err := c.get(ctx, "/dpmtr", nil)
	if err != nil {
		return nil, err
	}

	var rows []CountedRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, errors.Wrap(err, errors.ErrDeviceStatus, "malformed monitor payload")
	}

	return rows, nil
}

// Denominations reads the denomination reference table for a currency.
func (c *Client) Denominations(ctx context.Context, currency int) ([]Denomination, error) {
	body, err := c.get(ctx, fmt.Sprintf("/gbcucy/cortes/%d", currency), nil)
	if err != nil {
		return nil, err
	}

	var denoms []Denomination
	if err := json.Unmarshal(body, &denoms); err != nil {
		return nil, errors.Wrap(err, errors.ErrDeviceStatus, "malformed denomination payload")
	}

	return denoms, nil
}

var _ Driver = (*Client)(nil)
