package bank

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/venturus/cdm-teller/internal/config"
	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/logger"
)

// DepositRequest is the notification payload sent to the bank.
type DepositRequest struct {
	Terminal       string  `json:"terminal"`
	AccountNumber  string  `json:"accountNumber"`
	TypeAccount    string  `json:"typeAccount"`
	Amount         float64 `json:"amount"`
	CurrencyAmount string  `json:"currencyAmount"`
}

// DepositResponse is the bank's answer. AnswerCode "00" means the deposit
// was credited; any other code is a definitive rejection.
type DepositResponse struct {
	AnswerCode   string                 `json:"answerCode"`
	AnswerDetail string                 `json:"answerDetail"`
	Raw          map[string]interface{} `json:"-"`
}

// Approved reports whether the bank credited the deposit.
func (r *DepositResponse) Approved() bool {
	return r.AnswerCode == "00"
}

// Client talks to the bank's deposit notification API.
//
// The bank requires a legacy TLS posture: certificate verification off,
// TLS 1.2 through 1.3, and no ECDHE key exchange on 1.2.
type Client struct {
	apiURL     string
	username   string
	password   string
	channel    string
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient creates a bank client from configuration.
func NewClient(cfg *config.BankConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true,
			MinVersion:         tls.VersionTLS12,
			MaxVersion:         tls.VersionTLS13,
			// non-ECDHE suites only; ignored by Go for TLS 1.3
			CipherSuites: []uint16{
				tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_RSA_WITH_AES_128_CBC_SHA,
				tls.TLS_RSA_WITH_AES_256_CBC_SHA,
			},
		},
	}

	return &Client{
		apiURL:   strings.TrimRight(cfg.APIURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		channel:  cfg.Channel,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		log: logger.GetModuleLogger("bank"),
	}
}

// Configured reports whether the client has an API URL to call.
func (c *Client) Configured() bool {
	return c.apiURL != ""
}

// Notify posts one deposit notification. Transport and decode failures
// come back as retryable errors; an answered request always returns the
// parsed response so the caller can inspect the answer code.
func (c *Client) Notify(ctx context.Context, endpoint string, req *DepositRequest) (*DepositResponse, error) {
	if !c.Configured() {
		return nil, apperrors.New(apperrors.ErrBankNotConfigured, "bank API URL not configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidParam, "failed to encode bank request")
	}

	url := c.apiURL + "/" + strings.TrimLeft(endpoint, "/")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidParam, "failed to build bank request")
	}

	// trace is a GUID without dashes, unique per attempt
	trace := strings.ReplaceAll(uuid.NewString(), "-", "")
	httpReq.Header.Set("Accept", "*/*")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Channel", c.channel)
	httpReq.Header.Set("Trace", trace)
	httpReq.SetBasicAuth(c.username, c.password)

	c.log.Debug("bank request",
		zap.String("url", url),
		zap.String("trace", trace),
		zap.String("terminal", req.Terminal),
		zap.Float64("amount", req.Amount),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrBankUnreachable, "bank request failed: %s", url)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrBankUnreachable, "failed to read bank response")
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrBankResponse, "bank answered non-JSON (status %d)", resp.StatusCode)
	}

	out := &DepositResponse{Raw: raw}
	// a response without answerCode counts as approved, matching the
	// bank's documented behavior
	out.AnswerCode = "00"
	if v, ok := raw["answerCode"].(string); ok && v != "" {
		out.AnswerCode = v
	}
	if v, ok := raw["answerDetail"].(string); ok {
		out.AnswerDetail = v
	}

	return out, nil
}

// Terminal picks the terminal identifier sent to the bank: the machine
// name when set, otherwise its code.
func Terminal(name, code string) string {
	if name != "" {
		return name
	}
	return code
}
