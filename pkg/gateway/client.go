package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scraplink/scraplink-backend/pkg/config"
	pkgerrors "github.com/scraplink/scraplink-backend/pkg/errors"
	"github.com/scraplink/scraplink-backend/pkg/logger"
)

var (
	errBaseURLRequired = errors.New("gateway base url is required")
	errAPIKeyRequired  = errors.New("gateway api key is required")
)

// payableResponse is the superset of fields the gateway returns across
// channels. Each channel extracts the one it cares about.
type payableResponse struct {
	ID            string `json:"id"`
	AccountNumber string `json:"account_number"`
	QRString      string `json:"qr_string"`
	PaymentCode   string `json:"payment_code"`
	CheckoutURL   string `json:"checkout_url"`
	ExpiresAt     string `json:"expires_at"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// HTTPClient talks to the payment gateway over its REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	expiry  time.Duration
	http    *http.Client
	logger  *logger.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient validates the gateway configuration and returns a client
// with a bounded request timeout.
func NewHTTPClient(cfg config.GatewayConfig, logg *logger.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errBaseURLRequired
	}
	if cfg.APIKey == "" {
		return nil, errAPIKeyRequired
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	logg.Info(logg.WithFields(context.Background(), map[string]any{
		"base_url": cfg.BaseURL,
		"timeout":  timeout.String(),
	}), "payment gateway client initialized")

	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		expiry:  cfg.InvoiceExpiry,
		http:    &http.Client{Timeout: timeout},
		logger:  logg,
	}, nil
}

// CreatePayable registers a new payable with the gateway for the given
// channel. Nothing is persisted locally by this call; a failure here leaves
// no partial state behind.
func (c *HTTPClient) CreatePayable(ctx context.Context, input CreatePayableInput) (*Payable, error) {
	spec, ok := channelSpecs[input.Channel]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment channel %q", input.Channel))
	}

	if input.ExpiresIn <= 0 {
		input.ExpiresIn = c.expiry
	}

	payload, err := spec.buildRequest(input)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}

	var resp payableResponse
	if err := c.do(ctx, http.MethodPost, spec.endpoint, payload, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "gateway returned no payable id")
	}

	fields, err := spec.extract(resp)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, err.Error())
	}

	expiresAt := time.Now().UTC().Add(input.ExpiresIn)
	if resp.ExpiresAt != "" {
		if parsed, perr := time.Parse(time.RFC3339, resp.ExpiresAt); perr == nil {
			expiresAt = parsed.UTC()
		}
	}

	return &Payable{
		CorrelationID: resp.ID,
		Channel:       input.Channel,
		Fields:        fields,
		ExpiresAt:     expiresAt,
	}, nil
}

// CreateRefund asks the gateway to return funds against a captured payable.
func (c *HTTPClient) CreateRefund(ctx context.Context, input CreateRefundInput) (*RefundResult, error) {
	if input.CorrelationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund correlation id is required")
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	payload := map[string]any{
		"payable_id": input.CorrelationID,
		"amount":     input.Amount,
		"reason":     input.Reason,
	}

	var resp refundResponse
	if err := c.do(ctx, http.MethodPost, "/v1/refunds", payload, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "gateway returned no refund id")
	}

	return &RefundResult{RefundCorrelationID: resp.ID, Status: resp.Status}, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "gateway request build failed")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "gateway request build failed")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and connection failures are retryable gateway faults.
		c.logger.Error(c.logger.WithField(ctx, "path", path), "gateway request failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "gateway call failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "gateway call failed")
	}

	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		_ = json.Unmarshal(raw, &apiErr)
		c.logger.Warn(c.logger.WithFields(ctx, map[string]any{
			"status":       resp.StatusCode,
			"path":         path,
			"gateway_code": apiErr.Code,
		}), "gateway rejected request")
		if resp.StatusCode >= 500 {
			return pkgerrors.New(pkgerrors.CodeGateway, fmt.Sprintf("gateway error %d: %s", resp.StatusCode, apiErr.Message))
		}
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("gateway rejected request: %s", apiErr.Message))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "gateway call failed")
		}
	}
	return nil
}
