package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/scraplink/scraplink-backend/pkg/enums"
)

// Customer identifies the paying buyer to the gateway.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ChannelParams carries channel-specific request options.
type ChannelParams struct {
	BankCode     string `json:"bank_code,omitempty"`
	EwalletType  string `json:"ewallet_type,omitempty"`
	RetailOutlet string `json:"retail_outlet,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
}

// CreatePayableInput describes the payable to create at the gateway.
type CreatePayableInput struct {
	ReferenceID   string
	Amount        int64
	Currency      enums.Currency
	Channel       enums.PaymentChannel
	ChannelParams ChannelParams
	Customer      Customer
	ExpiresIn     time.Duration
}

// ChannelFields holds the presentation fields the buyer needs to complete
// payment. Exactly one set is populated per channel.
type ChannelFields struct {
	VANumber    string
	QRString    string
	RetailCode  string
	RedirectURL string
}

// Payable is the gateway's response to a successful create call.
type Payable struct {
	CorrelationID string
	Channel       enums.PaymentChannel
	Fields        ChannelFields
	ExpiresAt     time.Time
}

// CreateRefundInput requests money back against a captured payable.
type CreateRefundInput struct {
	CorrelationID string
	Amount        int64
	Reason        string
}

// RefundResult is the gateway's acknowledgement of a refund request.
type RefundResult struct {
	RefundCorrelationID string
	Status              string
}

// CallbackEvent is the normalized shape of an asynchronous gateway delivery.
// Gateways are inconsistent about which correlation id a callback carries, so
// both the invoice id and the payment id are kept.
type CallbackEvent struct {
	EventID    string          `json:"event_id"`
	InvoiceID  string          `json:"invoice_id"`
	PaymentID  string          `json:"payment_id"`
	Status     string          `json:"status"`
	Amount     int64           `json:"amount"`
	PaidAt     *time.Time      `json:"paid_at,omitempty"`
	RawPayload json.RawMessage `json:"-"`
}

// Client is the outbound gateway surface. It is the only hard external
// dependency of the transaction engine and must stay fakeable in tests.
type Client interface {
	CreatePayable(ctx context.Context, input CreatePayableInput) (*Payable, error)
	CreateRefund(ctx context.Context, input CreateRefundInput) (*RefundResult, error)
}
