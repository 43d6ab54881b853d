package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/scraplink/scraplink-backend/internal/orders"
	"github.com/scraplink/scraplink-backend/pkg/db/models"
	"github.com/scraplink/scraplink-backend/pkg/enums"
	"github.com/scraplink/scraplink-backend/pkg/gateway"
)

// InitiateInput starts one payment attempt for an order.
type InitiateInput struct {
	OrderID       uuid.UUID
	Buyer         orders.Actor
	Channel       enums.PaymentChannel
	ChannelParams gateway.ChannelParams
}

// PaymentDTO is the transport shape of a payment attempt. Exactly one of the
// channel presentation fields is set, matching the channel.
type PaymentDTO struct {
	ID          uuid.UUID            `json:"id"`
	OrderID     uuid.UUID            `json:"order_id"`
	ExternalID  string               `json:"external_id"`
	Amount      int64                `json:"amount"`
	Currency    enums.Currency       `json:"currency"`
	Status      enums.PaymentStatus  `json:"status"`
	Channel     enums.PaymentChannel `json:"channel"`
	VANumber    *string              `json:"va_number,omitempty"`
	QRString    *string              `json:"qr_string,omitempty"`
	RetailCode  *string              `json:"retail_code,omitempty"`
	RedirectURL *string              `json:"redirect_url,omitempty"`
	ExpiresAt   *time.Time           `json:"expires_at,omitempty"`
	PaidAt      *time.Time           `json:"paid_at,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// ToPaymentDTO maps the persistence model to its transport shape.
func ToPaymentDTO(payment models.Payment) PaymentDTO {
	return PaymentDTO{
		ID:          payment.ID,
		OrderID:     payment.OrderID,
		ExternalID:  payment.ExternalID,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Status:      payment.Status,
		Channel:     payment.Channel,
		VANumber:    payment.VANumber,
		QRString:    payment.QRString,
		RetailCode:  payment.RetailCode,
		RedirectURL: payment.RedirectURL,
		ExpiresAt:   payment.ExpiresAt,
		PaidAt:      payment.PaidAt,
		CreatedAt:   payment.CreatedAt,
	}
}
