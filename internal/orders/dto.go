package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/scraplink/scraplink-backend/pkg/db/models"
	"github.com/scraplink/scraplink-backend/pkg/enums"
	"github.com/scraplink/scraplink-backend/pkg/types"
)

// Actor identifies who is performing an order operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// CreateFromCartInput carries everything the conversion needs.
type CreateFromCartInput struct {
	Buyer           Actor
	ShippingAddress types.Address
}

// UpdateStatusInput drives one lifecycle transition.
type UpdateStatusInput struct {
	OrderID        uuid.UUID
	Target         enums.OrderStatus
	Actor          Actor
	TrackingNumber *string
	Courier        *string
}

// CancelInput requests a cancellation by buyer or seller.
type CancelInput struct {
	OrderID uuid.UUID
	Actor   Actor
	Reason  string
}

// ListInput scopes an order listing to the actor.
type ListInput struct {
	Actor  Actor
	Status *enums.OrderStatus
	Limit  int
	Cursor string
}

// OrderItemDTO is the transport shape of an order line.
type OrderItemDTO struct {
	ID         uuid.UUID `json:"id"`
	ListingID  uuid.UUID `json:"listing_id"`
	Name       string    `json:"name"`
	UnitPrice  int64     `json:"unit_price"`
	Quantity   int       `json:"quantity"`
	TotalPrice int64     `json:"total_price"`
}

// OrderDTO is the transport shape of an order.
type OrderDTO struct {
	ID             uuid.UUID                `json:"id"`
	OrderNumber    string                   `json:"order_number"`
	BuyerID        uuid.UUID                `json:"buyer_id"`
	SellerID       uuid.UUID                `json:"seller_id"`
	Subtotal       int64                    `json:"subtotal"`
	ShippingFee    int64                    `json:"shipping_fee"`
	TaxAmount      int64                    `json:"tax_amount"`
	TotalAmount    int64                    `json:"total_amount"`
	Currency       enums.Currency           `json:"currency"`
	Status         enums.OrderStatus        `json:"status"`
	PaymentStatus  enums.OrderPaymentStatus `json:"payment_status"`
	TrackingNumber *string                  `json:"tracking_number,omitempty"`
	Courier        *string                  `json:"courier,omitempty"`
	Items          []OrderItemDTO           `json:"items,omitempty"`
	ConfirmedAt    *time.Time               `json:"confirmed_at,omitempty"`
	ShippedAt      *time.Time               `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time               `json:"delivered_at,omitempty"`
	CancelledAt    *time.Time               `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
}

// OrderList is a cursor page of orders.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// ToOrderDTO maps the persistence model to its transport shape.
func ToOrderDTO(order models.Order) OrderDTO {
	dto := OrderDTO{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		BuyerID:        order.BuyerID,
		SellerID:       order.SellerID,
		Subtotal:       order.Subtotal,
		ShippingFee:    order.ShippingFee,
		TaxAmount:      order.TaxAmount,
		TotalAmount:    order.TotalAmount,
		Currency:       order.Currency,
		Status:         order.Status,
		PaymentStatus:  order.PaymentStatus,
		TrackingNumber: order.TrackingNumber,
		Courier:        order.Courier,
		ConfirmedAt:    order.ConfirmedAt,
		ShippedAt:      order.ShippedAt,
		DeliveredAt:    order.DeliveredAt,
		CancelledAt:    order.CancelledAt,
		CreatedAt:      order.CreatedAt,
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ID:         item.ID,
			ListingID:  item.ListingID,
			Name:       item.Name,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
			TotalPrice: item.TotalPrice,
		})
	}
	return dto
}
