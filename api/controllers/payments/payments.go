package payments

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/scraplink/scraplink-backend/api/middleware"
	"github.com/scraplink/scraplink-backend/api/responses"
	"github.com/scraplink/scraplink-backend/api/validators"
	internalorders "github.com/scraplink/scraplink-backend/internal/orders"
	internalpayments "github.com/scraplink/scraplink-backend/internal/payments"
	"github.com/scraplink/scraplink-backend/pkg/enums"
	pkgerrors "github.com/scraplink/scraplink-backend/pkg/errors"
	"github.com/scraplink/scraplink-backend/pkg/gateway"
	"github.com/scraplink/scraplink-backend/pkg/logger"
)

type initiateRequest struct {
	OrderID       string                `json:"order_id" validate:"required,uuid4"`
	Channel       string                `json:"channel" validate:"required"`
	ChannelParams initiateChannelParams `json:"channel_params"`
}

type initiateChannelParams struct {
	BankCode     string `json:"bank_code,omitempty"`
	EwalletType  string `json:"ewallet_type,omitempty"`
	RetailOutlet string `json:"retail_outlet,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
}

// Initiate opens a payment attempt for a pending order.
func Initiate(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req initiateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := uuid.Parse(req.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order_id"))
			return
		}

		channel, err := enums.ParsePaymentChannel(req.Channel)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid channel"))
			return
		}

		payment, err := svc.Initiate(r.Context(), internalpayments.InitiateInput{
			OrderID: orderID,
			Buyer:   actor,
			Channel: channel,
			ChannelParams: gateway.ChannelParams{
				BankCode:     req.ChannelParams.BankCode,
				EwalletType:  req.ChannelParams.EwalletType,
				RetailOutlet: req.ChannelParams.RetailOutlet,
				PhoneNumber:  req.ChannelParams.PhoneNumber,
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, payment)
	}
}

// Detail returns one payment attempt visible to the caller.
func Detail(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		paymentID, err := uuid.Parse(chi.URLParam(r, "paymentID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid paymentID"))
			return
		}

		payment, err := svc.Get(r.Context(), paymentID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, payment)
	}
}

// ListForOrder returns all payment attempts made against one order.
func ListForOrder(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid orderID"))
			return
		}

		list, err := svc.ListForOrder(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, list)
	}
}

func actorFromContext(r *http.Request) (internalorders.Actor, error) {
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return internalorders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing authenticated user")
	}

	role, err := enums.ParseUserRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return internalorders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user role")
	}

	return internalorders.Actor{UserID: userID, Role: role}, nil
}
