package gateway

import (
	"fmt"

	"github.com/scraplink/scraplink-backend/pkg/enums"
)

// channelSpec captures what differs between payment channels at the wire
// level: the gateway endpoint, how the create request is shaped, and which
// response field carries the buyer-facing presentation value.
type channelSpec struct {
	endpoint     string
	buildRequest func(input CreatePayableInput) (map[string]any, error)
	extract      func(resp payableResponse) (ChannelFields, error)
}

var channelSpecs = map[enums.PaymentChannel]channelSpec{
	enums.PaymentChannelBankTransfer: {
		endpoint: "/v1/bank_transfers",
		buildRequest: func(input CreatePayableInput) (map[string]any, error) {
			if input.ChannelParams.BankCode == "" {
				return nil, fmt.Errorf("bank_code is required for bank transfer")
			}
			req := basePayableRequest(input)
			req["bank_code"] = input.ChannelParams.BankCode
			return req, nil
		},
		extract: func(resp payableResponse) (ChannelFields, error) {
			if resp.AccountNumber == "" {
				return ChannelFields{}, fmt.Errorf("gateway returned no account number")
			}
			return ChannelFields{VANumber: resp.AccountNumber}, nil
		},
	},
	enums.PaymentChannelVirtualAccount: {
		endpoint: "/v1/virtual_accounts",
		buildRequest: func(input CreatePayableInput) (map[string]any, error) {
			if input.ChannelParams.BankCode == "" {
				return nil, fmt.Errorf("bank_code is required for virtual account")
			}
			req := basePayableRequest(input)
			req["bank_code"] = input.ChannelParams.BankCode
			return req, nil
		},
		extract: func(resp payableResponse) (ChannelFields, error) {
			if resp.AccountNumber == "" {
				return ChannelFields{}, fmt.Errorf("gateway returned no account number")
			}
			return ChannelFields{VANumber: resp.AccountNumber}, nil
		},
	},
	enums.PaymentChannelEwallet: {
		endpoint: "/v1/ewallet_charges",
		buildRequest: func(input CreatePayableInput) (map[string]any, error) {
			if input.ChannelParams.EwalletType == "" {
				return nil, fmt.Errorf("ewallet_type is required for ewallet")
			}
			req := basePayableRequest(input)
			req["ewallet_type"] = input.ChannelParams.EwalletType
			if input.ChannelParams.PhoneNumber != "" {
				req["phone_number"] = input.ChannelParams.PhoneNumber
			}
			return req, nil
		},
		extract: func(resp payableResponse) (ChannelFields, error) {
			if resp.CheckoutURL == "" {
				return ChannelFields{}, fmt.Errorf("gateway returned no checkout url")
			}
			return ChannelFields{RedirectURL: resp.CheckoutURL}, nil
		},
	},
	enums.PaymentChannelQRIS: {
		endpoint: "/v1/qr_codes",
		buildRequest: func(input CreatePayableInput) (map[string]any, error) {
			return basePayableRequest(input), nil
		},
		extract: func(resp payableResponse) (ChannelFields, error) {
			if resp.QRString == "" {
				return ChannelFields{}, fmt.Errorf("gateway returned no qr string")
			}
			return ChannelFields{QRString: resp.QRString}, nil
		},
	},
	enums.PaymentChannelRetailOutlet: {
		endpoint: "/v1/retail_payments",
		buildRequest: func(input CreatePayableInput) (map[string]any, error) {
			if input.ChannelParams.RetailOutlet == "" {
				return nil, fmt.Errorf("retail_outlet is required for retail payment")
			}
			req := basePayableRequest(input)
			req["retail_outlet_name"] = input.ChannelParams.RetailOutlet
			return req, nil
		},
		extract: func(resp payableResponse) (ChannelFields, error) {
			if resp.PaymentCode == "" {
				return ChannelFields{}, fmt.Errorf("gateway returned no payment code")
			}
			return ChannelFields{RetailCode: resp.PaymentCode}, nil
		},
	},
	enums.PaymentChannelCard: {
		endpoint: "/v1/card_charges",
		buildRequest: func(input CreatePayableInput) (map[string]any, error) {
			return basePayableRequest(input), nil
		},
		extract: func(resp payableResponse) (ChannelFields, error) {
			if resp.CheckoutURL == "" {
				return ChannelFields{}, fmt.Errorf("gateway returned no checkout url")
			}
			return ChannelFields{RedirectURL: resp.CheckoutURL}, nil
		},
	},
}

func basePayableRequest(input CreatePayableInput) map[string]any {
	return map[string]any{
		"reference_id": input.ReferenceID,
		"amount":       input.Amount,
		"currency":     input.Currency.String(),
		"expires_in":   int64(input.ExpiresIn.Seconds()),
		"customer": map[string]any{
			"id":    input.Customer.ID,
			"name":  input.Customer.Name,
			"email": input.Customer.Email,
		},
	}
}
