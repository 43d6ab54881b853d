package enums

import (
	"fmt"
	"strings"
)

// PaymentChannel describes the payment method family a buyer chose. Each channel
// carries its own presentation fields (account number, QR payload, retail code,
// redirect URL) on the payment record.
type PaymentChannel string

const (
	PaymentChannelBankTransfer   PaymentChannel = "bank_transfer"
	PaymentChannelEwallet        PaymentChannel = "ewallet"
	PaymentChannelVirtualAccount PaymentChannel = "virtual_account"
	PaymentChannelRetailOutlet   PaymentChannel = "retail_outlet"
	PaymentChannelCard           PaymentChannel = "card"
	PaymentChannelQRIS           PaymentChannel = "qris"
)

var validPaymentChannels = []PaymentChannel{
	PaymentChannelBankTransfer,
	PaymentChannelEwallet,
	PaymentChannelVirtualAccount,
	PaymentChannelRetailOutlet,
	PaymentChannelCard,
	PaymentChannelQRIS,
}

// String implements fmt.Stringer.
func (p PaymentChannel) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentChannel.
func (p PaymentChannel) IsValid() bool {
	for _, candidate := range validPaymentChannels {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentChannel converts raw input into a PaymentChannel.
func ParsePaymentChannel(value string) (PaymentChannel, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPaymentChannels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment channel %q", value)
}
