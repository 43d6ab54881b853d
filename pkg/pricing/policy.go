package pricing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/scraplink/scraplink-backend/pkg/config"
)

// Band maps a maximum weight (grams, inclusive) to a flat shipping fee.
type Band struct {
	MaxGrams int
	Fee      int64
}

// Policy computes shipping and tax amounts for an order at creation time.
// Shipping is weight-banded; tax is a flat percentage of the subtotal.
type Policy struct {
	taxRate     decimal.Decimal
	bands       []Band
	overflowFee int64
}

// NewPolicy parses the configured tax rate and shipping bands.
// Band config format: "maxGrams:fee,maxGrams:fee,...".
func NewPolicy(cfg config.PricingConfig) (*Policy, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(cfg.TaxRatePercent))
	if err != nil {
		return nil, fmt.Errorf("parsing tax rate %q: %w", cfg.TaxRatePercent, err)
	}
	if rate.IsNegative() {
		return nil, fmt.Errorf("tax rate must not be negative, got %s", rate)
	}

	bands, err := parseBands(cfg.ShippingBands)
	if err != nil {
		return nil, err
	}
	if cfg.ShippingOverflow < 0 {
		return nil, fmt.Errorf("shipping overflow fee must not be negative")
	}

	return &Policy{
		taxRate:     rate,
		bands:       bands,
		overflowFee: cfg.ShippingOverflow,
	}, nil
}

func parseBands(raw string) ([]Band, error) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	bands := make([]Band, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pair := strings.SplitN(part, ":", 2)
		if len(pair) != 2 {
			return nil, fmt.Errorf("invalid shipping band %q", part)
		}
		maxGrams, err := strconv.Atoi(strings.TrimSpace(pair[0]))
		if err != nil || maxGrams <= 0 {
			return nil, fmt.Errorf("invalid shipping band weight %q", pair[0])
		}
		fee, err := strconv.ParseInt(strings.TrimSpace(pair[1]), 10, 64)
		if err != nil || fee < 0 {
			return nil, fmt.Errorf("invalid shipping band fee %q", pair[1])
		}
		bands = append(bands, Band{MaxGrams: maxGrams, Fee: fee})
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("at least one shipping band is required")
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i].MaxGrams < bands[j].MaxGrams })
	return bands, nil
}

// ShippingFee returns the fee for the band covering totalWeightGrams, or the
// overflow fee when the weight exceeds every band.
func (p *Policy) ShippingFee(totalWeightGrams int) int64 {
	if totalWeightGrams <= 0 {
		return p.bands[0].Fee
	}
	for _, band := range p.bands {
		if totalWeightGrams <= band.MaxGrams {
			return band.Fee
		}
	}
	return p.overflowFee
}

// Tax returns the flat-percentage tax on the subtotal, rounded half-up to whole
// minor units.
func (p *Policy) Tax(subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	tax := decimal.NewFromInt(subtotal).
		Mul(p.taxRate).
		Div(decimal.NewFromInt(100)).
		Round(0)
	return tax.IntPart()
}
