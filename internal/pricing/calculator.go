// Package pricing computes order totals. Every function here is pure: the
// same items, destination and promo code always produce the same quote, so
// the cart estimate and the persisted order agree.
package pricing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNoItems     = errors.New("at least one item is required")
	ErrInvalidLine = errors.New("invalid line item")
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Rates holds the shipping and tax policy.
type Rates struct {
	FreeShippingThreshold float64
	BaseShippingRate      float64
	VATRate               float64
	LocationMultipliers   map[string]float64
	DefaultMultiplier     float64
}

// DefaultRates returns the storefront's standing policy: free delivery from
// ₦50,000, ₦1,000 base rate and 7.5% VAT.
func DefaultRates() Rates {
	return Rates{
		FreeShippingThreshold: 50_000,
		BaseShippingRate:      1_000,
		VATRate:               0.075,
		LocationMultipliers: map[string]float64{
			"lagos":   1.0,
			"ogun":    1.2,
			"oyo":     1.3,
			"osun":    1.3,
			"ondo":    1.4,
			"ekiti":   1.4,
			"edo":     1.5,
			"delta":   1.5,
			"fct":     1.5,
			"abuja":   1.5,
			"rivers":  1.6,
			"enugu":   1.6,
			"anambra": 1.6,
			"kaduna":  1.8,
			"kano":    1.8,
		},
		DefaultMultiplier: 2.0,
	}
}

// Line is one priced item. Price is in major currency units.
type Line struct {
	Price float64
	Qty   int
}

type QuoteInput struct {
	Items     []Line
	Location  string
	Weight    float64 // kg; values <= 1 carry no surcharge
	PromoCode string
	Now       time.Time
}

// Quote is the breakdown persisted on an order.
type Quote struct {
	ItemsPrice       float64 `json:"itemsPrice"`
	ShippingPrice    float64 `json:"shippingPrice"`
	TaxPrice         float64 `json:"taxPrice"`
	Discount         float64 `json:"discount"`
	TotalPrice       float64 `json:"totalPrice"`
	PromoCode        string  `json:"promoCode,omitempty"`
	PromoDescription string  `json:"promoDescription,omitempty"`
}

type Calculator struct {
	rates  Rates
	promos *PromoCatalog
}

func NewCalculator(rates Rates, promos *PromoCatalog) *Calculator {
	if promos == nil {
		promos = DefaultPromoCatalog()
	}
	if rates.DefaultMultiplier <= 0 {
		rates.DefaultMultiplier = 1
	}
	return &Calculator{rates: rates, promos: promos}
}

func (c *Calculator) Promos() *PromoCatalog { return c.promos }

func (c *Calculator) Quote(in QuoteInput) (Quote, error) {
	items, err := ItemsPrice(in.Items)
	if err != nil {
		return Quote{}, err
	}

	shipping := c.Shipping(items, in.Location, in.Weight)
	tax := c.Tax(items)

	var promo PromoApplication
	if strings.TrimSpace(in.PromoCode) != "" {
		now := in.Now
		if now.IsZero() {
			now = time.Now()
		}
		promo, err = c.promos.Apply(in.PromoCode, items, now)
		if err != nil {
			return Quote{}, err
		}
	}

	total := items.Add(shipping).Add(tax).Sub(promo.Discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Quote{
		ItemsPrice:       items.InexactFloat64(),
		ShippingPrice:    shipping.InexactFloat64(),
		TaxPrice:         tax.InexactFloat64(),
		Discount:         promo.Discount.InexactFloat64(),
		TotalPrice:       total.InexactFloat64(),
		PromoCode:        promo.Code,
		PromoDescription: promo.Description,
	}, nil
}

// ItemsPrice is Σ(price × qty), kept exact to the kobo.
func ItemsPrice(lines []Line) (decimal.Decimal, error) {
	if len(lines) == 0 {
		return decimal.Zero, ErrNoItems
	}
	sum := decimal.Zero
	for i, l := range lines {
		if l.Price < 0 || l.Qty < 1 {
			return decimal.Zero, fmt.Errorf("%w: line %d has price %v and quantity %d", ErrInvalidLine, i, l.Price, l.Qty)
		}
		sum = sum.Add(decimal.NewFromFloat(l.Price).Mul(decimal.NewFromInt(int64(l.Qty))))
	}
	return sum.Round(2), nil
}

// Shipping is zero at or above the free-shipping threshold, otherwise the
// base rate scaled by destination and weight, rounded to whole naira.
func (c *Calculator) Shipping(items decimal.Decimal, location string, weight float64) decimal.Decimal {
	if items.GreaterThanOrEqual(decimal.NewFromFloat(c.rates.FreeShippingThreshold)) {
		return decimal.Zero
	}
	base := decimal.NewFromFloat(c.rates.BaseShippingRate)
	if !base.IsPositive() {
		return decimal.Zero
	}
	fee := base.
		Mul(decimal.NewFromFloat(c.LocationMultiplier(location))).
		Mul(WeightMultiplier(weight)).
		Round(0)
	if !fee.IsPositive() {
		// below the threshold delivery is never free
		fee = one
	}
	return fee
}

func (c *Calculator) Tax(items decimal.Decimal) decimal.Decimal {
	return items.Mul(decimal.NewFromFloat(c.rates.VATRate)).Round(0)
}

// LocationMultiplier resolves a state name such as "Lagos", "lagos state" or
// "Federal Capital Territory".
func (c *Calculator) LocationMultiplier(location string) float64 {
	key := NormalizeLocation(location)
	if m, ok := c.rates.LocationMultipliers[key]; ok && m > 0 {
		return m
	}
	return c.rates.DefaultMultiplier
}

func NormalizeLocation(location string) string {
	key := strings.ToLower(strings.Join(strings.Fields(location), " "))
	key = strings.TrimSuffix(key, " state")
	if key == "federal capital territory" {
		key = "fct"
	}
	return key
}

// WeightMultiplier is 1 + 0.2×(weight−1) above 1kg.
func WeightMultiplier(weight float64) decimal.Decimal {
	if weight <= 1 {
		return one
	}
	extra := decimal.NewFromFloat(weight).Sub(one)
	return one.Add(extra.Mul(decimal.NewFromFloat(0.2)))
}

// ToKobo converts a naira amount to the gateway's minor unit.
func ToKobo(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(hundred).Round(0).IntPart()
}

func FromKobo(kobo int64) float64 {
	return decimal.New(kobo, -2).InexactFloat64()
}
