package pricing

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var (
	ErrPromoNotFound      = errors.New("invalid promo code")
	ErrPromoInactive      = errors.New("promo code is no longer active")
	ErrPromoExpired       = errors.New("promo code has expired")
	ErrPromoMinimumNotMet = errors.New("order does not meet the promo minimum")
)

type PromoType string

const (
	PromoPercentage PromoType = "percentage"
	PromoFixed      PromoType = "fixed"
)

// PromoCode is one catalog entry. MaxDiscount caps percentage codes when > 0.
type PromoCode struct {
	Code           string     `yaml:"code" json:"code"`
	Type           PromoType  `yaml:"type" json:"type"`
	Value          float64    `yaml:"value" json:"value"`
	MinOrderAmount float64    `yaml:"min_order_amount" json:"minOrderAmount"`
	MaxDiscount    float64    `yaml:"max_discount" json:"maxDiscount,omitempty"`
	ExpiresAt      *time.Time `yaml:"expires_at" json:"expiresAt,omitempty"`
	Description    string     `yaml:"description" json:"description"`
	Disabled       bool       `yaml:"disabled" json:"-"`
}

// PromoApplication is the per-request result embedded into a quote.
type PromoApplication struct {
	Code        string
	Description string
	Discount    decimal.Decimal
}

// PromoCatalog is a read-mostly set of codes keyed by upper-cased code.
type PromoCatalog struct {
	mu    sync.RWMutex
	codes map[string]PromoCode
}

func NewPromoCatalog(codes []PromoCode) (*PromoCatalog, error) {
	c := &PromoCatalog{codes: make(map[string]PromoCode, len(codes))}
	for _, p := range codes {
		if err := c.add(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// DefaultPromoCatalog is used when no promo file is configured.
func DefaultPromoCatalog() *PromoCatalog {
	c, err := NewPromoCatalog([]PromoCode{
		{Code: "WELCOME20", Type: PromoPercentage, Value: 20, Description: "20% off your first order"},
		{Code: "SAVE10", Type: PromoPercentage, Value: 10, MinOrderAmount: 20_000, Description: "10% off orders from ₦20,000"},
		{Code: "FLAT5000", Type: PromoFixed, Value: 5_000, MinOrderAmount: 30_000, Description: "₦5,000 off orders from ₦30,000"},
		{Code: "FREESHIP1000", Type: PromoFixed, Value: 1_000, Description: "₦1,000 towards delivery"},
	})
	if err != nil {
		panic(err)
	}
	return c
}

type promoFile struct {
	Promos []PromoCode `yaml:"promos"`
}

// LoadPromoCatalog reads a YAML document of the form `promos: [...]`.
func LoadPromoCatalog(path string) (*PromoCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read promo file: %w", err)
	}
	var f promoFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse promo file %s: %w", path, err)
	}
	return NewPromoCatalog(f.Promos)
}

func (c *PromoCatalog) add(p PromoCode) error {
	p.Code = normalizeCode(p.Code)
	if p.Code == "" {
		return errors.New("promo code must not be empty")
	}
	switch p.Type {
	case PromoPercentage:
		if p.Value <= 0 || p.Value > 100 {
			return fmt.Errorf("promo %s: percentage must be in (0, 100]", p.Code)
		}
	case PromoFixed:
		if p.Value <= 0 {
			return fmt.Errorf("promo %s: fixed value must be positive", p.Code)
		}
	default:
		return fmt.Errorf("promo %s: unknown type %q", p.Code, p.Type)
	}
	if _, dup := c.codes[p.Code]; dup {
		return fmt.Errorf("promo %s: duplicate code", p.Code)
	}
	c.codes[p.Code] = p
	return nil
}

func (c *PromoCatalog) Lookup(code string) (PromoCode, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.codes[normalizeCode(code)]
	return p, ok
}

// Codes returns every active, unexpired code sorted by code.
func (c *PromoCatalog) Codes(now time.Time) []PromoCode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PromoCode, 0, len(c.codes))
	for _, p := range c.codes {
		if p.Disabled || (p.ExpiresAt != nil && now.After(*p.ExpiresAt)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Apply computes the discount of code against amount. The result depends
// only on its inputs, so re-applying a code never stacks.
func (c *PromoCatalog) Apply(code string, amount decimal.Decimal, now time.Time) (PromoApplication, error) {
	p, ok := c.Lookup(code)
	if !ok {
		return PromoApplication{}, fmt.Errorf("%w: %s", ErrPromoNotFound, normalizeCode(code))
	}
	if p.Disabled {
		return PromoApplication{}, fmt.Errorf("%w: %s", ErrPromoInactive, p.Code)
	}
	if p.ExpiresAt != nil && now.After(*p.ExpiresAt) {
		return PromoApplication{}, fmt.Errorf("%w: %s", ErrPromoExpired, p.Code)
	}
	minimum := decimal.NewFromFloat(p.MinOrderAmount)
	if amount.LessThan(minimum) {
		return PromoApplication{}, fmt.Errorf("%w: %s requires a minimum of ₦%s", ErrPromoMinimumNotMet, p.Code, minimum.StringFixed(0))
	}

	value := decimal.NewFromFloat(p.Value)
	var discount decimal.Decimal
	switch p.Type {
	case PromoPercentage:
		discount = amount.Mul(value).Div(hundred).Round(0)
		if p.MaxDiscount > 0 {
			discount = decimal.Min(discount, decimal.NewFromFloat(p.MaxDiscount))
		}
	case PromoFixed:
		discount = decimal.Min(value, amount)
	}

	return PromoApplication{Code: p.Code, Description: p.Description, Discount: discount}, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
