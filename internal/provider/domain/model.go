package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Client is the remote billing provider surface the reconciler consumes.
// Monetary amounts cross this boundary as integer minor units, currency
// codes as lowercase 3-letter strings.
type Client interface {
	CreateProduct(ctx context.Context, params ProductParams) (*Product, error)
	CreatePrice(ctx context.Context, params PriceParams) (*Price, error)
	CreateMeter(ctx context.Context, params MeterParams) (*Meter, error)

	ListProducts(ctx context.Context) ([]Product, error)
	ListPrices(ctx context.Context, productID string) ([]Price, error)

	UpdateProductActive(ctx context.Context, productID string, active bool) error
	UpdatePriceActive(ctx context.Context, priceID string, active bool) error
	SetDefaultPrice(ctx context.Context, productID, priceID string) error
}

type ProductParams struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type BillingScheme string

const (
	BillingSchemePerUnit BillingScheme = "per_unit"
	BillingSchemeTiered  BillingScheme = "tiered"
)

type UsageType string

const (
	UsageTypeLicensed UsageType = "licensed"
	UsageTypeMetered  UsageType = "metered"
)

// Recurring describes the cadence of a recurring price.
type Recurring struct {
	Interval       string    `json:"interval"`
	UsageType      UsageType `json:"usage_type,omitempty"`
	AggregateUsage string    `json:"aggregate_usage,omitempty"`
}

// Tier is one band of a graduated price. A nil UpTo means the band is
// unbounded; it serializes as "inf" to match the provider wire format.
type Tier struct {
	UpTo       *int64 `json:"up_to"`
	UnitAmount int64  `json:"unit_amount"`
}

func (t Tier) MarshalJSON() ([]byte, error) {
	upTo := any("inf")
	if t.UpTo != nil {
		upTo = *t.UpTo
	}
	return json.Marshal(struct {
		UpTo       any   `json:"up_to"`
		UnitAmount int64 `json:"unit_amount"`
	}{UpTo: upTo, UnitAmount: t.UnitAmount})
}

func (t *Tier) UnmarshalJSON(data []byte) error {
	var raw struct {
		UpTo       any   `json:"up_to"`
		UnitAmount int64 `json:"unit_amount"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.UnitAmount = raw.UnitAmount
	switch typed := raw.UpTo.(type) {
	case float64:
		bound := int64(typed)
		t.UpTo = &bound
	default:
		t.UpTo = nil
	}
	return nil
}

type PriceParams struct {
	ProductID     string            `json:"product"`
	Currency      string            `json:"currency"`
	UnitAmount    *int64            `json:"unit_amount,omitempty"`
	BillingScheme BillingScheme     `json:"billing_scheme"`
	TiersMode     string            `json:"tiers_mode,omitempty"`
	Tiers         []Tier            `json:"tiers,omitempty"`
	Recurring     *Recurring        `json:"recurring,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type MeterParams struct {
	DisplayName string `json:"display_name"`
	EventName   string `json:"event_name"`
	Aggregation string `json:"aggregation"`
}

type Product struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Active         bool              `json:"active"`
	DefaultPriceID string            `json:"default_price,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

type Price struct {
	ID            string            `json:"id"`
	ProductID     string            `json:"product"`
	Currency      string            `json:"currency"`
	UnitAmount    *int64            `json:"unit_amount,omitempty"`
	BillingScheme BillingScheme     `json:"billing_scheme"`
	TiersMode     string            `json:"tiers_mode,omitempty"`
	Tiers         []Tier            `json:"tiers,omitempty"`
	Recurring     *Recurring        `json:"recurring,omitempty"`
	Active        bool              `json:"active"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// IsMonthlyRecurring reports whether the price renews monthly; the cleanup
// tie-break prefers products that still carry one.
func (p Price) IsMonthlyRecurring() bool {
	return p.Recurring != nil && p.Recurring.Interval == "month"
}

type Meter struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	EventName   string `json:"event_name"`
	Aggregation string `json:"aggregation"`
}

// Factory builds a Client for one provider name.
type Factory interface {
	Provider() string
	NewClient(cfg ClientConfig) (Client, error)
}

type ClientConfig struct {
	APIKey  string
	BaseURL string
}

var (
	ErrInvalidConfig     = errors.New("invalid_provider_config")
	ErrProviderNotFound  = errors.New("provider_not_found")
	ErrDefaultPriceInUse = errors.New("default_price_in_use")
	ErrNotFound          = errors.New("remote_object_not_found")
)

// APIError is a failed remote call, preserving the provider's own code and
// message for per-item error reporting.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider call failed (%d %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("provider call failed (%d): %s", e.Status, e.Message)
}
