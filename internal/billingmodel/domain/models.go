package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ModelType string

const (
	PayAsYouGo      ModelType = "pay_as_you_go"
	FlatRecurring   ModelType = "flat_recurring"
	FixedFeeOverage ModelType = "fixed_fee_overage"
	PerSeat         ModelType = "per_seat"
)

func (m ModelType) Valid() bool {
	switch m {
	case PayAsYouGo, FlatRecurring, FixedFeeOverage, PerSeat:
		return true
	default:
		return false
	}
}

type BillingKind string

const (
	KindMetered   BillingKind = "metered"
	KindRecurring BillingKind = "recurring"
	KindOneTime   BillingKind = "one_time"
)

type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

func (i Interval) Valid() bool {
	switch i {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return true
	default:
		return false
	}
}

type Aggregation string

const (
	AggregationSum              Aggregation = "sum"
	AggregationLastDuringPeriod Aggregation = "last_during_period"
	AggregationLastEver         Aggregation = "last_ever"
	AggregationMax              Aggregation = "max"
)

func (a Aggregation) Valid() bool {
	switch a {
	case AggregationSum, AggregationLastDuringPeriod, AggregationLastEver, AggregationMax:
		return true
	default:
		return false
	}
}

// RecurringParams carries the fields only recurring items have.
type RecurringParams struct {
	Interval Interval `json:"interval"`
}

// MeteredParams carries the fields only metered items have. IncludedUsage
// and OverageRatePerUnit are consumed by the fixed_fee_overage model type
// to build a two-tier graduated price (free band, then paid band).
type MeteredParams struct {
	EventName          string      `json:"event_name"`
	Aggregation        Aggregation `json:"aggregation"`
	IncludedUsage      int64       `json:"included_usage,omitempty"`
	OverageRatePerUnit float64     `json:"overage_rate_per_unit,omitempty"`
}

// BillingItem is one line of billing configuration. The kind-specific
// parameter structs make the metered/recurring field requirements explicit
// instead of a flat bag of optionals.
type BillingItem struct {
	ID              string            `json:"id"`
	ProductName     string            `json:"product_name"`
	Description     string            `json:"description,omitempty"`
	PriceMinorUnits int64             `json:"price_minor_units"`
	Currency        string            `json:"currency"`
	Kind            BillingKind       `json:"billing_kind"`
	Recurring       *RecurringParams  `json:"recurring,omitempty"`
	Metered         *MeteredParams    `json:"metered,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// BillingModel is the persisted, user-confirmed configuration. Items are
// stored as a JSON document; they are only ever read and written as a whole.
type BillingModel struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrgID       snowflake.ID   `json:"organization_id" gorm:"column:org_id;not null;index"`
	Name        string         `json:"name" gorm:"type:text;not null"`
	Description *string        `json:"description,omitempty" gorm:"type:text"`
	ModelType   ModelType      `json:"model_type" gorm:"type:text;not null"`
	Items       datatypes.JSON `json:"items" gorm:"type:jsonb;not null"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (BillingModel) TableName() string { return "billing_models" }
