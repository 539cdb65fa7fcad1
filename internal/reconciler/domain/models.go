package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"

	billingdomain "github.com/stackbill/stackbill/internal/billingmodel/domain"
	providerdomain "github.com/stackbill/stackbill/internal/provider/domain"
)

// ProductSpec is one product create call the plan will issue. ItemRef is
// the billing item's id; ProductName is carried alongside for error
// reporting.
type ProductSpec struct {
	ItemRef     string            `json:"item_ref"`
	ProductName string            `json:"product_name"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type PriceSpec struct {
	ItemRef       string                       `json:"item_ref"`
	ProductName   string                       `json:"product_name"`
	Currency      string                       `json:"currency"`
	UnitAmount    *int64                       `json:"unit_amount,omitempty"`
	BillingScheme providerdomain.BillingScheme `json:"billing_scheme"`
	TiersMode     string                       `json:"tiers_mode,omitempty"`
	Tiers         []providerdomain.Tier        `json:"tiers,omitempty"`
	Recurring     *providerdomain.Recurring    `json:"recurring,omitempty"`
	Metadata      map[string]string            `json:"metadata,omitempty"`
}

type MeterSpec struct {
	ItemRef     string `json:"item_ref"`
	DisplayName string `json:"display_name"`
	EventName   string `json:"event_name"`
	Aggregation string `json:"aggregation"`
}

// RemoteOperationPlan describes, without performing, the provider calls a
// deployment needs. At most one price and one meter is emitted per item;
// execution correlates the three lists by ItemRef.
type RemoteOperationPlan struct {
	ProductsToCreate         []ProductSpec        `json:"products_to_create"`
	PricesToCreate           []PriceSpec          `json:"prices_to_create"`
	MetersToCreate           []MeterSpec          `json:"meters_to_create"`
	StaleObjectsToDeactivate []DeactivationAction `json:"stale_objects_to_deactivate,omitempty"`
}

func (p *RemoteOperationPlan) PriceFor(itemRef string) *PriceSpec {
	for i := range p.PricesToCreate {
		if p.PricesToCreate[i].ItemRef == itemRef {
			return &p.PricesToCreate[i]
		}
	}
	return nil
}

func (p *RemoteOperationPlan) MeterFor(itemRef string) *MeterSpec {
	for i := range p.MetersToCreate {
		if p.MetersToCreate[i].ItemRef == itemRef {
			return &p.MetersToCreate[i]
		}
	}
	return nil
}

// ItemError records one failed remote call, keyed by the billing item it
// belongs to.
type ItemError struct {
	ItemRef     string `json:"item_ref"`
	ProductName string `json:"product_name"`
	Operation   string `json:"operation"`
	Message     string `json:"message"`
}

// DeploymentResult enumerates per-item successes and failures. Execution
// is best-effort across the item list; failures never abort the run.
type DeploymentResult struct {
	ProductsCreated int         `json:"products_created"`
	PricesCreated   int         `json:"prices_created"`
	MetersCreated   int         `json:"meters_created"`
	Errors          []ItemError `json:"errors,omitempty"`
}

// DeactivationAction marks one stale remote product for retirement: all
// of its active prices first, then the product itself.
type DeactivationAction struct {
	ProductID   string   `json:"product_id"`
	ProductName string   `json:"product_name"`
	TierID      string   `json:"tier_id"`
	PriceIDs    []string `json:"price_ids,omitempty"`
}

type ActionError struct {
	Ref     string `json:"ref"`
	Message string `json:"message"`
}

// CleanupResult separates hard failures from skips. A price the provider
// refuses to deactivate (current default price) is a skip, and the owning
// product is then skipped too rather than left without an active price.
type CleanupResult struct {
	Deactivated []string      `json:"deactivated"`
	Skipped     []string      `json:"skipped,omitempty"`
	Errors      []ActionError `json:"errors,omitempty"`
}

type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// DeploymentRun is the persisted audit record of one deploy execution.
type DeploymentRun struct {
	ID              string         `json:"id" gorm:"primaryKey;type:text"`
	OrgID           snowflake.ID   `json:"organization_id" gorm:"column:org_id;not null;index"`
	BillingModelID  snowflake.ID   `json:"billing_model_id" gorm:"not null;index"`
	Status          RunStatus      `json:"status" gorm:"type:text;not null"`
	ProductsCreated int            `json:"products_created" gorm:"not null;default:0"`
	PricesCreated   int            `json:"prices_created" gorm:"not null;default:0"`
	MetersCreated   int            `json:"meters_created" gorm:"not null;default:0"`
	Errors          datatypes.JSON `json:"errors,omitempty" gorm:"type:jsonb"`
	CreatedAt       time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (DeploymentRun) TableName() string { return "deployment_runs" }

// Model is the reconciler's view of a billing model: the record plus its
// decoded items.
type Model struct {
	ID        snowflake.ID
	Name      string
	ModelType billingdomain.ModelType
	Items     []billingdomain.BillingItem
}
