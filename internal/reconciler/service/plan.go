package service

import (
	"fmt"
	"math"

	billingdomain "github.com/stackbill/stackbill/internal/billingmodel/domain"
	providerdomain "github.com/stackbill/stackbill/internal/provider/domain"
	"github.com/stackbill/stackbill/internal/reconciler/domain"
)

// buildPlan derives the remote operations for an already-validated model.
// It is pure: one product per item, at most one price and one meter.
func buildPlan(model domain.Model, createdVia string) *domain.RemoteOperationPlan {
	plan := &domain.RemoteOperationPlan{
		ProductsToCreate: []domain.ProductSpec{},
		PricesToCreate:   []domain.PriceSpec{},
		MetersToCreate:   []domain.MeterSpec{},
	}

	for _, item := range model.Items {
		plan.ProductsToCreate = append(plan.ProductsToCreate, productSpec(model, item, createdVia))

		if price := priceSpec(model.ModelType, item); price != nil {
			plan.PricesToCreate = append(plan.PricesToCreate, *price)
		}

		if item.Kind == billingdomain.KindMetered && item.Metered != nil {
			plan.MetersToCreate = append(plan.MetersToCreate, domain.MeterSpec{
				ItemRef:     item.ID,
				DisplayName: item.ProductName,
				EventName:   item.Metered.EventName,
				Aggregation: string(item.Metered.Aggregation),
			})
		}
	}
	return plan
}

func productSpec(model domain.Model, item billingdomain.BillingItem, createdVia string) domain.ProductSpec {
	description := item.Description
	if description == "" {
		description = fmt.Sprintf("%s - %s billing", item.ProductName, item.Kind)
	}

	metadata := map[string]string{
		"created_via": createdVia,
		"model_type":  string(model.ModelType),
		"tier_id":     item.ID,
	}
	if item.Metered != nil {
		metadata["meter_name"] = item.Metered.EventName
		if item.Metered.IncludedUsage > 0 {
			metadata["usage_limit"] = fmt.Sprintf("%d", item.Metered.IncludedUsage)
		}
	}
	// item metadata last, so callers can override the derived keys
	for key, value := range item.Metadata {
		metadata[key] = value
	}

	return domain.ProductSpec{
		ItemRef:     item.ID,
		ProductName: item.ProductName,
		Description: description,
		Metadata:    metadata,
	}
}

func priceSpec(modelType billingdomain.ModelType, item billingdomain.BillingItem) *domain.PriceSpec {
	price := &domain.PriceSpec{
		ItemRef:     item.ID,
		ProductName: item.ProductName,
		Currency:    item.Currency,
		Metadata:    map[string]string{"tier_id": item.ID},
	}

	if modelType == billingdomain.PerSeat {
		// seats are licensed, never metered, whatever the item kind
		interval := billingdomain.IntervalMonth
		if item.Recurring != nil {
			interval = item.Recurring.Interval
		}
		amount := item.PriceMinorUnits
		price.UnitAmount = &amount
		price.BillingScheme = providerdomain.BillingSchemePerUnit
		price.Recurring = &providerdomain.Recurring{
			Interval:  string(interval),
			UsageType: providerdomain.UsageTypeLicensed,
		}
		return price
	}

	switch item.Kind {
	case billingdomain.KindMetered:
		if item.Metered == nil {
			return nil
		}
		if modelType == billingdomain.FixedFeeOverage &&
			item.Metered.IncludedUsage > 0 && item.Metered.OverageRatePerUnit > 0 {
			return overagePrice(price, item)
		}
		amount := item.PriceMinorUnits
		price.UnitAmount = &amount
		price.BillingScheme = providerdomain.BillingSchemePerUnit
		price.Recurring = &providerdomain.Recurring{
			Interval:       string(billingdomain.IntervalMonth),
			UsageType:      providerdomain.UsageTypeMetered,
			AggregateUsage: string(item.Metered.Aggregation),
		}
		return price

	case billingdomain.KindRecurring:
		amount := item.PriceMinorUnits
		price.UnitAmount = &amount
		price.BillingScheme = providerdomain.BillingSchemePerUnit
		interval := billingdomain.IntervalMonth
		if item.Recurring != nil {
			interval = item.Recurring.Interval
		}
		price.Recurring = &providerdomain.Recurring{Interval: string(interval)}
		if modelType == billingdomain.FixedFeeOverage {
			price.Metadata["price_type"] = "base_plan"
		}
		return price

	case billingdomain.KindOneTime:
		amount := item.PriceMinorUnits
		price.UnitAmount = &amount
		price.BillingScheme = providerdomain.BillingSchemePerUnit
		return price
	}
	return nil
}

// overagePrice builds the two-tier graduated shape: a free band covering
// the included usage, then an unbounded paid band at the overage rate.
// Overage rates are routinely sub-cent ($0.02 per request), so the paid
// band carries two extra digits of precision: 0.02 per unit becomes 200.
func overagePrice(price *domain.PriceSpec, item billingdomain.BillingItem) *domain.PriceSpec {
	included := item.Metered.IncludedUsage
	overageMinorUnits := int64(math.Round(item.Metered.OverageRatePerUnit * 10000))

	price.BillingScheme = providerdomain.BillingSchemeTiered
	price.TiersMode = "graduated"
	price.Tiers = []providerdomain.Tier{
		{UpTo: &included, UnitAmount: 0},
		{UpTo: nil, UnitAmount: overageMinorUnits},
	}
	price.Recurring = &providerdomain.Recurring{
		Interval:       string(billingdomain.IntervalMonth),
		UsageType:      providerdomain.UsageTypeMetered,
		AggregateUsage: string(item.Metered.Aggregation),
	}
	return price
}
