package service

import (
	"context"

	"go.uber.org/zap"

	providerdomain "github.com/stackbill/stackbill/internal/provider/domain"
	"github.com/stackbill/stackbill/internal/reconciler/domain"
)

// execute issues the plan's remote calls strictly in item order: product,
// then price, then meter. Failures are captured per item and never abort
// the rest of the run. A failed product skips that item's price (it has no
// product id to attach to) but the meter is still attempted when the
// product exists, since meters are keyed by event name, not price.
func (s *Service) execute(ctx context.Context, plan *domain.RemoteOperationPlan) *domain.DeploymentResult {
	result := &domain.DeploymentResult{Errors: []domain.ItemError{}}

	for _, spec := range plan.ProductsToCreate {
		product, err := s.client.CreateProduct(ctx, providerdomain.ProductParams{
			Name:        spec.ProductName,
			Description: spec.Description,
			Metadata:    spec.Metadata,
		})
		if err != nil {
			result.Errors = append(result.Errors, itemError(spec, "create_product", err))
			s.log.Warn("create product failed",
				zap.String("product_name", spec.ProductName), zap.Error(err))
			continue
		}
		result.ProductsCreated++

		if priceSpec := plan.PriceFor(spec.ItemRef); priceSpec != nil {
			_, err := s.client.CreatePrice(ctx, providerdomain.PriceParams{
				ProductID:     product.ID,
				Currency:      priceSpec.Currency,
				UnitAmount:    priceSpec.UnitAmount,
				BillingScheme: priceSpec.BillingScheme,
				TiersMode:     priceSpec.TiersMode,
				Tiers:         priceSpec.Tiers,
				Recurring:     priceSpec.Recurring,
				Metadata:      priceSpec.Metadata,
			})
			if err != nil {
				result.Errors = append(result.Errors, itemError(spec, "create_price", err))
				s.log.Warn("create price failed",
					zap.String("product_name", spec.ProductName), zap.Error(err))
			} else {
				result.PricesCreated++
			}
		}

		if meterSpec := plan.MeterFor(spec.ItemRef); meterSpec != nil {
			_, err := s.client.CreateMeter(ctx, providerdomain.MeterParams{
				DisplayName: meterSpec.DisplayName,
				EventName:   meterSpec.EventName,
				Aggregation: meterSpec.Aggregation,
			})
			if err != nil {
				result.Errors = append(result.Errors, itemError(spec, "create_meter", err))
				s.log.Warn("create meter failed",
					zap.String("event_name", meterSpec.EventName), zap.Error(err))
			} else {
				result.MetersCreated++
			}
		}
	}
	return result
}

func itemError(spec domain.ProductSpec, operation string, err error) domain.ItemError {
	return domain.ItemError{
		ItemRef:     spec.ItemRef,
		ProductName: spec.ProductName,
		Operation:   operation,
		Message:     err.Error(),
	}
}
