package service

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	providerdomain "github.com/stackbill/stackbill/internal/provider/domain"
	"github.com/stackbill/stackbill/internal/reconciler/domain"
)

// PlanCleanup scans the provider for app-managed products that duplicate a
// tier and marks every copy but one for deactivation. The keeper is the
// product with an active monthly recurring price, most recent first; if no
// product in the group has one, the most recently created wins.
func (s *Service) PlanCleanup(ctx context.Context) ([]domain.DeactivationAction, error) {
	products, err := s.client.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	groups := map[string][]providerdomain.Product{}
	for _, product := range products {
		if !s.isManaged(product) {
			continue
		}
		tierID := product.Metadata["tier_id"]
		if tierID == "" {
			continue
		}
		groups[tierID] = append(groups[tierID], product)
	}

	tierIDs := make([]string, 0, len(groups))
	for tierID, group := range groups {
		if len(group) > 1 {
			tierIDs = append(tierIDs, tierID)
		}
	}
	sort.Strings(tierIDs)

	actions := []domain.DeactivationAction{}
	for _, tierID := range tierIDs {
		group := groups[tierID]
		sort.Slice(group, func(i, j int) bool {
			return group[i].CreatedAt.After(group[j].CreatedAt)
		})

		prices := make(map[string][]providerdomain.Price, len(group))
		for _, product := range group {
			productPrices, err := s.client.ListPrices(ctx, product.ID)
			if err != nil {
				return nil, err
			}
			prices[product.ID] = productPrices
		}

		keeper := pickKeeper(group, prices)
		for _, product := range group {
			if product.ID == keeper {
				continue
			}
			action := domain.DeactivationAction{
				ProductID:   product.ID,
				ProductName: product.Name,
				TierID:      tierID,
			}
			for _, price := range prices[product.ID] {
				if price.Active {
					action.PriceIDs = append(action.PriceIDs, price.ID)
				}
			}
			actions = append(actions, action)
		}
	}
	return actions, nil
}

// ExecuteCleanup retires each marked product: prices first, then the
// product. A price the provider refuses to deactivate because it is the
// product's current default is a skip, not a failure, and the product is
// then skipped too. Failures on one product never block the others.
func (s *Service) ExecuteCleanup(ctx context.Context, actions []domain.DeactivationAction) (*domain.CleanupResult, error) {
	result := &domain.CleanupResult{
		Deactivated: []string{},
		Skipped:     []string{},
		Errors:      []domain.ActionError{},
	}

	for _, action := range actions {
		allPricesDown := true
		for _, priceID := range action.PriceIDs {
			err := s.client.UpdatePriceActive(ctx, priceID, false)
			switch {
			case err == nil:
				result.Deactivated = append(result.Deactivated, priceID)
			case errors.Is(err, providerdomain.ErrDefaultPriceInUse):
				result.Skipped = append(result.Skipped, priceID)
				allPricesDown = false
			default:
				result.Errors = append(result.Errors, domain.ActionError{
					Ref:     priceID,
					Message: err.Error(),
				})
				allPricesDown = false
			}
		}

		if !allPricesDown {
			result.Skipped = append(result.Skipped, action.ProductID)
			s.log.Info("cleanup skipped product, prices still active",
				zap.String("product_id", action.ProductID),
				zap.String("tier_id", action.TierID))
			continue
		}

		if err := s.client.UpdateProductActive(ctx, action.ProductID, false); err != nil {
			result.Errors = append(result.Errors, domain.ActionError{
				Ref:     action.ProductID,
				Message: err.Error(),
			})
			continue
		}
		result.Deactivated = append(result.Deactivated, action.ProductID)
	}
	return result, nil
}

func (s *Service) isManaged(product providerdomain.Product) bool {
	if product.Metadata == nil {
		return false
	}
	if product.Metadata["created_via"] == s.createdVia {
		return true
	}
	_, hasTier := product.Metadata["tier_id"]
	_, hasModel := product.Metadata["model_type"]
	return hasTier && hasModel
}

// pickKeeper returns the product id to preserve within one tier group.
// The group is already sorted newest first.
func pickKeeper(group []providerdomain.Product, prices map[string][]providerdomain.Price) string {
	for _, product := range group {
		for _, price := range prices[product.ID] {
			if price.Active && price.IsMonthlyRecurring() {
				return product.ID
			}
		}
	}
	return group[0].ID
}
