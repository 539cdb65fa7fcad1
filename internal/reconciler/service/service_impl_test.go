package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	billingdomain "github.com/stackbill/stackbill/internal/billingmodel/domain"
	billingrepo "github.com/stackbill/stackbill/internal/billingmodel/repository"
	"github.com/stackbill/stackbill/internal/config"
	"github.com/stackbill/stackbill/internal/locks"
	"github.com/stackbill/stackbill/internal/orgcontext"
	providerdomain "github.com/stackbill/stackbill/internal/provider/domain"
	"github.com/stackbill/stackbill/internal/reconciler/domain"
	"github.com/stackbill/stackbill/internal/reconciler/repository"
)

// fakeClient records provider calls and fails on demand.
type fakeClient struct {
	products []providerdomain.Product
	prices   map[string][]providerdomain.Price

	failProductNamed string
	failMeterNamed   string
	defaultPriceIDs  map[string]bool

	createdProducts []providerdomain.ProductParams
	createdPrices   []providerdomain.PriceParams
	createdMeters   []providerdomain.MeterParams
	deactivated     []string

	seq int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		prices:          map[string][]providerdomain.Price{},
		defaultPriceIDs: map[string]bool{},
	}
}

func (f *fakeClient) CreateProduct(ctx context.Context, params providerdomain.ProductParams) (*providerdomain.Product, error) {
	if params.Name == f.failProductNamed {
		return nil, &providerdomain.APIError{Status: 400, Message: "product rejected"}
	}
	f.createdProducts = append(f.createdProducts, params)
	f.seq++
	return &providerdomain.Product{ID: fmt.Sprintf("prod_%d", f.seq), Name: params.Name, Active: true}, nil
}

func (f *fakeClient) CreatePrice(ctx context.Context, params providerdomain.PriceParams) (*providerdomain.Price, error) {
	f.createdPrices = append(f.createdPrices, params)
	f.seq++
	return &providerdomain.Price{ID: fmt.Sprintf("price_%d", f.seq), ProductID: params.ProductID, Active: true}, nil
}

func (f *fakeClient) CreateMeter(ctx context.Context, params providerdomain.MeterParams) (*providerdomain.Meter, error) {
	if params.EventName == f.failMeterNamed {
		return nil, &providerdomain.APIError{Status: 400, Code: "resource_already_exists", Message: "event name in use"}
	}
	f.createdMeters = append(f.createdMeters, params)
	f.seq++
	return &providerdomain.Meter{ID: fmt.Sprintf("mtr_%d", f.seq), EventName: params.EventName}, nil
}

func (f *fakeClient) ListProducts(ctx context.Context) ([]providerdomain.Product, error) {
	return f.products, nil
}

func (f *fakeClient) ListPrices(ctx context.Context, productID string) ([]providerdomain.Price, error) {
	return f.prices[productID], nil
}

func (f *fakeClient) UpdateProductActive(ctx context.Context, productID string, active bool) error {
	f.deactivated = append(f.deactivated, productID)
	return nil
}

func (f *fakeClient) UpdatePriceActive(ctx context.Context, priceID string, active bool) error {
	if f.defaultPriceIDs[priceID] {
		return providerdomain.ErrDefaultPriceInUse
	}
	f.deactivated = append(f.deactivated, priceID)
	return nil
}

func (f *fakeClient) SetDefaultPrice(ctx context.Context, productID, priceID string) error {
	return nil
}

func newTestService(t *testing.T, client providerdomain.Client) (*Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&billingdomain.BillingModel{}, &domain.DeploymentRun{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{Provider: config.ProviderConfig{CreatedVia: "stackbill"}}
	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Config: cfg,
		Client: client,
		Locker: locks.NewDeployLocker(cfg),
		Models: billingrepo.Provide(),
		Runs:   repository.Provide(),
	}).(*Service)
	return svc, db, node
}

func seedModel(t *testing.T, db *gorm.DB, node *snowflake.Node, orgID snowflake.ID, modelType billingdomain.ModelType, items []billingdomain.BillingItem) snowflake.ID {
	t.Helper()
	doc, err := json.Marshal(items)
	require.NoError(t, err)

	model := &billingdomain.BillingModel{
		ID:        node.Generate(),
		OrgID:     orgID,
		Name:      "Test Model",
		ModelType: modelType,
		Items:     datatypes.JSON(doc),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.Create(model).Error)
	return model.ID
}

func meteredItem(id, name, event string) billingdomain.BillingItem {
	return billingdomain.BillingItem{
		ID:          id,
		ProductName: name,
		Currency:    "usd",
		Kind:        billingdomain.KindMetered,
		Metered: &billingdomain.MeteredParams{
			EventName:   event,
			Aggregation: billingdomain.AggregationSum,
		},
	}
}

func TestBuildPlanFixedFeeOverage(t *testing.T) {
	item := meteredItem("item_1", "API Calls", "api_calls")
	item.Metered.IncludedUsage = 1000
	item.Metered.OverageRatePerUnit = 0.02

	plan := buildPlan(domain.Model{
		ModelType: billingdomain.FixedFeeOverage,
		Items:     []billingdomain.BillingItem{item},
	}, "stackbill")

	require.Len(t, plan.PricesToCreate, 1)
	price := plan.PricesToCreate[0]
	assert.Equal(t, providerdomain.BillingSchemeTiered, price.BillingScheme)
	assert.Equal(t, "graduated", price.TiersMode)

	require.Len(t, price.Tiers, 2)
	require.NotNil(t, price.Tiers[0].UpTo)
	assert.Equal(t, int64(1000), *price.Tiers[0].UpTo)
	assert.Equal(t, int64(0), price.Tiers[0].UnitAmount)
	assert.Nil(t, price.Tiers[1].UpTo)
	assert.Equal(t, int64(200), price.Tiers[1].UnitAmount)

	require.NotNil(t, price.Recurring)
	assert.Equal(t, "month", price.Recurring.Interval)
	assert.Equal(t, providerdomain.UsageTypeMetered, price.Recurring.UsageType)
	assert.Equal(t, "sum", price.Recurring.AggregateUsage)

	require.Len(t, plan.MetersToCreate, 1)
	assert.Equal(t, "api_calls", plan.MetersToCreate[0].EventName)
}

func TestBuildPlanOverageFallbackWhenInputsIncomplete(t *testing.T) {
	for _, tc := range []struct {
		name     string
		included int64
		rate     float64
	}{
		{"zero included usage", 0, 0.02},
		{"zero overage rate", 1000, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			item := meteredItem("item_1", "API Calls", "api_calls")
			item.Metered.IncludedUsage = tc.included
			item.Metered.OverageRatePerUnit = tc.rate

			plan := buildPlan(domain.Model{
				ModelType: billingdomain.FixedFeeOverage,
				Items:     []billingdomain.BillingItem{item},
			}, "stackbill")

			require.Len(t, plan.PricesToCreate, 1)
			price := plan.PricesToCreate[0]
			assert.Equal(t, providerdomain.BillingSchemePerUnit, price.BillingScheme)
			assert.Empty(t, price.Tiers)
			require.NotNil(t, price.Recurring)
			assert.Equal(t, providerdomain.UsageTypeMetered, price.Recurring.UsageType)
		})
	}
}

func TestBuildPlanShapes(t *testing.T) {
	recurringItem := billingdomain.BillingItem{
		ID:              "item_r",
		ProductName:     "Pro Plan",
		PriceMinorUnits: 2900,
		Currency:        "usd",
		Kind:            billingdomain.KindRecurring,
		Recurring:       &billingdomain.RecurringParams{Interval: billingdomain.IntervalYear},
	}

	t.Run("flat recurring", func(t *testing.T) {
		plan := buildPlan(domain.Model{
			ModelType: billingdomain.FlatRecurring,
			Items:     []billingdomain.BillingItem{recurringItem},
		}, "stackbill")

		require.Len(t, plan.PricesToCreate, 1)
		price := plan.PricesToCreate[0]
		require.NotNil(t, price.UnitAmount)
		assert.Equal(t, int64(2900), *price.UnitAmount)
		require.NotNil(t, price.Recurring)
		assert.Equal(t, "year", price.Recurring.Interval)
		assert.Empty(t, price.Metadata["price_type"])
		assert.Empty(t, plan.MetersToCreate)
	})

	t.Run("fixed fee base plan is tagged", func(t *testing.T) {
		plan := buildPlan(domain.Model{
			ModelType: billingdomain.FixedFeeOverage,
			Items:     []billingdomain.BillingItem{recurringItem},
		}, "stackbill")

		require.Len(t, plan.PricesToCreate, 1)
		assert.Equal(t, "base_plan", plan.PricesToCreate[0].Metadata["price_type"])
	})

	t.Run("per seat is licensed even for metered items", func(t *testing.T) {
		plan := buildPlan(domain.Model{
			ModelType: billingdomain.PerSeat,
			Items:     []billingdomain.BillingItem{meteredItem("item_m", "Seats", "seats")},
		}, "stackbill")

		require.Len(t, plan.PricesToCreate, 1)
		price := plan.PricesToCreate[0]
		require.NotNil(t, price.Recurring)
		assert.Equal(t, providerdomain.UsageTypeLicensed, price.Recurring.UsageType)
		assert.Empty(t, price.Recurring.AggregateUsage)
	})

	t.Run("one time has no recurring block", func(t *testing.T) {
		plan := buildPlan(domain.Model{
			ModelType: billingdomain.FlatRecurring,
			Items: []billingdomain.BillingItem{{
				ID:              "item_o",
				ProductName:     "Setup Fee",
				PriceMinorUnits: 50000,
				Currency:        "usd",
				Kind:            billingdomain.KindOneTime,
			}},
		}, "stackbill")

		require.Len(t, plan.PricesToCreate, 1)
		assert.Nil(t, plan.PricesToCreate[0].Recurring)
	})
}

func TestBuildPlanProductMetadata(t *testing.T) {
	item := meteredItem("item_1", "API Calls", "api_calls")
	item.Metered.IncludedUsage = 500
	item.Metadata = map[string]string{"tier_id": "starter", "source": "import"}

	plan := buildPlan(domain.Model{
		ModelType: billingdomain.PayAsYouGo,
		Items:     []billingdomain.BillingItem{item},
	}, "stackbill")

	require.Len(t, plan.ProductsToCreate, 1)
	product := plan.ProductsToCreate[0]
	assert.Equal(t, "API Calls - metered billing", product.Description)
	assert.Equal(t, "stackbill", product.Metadata["created_via"])
	assert.Equal(t, "pay_as_you_go", product.Metadata["model_type"])
	assert.Equal(t, "api_calls", product.Metadata["meter_name"])
	assert.Equal(t, "500", product.Metadata["usage_limit"])
	// item metadata overrides the derived tier id
	assert.Equal(t, "starter", product.Metadata["tier_id"])
	assert.Equal(t, "import", product.Metadata["source"])
}

func TestDeployPerItemFailureIsolation(t *testing.T) {
	client := newFakeClient()
	client.failMeterNamed = "event_two"

	svc, db, node := newTestService(t, client)
	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))

	modelID := seedModel(t, db, node, orgID, billingdomain.PayAsYouGo, []billingdomain.BillingItem{
		meteredItem("item_1", "Service One", "event_one"),
		meteredItem("item_2", "Service Two", "event_two"),
		meteredItem("item_3", "Service Three", "event_three"),
	})

	resp, err := svc.Deploy(ctx, domain.DeployRequest{BillingModelID: modelID.String()})
	require.NoError(t, err)

	assert.Equal(t, 3, resp.Result.ProductsCreated)
	assert.Equal(t, 3, resp.Result.PricesCreated)
	assert.Equal(t, 2, resp.Result.MetersCreated)

	require.Len(t, resp.Result.Errors, 1)
	assert.Equal(t, "item_2", resp.Result.Errors[0].ItemRef)
	assert.Equal(t, "Service Two", resp.Result.Errors[0].ProductName)
	assert.Equal(t, "create_meter", resp.Result.Errors[0].Operation)

	var run domain.DeploymentRun
	require.NoError(t, db.First(&run, "id = ?", resp.RunID).Error)
	assert.Equal(t, domain.RunStatusPartial, run.Status)
	assert.Equal(t, 3, run.ProductsCreated)
}

func TestDeployProductFailureSkipsItemRemainder(t *testing.T) {
	client := newFakeClient()
	client.failProductNamed = "Service Two"

	svc, db, node := newTestService(t, client)
	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))

	modelID := seedModel(t, db, node, orgID, billingdomain.PayAsYouGo, []billingdomain.BillingItem{
		meteredItem("item_1", "Service One", "event_one"),
		meteredItem("item_2", "Service Two", "event_two"),
	})

	resp, err := svc.Deploy(ctx, domain.DeployRequest{BillingModelID: modelID.String()})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Result.ProductsCreated)
	assert.Equal(t, 1, resp.Result.PricesCreated)
	assert.Equal(t, 1, resp.Result.MetersCreated)
	require.Len(t, resp.Result.Errors, 1)
	assert.Equal(t, "create_product", resp.Result.Errors[0].Operation)

	// no price or meter call was attempted for the failed item
	assert.Len(t, client.createdPrices, 1)
	assert.Len(t, client.createdMeters, 1)
}

func TestDeployValidationGateBlocksRemoteCalls(t *testing.T) {
	client := newFakeClient()
	svc, db, node := newTestService(t, client)
	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))

	item := billingdomain.BillingItem{
		ID:          "item_1",
		ProductName: "Broken",
		Currency:    "usd",
		Kind:        billingdomain.KindMetered,
		Metered:     &billingdomain.MeteredParams{Aggregation: billingdomain.AggregationSum},
	}
	modelID := seedModel(t, db, node, orgID, billingdomain.PayAsYouGo, []billingdomain.BillingItem{item})

	_, err := svc.Deploy(ctx, domain.DeployRequest{BillingModelID: modelID.String()})
	var verrs *billingdomain.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	assert.Empty(t, client.createdProducts)
	assert.Empty(t, client.createdPrices)
	assert.Empty(t, client.createdMeters)
}

func TestDeployRejectsConcurrentRun(t *testing.T) {
	client := newFakeClient()
	svc, db, node := newTestService(t, client)
	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))

	modelID := seedModel(t, db, node, orgID, billingdomain.PayAsYouGo, []billingdomain.BillingItem{
		meteredItem("item_1", "Service One", "event_one"),
	})

	lockKey := "deploy:model:" + modelID.String()
	_, err := svc.locker.TryLock(ctx, lockKey, time.Minute)
	require.NoError(t, err)

	_, err = svc.Deploy(ctx, domain.DeployRequest{BillingModelID: modelID.String()})
	assert.ErrorIs(t, err, domain.ErrDeployInProgress)
}

func TestPlanCleanupTieBreak(t *testing.T) {
	client := newFakeClient()
	managed := map[string]string{"created_via": "stackbill", "tier_id": "starter", "model_type": "flat_recurring"}

	older := providerdomain.Product{
		ID: "prod_recurring", Name: "Starter", Active: true,
		Metadata:  managed,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := providerdomain.Product{
		ID: "prod_onetime", Name: "Starter", Active: true,
		Metadata:  managed,
		CreatedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	unmanaged := providerdomain.Product{ID: "prod_other", Name: "Other", Active: true}

	client.products = []providerdomain.Product{older, newer, unmanaged}
	client.prices = map[string][]providerdomain.Price{
		"prod_recurring": {{
			ID: "price_monthly", ProductID: "prod_recurring", Active: true,
			Recurring: &providerdomain.Recurring{Interval: "month"},
		}},
		"prod_onetime": {{
			ID: "price_once", ProductID: "prod_onetime", Active: true,
		}},
	}

	svc, _, _ := newTestService(t, client)
	actions, err := svc.PlanCleanup(context.Background())
	require.NoError(t, err)

	// the recurring product wins over the newer one-time product
	require.Len(t, actions, 1)
	assert.Equal(t, "prod_onetime", actions[0].ProductID)
	assert.Equal(t, "starter", actions[0].TierID)
	assert.Equal(t, []string{"price_once"}, actions[0].PriceIDs)
}

func TestPlanCleanupKeepsNewestAmongRecurringCandidates(t *testing.T) {
	client := newFakeClient()
	managed := map[string]string{"created_via": "stackbill", "tier_id": "pro", "model_type": "flat_recurring"}
	monthly := []providerdomain.Price{{
		ID: "price_a", Active: true,
		Recurring: &providerdomain.Recurring{Interval: "month"},
	}}

	client.products = []providerdomain.Product{
		{ID: "prod_old", Name: "Pro", Metadata: managed, CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "prod_new", Name: "Pro", Metadata: managed, CreatedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
	client.prices = map[string][]providerdomain.Price{
		"prod_old": monthly,
		"prod_new": monthly,
	}

	svc, _, _ := newTestService(t, client)
	actions, err := svc.PlanCleanup(context.Background())
	require.NoError(t, err)

	require.Len(t, actions, 1)
	assert.Equal(t, "prod_old", actions[0].ProductID)
}

func TestExecuteCleanupDefaultPriceSkip(t *testing.T) {
	client := newFakeClient()
	client.defaultPriceIDs["price_default"] = true

	svc, _, _ := newTestService(t, client)
	result, err := svc.ExecuteCleanup(context.Background(), []domain.DeactivationAction{
		{ProductID: "prod_locked", PriceIDs: []string{"price_default"}},
		{ProductID: "prod_free", PriceIDs: []string{"price_plain"}},
	})
	require.NoError(t, err)

	// the locked product and its default price are skips, not failures
	assert.ElementsMatch(t, []string{"price_default", "prod_locked"}, result.Skipped)
	assert.ElementsMatch(t, []string{"price_plain", "prod_free"}, result.Deactivated)
	assert.Empty(t, result.Errors)
}
