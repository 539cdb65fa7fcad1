package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackbill/stackbill/internal/provider/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) domain.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewFactory().NewClient(domain.ClientConfig{
		APIKey:  "sk_test_123",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewFactory().NewClient(domain.ClientConfig{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestCreateProduct(t *testing.T) {
	var gotForm map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/products", r.URL.Path)
		require.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		require.NotEmpty(t, r.Header.Get("Idempotency-Key"))

		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"name":                 r.PostForm.Get("name"),
			"description":          r.PostForm.Get("description"),
			"metadata[created_via]": r.PostForm.Get("metadata[created_via]"),
		}
		w.Write([]byte(`{"id":"prod_1","name":"API Calls","active":true,"created":1700000000,"metadata":{"created_via":"stackbill"}}`))
	})

	product, err := client.CreateProduct(context.Background(), domain.ProductParams{
		Name:        "API Calls",
		Description: "Metered API usage",
		Metadata:    map[string]string{"created_via": "stackbill"},
	})
	require.NoError(t, err)

	assert.Equal(t, "prod_1", product.ID)
	assert.True(t, product.Active)
	assert.Equal(t, "API Calls", gotForm["name"])
	assert.Equal(t, "Metered API usage", gotForm["description"])
	assert.Equal(t, "stackbill", gotForm["metadata[created_via]"])
}

func TestCreatePriceTieredEncodesUnboundedTier(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "tiered", r.PostForm.Get("billing_scheme"))
		assert.Equal(t, "graduated", r.PostForm.Get("tiers_mode"))
		assert.Equal(t, "1000", r.PostForm.Get("tiers[0][up_to]"))
		assert.Equal(t, "0", r.PostForm.Get("tiers[0][unit_amount]"))
		assert.Equal(t, "inf", r.PostForm.Get("tiers[1][up_to]"))
		assert.Equal(t, "13", r.PostForm.Get("tiers[1][unit_amount]"))
		assert.Equal(t, "month", r.PostForm.Get("recurring[interval]"))
		assert.Equal(t, "metered", r.PostForm.Get("recurring[usage_type]"))
		assert.Equal(t, "sum", r.PostForm.Get("recurring[aggregate_usage]"))
		w.Write([]byte(`{"id":"price_1","product":"prod_1","currency":"usd","billing_scheme":"tiered","active":true,"created":1700000000}`))
	})

	included := int64(1000)
	price, err := client.CreatePrice(context.Background(), domain.PriceParams{
		ProductID:     "prod_1",
		Currency:      "usd",
		BillingScheme: domain.BillingSchemeTiered,
		TiersMode:     "graduated",
		Tiers: []domain.Tier{
			{UpTo: &included, UnitAmount: 0},
			{UpTo: nil, UnitAmount: 13},
		},
		Recurring: &domain.Recurring{
			Interval:       "month",
			UsageType:      domain.UsageTypeMetered,
			AggregateUsage: "sum",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "price_1", price.ID)
	assert.Equal(t, domain.BillingSchemeTiered, price.BillingScheme)
}

func TestCreateMeterMapsAggregationFormula(t *testing.T) {
	var formula string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/billing/meters", r.URL.Path)
		require.NoError(t, r.ParseForm())
		formula = r.PostForm.Get("default_aggregation[formula]")
		w.Write([]byte(`{"id":"mtr_1","display_name":"API Calls","event_name":"api_calls"}`))
	})

	meter, err := client.CreateMeter(context.Background(), domain.MeterParams{
		DisplayName: "API Calls",
		EventName:   "api_calls",
		Aggregation: "last_during_period",
	})
	require.NoError(t, err)
	assert.Equal(t, "last", formula)
	assert.Equal(t, "mtr_1", meter.ID)
	assert.Equal(t, "last_during_period", meter.Aggregation)
}

func TestListProductsFollowsPagination(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.Query().Get("starting_after") {
		case "":
			w.Write([]byte(`{"data":[{"id":"prod_1","name":"A","active":true,"created":1700000000}],"has_more":true}`))
		case "prod_1":
			w.Write([]byte(`{"data":[{"id":"prod_2","name":"B","active":false,"created":1700000100}],"has_more":false}`))
		default:
			t.Fatalf("unexpected cursor %q", r.URL.Query().Get("starting_after"))
		}
	})

	products, err := client.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "prod_1", products[0].ID)
	assert.Equal(t, "prod_2", products[1].ID)
}

func TestErrorMapping(t *testing.T) {
	t.Run("default price in use", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"You cannot archive the default price of a product."}}`))
		})
		err := client.UpdatePriceActive(context.Background(), "price_1", false)
		assert.ErrorIs(t, err, domain.ErrDefaultPriceInUse)
	})

	t.Run("not found", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such product"}}`))
		})
		err := client.UpdateProductActive(context.Background(), "prod_missing", false)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("generic API error keeps code and status", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write([]byte(`{"error":{"type":"card_error","code":"account_invalid","message":"account is invalid"}}`))
		})
		_, err := client.CreateProduct(context.Background(), domain.ProductParams{Name: "X"})
		var apiErr *domain.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusPaymentRequired, apiErr.Status)
		assert.Equal(t, "account_invalid", apiErr.Code)
	})
}
