package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stackbill/stackbill/internal/provider/domain"
)

const defaultBaseURL = "https://api.stripe.com"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewClient(cfg domain.ClientConfig) (domain.Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, domain.ErrInvalidConfig
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Client speaks the provider's form-encoded REST API directly. Mutating
// calls carry an idempotency key so a retried request cannot create a
// second object.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func (c *Client) CreateProduct(ctx context.Context, params domain.ProductParams) (*domain.Product, error) {
	form := url.Values{}
	form.Set("name", params.Name)
	if params.Description != "" {
		form.Set("description", params.Description)
	}
	encodeMetadata(form, params.Metadata)

	var resp productResponse
	if err := c.do(ctx, http.MethodPost, "/v1/products", form, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

func (c *Client) CreatePrice(ctx context.Context, params domain.PriceParams) (*domain.Price, error) {
	form := url.Values{}
	form.Set("product", params.ProductID)
	form.Set("currency", params.Currency)
	form.Set("billing_scheme", string(params.BillingScheme))
	if params.UnitAmount != nil {
		form.Set("unit_amount", strconv.FormatInt(*params.UnitAmount, 10))
	}
	if params.TiersMode != "" {
		form.Set("tiers_mode", params.TiersMode)
	}
	for i, tier := range params.Tiers {
		prefix := fmt.Sprintf("tiers[%d]", i)
		if tier.UpTo != nil {
			form.Set(prefix+"[up_to]", strconv.FormatInt(*tier.UpTo, 10))
		} else {
			form.Set(prefix+"[up_to]", "inf")
		}
		form.Set(prefix+"[unit_amount]", strconv.FormatInt(tier.UnitAmount, 10))
	}
	if params.Recurring != nil {
		form.Set("recurring[interval]", params.Recurring.Interval)
		if params.Recurring.UsageType != "" {
			form.Set("recurring[usage_type]", string(params.Recurring.UsageType))
		}
		if params.Recurring.AggregateUsage != "" {
			form.Set("recurring[aggregate_usage]", params.Recurring.AggregateUsage)
		}
	}
	encodeMetadata(form, params.Metadata)

	var resp priceResponse
	if err := c.do(ctx, http.MethodPost, "/v1/prices", form, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

func (c *Client) CreateMeter(ctx context.Context, params domain.MeterParams) (*domain.Meter, error) {
	form := url.Values{}
	form.Set("display_name", params.DisplayName)
	form.Set("event_name", params.EventName)
	form.Set("default_aggregation[formula]", meterFormula(params.Aggregation))

	var resp meterResponse
	if err := c.do(ctx, http.MethodPost, "/v1/billing/meters", form, &resp); err != nil {
		return nil, err
	}
	return &domain.Meter{
		ID:          resp.ID,
		DisplayName: resp.DisplayName,
		EventName:   resp.EventName,
		Aggregation: params.Aggregation,
	}, nil
}

func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products := []domain.Product{}
	startingAfter := ""
	for {
		query := url.Values{}
		query.Set("limit", "100")
		if startingAfter != "" {
			query.Set("starting_after", startingAfter)
		}

		var page listResponse[productResponse]
		if err := c.do(ctx, http.MethodGet, "/v1/products?"+query.Encode(), nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Data {
			products = append(products, *item.toDomain())
		}
		if !page.HasMore || len(page.Data) == 0 {
			return products, nil
		}
		startingAfter = page.Data[len(page.Data)-1].ID
	}
}

func (c *Client) ListPrices(ctx context.Context, productID string) ([]domain.Price, error) {
	query := url.Values{}
	query.Set("limit", "100")
	if productID != "" {
		query.Set("product", productID)
	}

	var page listResponse[priceResponse]
	if err := c.do(ctx, http.MethodGet, "/v1/prices?"+query.Encode(), nil, &page); err != nil {
		return nil, err
	}
	prices := make([]domain.Price, 0, len(page.Data))
	for _, item := range page.Data {
		prices = append(prices, *item.toDomain())
	}
	return prices, nil
}

func (c *Client) UpdateProductActive(ctx context.Context, productID string, active bool) error {
	form := url.Values{}
	form.Set("active", strconv.FormatBool(active))
	return c.do(ctx, http.MethodPost, "/v1/products/"+url.PathEscape(productID), form, nil)
}

func (c *Client) UpdatePriceActive(ctx context.Context, priceID string, active bool) error {
	form := url.Values{}
	form.Set("active", strconv.FormatBool(active))
	return c.do(ctx, http.MethodPost, "/v1/prices/"+url.PathEscape(priceID), form, nil)
}

func (c *Client) SetDefaultPrice(ctx context.Context, productID, priceID string) error {
	form := url.Values{}
	form.Set("default_price", priceID)
	return c.do(ctx, http.MethodPost, "/v1/products/"+url.PathEscape(productID), form, nil)
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(payload, out)
}

func decodeError(status int, payload []byte) error {
	var body struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(payload, &body)

	if status == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if strings.Contains(strings.ToLower(body.Error.Message), "default price") {
		return domain.ErrDefaultPriceInUse
	}
	return &domain.APIError{
		Status:  status,
		Code:    body.Error.Code,
		Message: body.Error.Message,
	}
}

func meterFormula(aggregation string) string {
	switch aggregation {
	case "last_during_period", "last_ever":
		return "last"
	case "max":
		return "max"
	default:
		return "sum"
	}
}

func encodeMetadata(form url.Values, metadata map[string]string) {
	for key, value := range metadata {
		form.Set("metadata["+key+"]", value)
	}
}

type productResponse struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Active       bool              `json:"active"`
	DefaultPrice string            `json:"default_price"`
	Metadata     map[string]string `json:"metadata"`
	Created      int64             `json:"created"`
}

func (p productResponse) toDomain() *domain.Product {
	return &domain.Product{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Active:         p.Active,
		DefaultPriceID: p.DefaultPrice,
		Metadata:       p.Metadata,
		CreatedAt:      time.Unix(p.Created, 0).UTC(),
	}
}

type priceResponse struct {
	ID            string            `json:"id"`
	Product       string            `json:"product"`
	Currency      string            `json:"currency"`
	UnitAmount    *int64            `json:"unit_amount"`
	BillingScheme string            `json:"billing_scheme"`
	TiersMode     string            `json:"tiers_mode"`
	Tiers         []domain.Tier     `json:"tiers"`
	Recurring     *domain.Recurring `json:"recurring"`
	Active        bool              `json:"active"`
	Metadata      map[string]string `json:"metadata"`
	Created       int64             `json:"created"`
}

func (p priceResponse) toDomain() *domain.Price {
	return &domain.Price{
		ID:            p.ID,
		ProductID:     p.Product,
		Currency:      p.Currency,
		UnitAmount:    p.UnitAmount,
		BillingScheme: domain.BillingScheme(p.BillingScheme),
		TiersMode:     p.TiersMode,
		Tiers:         p.Tiers,
		Recurring:     p.Recurring,
		Active:        p.Active,
		Metadata:      p.Metadata,
		CreatedAt:     time.Unix(p.Created, 0).UTC(),
	}
}

type meterResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	EventName   string `json:"event_name"`
}

type listResponse[T any] struct {
	Data    []T  `json:"data"`
	HasMore bool `json:"has_more"`
}
