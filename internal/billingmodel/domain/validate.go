package domain

import (
	"fmt"
	"strings"

	"github.com/gosimple/slug"
)

const maxEventNameLength = 50

// ValidationError identifies a single offending field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors aggregates every field failure found in one pass so the
// form layer can annotate all offending inputs at once.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v *ValidationErrors) Error() string {
	if v == nil || len(v.Errors) == 0 {
		return "validation error"
	}
	parts := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		parts = append(parts, e.Field+": "+e.Code)
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (v *ValidationErrors) add(field, code, message string) {
	v.Errors = append(v.Errors, ValidationError{Field: field, Code: code, Message: message})
}

// Validate checks a model before it is handed to the reconciler. Metered
// event names are normalized in place; everything else is reject-only.
func Validate(modelType ModelType, name string, items []BillingItem) error {
	verr := &ValidationErrors{}

	if strings.TrimSpace(name) == "" {
		verr.add("name", "required", "name is required")
	}
	if !modelType.Valid() {
		verr.add("model_type", "invalid_model_type", "unknown model type")
	}
	if len(items) == 0 {
		verr.add("items", "required", "at least one billing item is required")
	}

	for i := range items {
		validateItem(verr, i, &items[i])
	}

	if len(verr.Errors) > 0 {
		return verr
	}
	return nil
}

func validateItem(verr *ValidationErrors, index int, item *BillingItem) {
	field := func(name string) string {
		return fmt.Sprintf("items[%d].%s", index, name)
	}

	if strings.TrimSpace(item.ProductName) == "" {
		verr.add(field("product_name"), "required", "product name is required")
	}
	if item.PriceMinorUnits < 0 {
		verr.add(field("price_minor_units"), "negative_amount", "price must be zero or positive")
	}

	currency := strings.ToLower(strings.TrimSpace(item.Currency))
	if !validCurrencies[currency] {
		verr.add(field("currency"), "invalid_currency", "unrecognized currency code")
	} else {
		item.Currency = currency
	}

	switch item.Kind {
	case KindRecurring:
		if item.Recurring == nil || !item.Recurring.Valid() {
			verr.add(field("interval"), "invalid_interval", "recurring items need a valid interval")
		}
	case KindMetered:
		if item.Metered == nil || strings.TrimSpace(item.Metered.EventName) == "" {
			verr.add(field("event_name"), "required", "metered items need an event name")
			return
		}
		item.Metered.EventName = NormalizeEventName(item.Metered.EventName)
		if item.Metered.EventName == "" {
			verr.add(field("event_name"), "invalid_event_name", "event name has no usable characters")
		}
		if item.Metered.Aggregation == "" {
			item.Metered.Aggregation = AggregationSum
		} else if !item.Metered.Aggregation.Valid() {
			verr.add(field("aggregation"), "invalid_aggregation", "unknown aggregation")
		}
		if item.Metered.IncludedUsage < 0 {
			verr.add(field("included_usage"), "negative_amount", "included usage must be zero or positive")
		}
		if item.Metered.OverageRatePerUnit < 0 {
			verr.add(field("overage_rate_per_unit"), "negative_amount", "overage rate must be zero or positive")
		}
	case KindOneTime:
		// no kind-specific fields
	default:
		verr.add(field("billing_kind"), "invalid_billing_kind", "unknown billing kind")
	}
}

func (r *RecurringParams) Valid() bool {
	return r != nil && r.Interval.Valid()
}

// NormalizeEventName turns free text into the machine token a meter and its
// prices share: lowercase, [a-z0-9_] only, runs collapsed, trimmed, at most
// 50 characters. Already-normal input passes through unchanged.
func NormalizeEventName(raw string) string {
	token := strings.ReplaceAll(slug.Make(raw), "-", "_")
	for strings.Contains(token, "__") {
		token = strings.ReplaceAll(token, "__", "_")
	}
	token = strings.Trim(token, "_")
	if len(token) > maxEventNameLength {
		token = strings.Trim(token[:maxEventNameLength], "_")
	}
	return token
}

var validCurrencies = map[string]bool{
	"usd": true, "eur": true, "gbp": true, "jpy": true, "cny": true,
	"aud": true, "cad": true, "chf": true, "hkd": true, "sgd": true,
	"sek": true, "nok": true, "dkk": true, "nzd": true, "mxn": true,
	"brl": true, "inr": true, "idr": true, "krw": true, "myr": true,
	"php": true, "thb": true, "vnd": true, "twd": true, "pln": true,
	"czk": true, "huf": true, "ron": true, "zar": true, "aed": true,
	"sar": true, "ils": true, "try": true, "clp": true, "cop": true,
}
