package service

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	billingmodeldomain "github.com/stackbill/stackbill/internal/billingmodel/domain"
	"github.com/stackbill/stackbill/internal/classifier/domain"
	"github.com/stackbill/stackbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Tuning *config.ClassifierConfigHolder
}

type Service struct {
	log    *zap.Logger
	tuning *config.ClassifierConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		log:    p.Log.Named("classifier.service"),
		tuning: p.Tuning,
	}
}

var amountPattern = regexp.MustCompile(`\$?\d+(?:\.\d+)?`)

// Classify estimates whether the rows describe metered services,
// subscription plans, or a mix, and normalizes each row into a provisional
// billing item. See the classifier config for the tuning constants.
func (s *Service) Classify(rows []domain.Row, format domain.Format) domain.Result {
	cfg := s.tuning.Get()

	if len(rows) == 0 {
		return domain.Result{
			Structure:          domain.StructureUnknown,
			Confidence:         0,
			Items:              []billingmodeldomain.BillingItem{},
			SuggestedModelType: billingmodeldomain.PayAsYouGo,
		}
	}

	columnText := collectColumnText(rows)
	meteredScore := indicatorRatio(columnText, cfg.MeteredIndicators)
	subscriptionScore := indicatorRatio(columnText, cfg.SubscriptionIndicators)

	var contentMetered, contentSubscription float64
	for _, row := range rows {
		rowText := collectRowText(row)

		if avg, ok := averageAmount(rowText); ok {
			if avg < cfg.LowPriceCutoff {
				contentMetered += cfg.AvgPriceWeight
			} else if avg > cfg.HighPriceCutoff {
				contentSubscription += cfg.AvgPriceWeight
			}
		}
		if containsAny(rowText, cfg.MeteredKeywords) {
			contentMetered += cfg.KeywordWeight
		}
		if containsAny(rowText, cfg.SubscriptionKeywords) {
			contentSubscription += cfg.KeywordWeight
		}
	}

	meteredScore += contentMetered
	subscriptionScore += contentSubscription

	var (
		structure  domain.Structure
		confidence float64
		suggested  billingmodeldomain.ModelType
	)
	switch {
	case meteredScore > subscriptionScore && meteredScore > cfg.DominantThreshold:
		structure = domain.StructureMetered
		confidence = math.Min(cfg.MeteredConfidenceCap, meteredScore*100+contentMetered)
		suggested = billingmodeldomain.PayAsYouGo
	case subscriptionScore > cfg.DominantThreshold:
		structure = domain.StructureSubscription
		confidence = math.Min(cfg.SubscriptionConfidenceCap, subscriptionScore*100+contentSubscription)
		suggested = billingmodeldomain.FlatRecurring
	case meteredScore > cfg.MixedThreshold && subscriptionScore > cfg.MixedThreshold:
		structure = domain.StructureMixed
		confidence = cfg.MixedConfidence
		suggested = billingmodeldomain.FixedFeeOverage
	default:
		structure = domain.StructureUnknown
		confidence = 0
		suggested = billingmodeldomain.PayAsYouGo
	}

	items := make([]billingmodeldomain.BillingItem, 0, len(rows))
	for i, row := range rows {
		items = append(items, normalizeItem(row, i, structure))
	}

	return domain.Result{
		Structure:          structure,
		Confidence:         int(confidence),
		Items:              items,
		SuggestedModelType: suggested,
	}
}

// Probing orders for item normalization; first case-insensitive substring
// match against a column name wins.
var (
	nameProbes        = []string{"name", "product", "metric description", "description", "service", "title"}
	descriptionProbes = []string{"description", "metric description", "details", "notes"}
	priceProbes       = []string{"rate", "price", "cost", "per unit rate", "unit amount", "amount", "fee"}
	eventProbes       = []string{"meter name", "event name", "meter", "event"}
	intervalProbes    = []string{"interval", "billing cycle", "period"}
)

func normalizeItem(row domain.Row, index int, structure domain.Structure) billingmodeldomain.BillingItem {
	item := billingmodeldomain.BillingItem{
		ProductName:     probeString(row, nameProbes, fmt.Sprintf("Service %d", index+1)),
		Description:     probeString(row, descriptionProbes, "Imported billing line"),
		PriceMinorUnits: toMinorUnits(parseAmount(probeString(row, priceProbes, "0"))),
		Currency:        "usd",
	}

	switch structure {
	case domain.StructureMetered, domain.StructureMixed:
		eventName := probeString(row, eventProbes, "")
		if eventName == "" {
			eventName = item.ProductName
		}
		item.Kind = billingmodeldomain.KindMetered
		item.Metered = &billingmodeldomain.MeteredParams{
			EventName:   billingmodeldomain.NormalizeEventName(eventName),
			Aggregation: billingmodeldomain.AggregationSum,
		}
	case domain.StructureSubscription:
		item.Kind = billingmodeldomain.KindRecurring
		item.Recurring = &billingmodeldomain.RecurringParams{
			Interval: guessInterval(probeString(row, intervalProbes, "")),
		}
	}

	return item
}

func guessInterval(raw string) billingmodeldomain.Interval {
	value := strings.ToLower(raw)
	switch {
	case strings.Contains(value, "year"):
		return billingmodeldomain.IntervalYear
	case strings.Contains(value, "week"):
		return billingmodeldomain.IntervalWeek
	default:
		return billingmodeldomain.IntervalMonth
	}
}

// probeString returns the first value whose column name contains one of the
// probes. Columns are scanned in sorted order so the result is deterministic
// regardless of map iteration order.
func probeString(row domain.Row, probes []string, fallback string) string {
	columns := sortedColumns(row)
	for _, probe := range probes {
		for _, column := range columns {
			if strings.Contains(strings.ToLower(column), probe) {
				if value := strings.TrimSpace(stringify(row[column])); value != "" {
					return value
				}
			}
		}
	}
	return fallback
}

func parseAmount(raw string) float64 {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(raw))
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return value
}

// toMinorUnits converts a decimal price to integer minor units, rounding
// half away from zero.
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func collectColumnText(rows []domain.Row) string {
	seen := map[string]bool{}
	columns := []string{}
	for _, row := range rows {
		for column := range row {
			lower := strings.ToLower(column)
			if !seen[lower] {
				seen[lower] = true
				columns = append(columns, lower)
			}
		}
	}
	sort.Strings(columns)
	return strings.Join(columns, " ")
}

func collectRowText(row domain.Row) string {
	columns := sortedColumns(row)
	values := make([]string, 0, len(columns))
	for _, column := range columns {
		values = append(values, strings.ToLower(stringify(row[column])))
	}
	return strings.Join(values, " ")
}

func sortedColumns(row domain.Row) []string {
	columns := make([]string, 0, len(row))
	for column := range row {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

func indicatorRatio(text string, indicators []string) float64 {
	if len(indicators) == 0 {
		return 0
	}
	found := 0
	for _, indicator := range indicators {
		if strings.Contains(text, indicator) {
			found++
		}
	}
	return float64(found) / float64(len(indicators))
}

func averageAmount(text string) (float64, bool) {
	tokens := amountPattern.FindAllString(text, -1)
	if len(tokens) == 0 {
		return 0, false
	}
	var sum float64
	for _, token := range tokens {
		sum += parseAmount(token)
	}
	return sum / float64(len(tokens)), true
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

func stringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return fmt.Sprintf("%v", typed)
	}
}
