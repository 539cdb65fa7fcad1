package domain

import (
	"errors"

	billingmodeldomain "github.com/stackbill/stackbill/internal/billingmodel/domain"
)

// Format is a hint describing how the caller obtained the rows. It does not
// change the classification algorithm.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
	FormatText Format = "text"
)

// Structure is the classifier's guess about what the table describes.
type Structure string

const (
	StructureMetered      Structure = "metered_services"
	StructureSubscription Structure = "subscription_plans"
	StructureMixed        Structure = "mixed"
	StructureUnknown      Structure = "unknown"
)

// Row is one loosely-structured record parsed from uploaded or pasted data.
type Row map[string]any

// Result is the transient classification output. Items are provisional and
// usually incomplete; the caller's form fills in the rest.
type Result struct {
	Structure          Structure                        `json:"structure"`
	Confidence         int                              `json:"confidence"`
	Items              []billingmodeldomain.BillingItem `json:"items"`
	SuggestedModelType billingmodeldomain.ModelType     `json:"suggested_model_type"`
}

type Service interface {
	// Classify is pure and deterministic; it never fails. Malformed
	// numeric fields default to zero and missing text fields to
	// placeholder strings.
	Classify(rows []Row, format Format) Result

	// ParseRows extracts rows from raw uploaded/pasted/scanned content
	// according to the format hint.
	ParseRows(raw string, format Format) ([]Row, error)
}

var (
	ErrUnsupportedFormat = errors.New("unsupported_format")
	ErrMalformedInput    = errors.New("malformed_input")
)
