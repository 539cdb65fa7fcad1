package service

import (
	"encoding/csv"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/stackbill/stackbill/internal/classifier/domain"
)

// ParseRows extracts string-keyed records from raw content. CSV expects a
// header row; JSON expects an array of objects; text (including OCR output
// and the xml hint, which arrives pre-flattened) is split on lines with a
// delimiter guessed from the first line.
func (s *Service) ParseRows(raw string, format domain.Format) ([]domain.Row, error) {
	switch format {
	case domain.FormatCSV:
		return parseCSV(raw)
	case domain.FormatJSON:
		return parseJSON(raw)
	case domain.FormatText, domain.FormatXML:
		return parseText(raw), nil
	default:
		return nil, domain.ErrUnsupportedFormat
	}
}

func parseCSV(raw string) ([]domain.Row, error) {
	reader := csv.NewReader(strings.NewReader(strings.TrimSpace(raw)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, domain.ErrMalformedInput
	}
	if len(records) < 2 {
		return nil, domain.ErrMalformedInput
	}

	header := records[0]
	rows := make([]domain.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := domain.Row{}
		for i, value := range record {
			if i >= len(header) {
				break
			}
			row[strings.TrimSpace(header[i])] = strings.TrimSpace(value)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseJSON(raw string) ([]domain.Row, error) {
	var rows []domain.Row
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, domain.ErrMalformedInput
	}
	return rows, nil
}

var multiSpace = regexp.MustCompile(`\s{2,}|\t`)

// parseText handles pasted tables and OCR output: the first non-empty line
// is the header, columns split on tabs or runs of spaces, comma as fallback.
func parseText(raw string) []domain.Row {
	lines := []string{}
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return nil
	}

	split := func(line string) []string {
		var parts []string
		if multiSpace.MatchString(line) {
			parts = multiSpace.Split(line, -1)
		} else {
			parts = strings.Split(line, ",")
		}
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			out = append(out, strings.TrimSpace(part))
		}
		return out
	}

	header := split(lines[0])
	rows := make([]domain.Row, 0, len(lines)-1)
	for _, line := range lines[1:] {
		values := split(line)
		row := domain.Row{}
		for i, value := range values {
			if i >= len(header) || header[i] == "" {
				continue
			}
			row[header[i]] = value
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}
