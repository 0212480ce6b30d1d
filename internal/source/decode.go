package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dvloznov/subzap/internal/domain"
	"github.com/shopspring/decimal"
)

// Format is the encoding of a candidate batch.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

// ErrUnknownFormat is returned for files whose extension is not recognised.
var ErrUnknownFormat = errors.New("unknown candidate format")

// FormatFromName picks a Format from a file name or object path.
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// Decode parses a candidate batch. Candidates without their own source id
// get sourceID.
func Decode(format Format, data []byte, sourceID string) ([]domain.RawCandidate, error) {
	var (
		out []domain.RawCandidate
		err error
	)
	switch format {
	case FormatJSON:
		out, err = decodeJSON(data)
	case FormatJSONL:
		out, err = decodeJSONL(data)
	case FormatCSV:
		out, err = decodeCSV(data)
	default:
		return nil, fmt.Errorf("Decode: %w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("Decode: %w", err)
	}

	for i := range out {
		if out[i].SourceID == "" {
			out[i].SourceID = sourceID
		}
	}
	return out, nil
}

// decodeJSON accepts either a bare array of candidates or the extractor's
// {"transactions": [...]} envelope.
func decodeJSON(data []byte) ([]domain.RawCandidate, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var root interface{}
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	var items []interface{}
	switch v := root.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		txAny, ok := v["transactions"]
		if !ok {
			return nil, fmt.Errorf("missing 'transactions' key")
		}
		if items, ok = txAny.([]interface{}); !ok {
			return nil, fmt.Errorf("'transactions' is %T, want array", txAny)
		}
	default:
		return nil, fmt.Errorf("top level is %T, want array or object", root)
	}

	out := make([]domain.RawCandidate, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("element %d is %T, want object", i, item)
		}
		c, err := candidateFromMap(obj)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeJSONL(data []byte) ([]domain.RawCandidate, error) {
	var out []domain.RawCandidate
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(text))
		dec.UseNumber()
		var obj map[string]interface{}
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		c, err := candidateFromMap(obj)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return out, nil
}

// candidateFromMap copies fields without validating them; the normalizer
// decides what is usable.
func candidateFromMap(m map[string]interface{}) (domain.RawCandidate, error) {
	var c domain.RawCandidate
	var err error

	if c.Description, err = getStringField(m, "raw_description", "description"); err != nil {
		return c, err
	}
	if c.Amount, err = getAmountField(m, "amount"); err != nil {
		return c, err
	}
	if c.Date, err = getStringField(m, "date"); err != nil {
		return c, err
	}
	if c.SourceID, err = getStringField(m, "source_id"); err != nil {
		return c, err
	}
	if c.Category, err = getStringField(m, "category"); err != nil {
		return c, err
	}
	if c.MerchantHint, err = getStringField(m, "merchant_name", "merchant"); err != nil {
		return c, err
	}
	return c, nil
}

// getStringField returns the first present key. Null counts as absent.
func getStringField(m map[string]interface{}, keys ...string) (string, error) {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("field %q has type %T, want string", key, v)
		}
		return s, nil
	}
	return "", nil
}

// getAmountField accepts numbers as well as strings; the number keeps its
// literal text so 649.00 is not rewritten as 649.
func getAmountField(m map[string]interface{}, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	switch val := v.(type) {
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	default:
		return "", fmt.Errorf("field %q has type %T, want number or string", key, v)
	}
}

// Header aliases for statement exports.
var csvColumns = map[string][]string{
	"date":        {"date", "txn date", "transaction date", "value date"},
	"description": {"raw_description", "description", "narration", "particulars", "details"},
	"amount":      {"amount"},
	"debit":       {"debit", "withdrawal", "withdrawal amt.", "withdrawal amount"},
	"credit":      {"credit", "deposit", "deposit amt.", "deposit amount"},
	"category":    {"category"},
	"merchant":    {"merchant_name", "merchant"},
	"source_id":   {"source_id"},
}

// decodeCSV reads a headed CSV. Either an amount column or a debit/credit
// pair is required; credits become "<value> Cr".
func decodeCSV(data []byte) ([]domain.RawCandidate, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	idx := make(map[string]int)
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		for field, aliases := range csvColumns {
			if _, seen := idx[field]; seen {
				continue
			}
			for _, a := range aliases {
				if name == a {
					idx[field] = i
				}
			}
		}
	}
	if _, ok := idx["description"]; !ok {
		return nil, fmt.Errorf("csv header has no description column")
	}
	_, hasAmount := idx["amount"]
	_, hasDebit := idx["debit"]
	_, hasCredit := idx["credit"]
	if !hasAmount && !hasDebit && !hasCredit {
		return nil, fmt.Errorf("csv header has no amount column")
	}

	var out []domain.RawCandidate
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		col := func(field string) string {
			i, ok := idx[field]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		if isBlankRecord(record) {
			continue
		}

		c := domain.RawCandidate{
			Date:         col("date"),
			Category:     col("category"),
			MerchantHint: col("merchant"),
			SourceID:     col("source_id"),
		}
		if hasAmount {
			c.Amount = col("amount")
		}
		if c.Amount == "" {
			debit, credit := col("debit"), col("credit")
			switch {
			case !isZeroCell(debit):
				c.Amount = debit
			case !isZeroCell(credit):
				c.Amount = credit + " Cr"
			default:
				c.Amount = debit
			}
		}
		// The description cell is kept verbatim.
		if i := idx["description"]; i < len(record) {
			c.Description = record[i]
		}
		out = append(out, c)
	}
	return out, nil
}

// isZeroCell reports whether a debit or credit cell is unused: empty, a
// dash, or a value equal to zero such as "0.00".
func isZeroCell(cell string) bool {
	if cell == "" || cell == "-" {
		return true
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(cell, ",", ""))
	return err == nil && d.IsZero()
}

func isBlankRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
