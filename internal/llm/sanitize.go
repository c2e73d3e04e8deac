package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strings"
)

// NormalizeAndSanitizeJSON
// - Renames known synonyms (invoice_no -> invoice_number, total -> amount, ...)
// - Normalizes the invoice kind onto the two canonical labels
// - Coerces numeric -> string for the amount
// - Drops null/empty values and unknown keys (strict additionalProperties friendliness)
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 8)
	renamed := func(from, to string) {
		if v, ok := m[from]; ok {
			// don't overwrite existing value if already present
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			dropped = append(dropped, from+"->"+to)
		}
	}

	// 1) rename synonyms to our schema
	renamed("invoice_no", "invoice_number")
	renamed("number", "invoice_number")
	renamed("invoice_type", "invoice_kind")
	renamed("total", "amount")
	renamed("total_amount", "amount")
	renamed("date", "invoice_date")
	renamed("currency_code", "currency")

	// 2) coerce amount to a decimal string, drop null / ""
	if v, ok := m["amount"]; ok {
		switch t := v.(type) {
		case float64:
			m["amount"] = fmt.Sprintf("%.2f", t)
		case string:
			s := strings.TrimSpace(strings.TrimLeft(t, "¥￥"))
			if s == "" {
				delete(m, "amount")
				dropped = append(dropped, "amount(empty)")
			} else {
				m["amount"] = s
			}
		case nil:
			delete(m, "amount")
			dropped = append(dropped, "amount(null)")
		default:
			delete(m, "amount")
			dropped = append(dropped, "amount(type)")
		}
	}

	// 3) normalize the invoice kind onto 普票/专票
	if v, ok := m["invoice_kind"].(string); ok {
		switch {
		case strings.Contains(v, "专"):
			m["invoice_kind"] = "专票"
		case strings.Contains(v, "普"):
			m["invoice_kind"] = "普票"
		default:
			delete(m, "invoice_kind")
			dropped = append(dropped, "invoice_kind(unrecognized)")
		}
	}

	// 4) uppercase the currency
	if v, ok := m["currency"].(string); ok {
		s := strings.ToUpper(strings.TrimSpace(v))
		if len(s) == 3 {
			m["currency"] = s
		} else {
			delete(m, "currency")
			dropped = append(dropped, "currency(malformed)")
		}
	}

	// 5) remove unknown keys (everything not in the schema set below)
	allowed := map[string]struct{}{
		"invoice_kind": {}, "invoice_number": {}, "amount": {},
		"invoice_date": {}, "category": {}, "currency": {},
	}
	for k := range maps.Clone(m) {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	// 6) trim remaining strings, drop null/empty leftovers
	for k, v := range maps.Clone(m) {
		switch t := v.(type) {
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				delete(m, k)
				dropped = append(dropped, k+"(empty)")
			} else {
				m[k] = s
			}
		case nil:
			delete(m, k)
			dropped = append(dropped, k+"(null)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "dropped", dropped)
	}
	return out, dropped, nil
}
