package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-reconciler/internal/domain"
)

// DecodeCandidates converts model JSON into candidate events. The output
// may be a bare array or an object wrapping it under "candidates" or
// "transactions". Every field is checked; errors name the candidate index
// and the field.
func DecodeCandidates(raw []byte) ([]domain.CandidateEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var parsed interface{}
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("DecodeCandidates: %w", domain.Invalid("output", "not valid JSON: %v", err))
	}

	items, err := candidateList(parsed)
	if err != nil {
		return nil, fmt.Errorf("DecodeCandidates: %w", err)
	}

	result := make([]domain.CandidateEvent, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("candidate %d: %w", i, domain.Invalid("candidate", "is %T, want object", item))
		}
		c, err := decodeCandidate(obj)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		if err := domain.ValidateCandidate(c); err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		result = append(result, c)
	}
	return result, nil
}

func candidateList(parsed interface{}) ([]interface{}, error) {
	switch v := parsed.(type) {
	case []interface{}:
		return v, nil
	case map[string]interface{}:
		for _, key := range []string{"candidates", "transactions"} {
			if inner, ok := v[key]; ok {
				list, ok := inner.([]interface{})
				if !ok {
					return nil, domain.Invalid(key, "is %T, want array", inner)
				}
				return list, nil
			}
		}
		return nil, domain.Invalid("output", "missing 'candidates' key in model output")
	default:
		return nil, domain.Invalid("output", "is %T, want array or object", parsed)
	}
}

func decodeCandidate(obj map[string]interface{}) (domain.CandidateEvent, error) {
	var c domain.CandidateEvent
	var err error

	if c.Amount, err = getDecimalField(obj, "amount"); err != nil {
		return c, err
	}
	if c.Merchant, err = getStringField(obj, "merchant", true); err != nil {
		return c, err
	}
	dateStr, err := getStringField(obj, "date", true)
	if err != nil {
		return c, err
	}
	if c.Date, err = civil.ParseDate(strings.TrimSpace(dateStr)); err != nil {
		return c, domain.Invalid("date", "%q is not YYYY-MM-DD", dateStr)
	}
	kindStr, err := getStringField(obj, "kind", true)
	if err != nil {
		return c, err
	}
	kind, ok := domain.ParseKind(strings.ToUpper(strings.TrimSpace(kindStr)))
	if !ok {
		return c, domain.Invalid("kind", "%q is not one of EXPENSE, INCOME, OBLIGATION", kindStr)
	}
	c.Kind = kind

	if c.Currency, err = getStringField(obj, "currency", false); err != nil {
		return c, err
	}
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))

	var optional = []struct {
		key string
		dst *string
	}{
		{"time", &c.Time},
		{"category", &c.Category},
		{"account_id", &c.AccountID},
		{"original_currency", &c.OriginalCurrency},
		{"cheque_number", &c.ChequeNumber},
		{"group_id", &c.GroupID},
		{"notes", &c.Notes},
	}
	for _, f := range optional {
		v, err := getOptionalStringField(obj, f.key)
		if err != nil {
			return c, err
		}
		if v != nil {
			*f.dst = *v
		}
	}
	c.OriginalCurrency = strings.ToUpper(c.OriginalCurrency)

	if c.OriginalAmount, err = getOptionalDecimalField(obj, "original_amount"); err != nil {
		return c, err
	}
	if c.ExchangeRate, err = getOptionalDecimalField(obj, "exchange_rate"); err != nil {
		return c, err
	}
	if c.IsTransfer, err = getBoolField(obj, "is_transfer"); err != nil {
		return c, err
	}
	if c.IsCheque, err = getBoolField(obj, "is_cheque"); err != nil {
		return c, err
	}

	if raw, ok := obj["snapshot_meta"]; ok && raw != nil {
		meta, ok := raw.(map[string]interface{})
		if !ok {
			return c, domain.Invalid("snapshot_meta", "is %T, want object or null", raw)
		}
		var s domain.SnapshotMeta
		if s.AvailableBalance, err = getOptionalDecimalField(meta, "available_balance"); err != nil {
			return c, prefixField("snapshot_meta.", err)
		}
		if s.AvailableCredit, err = getOptionalDecimalField(meta, "available_credit"); err != nil {
			return c, prefixField("snapshot_meta.", err)
		}
		if s.HasSnapshot() {
			c.Snapshot = &s
		}
	}
	return c, nil
}

func prefixField(prefix string, err error) error {
	if fe, ok := err.(*domain.FieldError); ok {
		return &domain.FieldError{Field: prefix + fe.Field, Reason: fe.Reason}
	}
	return err
}

func getStringField(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return "", domain.Invalid(key, "missing required field")
		}
		return "", nil
	}
	switch val := v.(type) {
	case string:
		if required && strings.TrimSpace(val) == "" {
			return "", domain.Invalid(key, "required field is empty")
		}
		return strings.TrimSpace(val), nil
	default:
		return "", domain.Invalid(key, "has type %T, want string", v)
	}
}

func getOptionalStringField(m map[string]interface{}, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		return &s, nil
	case json.Number:
		// Cheque numbers sometimes come back unquoted.
		s := val.String()
		return &s, nil
	default:
		return nil, domain.Invalid(key, "has type %T, want string or null", v)
	}
}

func getDecimalField(m map[string]interface{}, key string) (decimal.Decimal, error) {
	d, err := getOptionalDecimalField(m, key)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.Valid {
		return decimal.Zero, domain.Invalid(key, "missing required field")
	}
	return d.Decimal, nil
}

func getOptionalDecimalField(m map[string]interface{}, key string) (decimal.NullDecimal, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return decimal.NullDecimal{}, nil
	}
	var s string
	switch val := v.(type) {
	case json.Number:
		s = val.String()
	case string:
		s = strings.ReplaceAll(strings.TrimSpace(val), ",", "")
		if s == "" {
			return decimal.NullDecimal{}, nil
		}
	default:
		return decimal.NullDecimal{}, domain.Invalid(key, "has type %T, want number or null", v)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, domain.Invalid(key, "%q is not a number", s)
	}
	return decimal.NewNullDecimal(d), nil
}

func getBoolField(m map[string]interface{}, key string) (bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, domain.Invalid(key, "has type %T, want boolean", v)
	}
	return b, nil
}

var chequeNumberPattern = regexp.MustCompile(`\d{3,}`)

// markCheque flags candidates whose merchant or notes mention one of the
// cheque keywords, and lifts the cheque number from the text when the
// model did not return one.
func markCheque(c *domain.CandidateEvent, keywords []string) {
	if c.ChequeNumber != "" {
		c.IsCheque = true
	}
	text := strings.ToUpper(c.Merchant + " " + c.Notes)
	for _, kw := range keywords {
		kw = strings.ToUpper(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		idx := strings.Index(text, kw)
		if idx < 0 || !wordBoundary(text, idx, len(kw)) {
			continue
		}
		c.IsCheque = true
		if c.ChequeNumber == "" {
			c.ChequeNumber = chequeNumberPattern.FindString(text[idx+len(kw):])
		}
		return
	}
}

func wordBoundary(s string, start, n int) bool {
	isWord := func(b byte) bool {
		return b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
	}
	if start > 0 && isWord(s[start-1]) {
		return false
	}
	if end := start + n; end < len(s) && isWord(s[end]) {
		return false
	}
	return true
}
