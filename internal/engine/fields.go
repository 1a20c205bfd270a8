package engine

import (
	"encoding/json"
	"time"

	"github.com/heraerp/hera-engine/internal/models"
	"github.com/heraerp/hera-engine/internal/smartcode"
	"github.com/shopspring/decimal"
)

// FieldSpec describes one dynamic attribute write. Value is the raw
// JSON-shaped value supplied by the caller; its shape must match Type.
type FieldSpec struct {
	Type      string `json:"type"`
	Value     any    `json:"value"`
	SmartCode string `json:"smart_code"`
}

// dateFormats accepted for date-typed values, tried in order.
var dateFormats = []string{time.RFC3339, "2006-01-02"}

// buildDynamicField validates a field spec and converts it into a typed
// row. Returns a TYPE_MISMATCH error when the value's shape does not
// match the declared type, before anything is written.
func buildDynamicField(name string, spec FieldSpec) (*models.DynamicField, error) {
	if _, err := smartcode.Validate(spec.SmartCode); err != nil {
		return nil, WrapError(CodeInvalidSmartCode, err, "field %q", name)
	}

	field := &models.DynamicField{
		FieldName: name,
		FieldType: spec.Type,
		SmartCode: spec.SmartCode,
	}

	switch spec.Type {
	case models.FieldTypeText:
		text, ok := spec.Value.(string)
		if !ok {
			return nil, typeMismatch(name, spec.Type, spec.Value)
		}
		field.ValueText = &text

	case models.FieldTypeNumber:
		number, err := coerceNumber(spec.Value)
		if err != nil {
			return nil, typeMismatch(name, spec.Type, spec.Value)
		}
		field.ValueNumber = &number

	case models.FieldTypeBoolean:
		boolean, ok := spec.Value.(bool)
		if !ok {
			return nil, typeMismatch(name, spec.Type, spec.Value)
		}
		field.ValueBoolean = &boolean

	case models.FieldTypeDate:
		date, err := coerceDate(spec.Value)
		if err != nil {
			return nil, typeMismatch(name, spec.Type, spec.Value)
		}
		field.ValueDate = &date

	case models.FieldTypeJSON:
		raw, err := coerceJSON(spec.Value)
		if err != nil {
			return nil, typeMismatch(name, spec.Type, spec.Value)
		}
		field.ValueJSON = raw

	default:
		return nil, NewError(CodeTypeMismatch, "field %q: unknown field type %q", name, spec.Type)
	}

	return field, nil
}

func typeMismatch(name, fieldType string, value any) *Error {
	return NewError(CodeTypeMismatch, "field %q: value %v does not match type %q", name, value, fieldType)
}

func coerceNumber(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		return decimal.NewFromString(v)
	default:
		return decimal.Zero, typeMismatch("", models.FieldTypeNumber, value)
	}
}

func coerceDate(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		var lastErr error
		for _, format := range dateFormats {
			parsed, err := time.Parse(format, v)
			if err == nil {
				return parsed, nil
			}
			lastErr = err
		}
		return time.Time{}, lastErr
	default:
		return time.Time{}, typeMismatch("", models.FieldTypeDate, value)
	}
}

func coerceJSON(value any) (json.RawMessage, error) {
	switch v := value.(type) {
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, typeMismatch("", models.FieldTypeJSON, value)
		}
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return nil, typeMismatch("", models.FieldTypeJSON, value)
		}
		return json.RawMessage(v), nil
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return raw, nil
	}
}
