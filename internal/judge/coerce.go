package judge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tracewatch/tracewatch/internal/models"
)

// Coerce re-validates a raw capability response against the scorer's
// declared value type. Judgment models answer in text, so lenient string
// forms are accepted ("true", "0.85", a bare label), but anything that
// does not fit the declared type is an error; the caller records it as
// a failed verdict rather than trusting an untyped answer.
func Coerce(raw any, valueType models.ValueType, labels []string) (models.VerdictValue, error) {
	switch valueType {
	case models.ValueTypeBoolean:
		return coerceBool(raw)
	case models.ValueTypeNumeric:
		return coerceNumber(raw)
	case models.ValueTypeCategorical:
		return coerceLabel(raw, labels)
	default:
		return models.VerdictValue{}, fmt.Errorf("unknown value type %q", valueType)
	}
}

func coerceBool(raw any) (models.VerdictValue, error) {
	switch v := raw.(type) {
	case bool:
		return models.BoolValue(v), nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "pass":
			return models.BoolValue(true), nil
		case "false", "no", "fail":
			return models.BoolValue(false), nil
		}
		return models.VerdictValue{}, fmt.Errorf("cannot coerce %q to boolean", v)
	default:
		return models.VerdictValue{}, fmt.Errorf("cannot coerce %T to boolean", raw)
	}
}

func coerceNumber(raw any) (models.VerdictValue, error) {
	switch v := raw.(type) {
	case float64:
		return models.NumberValue(v), nil
	case int:
		return models.NumberValue(float64(v)), nil
	case int64:
		return models.NumberValue(float64(v)), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return models.VerdictValue{}, fmt.Errorf("cannot coerce %q to numeric", v)
		}
		return models.NumberValue(f), nil
	default:
		return models.VerdictValue{}, fmt.Errorf("cannot coerce %T to numeric", raw)
	}
}

func coerceLabel(raw any, labels []string) (models.VerdictValue, error) {
	s, ok := raw.(string)
	if !ok {
		return models.VerdictValue{}, fmt.Errorf("cannot coerce %T to categorical label", raw)
	}

	trimmed := strings.TrimSpace(s)
	for _, label := range labels {
		if strings.EqualFold(trimmed, label) {
			return models.LabelValue(label), nil
		}
	}
	return models.VerdictValue{}, fmt.Errorf("label %q is not in the declared set %v", trimmed, labels)
}
