package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dataplatform/internal/fault"
)

// CoerceParams validates raw caller parameters against m. Multi-value fields
// accept comma-separated strings or lists; defaults fill missing values.
// Dates come back as time.Time at UTC midnight. Keys not in m are ignored.
func CoerceParams(m Model, raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m.Fields))
	for _, f := range m.Fields {
		v, ok := raw[f.Name]
		if !ok || blank(v) {
			if f.Default == nil {
				if !f.Optional {
					return nil, fault.Field(fault.InvalidParams, f.Name, "missing required parameter")
				}
				continue
			}
			v = f.Default
		}
		if f.Multiple {
			items := splitList(v)
			if len(items) == 0 {
				if !f.Optional {
					return nil, fault.Field(fault.InvalidParams, f.Name, "missing required parameter")
				}
				continue
			}
			cv, err := coerceList(f, items)
			if err != nil {
				return nil, err
			}
			out[f.Name] = cv
			continue
		}
		if items, isList := asList(v); isList {
			if len(items) != 1 {
				return nil, fault.Field(fault.InvalidParams, f.Name, "does not accept multiple values")
			}
			v = items[0]
		}
		cv, err := coerceParam(f, v)
		if err != nil {
			return nil, fault.Field(fault.InvalidParams, f.Name, "%v", err)
		}
		out[f.Name] = cv
	}
	return out, nil
}

func coerceList(f Field, items []any) (any, error) {
	switch f.Type {
	case String, Enum:
		out := make([]string, 0, len(items))
		for _, it := range items {
			cv, err := coerceParam(f, it)
			if err != nil {
				return nil, fault.Field(fault.InvalidParams, f.Name, "%v", err)
			}
			out = append(out, cv.(string))
		}
		return out, nil
	}
	out := make([]any, 0, len(items))
	for _, it := range items {
		cv, err := coerceParam(f, it)
		if err != nil {
			return nil, fault.Field(fault.InvalidParams, f.Name, "%v", err)
		}
		out = append(out, cv)
	}
	return out, nil
}

func coerceParam(f Field, v any) (any, error) {
	if f.Type == DateType {
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return coerce(f, v)
}

// CoerceRow builds a row of model m from a decoded upstream record. path
// prefixes the field path reported on mismatch, e.g. "results[3]".
func CoerceRow(m Model, raw map[string]any, path string) (Row, error) {
	var r Row
	for _, f := range m.Fields {
		v, ok := raw[f.Name]
		if !ok || v == nil {
			if !f.Optional {
				return Row{}, fault.Field(fault.Schema, joinPath(path, f.Name), "required field is null")
			}
			continue
		}
		var (
			cv  any
			err error
		)
		if f.Type == DateType {
			var t time.Time
			t, err = toTime(v)
			cv = Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
		} else {
			cv, err = coerce(f, v)
		}
		if err != nil {
			return Row{}, fault.Field(fault.Schema, joinPath(path, f.Name), "%v", err)
		}
		r.Set(f.Name, cv)
	}
	return r, nil
}

// ValidateRow checks that every required field of m is present and non-null.
func ValidateRow(m Model, r Row, path string) error {
	for _, f := range m.Fields {
		if f.Optional {
			continue
		}
		if v, ok := r.Get(f.Name); !ok || v == nil {
			return fault.Field(fault.Schema, joinPath(path, f.Name), "required field is null")
		}
	}
	return nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func coerce(f Field, v any) (any, error) {
	switch f.Type {
	case String:
		return toString(v)
	case Enum:
		s, err := toString(v)
		if err != nil {
			return nil, err
		}
		for _, c := range f.Choices {
			if strings.EqualFold(c, s) {
				return c, nil
			}
		}
		return nil, fmt.Errorf("%q is not one of %s", s, strings.Join(f.Choices, ", "))
	case Int:
		return toInt(v)
	case Float:
		return toFloat(v)
	case Bool:
		return toBool(v)
	case DateTime:
		return toTime(v)
	case DateType:
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return Date{t}, nil
	case Decimal:
		return toDecimal(v)
	case Object:
		return v, nil
	}
	return nil, fmt.Errorf("unsupported type %s", f.Type)
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func asList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func splitList(v any) []any {
	if items, ok := asList(v); ok {
		var out []any
		for _, it := range items {
			out = append(out, splitList(it)...)
		}
		return out
	}
	s, ok := v.(string)
	if !ok {
		if blank(v) {
			return nil
		}
		return []any{v}
	}
	var out []any
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), nil
	case json.Number:
		return x.String(), nil
	case fmt.Stringer:
		return x.String(), nil
	case int, int64, float64, bool:
		return fmt.Sprint(x), nil
	}
	return "", fmt.Errorf("expected a string, got %T", v)
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%v is not an integer", x)
		}
		return int64(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, fmt.Errorf("%v is not an integer", x)
		}
		return int64(f), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", x)
		}
		return i, nil
	}
	return 0, fmt.Errorf("expected an integer, got %T", v)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case decimal.Decimal:
		return x.InexactFloat64(), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "yes", "y":
			return true, nil
		case "0", "false", "no", "n":
			return false, nil
		}
	}
	return false, fmt.Errorf("%v is not a boolean", v)
}

var timeLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case Date:
		return x.Time, nil
	case int64:
		return epochMaybeMillis(x), nil
	case int:
		return epochMaybeMillis(int64(x)), nil
	case float64:
		return epochMaybeMillis(int64(x)), nil
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%v is not a timestamp", x)
		}
		return epochMaybeMillis(i), nil
	case string:
		s := strings.TrimSpace(x)
		for _, l := range timeLayouts {
			if t, err := time.Parse(l, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("%q is not a date", x)
	}
	return time.Time{}, fmt.Errorf("expected a date, got %T", v)
}

func epochMaybeMillis(v int64) time.Time {
	if v > 1_000_000_000_000 {
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case json.Number:
		return decimal.NewFromString(x.String())
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%q is not a decimal", x)
		}
		return d, nil
	}
	return decimal.Zero, fmt.Errorf("expected a decimal, got %T", v)
}
