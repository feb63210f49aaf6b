package provider

import (
	"fmt"

	"dataplatform/internal/fault"
	"dataplatform/internal/schema"
)

// Rows coerces decoded upstream records into rows of data. Wire names are
// mapped back through aliases first. A record that does not fit data fails
// the whole payload with a Schema fault naming the record.
func Rows(data schema.Model, aliases schema.Aliases, records []map[string]any, path string) ([]schema.Row, error) {
	out := make([]schema.Row, 0, len(records))
	for i, rec := range records {
		r, err := schema.CoerceRow(data, aliases.Inbound(rec), fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// EmptyIfNone returns a fault.Empty error when rows is empty.
func EmptyIfNone(provider string, rows []schema.Row, format string, args ...any) error {
	if len(rows) > 0 {
		return nil
	}
	return fault.New(fault.Empty, format, args...).WithProvider(provider)
}
