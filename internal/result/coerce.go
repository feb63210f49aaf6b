package result

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dataplatform/internal/schema"
)

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// ToRecords returns one map per row.
func (e *Envelope) ToRecords() []map[string]any {
	out := make([]map[string]any, len(e.Results))
	for i, r := range e.Results {
		out[i] = r.Map()
	}
	return out
}

// Columns returns the union of row keys in first-seen order.
func (e *Envelope) Columns() []string {
	var cols []string
	seen := map[string]bool{}
	for _, r := range e.Results {
		for _, k := range r.Keys() {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

// ToDict renders results in one of the orients "records", "list" (column to
// values) or "columns" (column to row position to value).
func (e *Envelope) ToDict(orient string) (any, error) {
	switch orient {
	case "", "list":
		out := map[string][]any{}
		for _, c := range e.Columns() {
			vals := make([]any, len(e.Results))
			for i, r := range e.Results {
				vals[i], _ = r.Get(c)
			}
			out[c] = vals
		}
		return out, nil
	case "records":
		return e.ToRecords(), nil
	case "columns":
		out := map[string]map[int]any{}
		for _, c := range e.Columns() {
			m := map[int]any{}
			for i, r := range e.Results {
				m[i], _ = r.Get(c)
			}
			out[c] = m
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported orient %q", orient)
}

// Frame is a flat table.
type Frame struct {
	Columns []string `json:"columns"`
	// Index names the leading columns that form the (multi-)index.
	Index []string `json:"index,omitempty"`
	Rows  [][]any  `json:"data"`
}

// ToDataFrame flattens results into a table. Nested objects become
// "parent.child" columns; a list of objects expands into one row per element.
// Only one level is flattened. Index hints carried by rows move their
// columns to the front.
func (e *Envelope) ToDataFrame() Frame {
	var (
		flat  []map[string]any
		cols  []string
		seen  = map[string]bool{}
		index []string
	)
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			cols = append(cols, k)
		}
	}
	for _, r := range e.Results {
		for _, k := range r.Index {
			if !slices.Contains(index, k) {
				index = append(index, k)
			}
		}
		flat = append(flat, flattenRow(r, add)...)
	}
	if len(index) > 0 {
		rest := slices.DeleteFunc(slices.Clone(cols), func(c string) bool { return slices.Contains(index, c) })
		cols = append(slices.Clone(index), rest...)
	}
	f := Frame{Columns: cols, Index: index, Rows: make([][]any, len(flat))}
	for i, m := range flat {
		row := make([]any, len(cols))
		for j, c := range cols {
			row[j] = m[c]
		}
		f.Rows[i] = row
	}
	return f
}

func flattenRow(r schema.Row, add func(string)) []map[string]any {
	base := map[string]any{}
	var (
		explodeKey string
		explode    []map[string]any
	)
	for _, k := range r.Keys() {
		v, _ := r.Get(k)
		switch x := v.(type) {
		case map[string]any:
			for _, sk := range sortedKeys(x) {
				add(k + "." + sk)
				base[k+"."+sk] = x[sk]
			}
			continue
		case []any, []map[string]any:
			if items, ok := objects(x); ok && explode == nil {
				explodeKey, explode = k, items
				for _, it := range items {
					for _, sk := range sortedKeys(it) {
						add(k + "." + sk)
					}
				}
				continue
			}
		}
		add(k)
		base[k] = v
	}
	if explode == nil {
		return []map[string]any{base}
	}
	out := make([]map[string]any, 0, len(explode))
	for _, it := range explode {
		m := make(map[string]any, len(base)+len(it))
		for k, v := range base {
			m[k] = v
		}
		for sk, v := range it {
			m[explodeKey+"."+sk] = v
		}
		out = append(out, m)
	}
	return out
}

func objects(v any) ([]map[string]any, bool) {
	switch x := v.(type) {
	case []map[string]any:
		return x, len(x) > 0
	case []any:
		if len(x) == 0 {
			return nil, false
		}
		out := make([]map[string]any, 0, len(x))
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	}
	return nil, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Series is one named column.
type Series struct {
	Name   string `json:"name"`
	Values []any  `json:"values"`
}

// ToColumns returns the flattened table column by column.
func (e *Envelope) ToColumns() []Series {
	f := e.ToDataFrame()
	out := make([]Series, len(f.Columns))
	for j, c := range f.Columns {
		vals := make([]any, len(f.Rows))
		for i, row := range f.Rows {
			vals[i] = row[j]
		}
		out[j] = Series{Name: c, Values: vals}
	}
	return out
}

// ToMatrix returns the numeric columns as a row-major matrix. Missing values
// are NaN.
func (e *Envelope) ToMatrix() ([][]float64, []string) {
	f := e.ToDataFrame()
	var idx []int
	var names []string
	for j, c := range f.Columns {
		numeric, present := true, false
		for _, row := range f.Rows {
			if row[j] == nil {
				continue
			}
			if _, ok := number(row[j]); !ok {
				numeric = false
				break
			}
			present = true
		}
		if numeric && present {
			idx = append(idx, j)
			names = append(names, c)
		}
	}
	m := make([][]float64, len(f.Rows))
	for i, row := range f.Rows {
		m[i] = make([]float64, len(idx))
		for k, j := range idx {
			v, ok := number(row[j])
			if !ok {
				v = math.NaN()
			}
			m[i][k] = v
		}
	}
	return m, names
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case decimal.Decimal:
		return x.InexactFloat64(), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

// WriteCSV writes the flattened table with a header line.
func (e *Envelope) WriteCSV(w io.Writer) error {
	f := e.ToDataFrame()
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Columns); err != nil {
		return err
	}
	rec := make([]string, len(f.Columns))
	for _, row := range f.Rows {
		for j, v := range row {
			rec[j] = Format(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Format renders a cell value as text.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case schema.Date:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339)
	case []string:
		return strings.Join(x, ",")
	case fmt.Stringer:
		return x.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
