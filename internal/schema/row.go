package schema

import (
	"bytes"
	"encoding/json"
	"slices"
	"time"
)

// Capability flags what a row can be used for without probing its keys.
type Capability uint8

const (
	HasSymbol Capability = 1 << iota
	HasDate
	HasIndex
)

// Date is a calendar day. It marshals as YYYY-MM-DD.
type Date struct{ time.Time }

const DateLayout = "2006-01-02"

func NewDate(y int, m time.Month, d int) Date {
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string { return d.Format(DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// Row is one result record. Keys keep the order the fetcher produced them in.
// Rows are treated as immutable once handed to the runner.
type Row struct {
	keys []string
	vals map[string]any
	// Index is the multi-index hint consumed by tabular coercions.
	Index []string
}

// NewRow builds a row from alternating key/value pairs.
func NewRow(kv ...any) Row {
	var r Row
	for i := 0; i+1 < len(kv); i += 2 {
		k, _ := kv[i].(string)
		r.Set(k, kv[i+1])
	}
	return r
}

// Set assigns a value, appending the key when it is new.
func (r *Row) Set(key string, v any) {
	if r.vals == nil {
		r.vals = map[string]any{}
	}
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = v
}

// Delete removes a key.
func (r *Row) Delete(key string) {
	if _, ok := r.vals[key]; !ok {
		return
	}
	delete(r.vals, key)
	r.keys = slices.DeleteFunc(r.keys, func(k string) bool { return k == key })
}

func (r Row) Get(key string) (any, bool) {
	v, ok := r.vals[key]
	return v, ok
}

// Text returns a string value or "".
func (r Row) Text(key string) string {
	s, _ := r.vals[key].(string)
	return s
}

// Time returns the value of a date or datetime column.
func (r Row) Time(key string) (time.Time, bool) {
	switch v := r.vals[key].(type) {
	case Date:
		return v.Time, true
	case time.Time:
		return v, true
	}
	return time.Time{}, false
}

func (r Row) Keys() []string { return slices.Clone(r.keys) }

func (r Row) Len() int { return len(r.keys) }

// Caps derives the capability set of the row.
func (r Row) Caps() Capability {
	var c Capability
	if v, ok := r.vals["symbol"]; ok && v != nil && v != "" {
		c |= HasSymbol
	}
	if _, ok := r.Time("date"); ok {
		c |= HasDate
	}
	if len(r.Index) > 0 {
		c |= HasIndex
	}
	return c
}

// Has reports whether r carries every capability in c.
func (r Row) Has(c Capability) bool { return r.Caps()&c == c }

// Map returns a shallow copy of the values.
func (r Row) Map() map[string]any {
	out := make(map[string]any, len(r.vals))
	for k, v := range r.vals {
		out[k] = v
	}
	return out
}

// Clone returns a row that can be mutated independently.
func (r Row) Clone() Row {
	c := Row{keys: slices.Clone(r.keys), vals: r.Map(), Index: slices.Clone(r.Index)}
	return c
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON keeps key order as it appears in the document.
func (r *Row) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = Row{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		r.Set(key, v)
	}
	_, err := dec.Token()
	return err
}
