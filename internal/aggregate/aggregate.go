// Package aggregate fuses the envelopes of several requests, typically one
// per provider, into one.
package aggregate

import (
    "fmt"
    "slices"
    "sort"
    "strings"
    "time"

    "dataplatform/internal/result"
    "dataplatform/internal/schema"
)

// ProviderColumn is added to every fused row.
const ProviderColumn = "provider"

// timeColumns are read in order to date a row.
var timeColumns = []string{"timestamp", "date"}

// separators that providers disagree on inside a symbol:
//   BTC-USD, BTC/USD, BTCUSD -> BTCUSD
//   BRK.B, BRK-B             -> BRKB
var separators = strings.NewReplacer("-", "", "/", "", ".", "", " ", "", "_", "")

// NormalizeSymbol is the grouping form of a symbol.
func NormalizeSymbol(s string) string {
    return separators.Replace(strings.ToUpper(strings.TrimSpace(s)))
}

// bucket is the grouping key of a row: the normalized values of the key
// columns joined with a unit separator.
func bucket(r schema.Row, keys []string) string {
    parts := make([]string, len(keys))
    for i, k := range keys {
        v, _ := r.Get(k)
        s := format(v)
        if k == "symbol" { s = NormalizeSymbol(s) }
        parts[i] = s
    }
    return strings.Join(parts, "\x1f")
}

func format(v any) string {
    switch x := v.(type) {
    case nil:
        return ""
    case string:
        return x
    case schema.Date:
        return x.String()
    case time.Time:
        return x.UTC().Format(time.RFC3339Nano)
    }
    return fmt.Sprint(v)
}

// stamp dates a row. Rows without a time column count as now.
func stamp(r schema.Row, now time.Time) time.Time {
    for _, c := range timeColumns {
        if t, ok := r.Time(c); ok && !t.IsZero() { return t }
    }
    return now
}

type entry struct {
    row  schema.Row
    at   time.Time
    key  string
    prov string
}

// Latest collapses rows of envs by the key columns (default "symbol"),
// keeping the newest by timestamp or date. For equal times the later input
// wins. Each kept row is a copy carrying the provider it came from; warnings
// of every input are kept with the provider prefixed. The result is sorted by
// key, then provider.
func Latest(envs []*result.Envelope, keys ...string) *result.Envelope {
    if len(keys) == 0 { keys = []string{"symbol"} }
    now := time.Now().UTC()
    latest := make(map[string]entry)
    out := &result.Envelope{Extra: map[string]any{}}
    var providers []string

    for _, env := range envs {
        if env == nil { continue }
        if env.Provider != "" && !slices.Contains(providers, env.Provider) {
            providers = append(providers, env.Provider)
        }
        for _, w := range env.Warnings {
            msg := w.Message
            if env.Provider != "" { msg = env.Provider + ": " + msg }
            out.Warnings = append(out.Warnings, result.Warning{Category: w.Category, Message: msg})
        }
        for _, r := range env.Results {
            e := entry{row: r, at: stamp(r, now), key: bucket(r, keys), prov: env.Provider}
            if cur, ok := latest[e.key]; ok && e.at.Before(cur.at) { continue }
            latest[e.key] = e
        }
    }

    kept := make([]entry, 0, len(latest))
    for _, e := range latest { kept = append(kept, e) }
    sort.Slice(kept, func(i, j int) bool {
        if kept[i].key != kept[j].key { return kept[i].key < kept[j].key }
        return kept[i].prov < kept[j].prov
    })

    out.Results = make([]schema.Row, 0, len(kept))
    for _, e := range kept {
        r := e.row.Clone()
        r.Set(ProviderColumn, e.prov)
        out.Results = append(out.Results, r)
    }
    sort.Strings(providers)
    out.Provider = strings.Join(providers, ",")
    out.Extra["providers"] = providers
    out.Extra["keys"] = keys
    return out
}
