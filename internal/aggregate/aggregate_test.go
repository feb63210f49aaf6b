package aggregate

import (
    "testing"
    "time"

    "dataplatform/internal/result"
    "dataplatform/internal/schema"
)

func quote(sym string, price float64, at time.Time) schema.Row {
    return schema.NewRow("symbol", sym, "last_price", price, "timestamp", at)
}

func TestLatest_NewestWinsAcrossProviders(t *testing.T) {
    t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
    t2 := t1.Add(1 * time.Hour)

    in := []*result.Envelope{
        {Provider: "fmp", Results: []schema.Row{quote("AAPL", 10, t1)}},
        {Provider: "yfinance", Results: []schema.Row{quote("AAPL", 11, t2)}},
    }

    out := Latest(in)
    if len(out.Results) != 1 {
        t.Fatalf("want 1, got %d: %+v", len(out.Results), out.Results)
    }
    got := out.Results[0]
    if p, _ := got.Get("last_price"); p != 11.0 {
        t.Fatalf("unexpected price: %v", p)
    }
    if got.Text(ProviderColumn) != "yfinance" {
        t.Fatalf("unexpected provider: %q", got.Text(ProviderColumn))
    }
    if out.Provider != "fmp,yfinance" {
        t.Fatalf("unexpected envelope provider: %q", out.Provider)
    }
}

func TestLatest_EqualTimesLaterInputWins(t *testing.T) {
    t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
    in := []*result.Envelope{
        {Provider: "fmp", Results: []schema.Row{quote("AAPL", 10, t1)}},
        {Provider: "yfinance", Results: []schema.Row{quote("AAPL", 12, t1)}},
    }
    out := Latest(in)
    if len(out.Results) != 1 || out.Results[0].Text(ProviderColumn) != "yfinance" {
        t.Fatalf("unexpected: %+v", out.Results)
    }
}

func TestLatest_SymbolSpellingsCollapse(t *testing.T) {
    d1 := schema.NewDate(2024, 1, 2)
    d2 := schema.NewDate(2024, 1, 3)
    in := []*result.Envelope{
        {Provider: "fmp", Results: []schema.Row{schema.NewRow("date", d2, "symbol", "BTCUSD", "close", 45000.0)}},
        {Provider: "yfinance", Results: []schema.Row{
            schema.NewRow("date", d1, "symbol", "BTC-USD", "close", 44000.0),
            schema.NewRow("date", d1, "symbol", "ETH-USD", "close", 2300.0),
        }},
    }
    out := Latest(in)
    if len(out.Results) != 2 {
        t.Fatalf("want 2 rows, got %d: %+v", len(out.Results), out.Results)
    }
    if out.Results[0].Text("symbol") != "BTCUSD" || out.Results[0].Text(ProviderColumn) != "fmp" {
        t.Fatalf("unexpected BTC row: %+v", out.Results[0].Map())
    }
    if out.Results[1].Text("symbol") != "ETH-USD" {
        t.Fatalf("unexpected order: %+v", out.Results)
    }
}

func TestLatest_KeysIncludeDate_KeepsOneRowPerDay(t *testing.T) {
    d1 := schema.NewDate(2024, 1, 2)
    d2 := schema.NewDate(2024, 1, 3)
    in := []*result.Envelope{
        {Provider: "fmp", Results: []schema.Row{
            schema.NewRow("date", d1, "symbol", "AAPL", "close", 185.64),
            schema.NewRow("date", d2, "symbol", "AAPL", "close", 184.25),
        }},
        {Provider: "yfinance", Results: []schema.Row{
            schema.NewRow("date", d2, "symbol", "AAPL", "close", 184.26),
        }},
    }
    out := Latest(in, "symbol", "date")
    if len(out.Results) != 2 {
        t.Fatalf("want 2 rows, got %d", len(out.Results))
    }
    if out.Results[0].Text(ProviderColumn) != "fmp" || out.Results[1].Text(ProviderColumn) != "yfinance" {
        t.Fatalf("unexpected providers: %v / %v", out.Results[0].Map(), out.Results[1].Map())
    }
}

func TestLatest_KeepsWarningsAndDoesNotMutateInputs(t *testing.T) {
    t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
    src := quote("MSFT", 400, t1)
    in := []*result.Envelope{
        {Provider: "fmp", Results: []schema.Row{src}, Warnings: []result.Warning{{Category: result.Partial, Message: "no quote found for symbol NOPE"}}},
        nil,
    }
    out := Latest(in)
    if len(out.Warnings) != 1 || out.Warnings[0].Message != "fmp: no quote found for symbol NOPE" {
        t.Fatalf("unexpected warnings: %+v", out.Warnings)
    }
    if src.Text(ProviderColumn) != "" {
        t.Fatalf("input row was mutated: %+v", src.Map())
    }
}

func TestNormalizeSymbol(t *testing.T) {
    cases := map[string]string{
        "btc-usd": "BTCUSD",
        "BTC/USD": "BTCUSD",
        " brk.b ": "BRKB",
        "AAPL":    "AAPL",
    }
    for in, want := range cases {
        if got := NormalizeSymbol(in); got != want {
            t.Fatalf("NormalizeSymbol(%q) = %q, want %q", in, got, want)
        }
    }
}
