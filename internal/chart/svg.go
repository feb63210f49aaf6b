package chart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	svgWidth  = 640
	svgHeight = 320
	svgPad    = 32
)

var palette = []string{"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd"}

// Line draws one polyline per symbol of a dated numeric column.
type Line struct {
	// Column is the y series, e.g. "close" or "value".
	Column string
}

func (l Line) Render(ctx context.Context, req Request) (*Figure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type point struct {
		t time.Time
		v float64
	}
	series := map[string][]point{}
	var order []string
	minT, maxT := time.Time{}, time.Time{}
	minV, maxV := math.Inf(1), math.Inf(-1)
	for _, r := range req.Rows {
		t, ok := r.Time("date")
		if !ok {
			continue
		}
		raw, _ := r.Get(l.Column)
		v, ok := raw.(float64)
		if !ok {
			continue
		}
		sym := r.Text("symbol")
		if _, seen := series[sym]; !seen {
			order = append(order, sym)
		}
		series[sym] = append(series[sym], point{t, v})
		if minT.IsZero() || t.Before(minT) {
			minT = t
		}
		if t.After(maxT) {
			maxT = t
		}
		minV, maxV = math.Min(minV, v), math.Max(maxV, v)
	}
	if len(order) == 0 {
		return nil, errors.New("nothing to plot: no dated numeric rows for " + l.Column)
	}
	spanT := maxT.Sub(minT).Seconds()
	if spanT == 0 {
		spanT = 1
	}
	spanV := maxV - minV
	if spanV == 0 {
		spanV = 1
	}
	x := func(t time.Time) float64 {
		return svgPad + (t.Sub(minT).Seconds()/spanT)*(svgWidth-2*svgPad)
	}
	y := func(v float64) float64 {
		return svgHeight - svgPad - ((v-minV)/spanV)*(svgHeight-2*svgPad)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, svgWidth, svgHeight, svgWidth, svgHeight)
	if req.Title != "" {
		fmt.Fprintf(&b, `<title>%s</title>`, escape(req.Title))
	}
	for i, sym := range order {
		var pts []string
		for _, p := range series[sym] {
			pts = append(pts, fmt.Sprintf("%.1f,%.1f", x(p.t), y(p.v)))
		}
		fmt.Fprintf(&b, `<polyline fill="none" stroke="%s" stroke-width="1.5" points="%s"><title>%s</title></polyline>`,
			palette[i%len(palette)], strings.Join(pts, " "), escape(sym))
	}
	b.WriteString(`</svg>`)
	return &Figure{Content: []byte(b.String()), Format: "svg"}, nil
}

func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;").Replace(s)
}

// Defaults registers line charts for the dated price and series endpoints.
func Defaults(endpoints map[string]string) *Registry {
	r := NewRegistry()
	for endpoint, column := range endpoints {
		r.Register(endpoint, Line{Column: column})
	}
	return r
}

var _ Renderer = Line{}
