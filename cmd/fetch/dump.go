package main

import (
    "bufio"
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "os"
    "sort"
    "strings"
    "sync"

    "github.com/rs/zerolog"
    "github.com/spf13/cobra"

    "dataplatform/internal/fault"
    "dataplatform/internal/result"
    "dataplatform/internal/runner"
    "dataplatform/internal/schema"
)

// runFunc is the slice of the runner the dumper needs.
type runFunc func(ctx context.Context, path string, params map[string]any, opts ...runner.CallOption) (*result.Envelope, error)

type dumper struct {
    run         runFunc
    path        string
    params      map[string]any
    opts        []runner.CallOption
    batch       int
    concurrency int
    log         zerolog.Logger
}

type dumpSummary struct {
    Batches int
    Rows    int
    Skipped []string
}

// dump runs path for every batch of symbols and streams all rows into one
// JSON document on w.
func (d *dumper) dump(ctx context.Context, symbols []string, w io.Writer) (dumpSummary, error) {
    bw := bufio.NewWriterSize(w, 1<<20)
    head, _ := json.Marshal(d.path)
    _, _ = fmt.Fprintf(bw, `{"path":%s,"results":[`, head)

    var (
        mu       sync.Mutex
        first    = true
        sum      dumpSummary
        warnings []result.Warning
        firstErr error
    )
    type job struct {
        idx   int
        batch []string
    }
    jobs := make(chan job, max(d.concurrency, 1)*2)
    var wg sync.WaitGroup

    worker := func() {
        defer wg.Done()
        for j := range jobs {
            rows, warns, skipped, err := d.fetchSplit(ctx, j.batch)
            mu.Lock()
            sum.Batches++
            sum.Skipped = append(sum.Skipped, skipped...)
            warnings = append(warnings, warns...)
            if err != nil {
                d.log.Warn().Int("batch", j.idx).Err(err).Msg("batch failed")
                if firstErr == nil { firstErr = err }
            }
            for _, r := range rows {
                b, err := json.Marshal(r)
                if err != nil { continue }
                if !first { _ = bw.WriteByte(',') } else { first = false }
                _, _ = bw.Write(b)
                sum.Rows++
            }
            mu.Unlock()
        }
    }
    for range max(d.concurrency, 1) {
        wg.Add(1)
        go worker()
    }
    size := max(d.batch, 1)
    for i, n := 0, 0; i < len(symbols); i, n = i+size, n+1 {
        end := min(i+size, len(symbols))
        jobs <- job{idx: n, batch: symbols[i:end]}
    }
    close(jobs)
    wg.Wait()

    if warnings == nil { warnings = []result.Warning{} }
    tail, _ := json.Marshal(warnings)
    sort.Strings(sum.Skipped)
    skipped, _ := json.Marshal(append([]string{}, sum.Skipped...))
    _, _ = fmt.Fprintf(bw, `],"warnings":%s,"skipped":%s}`, tail, skipped)
    if err := bw.Flush(); err != nil { return sum, err }
    if ctx.Err() != nil { return sum, ctx.Err() }
    if sum.Rows == 0 && firstErr != nil { return sum, firstErr }
    return sum, nil
}

// fetchSplit runs one batch. A batch rejected as invalid is halved until the
// offending symbol is isolated and skipped; other failures end the batch.
func (d *dumper) fetchSplit(ctx context.Context, batch []string) ([]schema.Row, []result.Warning, []string, error) {
    params := make(map[string]any, len(d.params)+1)
    for k, v := range d.params { params[k] = v }
    params["symbol"] = strings.Join(batch, ",")

    env, err := d.run(ctx, d.path, params, d.opts...)
    switch {
    case err == nil:
        return env.Results, env.Warnings, nil, nil
    case fault.Is(err, fault.Empty):
        return nil, nil, nil, nil
    case fault.Is(err, fault.InvalidParams) && len(batch) > 1:
        mid := len(batch) / 2
        lRows, lWarn, lSkip, lErr := d.fetchSplit(ctx, batch[:mid])
        rRows, rWarn, rSkip, rErr := d.fetchSplit(ctx, batch[mid:])
        if lErr != nil { return nil, nil, nil, lErr }
        if rErr != nil { return nil, nil, nil, rErr }
        return append(lRows, rRows...), append(lWarn, rWarn...), append(lSkip, rSkip...), nil
    case fault.Is(err, fault.InvalidParams):
        d.log.Warn().Str("symbol", batch[0]).Err(err).Msg("skipping symbol")
        return nil, nil, batch, nil
    }
    return nil, nil, nil, err
}

// readSymbols accepts a JSON object (its keys), a JSON array of strings, or
// one symbol per line.
func readSymbols(path string) ([]string, error) {
    b, err := os.ReadFile(path)
    if err != nil { return nil, err }
    trimmed := bytes.TrimSpace(b)
    var out []string
    switch {
    case bytes.HasPrefix(trimmed, []byte("{")):
        var m map[string]any
        if err := json.Unmarshal(trimmed, &m); err != nil { return nil, err }
        for k := range m { out = append(out, k) }
        sort.Strings(out)
    case bytes.HasPrefix(trimmed, []byte("[")):
        if err := json.Unmarshal(trimmed, &out); err != nil { return nil, err }
    default:
        for _, line := range strings.Split(string(trimmed), "\n") {
            if s := strings.TrimSpace(line); s != "" && !strings.HasPrefix(s, "#") { out = append(out, s) }
        }
    }
    return out, nil
}

func dumpCmd(out io.Writer) *cobra.Command {
    var (
        symbolsFile string
        outPath     string
        prov        string
        batch       int
        concurrency int
    )
    cmd := &cobra.Command{
        Use:   "dump <path> [key=value ...]",
        Short: "Run a command over every symbol of a file in batches and write one JSON document",
        Args:  cobra.MinimumNArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            params, err := parseArgs(args[1:])
            if err != nil { return err }
            symbols, err := readSymbols(symbolsFile)
            if err != nil { return fmt.Errorf("read symbols: %w", err) }
            if len(symbols) == 0 { return fmt.Errorf("no symbols found in %s", symbolsFile) }

            p, err := open(cmd.Context())
            if err != nil { return err }
            defer p.Close()

            w := out
            if outPath != "" && outPath != "-" {
                f, err := os.Create(outPath)
                if err != nil { return err }
                defer f.Close()
                w = f
            }
            var opts []runner.CallOption
            if prov != "" { opts = append(opts, runner.Provider(prov)) }
            d := &dumper{run: p.Runner.Run, path: args[0], params: params, opts: opts, batch: batch, concurrency: concurrency, log: p.Log}
            sum, err := d.dump(cmd.Context(), symbols, w)
            if err != nil { return err }
            fmt.Fprintf(cmd.ErrOrStderr(), "done: %d symbols, %d batches, %d rows, %d skipped\n", len(symbols), sum.Batches, sum.Rows, len(sum.Skipped))
            return nil
        },
    }
    cmd.Flags().StringVarP(&symbolsFile, "symbols-file", "s", "symbols.txt", "symbols as lines, a JSON array or a JSON object's keys")
    cmd.Flags().StringVarP(&outPath, "out", "o", "-", "output file, - for stdout")
    cmd.Flags().StringVarP(&prov, "provider", "p", "", "provider to use instead of the priority list")
    cmd.Flags().IntVar(&batch, "batch", 25, "symbols per request")
    cmd.Flags().IntVar(&concurrency, "concurrency", 4, "parallel batches")
    return cmd
}
