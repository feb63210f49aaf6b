// fetch runs platform commands from the shell.
//
//	fetch run equity/price/historical symbol=AAPL start_date=2024-01-02 --provider fmp
//	fetch routes equity
//	fetch describe crypto.price.historical
//	fetch dump equity/price/quote -s symbols.txt -o quotes.json
package main

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/spf13/cobra"

    "dataplatform/internal/config"
    "dataplatform/internal/platform"
    "dataplatform/internal/runner"
)

var (
    configPath string
    verbose    bool
)

func main() {
    rootCmd := &cobra.Command{
        Use:           "fetch",
        Short:         "Query financial data providers through one interface",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_FILE"), "settings file (json or yaml)")
    rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")

    rootCmd.AddCommand(runCmd(os.Stdout))
    rootCmd.AddCommand(routesCmd(os.Stdout))
    rootCmd.AddCommand(describeCmd(os.Stdout))
    rootCmd.AddCommand(providersCmd(os.Stdout))
    rootCmd.AddCommand(dumpCmd(os.Stdout))

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()
    if err := rootCmd.ExecuteContext(ctx); err != nil {
        fmt.Fprintf(os.Stderr, "Error: %v\n", err)
        os.Exit(1)
    }
}

func open(ctx context.Context) (*platform.Platform, error) {
    cfg, err := config.Load(configPath)
    if err != nil { return nil, err }
    if verbose { cfg.Log.Level = "debug" } else if cfg.Log.Level == "info" { cfg.Log.Level = "warn" }
    return platform.Build(ctx, cfg, platform.WithLogOutput(os.Stderr))
}

// parseArgs reads key=value pairs. Values stay strings; the runner coerces
// them against the provider's query model.
func parseArgs(args []string) (map[string]any, error) {
    params := make(map[string]any, len(args))
    for _, a := range args {
        k, v, ok := strings.Cut(a, "=")
        k = strings.TrimSpace(k)
        if !ok || k == "" { return nil, fmt.Errorf("argument %q is not key=value", a) }
        params[k] = v
    }
    return params, nil
}

func runCmd(out io.Writer) *cobra.Command {
    var (
        prov     string
        chart    bool
        strict   bool
        fallback bool
        format   string
        chartOut string
        timeout  time.Duration
    )
    cmd := &cobra.Command{
        Use:   "run <path> [key=value ...]",
        Short: "Run a command, e.g. run equity/price/quote symbol=AAPL",
        Args:  cobra.MinimumNArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            params, err := parseArgs(args[1:])
            if err != nil { return err }
            p, err := open(cmd.Context())
            if err != nil { return err }
            defer p.Close()

            var opts []runner.CallOption
            if cmd.Flags().Changed("chart") || chartOut != "" { opts = append(opts, runner.Chart(chart || chartOut != "")) }
            if prov != "" { opts = append(opts, runner.Provider(prov)) }
            if cmd.Flags().Changed("strict") { opts = append(opts, runner.Strict(strict)) }
            if fallback { opts = append(opts, runner.Fallback()) }
            if timeout > 0 { opts = append(opts, runner.Timeout(timeout)) }

            env, err := p.Runner.Run(cmd.Context(), args[0], params, opts...)
            if err != nil { return err }
            for _, w := range env.Warnings {
                fmt.Fprintf(cmd.ErrOrStderr(), "warning (%s): %s\n", w.Category, w.Message)
            }
            if chartOut != "" && env.Chart != nil {
                if err := os.WriteFile(chartOut, env.Chart.Content, 0o644); err != nil { return err }
            }
            switch format {
            case "csv":
                return env.WriteCSV(out)
            case "records":
                return writeJSON(out, env.ToRecords())
            case "json", "":
                return writeJSON(out, env)
            }
            return fmt.Errorf("unknown format %q (json, records, csv)", format)
        },
    }
    cmd.Flags().StringVarP(&prov, "provider", "p", "", "provider to use instead of the priority list")
    cmd.Flags().BoolVar(&chart, "chart", false, "attach a chart when the endpoint has one")
    cmd.Flags().StringVar(&chartOut, "chart-out", "", "write the chart to this file (implies --chart)")
    cmd.Flags().BoolVar(&strict, "strict", false, "fail on empty results")
    cmd.Flags().BoolVar(&fallback, "fallback", false, "try the next provider after a retryable failure")
    cmd.Flags().StringVarP(&format, "format", "f", "json", "output: json, records or csv")
    cmd.Flags().DurationVar(&timeout, "timeout", 0, "bound the whole dispatch")
    return cmd
}

func routesCmd(out io.Writer) *cobra.Command {
    return &cobra.Command{
        Use:   "routes [prefix]",
        Short: "List commands and the providers serving them",
        Args:  cobra.MaximumNArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            p, err := open(cmd.Context())
            if err != nil { return err }
            defer p.Close()
            prefix := ""
            if len(args) > 0 { prefix = args[0] }
            for _, c := range p.Runner.Router().Commands(prefix) {
                fmt.Fprintf(out, "%-32s %-18s %s\n", c.Path, c.Endpoint, strings.Join(p.Registry.Providers(c.Endpoint), ","))
            }
            return nil
        },
    }
}

func describeCmd(out io.Writer) *cobra.Command {
    return &cobra.Command{
        Use:   "describe <path>",
        Short: "Print the merged parameters and fields of a command",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            p, err := open(cmd.Context())
            if err != nil { return err }
            defer p.Close()
            c, err := p.Runner.Router().Resolve(args[0])
            if err != nil { return err }
            ep, ok := p.Runner.Signature().Endpoint(c.Endpoint)
            if !ok { return fmt.Errorf("no signature for %s", c.Endpoint) }
            return writeJSON(out, map[string]any{"command": c, "signature": ep})
        },
    }
}

func providersCmd(out io.Writer) *cobra.Command {
    return &cobra.Command{
        Use:   "providers",
        Short: "List providers, their credentials and whether they are set",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, args []string) error {
            p, err := open(cmd.Context())
            if err != nil { return err }
            defer p.Close()
            for _, name := range p.Registry.Names() {
                prov, _ := p.Registry.Provider(name)
                state := "ready"
                if missing := p.Store.Resolve(prov.Credentials).Missing(prov.Credentials); len(missing) > 0 {
                    state = "missing " + strings.Join(missing, ",")
                }
                fmt.Fprintf(out, "%-10s %-40s %s\n", name, prov.Website, state)
            }
            return nil
        },
    }
}

func writeJSON(w io.Writer, v any) error {
    enc := json.NewEncoder(w)
    enc.SetIndent("", "  ")
    enc.SetEscapeHTML(false)
    return enc.Encode(v)
}
