package main

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "net/url"
    "strings"
    "sync"

    "github.com/rs/zerolog"

    "dataplatform/internal/aggregate"
    "dataplatform/internal/fault"
    "dataplatform/internal/result"
    "dataplatform/internal/router"
    "dataplatform/internal/runner"
)

// maxFuseProviders bounds one fuse request.
const maxFuseProviders = 16

type api struct {
    run *runner.Runner
    log zerolog.Logger
}

func (a *api) routes(mux *http.ServeMux) {
    mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "text/plain; charset=utf-8")
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ok"))
    })
    mux.HandleFunc("GET /api/v1/run/{path...}", a.handleRun)
    mux.HandleFunc("POST /api/v1/run/{path...}", a.handleRun)
    mux.HandleFunc("GET /api/v1/routes", a.handleRoutes)
    mux.HandleFunc("GET /api/v1/providers", a.handleProviders)
    mux.HandleFunc("GET /api/v1/schema", a.handleSchema)
    mux.HandleFunc("POST /api/v1/fuse", a.handleFuse)
}

// handleRun dispatches one command. GET takes parameters from the query
// string, repeated keys joined with commas; POST takes a JSON object.
// format=csv answers with the rows as CSV instead of the envelope.
func (a *api) handleRun(w http.ResponseWriter, r *http.Request) {
    q := r.URL.Query()
    format := strings.ToLower(q.Get("format"))
    q.Del("format")

    params := queryParams(q)
    if r.Method == http.MethodPost {
        var body map[string]any
        dec := json.NewDecoder(r.Body)
        dec.UseNumber()
        if err := dec.Decode(&body); err != nil {
            writeError(w, fault.New(fault.InvalidParams, "invalid JSON body: %v", err))
            return
        }
        for k, v := range body { params[k] = v }
    }

    env, err := a.run.Run(r.Context(), r.PathValue("path"), params)
    if err != nil {
        writeError(w, err)
        return
    }
    if format == "csv" {
        w.Header().Set("Content-Type", "text/csv; charset=utf-8")
        w.WriteHeader(http.StatusOK)
        if err := env.WriteCSV(w); err != nil {
            a.log.Warn().Err(err).Msg("writing csv")
        }
        return
    }
    writeJSON(w, http.StatusOK, env)
}

func queryParams(q url.Values) map[string]any {
    params := make(map[string]any, len(q))
    for k, vs := range q {
        params[k] = strings.Join(vs, ",")
    }
    return params
}

type routeInfo struct {
    *router.Command
    Providers []string `json:"providers"`
}

func (a *api) handleRoutes(w http.ResponseWriter, r *http.Request) {
    cmds := a.run.Router().Commands(r.URL.Query().Get("prefix"))
    out := make([]routeInfo, 0, len(cmds))
    for _, c := range cmds {
        out = append(out, routeInfo{Command: c, Providers: a.run.Registry().Providers(c.Endpoint)})
    }
    writeJSON(w, http.StatusOK, map[string]any{"routes": out})
}

type providerInfo struct {
    Name        string   `json:"name"`
    Description string   `json:"description,omitempty"`
    Website     string   `json:"website,omitempty"`
    Credentials []string `json:"credentials"`
    Endpoints   []string `json:"endpoints"`
}

func (a *api) handleProviders(w http.ResponseWriter, _ *http.Request) {
    reg := a.run.Registry()
    out := make([]providerInfo, 0, len(reg.Names()))
    for _, name := range reg.Names() {
        p, _ := reg.Provider(name)
        info := providerInfo{Name: p.Name, Description: p.Description, Website: p.Website, Credentials: p.Credentials}
        if info.Credentials == nil { info.Credentials = []string{} }
        for _, f := range p.Fetchers {
            info.Endpoints = append(info.Endpoints, f.Info().Endpoint)
        }
        out = append(out, info)
    }
    writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

func (a *api) handleSchema(w http.ResponseWriter, _ *http.Request) {
    w.Header().Set("Content-Type", "application/json; charset=utf-8")
    w.WriteHeader(http.StatusOK)
    if err := a.run.Signature().Dump(w); err != nil {
        a.log.Warn().Err(err).Msg("writing schema")
    }
}

type fuseRequest struct {
    Path      string         `json:"path"`
    Params    map[string]any `json:"params"`
    Providers []string       `json:"providers"`
    Keys      []string       `json:"keys"`
}

// handleFuse runs one command against several providers concurrently and
// keeps the newest row per key. Failed providers become warnings unless
// every provider failed.
func (a *api) handleFuse(w http.ResponseWriter, r *http.Request) {
    var req fuseRequest
    dec := json.NewDecoder(r.Body)
    dec.DisallowUnknownFields()
    dec.UseNumber()
    if err := dec.Decode(&req); err != nil {
        writeError(w, fault.New(fault.InvalidParams, "invalid JSON body: %v", err))
        return
    }
    cmd, err := a.run.Router().Resolve(req.Path)
    if err != nil {
        writeError(w, err)
        return
    }
    providers := req.Providers
    if len(providers) == 0 { providers = a.run.Registry().Providers(cmd.Endpoint) }
    if len(providers) > maxFuseProviders {
        writeError(w, fault.New(fault.InvalidParams, "too many providers (max %d)", maxFuseProviders))
        return
    }
    env, err := fuse(r.Context(), a.run, req.Path, req.Params, providers, req.Keys)
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, env)
}

func fuse(ctx context.Context, run *runner.Runner, path string, params map[string]any, providers, keys []string) (*result.Envelope, error) {
    envs := make([]*result.Envelope, len(providers))
    errs := make([]error, len(providers))
    var wg sync.WaitGroup
    for i, p := range providers {
        wg.Add(1)
        go func() {
            defer wg.Done()
            envs[i], errs[i] = run.Run(ctx, path, params, runner.Provider(p))
        }()
    }
    wg.Wait()

    var failures []string
    var first error
    for i, err := range errs {
        if err == nil { continue }
        if first == nil { first = err }
        failures = append(failures, fmt.Sprintf("%s: %v", providers[i], err))
    }
    if len(failures) == len(providers) && first != nil {
        return nil, first
    }
    out := aggregate.Latest(envs, keys...)
    for _, f := range failures {
        out.Warn(result.Partial, "%s", f)
    }
    return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json; charset=utf-8")
    w.WriteHeader(status)
    enc := json.NewEncoder(w)
    enc.SetEscapeHTML(false)
    _ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
    writeJSON(w, fault.HTTPStatus(err), fault.Wire(err))
}
