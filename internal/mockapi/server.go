// Package mockapi is the reference REST backend of the console: DRF-style
// collection routes for every catalogue resource, the token endpoints and
// the handful of aggregate views the console reads.
package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"brdconsole.org/internal/audit"
	"brdconsole.org/internal/auth"
	"brdconsole.org/internal/obs"
	"brdconsole.org/internal/store"
)

const (
	apiPrefix  = "/api/v1/"
	authPrefix = "/api/"

	maxBodyBytes = 1 << 20
)

// ReadyCheck — проверка готовности хранилища.
type ReadyCheck struct {
	Store store.Store
}

func (rp ReadyCheck) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	return rp.Store.Ping(ctx)
}

// API — HTTP слой мок-бэкенда консоли.
type API struct {
	mux        *http.ServeMux
	store      store.Store
	signer     *auth.Signer
	trail      *audit.Trail
	readyCheck ReadyCheck
	version    string
	rateBurst  int
	ratePerSec int
	hashCost   int
	now        func() time.Time
}

// Option customises an API.
type Option func(*API)

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// WithRateLimit sets the per-IP token bucket.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 {
			a.rateBurst = burst
		}
		if perSecond > 0 {
			a.ratePerSec = perSecond
		}
	}
}

// WithPasswordCost sets the bcrypt cost of stored passwords.
func WithPasswordCost(cost int) Option {
	return func(a *API) { a.hashCost = cost }
}

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(a *API) { a.now = now }
}

// New wires the routes over st. Tokens are issued and verified by signer.
func New(st store.Store, signer *auth.Signer, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		store:      st,
		signer:     signer,
		trail:      audit.NewTrail(st),
		readyCheck: ReadyCheck{Store: st},
		version:    "dev",
		rateBurst:  50,
		ratePerSec: 20,
		hashCost:   bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	// токены
	a.mux.HandleFunc(authPrefix+"token/{$}", a.handleToken)
	a.mux.HandleFunc(authPrefix+"token/refresh/{$}", a.handleTokenRefresh)

	// всё остальное: ресурсы и агрегаты
	a.mux.HandleFunc(apiPrefix, a.dispatch)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": a.version,
		"time":    a.now().UTC().Format(time.RFC3339),
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyCheck.Check(ctx); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeFieldError answers 400 with a DRF-shaped {"field": ["msg"]} body.
func writeFieldError(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string][]string{field: {msg}})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, r, http.StatusConflict, "already exists")
	default:
		obs.Logger().Error().Err(err).Str("path", r.URL.Path).Msg("store operation failed")
		writeError(w, r, http.StatusInternalServerError, "storage error")
	}
}

// audit records ev; failures are logged and never fail the request.
func (a *API) audit(ctx context.Context, ev audit.Event) {
	if err := a.trail.Record(ctx, ev); err != nil {
		obs.Logger().Warn().Err(err).Str("event", ev.Action).Msg("audit record failed")
	}
}
