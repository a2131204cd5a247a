// Package api is the HTTP boundary: it authenticates the caller, decodes
// requests, invokes the ledger and shapes JSON or CSV responses.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/ledgerbank/internal/analytics"
	"github.com/punchamoorthee/ledgerbank/internal/auth"
	"github.com/punchamoorthee/ledgerbank/internal/domain"
	"github.com/punchamoorthee/ledgerbank/internal/notify"
	"github.com/punchamoorthee/ledgerbank/internal/service"
	"github.com/shopspring/decimal"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

func init() {
	// Amounts go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type Handler struct {
	ledger    *service.Ledger
	analytics *analytics.Aggregator
	inbox     *notify.Inbox
	verifier  *auth.Verifier
	log       *slog.Logger
}

func NewHandler(l *service.Ledger, a *analytics.Aggregator, inbox *notify.Inbox, v *auth.Verifier, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{ledger: l, analytics: a, inbox: inbox, verifier: v, log: log}
}

// Router mounts every route. Everything under /api/v1 requires a bearer
// token.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.instrument)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(h.authenticate)

	v1.HandleFunc("/transfers", h.CreateTransferHandler).Methods(http.MethodPost)

	v1.HandleFunc("/accounts", h.CreateAccountHandler).Methods(http.MethodPost)
	v1.HandleFunc("/accounts", h.ListAccountsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}", h.GetAccountHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}", h.UpdateAccountHandler).Methods(http.MethodPatch)
	v1.HandleFunc("/accounts/{id}", h.CloseAccountHandler).Methods(http.MethodDelete)
	v1.HandleFunc("/accounts/{id}/statement.csv", h.StatementHandler).Methods(http.MethodGet)

	v1.HandleFunc("/transactions", h.RecordTransactionHandler).Methods(http.MethodPost)
	v1.HandleFunc("/transactions", h.ListTransactionsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/{id}", h.GetTransactionHandler).Methods(http.MethodGet)

	v1.HandleFunc("/analytics/summary", h.SummaryHandler).Methods(http.MethodGet)
	v1.HandleFunc("/analytics/categories", h.CategoriesHandler).Methods(http.MethodGet)
	v1.HandleFunc("/analytics/timeseries", h.TimeSeriesHandler).Methods(http.MethodGet)

	v1.HandleFunc("/notifications", h.ListNotificationsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/notifications/read-all", h.MarkAllReadHandler).Methods(http.MethodPost)
	v1.HandleFunc("/notifications/{id}", h.MarkNotificationHandler).Methods(http.MethodPatch)
	v1.HandleFunc("/notifications/{id}", h.DeleteNotificationHandler).Methods(http.MethodDelete)
	return r
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument records request metrics and an access log line per request,
// labeled by route template rather than raw path.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(elapsed.Seconds())
		h.log.Info("Request handled",
			"method", r.Method,
			"endpoint", endpoint,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			h.respondWithErr(w, domain.ErrUnauthenticated)
			return
		}
		userID, err := h.verifier.Verify(raw)
		if err != nil {
			h.respondWithErr(w, domain.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
	})
}

// caller is the authenticated user; the auth middleware guarantees it.
func caller(r *http.Request) uuid.UUID {
	id, _ := auth.UserID(r.Context())
	return id
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, domain.Validation("invalid id")
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Validation("malformed JSON body")
	}
	return nil
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindValidation, domain.KindBusinessRule:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondWithErr maps err to a status code and a client-safe message. The
// raw cause is only logged.
func (h *Handler) respondWithErr(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	code := statusFor(kind)
	if code == http.StatusInternalServerError {
		h.log.Error("Request failed", "kind", kind.String(), "error", err)
	}
	respondWithJSON(w, code, errorBody{Error: domain.PublicMessage(err), Kind: kind.String()})
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
