package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/israeldewcom/Real-wealth/internal/app"
	"github.com/israeldewcom/Real-wealth/internal/app/auth"
	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
	"github.com/israeldewcom/Real-wealth/internal/app/metrics"
	"github.com/israeldewcom/Real-wealth/pkg/logger"
)

// Pinger reports database reachability for the readiness probe.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// newRouter builds the operations listener: probes, Prometheus metrics and
// the admin reconciliation report.
func newRouter(application *app.Application, resolver auth.Resolver, db Pinger, log *logger.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", readyHandler(db)).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(authMiddleware(resolver, log))
	admin.HandleFunc("/users/{id}/reconciliation", reconcileHandler(application)).Methods(http.MethodGet)
	admin.HandleFunc("/services", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"services": application.Services()})
	}).Methods(http.MethodGet)
	return r
}

func readyHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "store": "memory"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			jsonError(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "store": "postgres"})
	}
}

// authMiddleware resolves the bearer token into an identity and admits
// admins only. Without a resolver every admin route is closed.
func authMiddleware(resolver auth.Resolver, log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver == nil {
				jsonError(w, "admin api disabled", http.StatusServiceUnavailable)
				return
			}
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				jsonError(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			id, err := resolver.Resolve(r.Context(), header)
			if err != nil {
				log.WithError(err).Debug("rejected admin token")
				jsonError(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if !id.IsAdmin() {
				jsonError(w, "admin role required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

type reconciliationResponse struct {
	UserID   string `json:"user_id"`
	Opening  string `json:"opening"`
	Balance  string `json:"balance"`
	Expected string `json:"expected"`
	Drift    string `json:"drift"`
	Entries  int    `json:"entries"`
	Balanced bool   `json:"balanced"`
}

func reconcileHandler(application *app.Application) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := mux.Vars(r)["id"]
		opening := decimal.Zero
		if raw := strings.TrimSpace(r.URL.Query().Get("opening")); raw != "" {
			v, err := decimal.NewFromString(raw)
			if err != nil {
				jsonError(w, "opening must be a decimal", http.StatusBadRequest)
				return
			}
			opening = v
		}
		report, err := application.Ledger.Reconcile(r.Context(), userID, opening)
		if err != nil {
			jsonError(w, core.PublicMessage(err, true), statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, reconciliationResponse{
			UserID:   report.UserID,
			Opening:  report.Opening.String(),
			Balance:  report.Balance.String(),
			Expected: report.Expected.String(),
			Drift:    report.Drift.String(),
			Entries:  report.Entries,
			Balanced: report.Balanced(),
		})
	}
}

func statusFor(err error) int {
	switch core.Code(err) {
	case core.CodeNotFound:
		return http.StatusNotFound
	case core.CodeForbidden:
		return http.StatusForbidden
	case core.CodeInvalidInput, core.CodeInvalidAmount:
		return http.StatusBadRequest
	case core.CodePersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
