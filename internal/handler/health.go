package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/tamra-invest/ledger-engine/internal/logging"
)

const readinessTimeout = 2 * time.Second

// HealthHandler reports process liveness and whether the engine can reach
// its ledger schema. Readiness fails until migrations have been applied,
// so a fresh instance takes no traffic before the ledger tables exist.
type HealthHandler struct {
	db *sql.DB
}

func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "ledger-engine",
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := map[string]string{
		"database":      "ok",
		"ledger_schema": "ok",
	}
	status := http.StatusOK

	if err := h.db.PingContext(ctx); err != nil {
		logging.FromContext(r.Context()).Warn("readiness check failed, database unreachable", "error", err)
		checks["database"] = "down"
		checks["ledger_schema"] = "unknown"
		status = http.StatusServiceUnavailable
	} else if err := h.checkSchema(ctx); err != nil {
		logging.FromContext(r.Context()).Warn("readiness check failed, ledger schema not migrated", "error", err)
		checks["ledger_schema"] = "missing"
		status = http.StatusServiceUnavailable
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "down"
	}

	RespondJSON(w, status, map[string]any{
		"status":  overall,
		"service": "ledger-engine",
		"checks":  checks,
	})
}

func (h *HealthHandler) checkSchema(ctx context.Context) error {
	var one int
	return h.db.QueryRowContext(ctx,
		`SELECT 1 WHERE to_regclass('ledger_entries') IS NOT NULL`,
	).Scan(&one)
}
