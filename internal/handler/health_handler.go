package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/audiolti/internal/repository"
)

// healthTimeout はDB疎通確認のタイムアウト。
const healthTimeout = 2 * time.Second

// HealthHandler はDB疎通確認を行うヘルスチェックハンドラー。
type HealthHandler struct {
	db repository.HealthChecker
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(db repository.HealthChecker) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health はDBに疎通できれば200、できなければ503を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		slog.Warn("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
