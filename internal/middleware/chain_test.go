package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/hitoshi/audiolti/internal/lti"
	"github.com/hitoshi/audiolti/internal/metrics"
)

// TestMiddlewareChain_WithChiRouter はルーターと同じ順序のミドルウェアチェーンが
// chi.Routerで正しく動作することを検証する。
func TestMiddlewareChain_WithChiRouter(t *testing.T) {
	var logBuf bytes.Buffer
	logger := newBufferLogger(&logBuf)
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	rl := NewRateLimiter(DefaultRateLimiterConfig())
	defer rl.Stop()

	r := chi.NewRouter()
	r.Use(NewLoggingMiddleware(logger))
	r.Use(NewMetricsMiddleware(collector))
	r.Use(NewRecoveryMiddleware(logger))
	r.Use(NewSecurityHeadersMiddleware())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(r chi.Router) {
		r.Use(NewIdentityMiddleware(lti.NewSessionVerifier(testSessionKey)))
		r.Use(rl.GeneralMiddleware())

		r.Get("/api/me", func(w http.ResponseWriter, r *http.Request) {
			identity, perm, _ := IdentityFromContext(r.Context())
			json.NewEncoder(w).Encode(map[string]any{
				"user":       identity.Subject,
				"instructor": perm.IsInstructor(),
			})
		})
		r.Get("/api/panic", func(w http.ResponseWriter, r *http.Request) {
			panic("unexpected")
		})
	})

	t.Run("認証不要のルート", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("未認証は401", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("認証済み", func(t *testing.T) {
		logBuf.Reset()
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer "+issueToken(t, "Instructor"))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var body map[string]any
		json.NewDecoder(w.Body).Decode(&body)
		if body["user"] != "user-42" || body["instructor"] != true {
			t.Errorf("body = %v", body)
		}
		if !bytes.Contains(logBuf.Bytes(), []byte(`"user_id":"user-42"`)) {
			t.Errorf("アクセスログにuser_idが含まれるべき: %s", logBuf.String())
		}
	})

	t.Run("panicは500", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/panic", nil)
		req.Header.Set("Authorization", "Bearer "+issueToken(t, "Learner"))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "audiolti_http_status_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			counts[statusLabel(m)] = m.GetCounter().GetValue()
		}
	}
	if counts["200"] != 2 || counts["401"] != 1 || counts["500"] != 1 {
		t.Errorf("http_status_total = %v", counts)
	}
}

func statusLabel(m *dto.Metric) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == "status_code" {
			return lp.GetValue()
		}
	}
	return ""
}
