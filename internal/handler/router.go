package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/audiolti/internal/metrics"
	"github.com/hitoshi/audiolti/internal/middleware"
	"github.com/hitoshi/audiolti/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	SessionVerifier   middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector
	MetricsGatherer   prometheus.Gatherer

	// サービス
	SubmissionService SubmissionServiceInterface
	FeedbackService   FeedbackServiceInterface
	RecordingService  RecordingServiceInterface
	Roster            RosterClient
	Health            repository.HealthChecker
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Metrics → Recovery → SecurityHeaders → CORS → Identity → RateLimit(General)
//
// /health と /metrics はIdentityの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	subHandler := NewSubmissionHandler(deps.SubmissionService, deps.FeedbackService)
	recHandler := NewRecordingHandler(deps.RecordingService)
	membersHandler := NewMembersHandler(deps.Roster)
	healthHandler := NewHealthHandler(deps.Health)

	// --- 認証不要のルート ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- セッショントークンが必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.SessionVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/submissions", func(r chi.Router) {
			r.Get("/", subHandler.ListSubmissions)
			r.Post("/", subHandler.SubmitAudio)
			r.Post("/{id}/feedback", subHandler.AttachFeedback)
		})

		r.Post("/api/grades", subHandler.GradeSubmission)

		r.Route("/api/recordings", func(r chi.Router) {
			r.Get("/", recHandler.List)
			// アップロード専用のレート制限を追加
			r.With(deps.RateLimiter.UploadMiddleware()).Post("/", recHandler.Upload)
		})

		r.Get("/api/members", membersHandler.ListMembers)
	})

	return r
}
