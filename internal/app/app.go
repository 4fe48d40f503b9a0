// Package app はサブコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/audiolti/internal/config"
	"github.com/hitoshi/audiolti/internal/database"
	"github.com/hitoshi/audiolti/internal/feedback"
	"github.com/hitoshi/audiolti/internal/grade"
	"github.com/hitoshi/audiolti/internal/handler"
	"github.com/hitoshi/audiolti/internal/logger"
	"github.com/hitoshi/audiolti/internal/lti"
	"github.com/hitoshi/audiolti/internal/metrics"
	"github.com/hitoshi/audiolti/internal/middleware"
	"github.com/hitoshi/audiolti/internal/recording"
	"github.com/hitoshi/audiolti/internal/repository"
	"github.com/hitoshi/audiolti/internal/security"
	"github.com/hitoshi/audiolti/internal/storage"
	"github.com/hitoshi/audiolti/internal/submission"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数のConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "3000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg, ParseMigrateDirection(args))
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. 依存関係の構築
	server, cleanup, err := newServer(ctx, cfg, db, slog.Default())
	if err != nil {
		return err
	}
	defer cleanup()

	// 3. HTTPサーバーの起動
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newServer は全依存関係をワイヤリングしたHTTPサーバーを返す。
// 戻り値のcleanupはバックグラウンド処理を停止する。
func newServer(ctx context.Context, cfg *config.Config, db *sql.DB, log *slog.Logger) (*http.Server, func(), error) {
	// 1. リポジトリの初期化
	submissionRepo := repository.NewPostgresSubmissionRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)
	audioRepo := repository.NewPostgresAudioFileRepo(db)

	// 2. LMSサービスクライアントの初期化
	ltiClient, err := newPlatformClient(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	reporter := grade.NewReporter(ltiClient, log)

	// 3. オブジェクトストレージの初期化
	objects, err := newObjectStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	// 4. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 5. ドメインサービスの初期化
	sanitizer := security.NewTextSanitizer()
	submissionService := submission.NewService(submissionRepo, reporter, sanitizer, collector, log)
	feedbackService := feedback.NewService(submissionRepo, sanitizer, collector, log)
	recordingService := recording.NewService(userRepo, audioRepo, objects, collector, log, cfg.UploadMaxBytes)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg, log))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		SessionVerifier:   lti.NewSessionVerifier([]byte(cfg.LTIKey)),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Metrics:           collector,
		MetricsGatherer:   reg,
		SubmissionService: submissionService,
		FeedbackService:   feedbackService,
		RecordingService:  recordingService,
		Roster:            ltiClient,
		Health:            db,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// 録音アップロードに合わせて長めに取る
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return server, rateLimiter.Stop, nil
}

// rateLimiterConfig は設定値からレート制限を組み立てる。
// 0以下の値は全リクエストを拒否してしまうため既定値に戻す。
func rateLimiterConfig(cfg *config.Config, log *slog.Logger) middleware.RateLimiterConfig {
	if cfg.RateLimitGeneral <= 0 || cfg.RateLimitUpload <= 0 {
		log.Warn("invalid rate limit, using defaults",
			slog.Int("general", cfg.RateLimitGeneral),
			slog.Int("upload", cfg.RateLimitUpload),
		)
		return middleware.DefaultRateLimiterConfig()
	}
	return middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitUpload)
}

// newPlatformClient はSSRFガード付きのHTTPクライアントでLMSサービスクライアントを構築する。
// トークン取得と各サービス呼び出しは同じガードを通る。
func newPlatformClient(cfg *config.Config, log *slog.Logger) (*lti.Client, error) {
	key, err := lti.LoadPrivateKey(cfg.ToolPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tool private key: %w", err)
	}

	guard := security.NewSSRFGuard(cfg.AllowPrivatePlatform)
	if err := guard.ValidateURL(cfg.PlatformTokenURL); err != nil {
		return nil, fmt.Errorf("invalid platform token url: %w", err)
	}
	if cfg.AllowPrivatePlatform {
		log.Warn("SSRF guard is disabled for platform requests")
	}

	base := guard.NewSafeClient(cfg.GradeServiceTimeout)
	ts := lti.NewTokenSource(base, lti.PlatformCredentials{
		ClientID:   cfg.PlatformClientID,
		TokenURL:   cfg.PlatformTokenURL,
		KeyID:      cfg.ToolKeyID,
		PrivateKey: key,
	}, lti.ServiceScopes)

	return lti.NewClient(lti.NewServiceHTTPClient(base, ts), log), nil
}

// newObjectStore はS3互換ストレージを構築する。バケット未設定の場合は録音アップロードを無効にする。
func newObjectStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.ObjectStore, error) {
	if !cfg.StorageEnabled() {
		log.Warn("S3_BUCKET is not set; recording uploads are disabled")
		return storage.Disabled{}, nil
	}

	store, err := storage.NewS3Store(ctx, storage.Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		PublicBaseURL:   cfg.S3PublicBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object storage: %w", err)
	}
	return store, nil
}

// runMigrate はデータベースマイグレーションを実行する。
// upは全ての未適用マイグレーションを適用し、downは直近の1件を巻き戻す。
func runMigrate(cfg *config.Config, direction MigrateDirection) error {
	slog.Info("running database migrations",
		slog.String("direction", string(direction)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if direction == MigrateDown {
		if err := database.RollbackMigrations(cfg.DatabaseURL, 1); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migration rolled back successfully")
		return nil
	}

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
