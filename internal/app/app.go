package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/schoolgate/internal/attendance"
	"github.com/hitoshi/schoolgate/internal/auth"
	"github.com/hitoshi/schoolgate/internal/config"
	"github.com/hitoshi/schoolgate/internal/database"
	"github.com/hitoshi/schoolgate/internal/handler"
	"github.com/hitoshi/schoolgate/internal/logger"
	"github.com/hitoshi/schoolgate/internal/metrics"
	"github.com/hitoshi/schoolgate/internal/middleware"
	"github.com/hitoshi/schoolgate/internal/repository"
	"github.com/hitoshi/schoolgate/internal/scan"
	"github.com/hitoshi/schoolgate/internal/security"
	"github.com/hitoshi/schoolgate/internal/student"
	"github.com/hitoshi/schoolgate/internal/whatsapp"
	"github.com/hitoshi/schoolgate/internal/whatsapp/wameow"
	"github.com/hitoshi/schoolgate/internal/worker/absence"
)

// サーバーのタイムアウト設定
const (
	dbPingTimeout   = 10 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envがあれば読み込む（設定済みの環境変数が優先）
	loaded, err := config.LoadDotEnv(".env")
	if err != nil {
		return nil, err
	}
	if loaded {
		slog.Info("loaded .env file")
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. 設定されたログレベルで再セットアップする
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	logger.SetupDefault(w, level)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
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
		slog.String("timezone", cfg.SchoolTimezone),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、WhatsAppセッションとHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		return err
	}
	log.Info("database connection established")

	// 2. メトリクス
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	// 3. リポジトリの初期化
	studentRepo := repository.NewPostgresStudentRepo(db)
	guardianRepo := repository.NewPostgresGuardianRepo(db)
	attendanceRepo := repository.NewPostgresAttendanceRepo(db)
	operatorRepo := repository.NewPostgresOperatorRepo(db)

	// 4. WhatsAppセッション
	manager := whatsapp.NewManager(whatsapp.ManagerConfig{
		Dialer:         wameow.NewDialer(cfg.WhatsAppAuthDir, log.With(slog.String("component", "wameow"))),
		Credentials:    whatsapp.NewCredentialStore(cfg.WhatsAppAuthDir),
		Logger:         log.With(slog.String("component", "whatsapp")),
		Metrics:        collector,
		ReconnectDelay: cfg.WhatsAppReconnectDelay,
		QueryTimeout:   cfg.WhatsAppQueryTimeout,
		OnMessage:      whatsapp.NewAutoReply(log),
	})
	dispatcher := whatsapp.NewDispatcher(manager, log, collector)

	// 5. ドメインサービスの初期化
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	authService := auth.NewService(operatorRepo, tokens, log)
	recorder := attendance.NewRecorder(studentRepo, attendanceRepo, cfg.Location, log, collector)
	scanService := scan.NewService(studentRepo, guardianRepo, recorder, dispatcher, cfg.NotifyGroupID, log)
	studentService := student.NewService(studentRepo, security.NewTextSanitizer(), log)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Max:             cfg.RateLimitMax,
		Window:          cfg.RateLimitWindow,
		CleanupInterval: middleware.DefaultRateLimiterConfig().CleanupInterval,
	})
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		Authenticator:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		AuthService:       authService,
		AttendanceService: recorder,
		ScanService:       scanService,
		StudentService:    studentService,
		Session:           manager,
		Challenge:         manager.Relay(),
		DB:                db,
		MetricsHandler:    metrics.Handler(prometheus.DefaultGatherer),
	})

	// 7. HTTPサーバーとセッションマネージャーの起動
	server := newHTTPServer(cfg.ServerPort, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return manager.Run(gctx)
	})
	g.Go(func() error {
		return serveHTTP(gctx, server, "API server")
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、欠席登録スケジューラとメトリクス用のHTTPサーバーを起動する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		return err
	}
	log.Info("database connection established (worker)")

	// 2. 欠席登録ジョブの初期化
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	job := absence.NewJob(repository.NewPostgresAttendanceRepo(db), cfg.Location, log, collector)
	scheduler, err := absence.NewScheduler(job, cfg.AbsenceMarkAt, cfg.Location, log)
	if err != nil {
		return fmt.Errorf("invalid ABSENCE_MARK_AT: %w", err)
	}

	// 3. ワーカーのヘルスチェックとメトリクス
	r := chi.NewRouter()
	r.Get("/health", handler.NewHealthHandler(db).Check)
	r.Handle("/metrics", metrics.Handler(reg))
	server := newHTTPServer(cfg.ServerPort, r)

	log.Info("worker starting",
		slog.String("absence_mark_at", cfg.AbsenceMarkAt),
		slog.String("timezone", cfg.SchoolTimezone),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scheduler.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return serveHTTP(gctx, server, "worker metrics server")
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

func newHTTPServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// serveHTTP はctxがキャンセルされるまでサーバーを起動し、その後グレースフルシャットダウンする。
func serveHTTP(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s listen error: %w", name, err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
