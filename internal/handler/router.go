package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/schoolgate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	Authenticator     middleware.TokenAuthenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface

	// 出席・読み取り
	AttendanceService AttendanceServiceInterface
	ScanService       ScanServiceInterface

	// 生徒登録
	StudentService StudentServiceInterface

	// WhatsAppセッション
	Session   SessionStatus
	Challenge ChallengeSource

	// 運用
	DB             Pinger
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → SecurityHeaders → CORS → Logging → RateLimit
//
// 管理画面向けのルートにのみAuthMiddlewareを追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(chimw.RequestID)
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.Middleware())
	}

	authHandler := NewAuthHandler(deps.AuthService)
	attendanceHandler := NewAttendanceHandler(deps.AttendanceService)
	scanHandler := NewScanHandler(deps.ScanService)
	studentHandler := NewStudentHandler(deps.StudentService)
	waHandler := NewWhatsAppHandler(deps.Session, deps.Challenge, deps.Logger)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.DB).Check)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		// --- 認証不要のルート（校門の読み取り端末） ---
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/scan-qr", scanHandler.Scan)
		r.Post("/asistencia", attendanceHandler.RecordScan)
		r.Get("/buscar-qr-padre/{code}", scanHandler.NotifyGuardian)

		// --- 認証が必要なルート（管理画面） ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAuthMiddleware(deps.Authenticator))

			r.Get("/get-qr", waHandler.GetChallenge)
			r.Get("/whatsapp/status", waHandler.Status)

			r.Route("/asistencias", func(r chi.Router) {
				r.Get("/", attendanceHandler.List)
				r.Post("/", attendanceHandler.RecordManual)
				r.Put("/{id}", attendanceHandler.UpdateStatus)
			})

			r.Post("/insert", studentHandler.Register)
		})
	})

	return r
}
