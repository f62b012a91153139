// Package api wires the HTTP surface: public menu reads, owner auth and
// self-service, the forgot-PIN flow, and the superadmin console API.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tablecode/tablecode/internal/api/handlers"
	"github.com/tablecode/tablecode/internal/api/middleware"
	"github.com/tablecode/tablecode/internal/audit"
	"github.com/tablecode/tablecode/internal/cache"
	"github.com/tablecode/tablecode/internal/config"
	"github.com/tablecode/tablecode/internal/credential"
	"github.com/tablecode/tablecode/internal/forgotpin"
	"github.com/tablecode/tablecode/internal/hotel"
	"github.com/tablecode/tablecode/internal/lifecycle"
	"github.com/tablecode/tablecode/internal/menu"
	"github.com/tablecode/tablecode/internal/metrics"
	"github.com/tablecode/tablecode/internal/queue"
	"github.com/tablecode/tablecode/internal/ratelimit"
	"github.com/tablecode/tablecode/internal/session"
	"github.com/tablecode/tablecode/internal/slug"
	"github.com/tablecode/tablecode/internal/storage"
)

type Router struct {
	mux    *chi.Mux
	db     *pgxpool.Pool
	redis  redis.UniversalClient
	cfg    *config.Config
	logger *zap.Logger
}

func NewRouter(db *pgxpool.Pool, rdb redis.UniversalClient, cfg *config.Config, logger *zap.Logger) *Router {
	return &Router{
		mux:    chi.NewRouter(),
		db:     db,
		redis:  rdb,
		cfg:    cfg,
		logger: logger,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(rt.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	limiter := ratelimit.New(rt.redis)
	r.Use(middleware.RateLimit(limiter, ratelimit.GenericAPI, rt.logger))

	// Services
	audits := audit.NewStore(rt.db)
	hotels := hotel.NewStore(rt.db, audits)
	creds := credential.NewStore()
	slugs := slug.NewGenerator(hotels, rt.logger)
	objects := storage.NewSupabaseStorage(rt.cfg.Storage.BaseURL, rt.cfg.Storage.ServiceKey)
	lifecycleSvc := lifecycle.NewService(hotels, slugs, creds, objects, rt.logger)
	menus := menu.NewService(rt.db, hotels, hotels, cache.NewCache(rt.redis), rt.logger)

	issuer := session.NewOwnerIssuer(rt.cfg.Auth.JWTSecret, rt.cfg.Auth.OwnerTokenTTL, hotels)
	adminSess := session.NewAdminSession(credential.NewAdminKeyVerifier(rt.cfg.Auth.AdminKey, rt.cfg.Auth.CookieSecret))

	queueClient := queue.NewClient(rt.cfg.Redis)
	flow := forgotpin.NewFlow(rt.redis, hotels, lifecycleSvc, queueClient, rt.logger)

	// Health and metrics (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Handle("/metrics", metrics.Handler())

	authH := handlers.NewAuthHandler(hotels, creds, issuer, adminSess, limiter, flow, rt.logger, rt.cfg.Production())
	ownerH := handlers.NewOwnerHandler(hotels, menus, objects, rt.cfg.Storage.Bucket)
	adminH := handlers.NewAdminHandler(hotels, lifecycleSvc, audits, menus, limiter)
	menuH := handlers.NewMenuHandler(menus)

	r.Route("/api", func(r chi.Router) {
		r.Get("/menu/{code}", menuH.Get)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authH.OwnerLogin)
			r.Route("/forgot-pin", func(r chi.Router) {
				r.Post("/request", authH.ForgotPinRequest)
				r.Post("/verify", authH.ForgotPinVerify)
				r.Post("/reset", authH.ForgotPinReset)
			})
		})

		r.Route("/owner", func(r chi.Router) {
			r.Use(middleware.OwnerAuth(issuer))
			r.Get("/me", ownerH.Me)
			r.Patch("/theme", ownerH.UpdateTheme)
			r.Post("/images", ownerH.UploadImage)
		})

		r.Route("/admin", func(r chi.Router) {
			r.With(middleware.RateLimit(limiter, ratelimit.AdminLogin, rt.logger)).
				Post("/login", authH.AdminLogin)

			r.Group(func(r chi.Router) {
				r.Use(middleware.AdminAuth(adminSess))
				r.Post("/logout", authH.AdminLogout)
				r.Get("/me", authH.AdminMe)

				r.Route("/hotels", func(r chi.Router) {
					r.Get("/", adminH.List)
					r.Post("/", adminH.Create)
					r.Get("/{id}", adminH.Get)
					r.Patch("/{id}", adminH.Update)
					r.Patch("/{id}/status", adminH.SetStatus)
					r.Post("/{id}/reset-pin", adminH.ResetPin)
					r.Get("/{id}/pin-reset-count", adminH.PinResetCount)
					r.Delete("/{id}", adminH.SoftDelete)
					r.Post("/{id}/purge", adminH.Purge)
					r.Get("/{id}/audit", adminH.AuditLogs)
				})
			})
		})
	})

	return r
}
