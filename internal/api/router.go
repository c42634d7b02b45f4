package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/compasshq/compass-backend/internal/api/handlers"
	"github.com/compasshq/compass-backend/internal/api/middleware"
	"github.com/compasshq/compass-backend/internal/auth"
	"github.com/compasshq/compass-backend/internal/cache"
	"github.com/compasshq/compass-backend/internal/classify"
	"github.com/compasshq/compass-backend/internal/config"
	"github.com/compasshq/compass-backend/internal/document"
	"github.com/compasshq/compass-backend/internal/queue"
	"github.com/compasshq/compass-backend/internal/storage"
	"github.com/compasshq/compass-backend/internal/summarize"
)

type Router struct {
	mux   *chi.Mux
	db    *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config
	jwt   *auth.JWTMiddleware
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		redis: rdb,
		cfg:   cfg,
		jwt:   auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Services
	store := storage.NewSupabaseStorage(rt.cfg.Storage.SupabaseURL, rt.cfg.Storage.ServiceKey)
	queueClient := queue.NewClient(rt.cfg.Redis)
	docSvc := document.NewService(rt.db, store, queueClient, rt.cfg.Storage.Bucket)
	urlCache := cache.NewCache(rt.redis)
	classifier := classify.NewClassifier(rt.cfg.OpenAI.APIKey, rt.cfg.OpenAI.BaseURL, rt.cfg.OpenAI.Model)
	summarizer := summarize.NewSummarizer(rt.cfg.OpenAI.APIKey, rt.cfg.OpenAI.BaseURL, rt.cfg.OpenAI.Model)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		docH := handlers.NewDocumentHandler(docSvc, store, urlCache)
		analysisH := handlers.NewAnalysisHandler(docH, classifier, summarizer)
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", docH.Upload)
			r.Get("/", docH.List)
			r.Get("/{id}", docH.Get)
			r.Delete("/{id}", docH.Delete)
			r.Get("/{id}/status", docH.Status)
			r.Get("/{id}/download", docH.Download)
			r.Post("/{id}/classify", analysisH.Classify)
			r.Post("/{id}/summarize", analysisH.Summarize)
		})
	})

	return r
}
