// Package api exposes the disguise service over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/1001054/Data-Disguise/internal/config"
	"github.com/1001054/Data-Disguise/internal/service"
)

// Server holds the handler dependencies.
type Server struct {
	svc    *service.Service
	logger *slog.Logger
}

// NewRouter builds the HTTP router for svc.
func NewRouter(svc *service.Service, cfg config.ServerConfig, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	if t := cfg.RequestTimeout(); t > 0 {
		r.Use(middleware.Timeout(t))
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.health)

	r.Route("/vault", func(r chi.Router) {
		r.Post("/generate", s.generateVault)
		r.Get("/", s.vaultByEmail)
		r.Get("/{vaultID}", s.vault)
	})

	r.Route("/disguise", func(r chi.Router) {
		r.Post("/userscrub", s.applyPolicy(svc.ScrubUser))
		r.Post("/anonymize", s.applyPolicy(svc.Anonymize))
		r.Post("/expiration", s.applyPolicy(svc.Expiration))
		r.Post("/clearvault", s.clearVault)
		r.Post("/recover", s.recoverDisguise)
		r.Get("/", s.listDisguises)
		r.Get("/{disguiseID}", s.disguise)
	})

	return r
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
