package main

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/dopectx/core/internal/app"
)

func newRouter(a *app.App, workspaceID string, log *zap.SugaredLogger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&zapLogFormatter{log: log}))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	h := &invokeHandler{app: a, workspaceID: workspaceID, log: log}

	r.Get("/healthz", h.health)
	r.Post("/v1/invoke", h.invoke)
	r.Get("/v1/stats", h.stats)

	return r
}
