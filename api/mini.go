// Package handler is the entrypoint for Vercel-style Go serverless runtimes.
// The file name fixes the route: the platform delivers /api/mini?date= here,
// and the shared router serves that path.
package handler

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/puzzle-proxy/internal/app"
	"github.com/JakeFAU/puzzle-proxy/internal/config"
	"github.com/JakeFAU/puzzle-proxy/internal/logging"
)

var (
	initMu         sync.Mutex
	defaultHandler http.Handler
)

func build() (http.Handler, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("initialize services", zap.Error(err))
		return nil, err
	}
	return a.Server.Handler(), nil
}

// handler returns the shared router, building it on first use. A failed
// build is not cached; the next request tries again.
func handler() (http.Handler, error) {
	initMu.Lock()
	defer initMu.Unlock()
	if defaultHandler != nil {
		return defaultHandler, nil
	}
	h, err := build()
	if err != nil {
		return nil, err
	}
	defaultHandler = h
	return h, nil
}

// Handler serves every request through the same router as the standalone server.
func Handler(w http.ResponseWriter, r *http.Request) {
	h, err := handler()
	if err != nil {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to fetch puzzle data","details":"service misconfigured"}` + "\n"))
		return
	}
	h.ServeHTTP(w, r)
}
