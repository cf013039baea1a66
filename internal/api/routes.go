package api

import (
	"net/http"

	"vip/internal/web"
)

// registerRoutes registers all routes. Method patterns make the mux answer
// other methods with 405 and an Allow header.
func (s *Server) registerRoutes() {
	// Form and prediction
	s.router.HandleFunc("GET /{$}", s.handleIndex)
	s.router.HandleFunc("POST /{$}", s.handlePredict)

	// Training
	s.router.HandleFunc("GET /train", s.handleTrain)
	s.router.HandleFunc("POST /train", s.handleTrain)

	// Run history
	s.router.HandleFunc("GET /runs", s.handleListRuns)
	s.router.HandleFunc("GET /runs/{id}", s.handleGetRun)

	// Health and diagnostics
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /stats", s.handleStats)
	s.router.HandleFunc("GET /metrics", s.handleMetrics)

	s.router.Handle("GET /static/", http.StripPrefix("/static", web.Static()))
}
