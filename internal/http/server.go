// Package http exposes the expense service as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"sem/internal/cache"
	"sem/internal/core"
	"sem/internal/log"
	"sem/internal/middleware/trace"
	"sem/internal/services"
)

type Server struct {
	http.Server
	svc   *services.ExpenseService
	trace *trace.Middleware

	// Summary responses are memoized per range. Any write purges the
	// whole cache: a single insert can land in any cached range.
	summaryCache *cache.Cache[core.Summary]

	stopJanitor  chan struct{}
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, svc *services.ExpenseService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		svc:          svc,
		trace:        trace.NewMiddleware(),
		summaryCache: cache.New[core.Summary](64, 5*time.Minute),
		stopJanitor:  make(chan struct{}),
	}
	go s.summaryCache.Janitor(10*time.Minute, s.stopJanitor)

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/expenses", s.handleExpenses)
	mux.HandleFunc("/api/expenses/clear", s.handleClear)
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/import", s.handleImport)
	mux.HandleFunc("/api/export.csv", s.handleExport)
	mux.HandleFunc("/api/categories", s.handleCategories)

	s.Handler = log.Middleware(log.ForComponent("http"))(s.trace.Middleware(mux))
	return s
}

// Shutdown stops the janitor goroutine and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.stopJanitor)
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// invalidateSummaries is called after every successful write.
func (s *Server) invalidateSummaries() {
	s.summaryCache.Purge()
}
