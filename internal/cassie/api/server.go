// Package api exposes Cassie over HTTP: the chat endpoint, the cross-channel
// ingest endpoint, and the admin surface (tickets, reports, FAQ and manual
// management).
//
// Authentication is bearer-token based and optional: with no token
// configured everything is open (dev mode); with one, the chat and health
// endpoints stay open for customers and probes while admin and ingest routes
// require the token. Every request gets a trace id and an access-log line.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cassiedesk/cassie/common/trace"
	"github.com/cassiedesk/cassie/common/wire"
	"github.com/cassiedesk/cassie/internal/cassie/advisor"
	"github.com/cassiedesk/cassie/internal/cassie/engine"
	"github.com/cassiedesk/cassie/internal/cassie/faq"
	"github.com/cassiedesk/cassie/internal/cassie/intake"
	"github.com/cassiedesk/cassie/internal/cassie/reports"
	"github.com/cassiedesk/cassie/internal/cassie/store"
)

// ingestRateLimit is the per-sender ingest budget per minute.
const ingestRateLimit = 30

// Chatter processes one dialogue turn. *engine.Engine satisfies it.
type Chatter interface {
	Process(ctx context.Context, sessionID, text, email, name string) (engine.Turn, error)
}

var _ Chatter = (*engine.Engine)(nil)

// Ingester files one-shot inbound messages. *intake.Processor satisfies it.
type Ingester interface {
	Process(ctx context.Context, msg *wire.InboundMessage) (*wire.Receipt, error)
	ComposeReply(text string) string
}

var _ Ingester = (*intake.Processor)(nil)

// Config configures the server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// Token, when non-empty, is required as "Authorization: Bearer <token>"
	// on admin and ingest routes. Empty disables authentication.
	Token string

	// Timezone is the default reporting timezone name.
	Timezone string
}

// Server is the Cassie HTTP API.
type Server struct {
	cfg     Config
	engine  Chatter
	ingest  Ingester
	store   *store.Store
	faqs    *faq.Cache
	adv     *advisor.Advisor
	server  *http.Server
	idem    *idempotencyCache
	limiter *senderRateLimiter
}

// New wires the server. faqs and adv may be nil; the FAQ and manual routes
// then degrade (no cache refresh, fallback manuals).
func New(cfg Config, eng Chatter, ing Ingester, st *store.Store, faqs *faq.Cache, adv *advisor.Advisor) *Server {
	if adv == nil {
		adv = advisor.NewAdvisor(advisor.Disabled(), advisor.Options{})
	}
	s := &Server{
		cfg:     cfg,
		engine:  eng,
		ingest:  ing,
		store:   st,
		faqs:    faqs,
		adv:     adv,
		idem:    newIdempotencyCache(),
		limiter: newSenderRateLimiter(ingestRateLimit),
	}

	mux := http.NewServeMux()
	// Open routes: the customer-facing chat surface and the probes.
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("POST /chat", s.handleChat)

	// Protected routes: gateway ingest and the admin surface.
	mux.Handle("POST /ingest/message", s.requireToken(s.handleIngest))
	mux.Handle("GET /tickets", s.requireToken(s.handleListTickets))
	mux.Handle("GET /tickets/{id}", s.requireToken(s.handleGetTicket))
	mux.Handle("PATCH /tickets/{id}", s.requireToken(s.handlePatchTicket))
	mux.Handle("GET /reports/summary", s.requireToken(s.handleReportSummary))
	mux.Handle("POST /reports/query", s.requireToken(s.handleReportQuery))
	mux.Handle("POST /faq/upsert", s.requireToken(s.handleFAQUpsert))
	mux.Handle("POST /manual/generate", s.requireToken(s.handleManualGenerate))
	mux.Handle("GET /manual/get", s.requireToken(s.handleManualGet))

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.accessLog(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start binds the listener and serves in the background. It returns once
// the listener is bound so callers can immediately send requests; the
// server shuts down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("api listen %s: %w", s.cfg.Addr, err)
	}
	slog.Info("api server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.server.Shutdown(context.Background())
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

// TestHandler exposes the handler for httptest servers. Tests only.
func (s *Server) TestHandler() http.Handler {
	return s.server.Handler
}

// accessLog stamps a trace id on the request context and logs one line per
// request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = trace.GenerateID()
		}
		ctx := trace.WithTraceID(r.Context(), traceID)

		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(started).Milliseconds(),
			"trace_id", traceID)
	})
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requireToken rejects requests without the configured bearer token. With
// no token configured all requests pass.
func (s *Server) requireToken(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if auth[len("Bearer "):] != s.cfg.Token {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next(w, r)
	})
}

// location resolves the reporting timezone for a request, preferring the
// request's tz over the configured default.
func (s *Server) location(requested string) (*time.Location, error) {
	if requested != "" {
		loc, err := time.LoadLocation(requested)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q", requested)
		}
		return loc, nil
	}
	return reports.Location(s.cfg.Timezone), nil
}
