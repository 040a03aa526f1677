// Package app wires the Cassie subsystems into one process: the SQLite
// store, the session backend, the dialogue engine, the intake processor,
// the HTTP API, the optional chat channels, the report digest, and the
// mailbox worker.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cassiedesk/cassie/internal/cassie/advisor"
	"github.com/cassiedesk/cassie/internal/cassie/api"
	"github.com/cassiedesk/cassie/internal/cassie/channels"
	"github.com/cassiedesk/cassie/internal/cassie/config"
	"github.com/cassiedesk/cassie/internal/cassie/engine"
	"github.com/cassiedesk/cassie/internal/cassie/faq"
	"github.com/cassiedesk/cassie/internal/cassie/intake"
	"github.com/cassiedesk/cassie/internal/cassie/mail"
	"github.com/cassiedesk/cassie/internal/cassie/observability"
	"github.com/cassiedesk/cassie/internal/cassie/reports"
	"github.com/cassiedesk/cassie/internal/cassie/session"
	"github.com/cassiedesk/cassie/internal/cassie/store"
)

// App is the assembled Cassie process.
type App struct {
	cfg      *config.Config
	store    *store.Store
	sessions session.Store
	faqs     *faq.Cache
	engine   *engine.Engine
	intake   *intake.Processor
	api      *api.Server
	channels *channels.Manager
	digest   *reports.Digest
	mailbox  *mail.Worker
}

// New assembles the application from cfg. Optional subsystems (LLM advisor,
// Redis sessions, chat channels, mailbox, digest) are constructed only when
// configured; everything else runs on the built-in defaults.
func New(cfg *config.Config) (*App, error) {
	observability.Setup(cfg.LogLevel, cfg.LogFormat)

	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a := &App{cfg: cfg, store: st}

	if cfg.Sessions.RedisAddr != "" {
		rs := session.NewRedisStore(cfg.Sessions.RedisAddr, cfg.Sessions.RedisPassword,
			cfg.Sessions.RedisDB, cfg.Sessions.TTL())
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rs.Ping(pingCtx)
		cancel()
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Sessions.RedisAddr, err)
		}
		a.sessions = rs
		slog.Info("sessions backed by redis", "addr", cfg.Sessions.RedisAddr)
	} else {
		a.sessions = session.NewMemoryStore(cfg.Sessions.TTL())
	}

	adv := buildAdvisor(cfg)

	a.faqs = faq.NewCache(faqSource{st})
	if err := a.faqs.Refresh(context.Background()); err != nil {
		slog.Warn("failed to load faq cache, matching starts empty", "error", err)
	}

	a.engine = engine.New(a.sessions, st, a.faqs, adv, engine.Options{})
	a.intake = intake.New(st, a.faqs, adv)

	a.api = api.New(api.Config{
		Addr:     cfg.HTTPAddr,
		Token:    cfg.APIToken,
		Timezone: cfg.Timezone,
	}, a.engine, a.intake, st, a.faqs, adv)

	if err := a.buildChannels(); err != nil {
		st.Close()
		return nil, err
	}

	if cfg.Digest.Cron != "" {
		digest, err := reports.NewDigest(cfg.Digest.Cron, cfg.Digest.Range, st, nil)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to schedule digest: %w", err)
		}
		a.digest = digest
	}

	if cfg.Mail.Enabled() {
		box, err := mail.NewGmailBox(mail.GmailConfig{
			Token:   cfg.Mail.Token,
			From:    cfg.Mail.Address,
			Query:   cfg.Mail.PollQuery,
			BaseURL: cfg.Mail.BaseURL,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to build mailbox: %w", err)
		}
		worker, err := mail.NewWorker(box, mail.WorkerConfig{
			IngestURL:   ingestURL(cfg.HTTPAddr),
			IngestToken: cfg.APIToken,
			Interval:    cfg.Mail.PollInterval(),
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to build mail worker: %w", err)
		}
		a.mailbox = worker
	}

	return a, nil
}

// buildAdvisor returns the configured LLM advisor, or the disabled stand-in.
func buildAdvisor(cfg *config.Config) *advisor.Advisor {
	opts := advisor.Options{
		Brand:     cfg.Brand,
		Hours:     cfg.SupportHours,
		RateLimit: cfg.LLM.RateLimit,
	}
	if !cfg.LLM.Enabled() {
		return advisor.NewAdvisor(advisor.Disabled(), opts)
	}
	opts.Capabilities = advisor.AllCapabilities()
	provider := advisor.New(advisor.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	})
	slog.Info("llm advisor enabled", "model", cfg.LLM.Model)
	return advisor.NewAdvisor(provider, opts)
}

// buildChannels constructs the configured chat transports. Each channel
// feeds the shared dialogue engine under its own session namespace.
func (a *App) buildChannels() error {
	respond := func(ctx context.Context, sessionID, text, senderName string) string {
		turn, err := a.engine.Process(ctx, sessionID, text, "", senderName)
		if err != nil {
			slog.Error("failed to process channel message", "session", sessionID, "error", err)
			return "Sorry, something went wrong on our side. Please try again in a moment."
		}
		return turn.Reply
	}

	var chans []channels.Channel
	if a.cfg.Channels.Discord.Token != "" {
		dc, err := channels.NewDiscord(channels.DiscordConfig{
			Token: a.cfg.Channels.Discord.Token,
		}, respond)
		if err != nil {
			return fmt.Errorf("failed to build discord channel: %w", err)
		}
		chans = append(chans, dc)
	}
	if a.cfg.Channels.Matrix.Homeserver != "" {
		mc, err := channels.NewMatrix(channels.MatrixConfig{
			Homeserver:  a.cfg.Channels.Matrix.Homeserver,
			UserID:      a.cfg.Channels.Matrix.UserID,
			AccessToken: a.cfg.Channels.Matrix.AccessToken,
		}, respond)
		if err != nil {
			return fmt.Errorf("failed to build matrix channel: %w", err)
		}
		chans = append(chans, mc)
	}
	a.channels = channels.NewManager(chans...)
	return nil
}

// ingestURL derives the loopback ingest endpoint from the listen address, so
// the in-process mail worker posts through the same code path external
// gateways use.
func ingestURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr + "/ingest/message"
}

// Engine exposes the dialogue engine for the in-process REPL.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Store exposes the persistence layer for the CLI subcommands.
func (a *App) Store() *store.Store {
	return a.store
}

// FAQs exposes the live FAQ cache.
func (a *App) FAQs() *faq.Cache {
	return a.faqs
}

// Run starts every subsystem and blocks until the process receives SIGINT
// or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start channels: %w", err)
	}
	if err := a.api.Start(ctx); err != nil {
		a.channels.StopAll()
		return err
	}
	if a.digest != nil {
		go a.digest.Run(ctx)
	}
	if a.mailbox != nil {
		go a.mailbox.Run(ctx)
	}

	slog.Info("cassie running",
		"addr", a.cfg.HTTPAddr,
		"channels", a.channels.Names(),
		"mailbox", a.mailbox != nil,
		"digest", a.digest != nil)

	<-ctx.Done()
	slog.Info("shutdown signal received")
	a.Stop()
	return nil
}

// Stop shuts down every subsystem in reverse start order.
func (a *App) Stop() {
	a.api.Stop()
	a.channels.StopAll()
	if err := a.sessions.Close(); err != nil {
		slog.Warn("failed to close session store", "error", err)
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("failed to close store", "error", err)
	}
}

// faqSource adapts the SQLite FAQ table to the matcher's entry shape.
type faqSource struct {
	st *store.Store
}

func (s faqSource) ListFAQs(ctx context.Context) ([]faq.Entry, error) {
	rows, err := s.st.ListFAQs(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]faq.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, faq.Entry{
			ID:       r.ID,
			Question: r.Question,
			Answer:   r.Answer,
			Keywords: faq.ParseKeywords(r.Keywords),
		})
	}
	return entries, nil
}
