// cassie-gw-mail is the standalone Gmail intake gateway.
//
// It polls a Gmail inbox for unread customer messages, forwards each one to
// the Cassie server's ingest endpoint, emails an acknowledgement carrying the
// ticket tag, and marks the message read. The same worker can run inside the
// server process; this binary exists so the mailbox credential can live on a
// separate host from the ticket database.
//
// Configuration (environment variables):
//
//	CASSIE_INGEST_URL      Ingest endpoint, e.g. http://localhost:8080/ingest/message (required)
//	CASSIE_INGEST_TOKEN    Bearer token for the ingest endpoint (optional)
//	GW_MAIL_ADDRESS        Support mailbox address, used as the ack From (required)
//	GW_MAIL_TOKEN          OAuth bearer token for the Gmail REST API (required)
//	GW_MAIL_BASE_URL       Gmail API base URL override, mainly for tests (optional)
//	GW_MAIL_QUERY          Gmail search query for the sweep (default: unread, no promotions)
//	GW_POLL_INTERVAL       Delay between sweeps (default: "60s")
//	GW_MAX_PER_POLL        Messages handled per sweep (default: 10)
//	LOG_LEVEL              debug, info, warn, error (default: "info")
//	LOG_FORMAT             "text" or "json" (default: "text")
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiedesk/cassie/common/environment"
	"github.com/cassiedesk/cassie/common/version"
	"github.com/cassiedesk/cassie/internal/cassie/mail"
	"github.com/cassiedesk/cassie/internal/cassie/observability"
)

type config struct {
	IngestURL    string
	IngestToken  string
	MailAddress  string
	MailToken    string
	MailBaseURL  string
	MailQuery    string
	PollInterval time.Duration
	MaxPerPoll   int
}

func loadConfig() (*config, error) {
	cfg := &config{
		IngestToken: environment.StringOr("CASSIE_INGEST_TOKEN", ""),
		MailBaseURL: environment.StringOr("GW_MAIL_BASE_URL", ""),
		MailQuery:   environment.StringOr("GW_MAIL_QUERY", mail.DefaultPollQuery),
	}

	var err error
	if cfg.IngestURL, err = environment.RequiredString("CASSIE_INGEST_URL"); err != nil {
		return nil, err
	}
	if cfg.MailAddress, err = environment.RequiredString("GW_MAIL_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.MailToken, err = environment.RequiredString("GW_MAIL_TOKEN"); err != nil {
		return nil, err
	}

	cfg.PollInterval = environment.DurationOr("GW_POLL_INTERVAL", 60*time.Second)
	cfg.MaxPerPoll = environment.IntOr("GW_MAX_PER_POLL", 10)
	return cfg, nil
}

func main() {
	observability.Setup(
		environment.StringOr("LOG_LEVEL", "info"),
		environment.StringOr("LOG_FORMAT", "text"))

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	box, err := mail.NewGmailBox(mail.GmailConfig{
		Token:   cfg.MailToken,
		From:    cfg.MailAddress,
		Query:   cfg.MailQuery,
		BaseURL: cfg.MailBaseURL,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	worker, err := mail.NewWorker(box, mail.WorkerConfig{
		IngestURL:   cfg.IngestURL,
		IngestToken: cfg.IngestToken,
		Interval:    cfg.PollInterval,
		MaxPerPoll:  cfg.MaxPerPoll,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("cassie mail gateway starting",
		"version", version.Version,
		"mailbox", cfg.MailAddress,
		"ingest_url", cfg.IngestURL,
		"interval", cfg.PollInterval)

	worker.Run(ctx)
	slog.Info("cassie mail gateway stopped")
}
