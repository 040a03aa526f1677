package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/cassiedesk/cassie/internal/cassie/store"
)

// Summarizer produces a report summary for a window. *store.Store satisfies
// it.
type Summarizer interface {
	ReportSummary(ctx context.Context, fromUTC, toUTC string) (*store.ReportSummary, error)
}

// Notifier delivers one rendered digest. The digest always logs; a notifier
// additionally pushes the text somewhere visible (a support chat channel).
type Notifier func(ctx context.Context, text string)

// Digest periodically renders a ticket summary on a cron schedule.
type Digest struct {
	cron    string
	preset  string
	source  Summarizer
	notify  Notifier
	checker *gronx.Gronx
	now     func() time.Time
}

// NewDigest validates the cron expression and builds the worker. preset
// names the PresetRange window each digest covers; notify may be nil.
func NewDigest(cronExpr, preset string, source Summarizer, notify Notifier) (*Digest, error) {
	checker := gronx.New()
	if !checker.IsValid(cronExpr) {
		return nil, fmt.Errorf("reports: invalid digest cron %q", cronExpr)
	}
	return &Digest{
		cron:    cronExpr,
		preset:  preset,
		source:  source,
		notify:  notify,
		checker: checker,
		now:     time.Now,
	}, nil
}

// Run ticks once a minute and fires when the cron expression is due. It
// returns when ctx is cancelled.
func (d *Digest) Run(ctx context.Context) {
	slog.Info("digest scheduler started", "cron", d.cron, "preset", d.preset)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("digest scheduler shutting down")
			return
		case tick := <-ticker.C:
			due, err := d.checker.IsDue(d.cron, tick)
			if err != nil {
				slog.Warn("digest cron check failed", "cron", d.cron, "error", err)
				continue
			}
			if due {
				d.fire(ctx)
			}
		}
	}
}

// fire renders and delivers one digest. Failures are logged, never fatal.
func (d *Digest) fire(ctx context.Context) {
	text, err := d.Render(ctx)
	if err != nil {
		slog.Warn("digest render failed", "error", err)
		return
	}
	slog.Info("ticket digest", "preset", d.preset, "digest", text)
	if d.notify != nil {
		d.notify(ctx, text)
	}
}

// Render builds the digest text for the configured preset window.
func (d *Digest) Render(ctx context.Context) (string, error) {
	r := PresetRange(d.preset, d.now())
	summary, err := d.source.ReportSummary(ctx, r.FromUTC, r.ToUTC)
	if err != nil {
		return "", fmt.Errorf("failed to build digest summary: %w", err)
	}
	return FormatSummary(summary), nil
}

// FormatSummary renders a summary as the plain-text block the digest and the
// report CLI print.
func FormatSummary(s *store.ReportSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket summary %s .. %s UTC\n", s.Range.From, s.Range.To)
	fmt.Fprintf(&b, "Total: %d\n", s.Total)

	if len(s.ByStatus) > 0 {
		b.WriteString("By status:\n")
		for _, r := range s.ByStatus {
			fmt.Fprintf(&b, "  %-12s %d\n", r.Status, r.Count)
		}
	}
	if len(s.ByIssueType) > 0 {
		b.WriteString("By issue type:\n")
		for _, r := range s.ByIssueType {
			fmt.Fprintf(&b, "  %-20s %d\n", r.IssueType, r.Count)
		}
	}
	if s.AvgResolutionHours != nil {
		fmt.Fprintf(&b, "Avg resolution: %.2fh\n", *s.AvgResolutionHours)
	}
	if len(s.OpenAging) > 0 {
		b.WriteString("Open ticket age:\n")
		for _, r := range s.OpenAging {
			fmt.Fprintf(&b, "  %-6s %d\n", r.Bucket, r.Count)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
