package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cassiedesk/cassie/internal/cassie/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "cassie.db")
	cfg.HTTPAddr = "127.0.0.1:0"
	return cfg
}

func TestNewAssemblesDefaults(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Stop()

	if a.Engine() == nil || a.Store() == nil || a.FAQs() == nil {
		t.Fatal("core subsystems missing")
	}
	if a.digest != nil {
		t.Error("digest should be off without a cron expression")
	}
	if a.mailbox != nil {
		t.Error("mailbox should be off without an address")
	}
	if len(a.channels.Names()) != 0 {
		t.Errorf("channels = %v, want none", a.channels.Names())
	}
}

func TestEngineAnswersThroughAssembly(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Stop()

	turn, err := a.Engine().Process(context.Background(), "t1", "hello", "", "")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if turn.Reply == "" {
		t.Error("expected a greeting reply")
	}
}

func TestDigestConfigValidated(t *testing.T) {
	cfg := testConfig(t)
	cfg.Digest.Cron = "not a cron"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected invalid cron to fail assembly")
	}
}

func TestIngestURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{":8080", "http://127.0.0.1:8080/ingest/message"},
		{"0.0.0.0:9000", "http://0.0.0.0:9000/ingest/message"},
	}
	for _, tt := range tests {
		if got := ingestURL(tt.in); got != tt.want {
			t.Errorf("ingestURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
