package environment_test

import (
	"testing"
	"time"

	"github.com/cassiedesk/cassie/common/environment"
)

func TestStringOr(t *testing.T) {
	t.Setenv("GW_MAIL_QUERY", "is:unread")
	if got := environment.StringOr("GW_MAIL_QUERY", "fallback"); got != "is:unread" {
		t.Errorf("set variable: got %q", got)
	}
	if got := environment.StringOr("GW_MAIL_QUERY_MISSING", "fallback"); got != "fallback" {
		t.Errorf("unset variable: got %q", got)
	}
}

func TestRequiredString(t *testing.T) {
	t.Setenv("GW_MAIL_TOKEN", "tok-123")
	v, err := environment.RequiredString("GW_MAIL_TOKEN")
	if err != nil {
		t.Fatalf("RequiredString failed: %v", err)
	}
	if v != "tok-123" {
		t.Errorf("got %q", v)
	}

	if _, err := environment.RequiredString("GW_MAIL_TOKEN_MISSING"); err == nil {
		t.Error("expected error for missing variable")
	}
}

func TestBoolOr(t *testing.T) {
	t.Setenv("FLAG_ON", "true")
	t.Setenv("FLAG_OFF", "0")
	t.Setenv("FLAG_JUNK", "maybe")

	if !environment.BoolOr("FLAG_ON", false) {
		t.Error("FLAG_ON should be true")
	}
	if environment.BoolOr("FLAG_OFF", true) {
		t.Error("FLAG_OFF should be false")
	}
	if !environment.BoolOr("FLAG_JUNK", true) {
		t.Error("unparsable value should yield the default")
	}
	if !environment.BoolOr("FLAG_MISSING", true) {
		t.Error("missing variable should yield the default")
	}
}

func TestIntOr(t *testing.T) {
	t.Setenv("GW_MAX_PER_POLL", "25")
	t.Setenv("GW_MAX_PER_POLL_BAD", "lots")

	if got := environment.IntOr("GW_MAX_PER_POLL", 10); got != 25 {
		t.Errorf("got %d, want 25", got)
	}
	if got := environment.IntOr("GW_MAX_PER_POLL_BAD", 10); got != 10 {
		t.Errorf("unparsable value: got %d, want default 10", got)
	}
	if got := environment.IntOr("GW_MAX_PER_POLL_MISSING", 10); got != 10 {
		t.Errorf("missing variable: got %d, want default 10", got)
	}
}

func TestDurationOr(t *testing.T) {
	t.Setenv("GW_POLL_INTERVAL", "90s")
	if got := environment.DurationOr("GW_POLL_INTERVAL", time.Minute); got != 90*time.Second {
		t.Errorf("got %v, want 90s", got)
	}
	if got := environment.DurationOr("GW_POLL_INTERVAL_MISSING", time.Minute); got != time.Minute {
		t.Errorf("missing variable: got %v, want 1m", got)
	}
}

func TestStringSliceOr(t *testing.T) {
	t.Setenv("CHANNELS", "discord, matrix , email")
	got := environment.StringSliceOr("CHANNELS", nil)
	if len(got) != 3 || got[0] != "discord" || got[1] != "matrix" || got[2] != "email" {
		t.Errorf("got %v", got)
	}

	t.Setenv("CHANNELS_BLANK", " , ,")
	fallback := []string{"chat"}
	if got := environment.StringSliceOr("CHANNELS_BLANK", fallback); len(got) != 1 || got[0] != "chat" {
		t.Errorf("blank list: got %v, want fallback", got)
	}
	if got := environment.StringSliceOr("CHANNELS_MISSING", fallback); len(got) != 1 || got[0] != "chat" {
		t.Errorf("missing variable: got %v, want fallback", got)
	}
}
