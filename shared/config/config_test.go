package config

import "testing"

func TestParseCSV(t *testing.T) {
	got := parseCSV("a, b, ,c,,")
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestParseAnyCSV(t *testing.T) {
	raw := []any{"x", " ", "y"}
	got := parseAnyCSV(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0] != "x" || got[1] != "y" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("CONFIG_PATH", "")
	cfg, _ := Load("api", 8080)
	if cfg.SLAHighMinutes != 10 || cfg.SLAMediumMinutes != 20 || cfg.SLALowMinutes != 45 {
		t.Fatalf("unexpected SLA defaults: %d/%d/%d", cfg.SLAHighMinutes, cfg.SLAMediumMinutes, cfg.SLALowMinutes)
	}
	if cfg.SLAOverdueGate != "open" {
		t.Fatalf("unexpected default gate: %q", cfg.SLAOverdueGate)
	}
	if cfg.ConfirmRewardPoints != 10 {
		t.Fatalf("unexpected reward default: %d", cfg.ConfirmRewardPoints)
	}
}

func TestLoadRejectsBadGate(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("SLA_OVERDUE_GATE", "sometimes")
	cfg, problems := Load("api", 8080)
	if cfg.SLAOverdueGate != "open" {
		t.Fatalf("expected fallback to open, got %q", cfg.SLAOverdueGate)
	}
	found := false
	for _, p := range problems {
		if p.Field == "SLA_OVERDUE_GATE" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected SLA_OVERDUE_GATE problem, got %#v", problems)
	}
}
