package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Anchor() != time.Monday {
		t.Fatalf("expected monday anchor, got %v", cfg.Anchor())
	}
	if cfg.Alerts.CodePrefix != "ALR" {
		t.Fatalf("unexpected prefix %q", cfg.Alerts.CodePrefix)
	}
	if !cfg.Escalated([]string{"supervisor", "coordinator"}) {
		t.Fatalf("coordinator should be escalated")
	}
	if cfg.Escalated([]string{"supervisor"}) {
		t.Fatalf("supervisor should not be escalated")
	}
}

func TestFromYAMLOverridesAndKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("cycle:\n  anchor_weekday: Thursday\n  timezone: UTC\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Anchor() != time.Thursday {
		t.Fatalf("expected thursday, got %v", cfg.Anchor())
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC location")
	}
	if len(cfg.Ledger.EscalatedRoles) != 2 {
		t.Fatalf("expected default escalated roles, got %v", cfg.Ledger.EscalatedRoles)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"weekday":  "cycle:\n  anchor_weekday: someday\n",
		"timezone": "cycle:\n  timezone: Mars/Olympus\n",
		"prefix":   "alerts:\n  code_prefix: \"\"\n",
		"base":     "server:\n  base_path: v1\n",
	}
	for name, raw := range cases {
		if _, err := FromYAML([]byte(raw)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg == nil || cfg.Cycle.AnchorWeekday != "monday" {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadMissingFileMentionsPath(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "nomina.yml") {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nomina.yml"), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err != nil {
		t.Fatalf("load generated default: %v", err)
	}
}
