package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenWithoutConfigUsesDefaults(t *testing.T) {
	workspace := t.TempDir()
	a, err := Open(Options{Workspace: workspace, LogLevel: "error"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()

	if a.Config.Server.BasePath != "/v1" {
		t.Fatalf("expected default base path, got %q", a.Config.Server.BasePath)
	}
	if _, err := os.Stat(LogDir(workspace)); err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	workspace := t.TempDir()
	path := filepath.Join(workspace, "nomina.yml")
	if err := os.WriteFile(path, []byte("cycle:\n  anchor_weekday: someday\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Open(Options{Workspace: workspace}); err == nil {
		t.Fatalf("expected invalid anchor weekday to fail")
	}
}

func TestEnsureBootstrapAdminGrantsOnce(t *testing.T) {
	a, err := Open(Options{Workspace: t.TempDir(), LogLevel: "error"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	ctx := context.Background()

	granted, err := a.EnsureBootstrapAdmin(ctx, "first")
	if err != nil || !granted {
		t.Fatalf("expected first bootstrap to grant, got %v %v", granted, err)
	}
	roles, err := a.Engine.ActorRoles(ctx, "first")
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	if !a.Config.Escalated(roles) {
		t.Fatalf("bootstrap actor should be escalated, roles %v", roles)
	}

	granted, err = a.EnsureBootstrapAdmin(ctx, "second")
	if err != nil || granted {
		t.Fatalf("expected second bootstrap to be a no-op, got %v %v", granted, err)
	}
}
