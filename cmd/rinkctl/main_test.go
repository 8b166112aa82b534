package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"rinkdesk/backend/internal/store/memory"
)

func TestRunRequiresCommand(t *testing.T) {
	if err := run(nil, &bytes.Buffer{}); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if err := run([]string{"wipe"}, &bytes.Buffer{}); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error for unknown command, got %v", err)
	}
}

func TestRunRequiresPathAndDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if err := run([]string{"backup"}, &bytes.Buffer{}); err == nil || !strings.Contains(err.Error(), "path") {
		t.Fatalf("expected missing path error, got %v", err)
	}
	if err := run([]string{"restore", "--in", "x.zst"}, &bytes.Buffer{}); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected missing database error, got %v", err)
	}
}

func TestRunValidatesSequenceBackend(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	args := []string{"backup", "--out", "x.zst", "--database-url", "postgres://rink@127.0.0.1:1/rink"}

	err := run(append(args, "--sequence-backend", "redis"), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "REDIS_ADDR") {
		t.Fatalf("expected missing redis address error, got %v", err)
	}
	err = run(append(args, "--sequence-backend", "etcd"), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unknown sequence backend") {
		t.Fatalf("expected unknown backend error, got %v", err)
	}
}

func TestBackupThenRestoreFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rink.json.zst")

	src := memory.New()
	if _, err := src.NextValue(ctx, "ticketNo"); err != nil {
		t.Fatalf("seed counter: %v", err)
	}

	var out bytes.Buffer
	if err := runBackup(ctx, src, path, &out); err != nil {
		t.Fatalf("backup failed: %v", err)
	}
	if !strings.Contains(out.String(), "1 counters") {
		t.Fatalf("unexpected backup output %q", out.String())
	}

	dst := memory.New()
	out.Reset()
	if err := runRestore(ctx, dst, path, &out); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if next, _ := dst.NextValue(ctx, "ticketNo"); next != 2 {
		t.Fatalf("expected restored counter to continue at 2, got %d", next)
	}
}
