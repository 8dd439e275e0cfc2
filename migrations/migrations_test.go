package migrations

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestEmbeddedMigrationsHaveUpAndDown(t *testing.T) {
	t.Parallel()

	files, err := fs.Glob(FS, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("expected embedded migrations")
	}
	for _, name := range files {
		data, err := fs.ReadFile(FS, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		body := string(data)
		if !strings.Contains(body, "-- +goose Up") || !strings.Contains(body, "-- +goose Down") {
			t.Fatalf("%s is missing goose annotations", name)
		}
	}
}

// Recipients that differ only in case are distinct rows, so the unique key
// on (campaign_id, email) must compare bytes.
func TestRecipientEmailUsesBinaryCollation(t *testing.T) {
	t.Parallel()

	data, err := fs.ReadFile(FS, "00001_campaigns.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != "email" {
			continue
		}
		if !strings.Contains(line, "COLLATE utf8mb4_bin") {
			t.Fatalf("email column must use utf8mb4_bin, got %q", strings.TrimSpace(line))
		}
		return
	}
	t.Fatalf("email column not found")
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	t.Parallel()

	log, _ := test.NewNullLogger()
	err := Run(context.Background(), nil, "sideways", log)
	if err == nil || !strings.Contains(err.Error(), "unknown migrate command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestGooseLoggerNeverExits(t *testing.T) {
	t.Parallel()

	log, hook := test.NewNullLogger()
	g := &gooseLogger{log: log}
	g.Fatalf("boom %d", 1)

	if len(hook.Entries) != 1 || hook.LastEntry().Level != logrus.ErrorLevel {
		t.Fatalf("expected one error entry, got %+v", hook.Entries)
	}
	if hook.LastEntry().Message != "boom 1" {
		t.Fatalf("unexpected message %q", hook.LastEntry().Message)
	}
}
