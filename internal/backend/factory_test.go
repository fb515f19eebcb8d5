package backend

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"estoque/internal/config"
	"estoque/internal/core"
	applog "estoque/internal/log"
)

func ptr[T any](v T) *T { return &v }

func testLogger() *applog.Logger {
	return applog.New(applog.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

func TestBackendType(t *testing.T) {
	for _, bt := range GetBackendTypes() {
		if !bt.IsValid() {
			t.Errorf("%s reported invalid", bt)
		}
	}
	if BackendType("sheets").IsValid() {
		t.Error("sheets should not be a valid backend")
	}
	if got := GetBackendTypeStrings(); len(got) != 3 || got[0] != "memory" {
		t.Errorf("GetBackendTypeStrings() = %v", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend, JWTSecret: "s"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend, JWTSecret: "s"}, true},
		{"mysql without dsn", Config{Type: MySQLBackend, JWTSecret: "s"}, true},
		{"missing secret", Config{Type: MemoryBackend}, true},
		{"unknown type", Config{Type: "sheets", JWTSecret: "s"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}

	cfg := &config.Config{
		DataBackend:    "sqlite",
		SQLiteDBPath:   "/tmp/x.db",
		JWTSecret:      "0123456789abcdef",
		SessionTTL:     time.Hour,
		ReportTimezone: "UTC",
	}
	bc, err := FromAppConfig(cfg)
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if bc.Type != SQLiteBackend || bc.SQLiteDBPath != "/tmp/x.db" || bc.Location != time.UTC {
		t.Errorf("unexpected backend config %+v", bc)
	}

	cfg.DataBackend = "sheets"
	if _, err := FromAppConfig(cfg); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func exerciseBackend(t *testing.T, res *BackendResult) {
	t.Helper()
	ctx := context.Background()

	sess, err := res.Identity.SignUp(ctx, "ana@example.com", "secret1", "Ana")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	owner, err := res.Identity.Authenticate(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	rec, err := res.Records.CreateRecord(ctx, owner.ID, core.RecordInput{Name: ptr("Caneca")})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	all, err := res.Records.ListRecords(ctx, owner.ID)
	if err != nil || len(all) != 1 || all[0].ID != rec.ID {
		t.Fatalf("ListRecords = %v, %v", all, err)
	}
	owners, err := res.Store.Owners(ctx)
	if err != nil || len(owners) != 1 || owners[0] != owner.ID {
		t.Fatalf("Owners = %v, %v", owners, err)
	}
}

func TestCreateBackend_Memory(t *testing.T) {
	f := NewFactory(testLogger())
	res, err := f.CreateBackend(context.Background(), Config{Type: MemoryBackend, JWTSecret: "0123456789abcdef"})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	exerciseBackend(t, res)
	if err := res.Cleanup(); err != nil {
		t.Errorf("Cleanup: %v", err)
	}
}

func TestCreateBackend_SQLite(t *testing.T) {
	f := NewFactory(testLogger())
	res, err := f.CreateBackend(context.Background(), Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "estoque.db"),
		JWTSecret:    "0123456789abcdef",
		Location:     time.UTC,
	})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	exerciseBackend(t, res)
	if err := res.Cleanup(); err != nil {
		t.Errorf("Cleanup: %v", err)
	}
}

func TestCreateBackend_InvalidConfig(t *testing.T) {
	f := NewFactory(nil)
	if _, err := f.CreateBackend(context.Background(), Config{Type: SQLiteBackend, JWTSecret: "x"}); err == nil {
		t.Error("expected error for sqlite without path")
	}
}
