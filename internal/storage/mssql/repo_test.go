package mssql

import (
	"context"
	"errors"
	"strings"
	"testing"

	"auditlog/internal/storage"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"ok url", Config{DSN: "sqlserver://sa:pw@localhost:1433?database=audit", Table: "dbo.access_log"}, ""},
		{"ok ado", Config{DSN: "server=localhost;user id=sa;password=pw;database=audit", Table: "t"}, ""},
		{"empty table", Config{DSN: "sqlserver://localhost", Table: " "}, "table must not be empty"},
		{"bad port", Config{DSN: "sqlserver://localhost:notaport", Table: "t"}, "mssql dsn"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validate(tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("validate() = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestAdapterRegistration(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var gotCfg Config
	closed := false
	newRepository = func(_ context.Context, cfg Config) (*Repository, func(), error) {
		gotCfg = cfg
		return &Repository{}, func() { closed = true }, nil
	}

	repo, err := storage.New(context.Background(), storage.Config{Kind: "mssql", DSN: "sqlserver://x", Table: "dbo.t"})
	if err != nil {
		t.Fatal(err)
	}
	if gotCfg != (Config{DSN: "sqlserver://x", Table: "dbo.t"}) {
		t.Fatalf("cfg = %+v", gotCfg)
	}
	repo.Close()
	if !closed {
		t.Fatal("Close did not call closeFn")
	}

	boom := errors.New("boom")
	newRepository = func(context.Context, Config) (*Repository, func(), error) { return nil, nil, boom }
	if _, err := storage.New(context.Background(), storage.Config{Kind: "mssql"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if d, ok := storage.DialectFor("mssql"); !ok || d.TextType != "NVARCHAR(MAX)" {
		t.Fatal("mssql dialect not registered")
	}
}
