package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type nopRepo struct{}

func (nopRepo) CopyFrom(_ context.Context, _ []string, rows [][]any) (int64, error) {
	return int64(len(rows)), nil
}
func (nopRepo) Exec(context.Context, string) error { return nil }
func (nopRepo) Close()                             {}

func TestNewPassesConfigToFactory(t *testing.T) {
	t.Parallel()

	var got Config
	Register("cfg-capture", func(_ context.Context, cfg Config) (Repository, error) {
		got = cfg
		return nopRepo{}, nil
	})

	want := Config{
		Kind:    "cfg-capture",
		DSN:     "file:audit.db",
		Table:   "audit.access_log",
		Columns: []string{"requestid", "op", "p1"},
	}
	repo, err := New(context.Background(), want)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer repo.Close()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("factory got %+v, want %+v", got, want)
	}
}

func TestNewUnsupportedKind(t *testing.T) {
	t.Parallel()

	for _, kind := range []string{"", "mysql", "SQLITE"} {
		_, err := New(context.Background(), Config{Kind: kind})
		if err == nil || err.Error() != "unsupported storage.kind="+kind {
			t.Fatalf("kind %q: err = %v", kind, err)
		}
	}
}

func TestRegisterReplacesFactory(t *testing.T) {
	t.Parallel()

	var used string
	Register("replaced", func(context.Context, Config) (Repository, error) {
		used = "first"
		return nopRepo{}, nil
	})
	Register("replaced", func(context.Context, Config) (Repository, error) {
		used = "second"
		return nopRepo{}, nil
	})
	if _, err := New(context.Background(), Config{Kind: "replaced"}); err != nil {
		t.Fatal(err)
	}
	if used != "second" {
		t.Fatalf("factory used = %q, want second", used)
	}
}

func TestListKindsSortedCopy(t *testing.T) {
	t.Parallel()

	Register("zz-kind", func(context.Context, Config) (Repository, error) { return nopRepo{}, nil })
	Register("aa-kind", func(context.Context, Config) (Repository, error) { return nopRepo{}, nil })

	a := ListKinds()
	for i := 1; i < len(a); i++ {
		if a[i-1] > a[i] {
			t.Fatalf("ListKinds not sorted: %v", a)
		}
	}
	a[0] = "mutated"
	if ListKinds()[0] == "mutated" {
		t.Fatal("ListKinds shares its backing array")
	}
}

func TestFactoryErrorIsReturned(t *testing.T) {
	t.Parallel()

	want := errors.New("dial tcp: connection refused")
	Register("unreachable", func(context.Context, Config) (Repository, error) { return nil, want })

	if _, err := New(context.Background(), Config{Kind: "unreachable"}); !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}
