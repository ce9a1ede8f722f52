package storage

import "testing"

func TestNewStoreMemory(t *testing.T) {
	store, err := NewStore("memory", "")
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	if store == nil {
		t.Fatal("expected non-nil store")
	}
	if err := CloseIfSupported(store); err != nil {
		t.Fatalf("close memory store: %v", err)
	}
}

func TestNewStorePostgres(t *testing.T) {
	store, err := NewStore("postgres", "postgres://example/db")
	if err != nil {
		t.Fatalf("new postgres store: %v", err)
	}
	pg, ok := store.(*PostgresStore)
	if !ok || pg.dsn != "postgres://example/db" {
		t.Fatalf("unexpected store: %#v", store)
	}
	if err := CloseIfSupported(store); err != nil {
		t.Fatalf("close unopened store: %v", err)
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore("unknown", "")
	if err == nil {
		t.Fatal("expected unsupported store error")
	}
}

func TestDefaultStoreKindIsBuildable(t *testing.T) {
	if _, err := NewStore(DefaultStoreKind(), t.TempDir()+"/default.db"); err != nil {
		t.Fatalf("default store kind %q: %v", DefaultStoreKind(), err)
	}
}
