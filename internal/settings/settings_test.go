package settings

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "settings.json"))

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.DB.Host != "127.0.0.1" || loaded.DB.Port != 5432 || loaded.DB.SSLMode != "prefer" {
		t.Errorf("unexpected default db settings: %+v", loaded.DB)
	}
	if len(loaded.Connections) != 0 {
		t.Errorf("expected no connections, got %d", len(loaded.Connections))
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "settings.json"))

	db := DbSettings{Host: "db.internal", Port: 5433, Database: "ulogger", User: "svc", Password: "secret", SSLMode: "require"}
	if err := store.SaveDbSettings(db); err != nil {
		t.Fatalf("SaveDbSettings returned error: %v", err)
	}

	loaded, err := store.GetDbSettings()
	if err != nil {
		t.Fatalf("GetDbSettings returned error: %v", err)
	}
	if loaded != db {
		t.Errorf("loaded db settings %+v, want %+v", loaded, db)
	}
}

func TestUpsertConnectionAssignsIncrementingIDs(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "settings.json"))

	first, err := store.UpsertConnection(ConnectionConfig{Name: "line-1", Type: ConnectionMbox})
	if err != nil {
		t.Fatalf("UpsertConnection returned error: %v", err)
	}
	if first.ID == nil || *first.ID != 1 {
		t.Fatalf("expected first connection id 1, got %v", first.ID)
	}

	second, err := store.UpsertConnection(ConnectionConfig{Name: "line-2", Type: ConnectionMboxCounter})
	if err != nil {
		t.Fatalf("UpsertConnection returned error: %v", err)
	}
	if second.ID == nil || *second.ID != 2 {
		t.Fatalf("expected second connection id 2, got %v", second.ID)
	}

	connections, err := store.GetConnections()
	if err != nil {
		t.Fatalf("GetConnections returned error: %v", err)
	}
	if len(connections) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(connections))
	}
}

func TestUpsertConnectionRejectsDuplicateName(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "settings.json"))

	if _, err := store.UpsertConnection(ConnectionConfig{Name: "line-1", Type: ConnectionMbox}); err != nil {
		t.Fatalf("first UpsertConnection returned error: %v", err)
	}

	_, err := store.UpsertConnection(ConnectionConfig{Name: "line-1", Type: ConnectionMboxCounter})
	if err == nil {
		t.Fatal("expected a name-collision error, got nil")
	}
	if _, ok := err.(*ErrConnectionNameExists); !ok {
		t.Errorf("expected *ErrConnectionNameExists, got %T", err)
	}
}

func TestUpsertConnectionAllowsUpdatingItself(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "settings.json"))

	created, err := store.UpsertConnection(ConnectionConfig{Name: "line-1", Type: ConnectionMbox})
	if err != nil {
		t.Fatalf("UpsertConnection returned error: %v", err)
	}

	created.Autostart = true
	if _, err := store.UpsertConnection(created); err != nil {
		t.Fatalf("self-update UpsertConnection returned error: %v", err)
	}

	got, found, err := store.GetConnection(*created.ID)
	if err != nil {
		t.Fatalf("GetConnection returned error: %v", err)
	}
	if !found {
		t.Fatal("expected connection to be found")
	}
	if !got.Autostart {
		t.Error("expected Autostart to be persisted as true")
	}
}

func TestDeleteConnectionRemovesIt(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "settings.json"))

	created, err := store.UpsertConnection(ConnectionConfig{Name: "line-1", Type: ConnectionMbox})
	if err != nil {
		t.Fatalf("UpsertConnection returned error: %v", err)
	}

	deleted, err := store.DeleteConnection(*created.ID)
	if err != nil {
		t.Fatalf("DeleteConnection returned error: %v", err)
	}
	if !deleted {
		t.Fatal("expected DeleteConnection to report the connection was found and removed")
	}

	_, found, err := store.GetConnection(*created.ID)
	if err != nil {
		t.Fatalf("GetConnection returned error: %v", err)
	}
	if found {
		t.Error("expected connection to be gone after delete")
	}
}

func TestDeleteConnectionReportsNotFound(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "settings.json"))

	deleted, err := store.DeleteConnection(999)
	if err != nil {
		t.Fatalf("DeleteConnection returned error: %v", err)
	}
	if deleted {
		t.Error("expected DeleteConnection to report not-found for an unknown id")
	}
}

func TestUpsertConnectionNormalizesBlankOptionalStrings(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "settings.json"))

	blank := "   "
	created, err := store.UpsertConnection(ConnectionConfig{
		Name:      "line-1",
		Type:      ConnectionMbox,
		TableName: &blank,
	})
	if err != nil {
		t.Fatalf("UpsertConnection returned error: %v", err)
	}
	if created.TableName != nil {
		t.Errorf("expected blank table name to normalize to nil, got %q", *created.TableName)
	}
}
