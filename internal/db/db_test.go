package db

import (
	"path/filepath"
	"testing"
)

func TestNew_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	tables := []string{"items", "cuts", "config", "_migrations"}
	for _, table := range tables {
		var name string
		err := database.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestNew_WALEnabled(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	var journalMode string
	if err := database.Conn().QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode error = %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %s, want wal", journalMode)
	}
}

func TestNew_MigrationsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db1, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var count int
	if err := db2.Conn().QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations error = %v", err)
	}
	if count != 2 {
		t.Errorf("migration count = %d, want 2", count)
	}
}

func TestNew_ResetsInterruptedReadiness(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db1, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = db1.Conn().Exec(`
		INSERT INTO items (id, kind, name, state, created_at, updated_at) VALUES
		('a', 'raw', 'a', 'propagating_metadata', datetime('now'), datetime('now')),
		('b', 'raw', 'b', 'ready', datetime('now'), datetime('now'))
	`)
	if err != nil {
		t.Fatalf("insert items error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	want := map[string]string{"a": "not_ready", "b": "ready"}
	for id, state := range want {
		var got string
		if err := db2.Conn().QueryRow("SELECT state FROM items WHERE id = ?", id).Scan(&got); err != nil {
			t.Fatalf("query item %s error = %v", id, err)
		}
		if got != state {
			t.Errorf("item %s state = %s, want %s", id, got, state)
		}
	}
}

func TestCutsCascadeWithItem(t *testing.T) {
	database, err := New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	conn := database.Conn()
	if _, err := conn.Exec(`INSERT INTO items (id, kind, base_id, created_at, updated_at) VALUES ('d', 'derived', 'r', datetime('now'), datetime('now'))`); err != nil {
		t.Fatalf("insert item error = %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO cuts (item_id, position, start_us, end_us) VALUES ('d', 0, 0, 1000000)`); err != nil {
		t.Fatalf("insert cut error = %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO cuts (item_id, position, start_us, end_us) VALUES ('d', 1, 5, 5)`); err == nil {
		t.Error("empty cut accepted by schema")
	}
	if _, err := conn.Exec(`DELETE FROM items WHERE id = 'd'`); err != nil {
		t.Fatalf("delete item error = %v", err)
	}

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM cuts`).Scan(&n); err != nil {
		t.Fatalf("count cuts error = %v", err)
	}
	if n != 0 {
		t.Errorf("cuts left after delete = %d, want 0", n)
	}
}
