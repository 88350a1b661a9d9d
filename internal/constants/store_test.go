package constants

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/aristath/waterbalance/internal/database"
	"github.com/aristath/waterbalance/internal/waterr"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := conn.Exec(database.AppSchema); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSeedIsIdempotent(t *testing.T) {
	conn := newTestDB(t)
	store := NewStore(conn, zerolog.Nop())

	n, err := store.Seed(DefaultSeedYAML)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if n == 0 {
		t.Fatalf("expected seed to insert rows on empty table")
	}

	n2, err := store.Seed(DefaultSeedYAML)
	if err != nil {
		t.Fatalf("Seed (second run): %v", err)
	}
	if n2 != 0 {
		t.Fatalf("expected second seed run to insert 0 rows, got %d", n2)
	}
}

func TestSetEnforcesBoundsAndAppendsAudit(t *testing.T) {
	conn := newTestDB(t)
	store := NewStore(conn, zerolog.Nop())

	if _, err := store.Seed(DefaultSeedYAML); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	if err := store.Set("balance_error_threshold_pct", 500, "tester"); !waterr.Is(err, waterr.InvariantViolation) {
		t.Fatalf("expected InvariantViolation for out-of-bounds write, got %v", err)
	}

	if err := store.Set("balance_error_threshold_pct", 3.0, "tester"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := store.Get("balance_error_threshold_pct")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ConstantValue != 3.0 {
		t.Fatalf("expected updated value 3.0, got %v", got.ConstantValue)
	}

	history, err := store.AuditHistory("balance_error_threshold_pct", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("AuditHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected exactly one audit row, got %d", len(history))
	}
}
