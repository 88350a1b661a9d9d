package alerts

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/database"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "app.db"), Profile: database.ProfileStandard, Name: "app"})
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(database.AppSchema); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return NewRepository(db.Conn(), zerolog.Nop())
}

// S5 — alert emission and deduplication.
func TestS5AlertEmissionAndDeduplication(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.Seed(DefaultSeedYAML); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	eval := New(repo, zerolog.Nop(), nil)
	calcDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// First evaluation: metric=5 < threshold(7) -> new active alert.
	if err := eval.Evaluate(calcDate, Metric{Category: "storage", Name: "days_to_minimum", Value: 5}); err != nil {
		t.Fatalf("Evaluate #1: %v", err)
	}
	active, err := repo.ListActiveByRule("facility_days_to_minimum")
	if err != nil {
		t.Fatalf("ListActiveByRule: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active alert, got %d", len(active))
	}
	firstID := active[0].ID

	// Second evaluation same period, metric=4 -> no new row, metric updated.
	if err := eval.Evaluate(calcDate, Metric{Category: "storage", Name: "days_to_minimum", Value: 4}); err != nil {
		t.Fatalf("Evaluate #2: %v", err)
	}
	active, err = repo.ListActiveByRule("facility_days_to_minimum")
	if err != nil {
		t.Fatalf("ListActiveByRule: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected still 1 active alert, got %d", len(active))
	}
	if active[0].ID != firstID {
		t.Fatalf("expected same alert row reused, got different id")
	}
	if active[0].MetricValue != 4 {
		t.Fatalf("metric_value = %v, want 4", active[0].MetricValue)
	}

	// Third evaluation, metric=9 -> condition no longer holds, auto-resolved.
	if err := eval.Evaluate(calcDate, Metric{Category: "storage", Name: "days_to_minimum", Value: 9}); err != nil {
		t.Fatalf("Evaluate #3: %v", err)
	}
	active, err = repo.ListActiveByRule("facility_days_to_minimum")
	if err != nil {
		t.Fatalf("ListActiveByRule: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected alert to be auto-resolved, still active: %+v", active)
	}
}

func TestRulesCacheRefreshesAfterInvalidate(t *testing.T) {
	repo := newTestRepo(t)
	eval := New(repo, zerolog.Nop(), nil)

	rules, err := eval.rulesFor("storage")
	if err != nil {
		t.Fatalf("rulesFor: %v", err)
	}
	if len(rules) != 0 {
		t.Fatalf("expected no rules before seeding, got %d", len(rules))
	}

	if _, err := repo.Seed(DefaultSeedYAML); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	eval.InvalidateRulesCache()

	rules, err = eval.rulesFor("storage")
	if err != nil {
		t.Fatalf("rulesFor after invalidate: %v", err)
	}
	if len(rules) == 0 {
		t.Fatalf("expected rules after invalidate+seed")
	}
}
