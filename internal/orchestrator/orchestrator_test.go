package orchestrator

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/alerts"
	"github.com/aristath/waterbalance/internal/balance"
	"github.com/aristath/waterbalance/internal/cache"
	"github.com/aristath/waterbalance/internal/calculator"
	"github.com/aristath/waterbalance/internal/config"
	"github.com/aristath/waterbalance/internal/constants"
	"github.com/aristath/waterbalance/internal/database"
	"github.com/aristath/waterbalance/internal/domain"
	"github.com/aristath/waterbalance/internal/facility"
	"github.com/aristath/waterbalance/internal/history"
	"github.com/aristath/waterbalance/internal/monthlyparams"
	"github.com/aristath/waterbalance/internal/transfers"
	"github.com/aristath/waterbalance/internal/workbook"
)

func newTestOrchestrator(t *testing.T, mode config.BalanceMode) (*Orchestrator, *facility.Service, *history.Store) {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "app.db"), Profile: database.ProfileStandard, Name: "app"})
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(database.AppSchema); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	constantsStore := constants.NewStore(db.Conn(), zerolog.Nop())
	if _, err := constantsStore.Seed(constants.DefaultSeedYAML); err != nil {
		t.Fatalf("constants.Seed: %v", err)
	}

	alertsRepo := alerts.NewRepository(db.Conn(), zerolog.Nop())
	if _, err := alertsRepo.Seed(alerts.DefaultSeedYAML); err != nil {
		t.Fatalf("alerts.Seed: %v", err)
	}
	evaluator := alerts.New(alertsRepo, zerolog.Nop(), nil)

	facilityRepo := facility.NewRepository(db.Conn(), zerolog.Nop())
	facilityService := facility.NewService(facilityRepo, zerolog.Nop(), nil)

	paramsStore := monthlyparams.NewStore(db.Conn(), zerolog.Nop())
	historyStore := history.NewStore(db.Conn(), zerolog.Nop())
	transfersStore := transfers.NewStore(db.Conn(), zerolog.Nop())

	repo := workbook.NewRepository(filepath.Join(t.TempDir(), "missing.xlsx"), zerolog.Nop(), nil)
	if err := repo.Load(); err != nil {
		t.Fatalf("workbook Load: %v", err)
	}
	cacheDB, err := cache.New(filepath.Join(t.TempDir(), "cache.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(func() { cacheDB.Close() })

	calc := calculator.New(repo, cacheDB, zerolog.Nop())
	engine := balance.New(repo, constantsStore, zerolog.Nop())

	orch := New(facilityService, calc, engine, paramsStore, constantsStore, historyStore, transfersStore, evaluator, nil, nil, mode, zerolog.Nop())
	return orch, facilityService, historyStore
}

func surfaceArea(v float64) *float64 { return &v }

func TestOrchestratorClosePersistsHistoryInRegulatorMode(t *testing.T) {
	orch, facilities, historyStore := newTestOrchestrator(t, config.ModeRegulator)

	created, err := facilities.Create(&domain.StorageFacility{
		Code:         "TSF1",
		Name:         "Tailings Storage Facility 1",
		FacilityType: domain.FacilityTSF,
		CapacityM3:   500000,
		SurfaceAreaM2: surfaceArea(10000),
	})
	if err != nil {
		t.Fatalf("Create facility: %v", err)
	}

	period := domain.CalculationPeriod{Year: 2026, Month: 3}
	result, err := orch.Close(period)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(result.Facilities) != 1 {
		t.Fatalf("expected 1 facility balance, got %d", len(result.Facilities))
	}

	rows, err := historyStore.ListByFacility(created.Code)
	if err != nil {
		t.Fatalf("ListByFacility: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 persisted history row in REGULATOR mode, got %d", len(rows))
	}
}

func TestOrchestratorInternalModeSkipsPersistence(t *testing.T) {
	orch, facilities, historyStore := newTestOrchestrator(t, config.ModeInternal)

	created, err := facilities.Create(&domain.StorageFacility{
		Code:         "TSF1",
		Name:         "Tailings Storage Facility 1",
		FacilityType: domain.FacilityTSF,
		CapacityM3:   500000,
	})
	if err != nil {
		t.Fatalf("Create facility: %v", err)
	}

	period := domain.CalculationPeriod{Year: 2026, Month: 3}
	if _, err := orch.Close(period); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rows, err := historyStore.ListByFacility(created.Code)
	if err != nil {
		t.Fatalf("ListByFacility: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no persisted history in INTERNAL mode, got %d", len(rows))
	}
}
