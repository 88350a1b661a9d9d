package balance

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/constants"
	"github.com/aristath/waterbalance/internal/database"
	"github.com/aristath/waterbalance/internal/domain"
	"github.com/aristath/waterbalance/internal/workbook"
)

func newTestEngine(t *testing.T) (*Engine, *constants.Store) {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "app.db"), Profile: database.ProfileStandard, Name: "app"})
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(database.AppSchema); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	store := constants.NewStore(db.Conn(), zerolog.Nop())
	if _, err := store.Seed(constants.DefaultSeedYAML); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	repo := workbook.NewRepository(filepath.Join(t.TempDir(), "missing.xlsx"), zerolog.Nop(), nil)
	if err := repo.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	return New(repo, store, zerolog.Nop()), store
}

func boolPtr(b bool) *bool { return &b }

// S4 — closure status derived from aggregate inflows/outflows/storage change.
func TestS4ClosureStatusGreen(t *testing.T) {
	engine, _ := newTestEngine(t)

	facility := &domain.StorageFacility{Code: "TSF1", FacilityType: domain.FacilityTSF, CapacityM3: 2000000, IsLined: boolPtr(true)}

	in := PeriodInputs{
		Period: domain.CalculationPeriod{Year: 2026, Month: 3},
		Facilities: []FacilityInput{
			{
				Facility: facility,
				Record: domain.StorageRecord{
					FacilityCode:    "TSF1",
					OpeningVolumeM3: 500000,
					ClosingVolumeM3: 540000,
					InflowManualM3:  1000000,
					InflowTotalM3:   1000000,
					OutflowManualM3: 940000,
					OutflowTotalM3:  940000,
				},
			},
		},
	}

	result, err := engine.Compute(in)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if result.Storage.Delta != 40000 {
		t.Fatalf("storage delta = %v, want 40000", result.Storage.Delta)
	}
	if got := result.BalanceErrorM3(); got != 20000 {
		t.Fatalf("balance_error_m3 = %v, want 20000", got)
	}
	if got := result.ErrorPct(); got != 2.0 {
		t.Fatalf("error_pct = %v, want 2.0", got)
	}
	if result.Status != domain.StatusGreen {
		t.Fatalf("status = %v, want GREEN", result.Status)
	}
}

func TestComputeRejectsNegativeCapacity(t *testing.T) {
	engine, _ := newTestEngine(t)
	in := PeriodInputs{
		Period: domain.CalculationPeriod{Year: 2026, Month: 3},
		Facilities: []FacilityInput{
			{Facility: &domain.StorageFacility{Code: "BAD", CapacityM3: -1}},
		},
	}
	if _, err := engine.Compute(in); err == nil {
		t.Fatalf("expected error for negative capacity")
	}
}

func TestRecycledPctKPI(t *testing.T) {
	engine, _ := newTestEngine(t)
	tonnes := 1000.0
	in := PeriodInputs{
		Period: domain.CalculationPeriod{Year: 2026, Month: 3},
		Facilities: []FacilityInput{
			{
				Facility: &domain.StorageFacility{Code: "TSF1", CapacityM3: 500000, IsLined: boolPtr(true)},
				Record: domain.StorageRecord{
					FacilityCode:    "TSF1",
					OpeningVolumeM3: 100000,
					ClosingVolumeM3: 104200,
					InflowManualM3:  20000,
					InflowTotalM3:   20500,
					OutflowManualM3: 16000,
					OutflowTotalM3:  16300,
				},
			},
		},
		TonnesMilled: &tonnes,
		RecycledOverride: &domain.RecycledWater{TSFReturn: 5000},
	}

	result, err := engine.Compute(in)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if result.KPIs.RecycledPct == nil {
		t.Fatalf("expected recycled_pct to be computed")
	}
	if result.KPIs.WaterIntensityM3PerTonne == nil {
		t.Fatalf("expected water_intensity_m3_per_tonne to be computed")
	}
}
