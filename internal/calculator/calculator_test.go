package calculator

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/aristath/waterbalance/internal/cache"
	"github.com/aristath/waterbalance/internal/domain"
	"github.com/aristath/waterbalance/internal/workbook"
)

func buildWorkbook(t *testing.T, env, storage [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()

	write := func(name string, header []string, rows [][]interface{}) {
		idx, _ := f.NewSheet(name)
		for c, h := range header {
			cell, _ := excelize.CoordinatesToCellName(c+1, 1)
			f.SetCellValue(name, cell, h)
		}
		for r, row := range rows {
			for c, v := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
				f.SetCellValue(name, cell, v)
			}
		}
		f.SetActiveSheet(idx)
	}

	write(workbook.SheetEnvironmental, []string{"Date", "Rainfall_mm", "Custom_Evaporation_mm", "Pan_Coefficient"}, env)
	write(workbook.SheetStorageFacilities, []string{"Date", "Facility_Code", "Inflow_m3", "Outflow_m3", "Abstraction_m3"}, storage)
	f.DeleteSheet("Sheet1")

	path := filepath.Join(t.TempDir(), "wb.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

func newTestCalculator(t *testing.T, path string) *Calculator {
	t.Helper()
	repo := workbook.NewRepository(path, zerolog.Nop(), nil)
	if err := repo.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, err := cache.New(filepath.Join(t.TempDir(), "cache.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return New(repo, c, zerolog.Nop())
}

func f64(v float64) *float64 { return &v }

// S1 — simple monthly balance, one facility.
func TestS1SimpleMonthlyBalance(t *testing.T) {
	path := buildWorkbook(t,
		[][]interface{}{{"2026-03-01", 50, 30, 0.8}},
		[][]interface{}{{"2026-03-01", "TSF1", 20000, 15000, 1000}},
	)
	calc := newTestCalculator(t, path)

	// Seed the previous month's closing directly into the memo table via a
	// synthetic prior-period compute: the calculator has no raw row for
	// 2026-02, so seed it by priming the in-memory map the way a prior
	// GetStorageRecord call would have.
	calc.memo[facilityPeriodKey{"TSF1", domain.CalculationPeriod{Year: 2026, Month: 2}}] = domain.StorageRecord{
		ClosingVolumeM3: 100000,
	}

	rec, _, err := calc.GetStorageRecord("TSF1", domain.CalculationPeriod{Year: 2026, Month: 3}, 500000, f64(10000))
	if err != nil {
		t.Fatalf("GetStorageRecord: %v", err)
	}

	if rec.OpeningVolumeM3 != 100000 {
		t.Fatalf("opening = %v, want 100000", rec.OpeningVolumeM3)
	}
	if rec.RainfallVolumeM3 != 500 {
		t.Fatalf("rainfall_volume = %v, want 500", rec.RainfallVolumeM3)
	}
	if rec.EvaporationVolumeM3 != 300 {
		t.Fatalf("evaporation_volume = %v, want 300", rec.EvaporationVolumeM3)
	}
	if rec.InflowTotalM3 != 20500 {
		t.Fatalf("inflow_total = %v, want 20500", rec.InflowTotalM3)
	}
	if rec.OutflowTotalM3 != 16300 {
		t.Fatalf("outflow_total = %v, want 16300", rec.OutflowTotalM3)
	}
	if rec.ClosingVolumeM3 != 104200 {
		t.Fatalf("closing = %v, want 104200", rec.ClosingVolumeM3)
	}
	if rec.OverflowM3 != 0 || rec.DeficitM3 != 0 {
		t.Fatalf("expected no overflow/deficit, got overflow=%v deficit=%v", rec.OverflowM3, rec.DeficitM3)
	}
	if len(rec.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", rec.Warnings)
	}
	if rec.LevelPercent != 0.20 {
		t.Fatalf("level_percent = %v, want 0.20", rec.LevelPercent)
	}
}

// S2 — overflow clamp with warning.
func TestS2OverflowClamp(t *testing.T) {
	path := buildWorkbook(t,
		[][]interface{}{{"2026-03-01", 0, 0, 0.8}},
		[][]interface{}{{"2026-03-01", "TSF1", 50000, 0, 0}},
	)
	calc := newTestCalculator(t, path)
	calc.memo[facilityPeriodKey{"TSF1", domain.CalculationPeriod{Year: 2026, Month: 2}}] = domain.StorageRecord{
		ClosingVolumeM3: 480000,
	}

	rec, _, err := calc.GetStorageRecord("TSF1", domain.CalculationPeriod{Year: 2026, Month: 3}, 500000, nil)
	if err != nil {
		t.Fatalf("GetStorageRecord: %v", err)
	}

	if rec.OverflowM3 != 30000 {
		t.Fatalf("overflow = %v, want 30000", rec.OverflowM3)
	}
	if rec.ClosingVolumeM3 != 500000 {
		t.Fatalf("closing = %v, want 500000 (clamped)", rec.ClosingVolumeM3)
	}
	foundOverflowWarning := false
	for _, w := range rec.Warnings {
		if w[:8] == "OVERFLOW" {
			foundOverflowWarning = true
		}
	}
	if !foundOverflowWarning {
		t.Fatalf("expected an OVERFLOW warning, got %v", rec.Warnings)
	}
}

// S3 — deficit clamp with warning.
func TestS3DeficitClamp(t *testing.T) {
	path := buildWorkbook(t,
		[][]interface{}{{"2026-03-01", 0, 0, 0.8}},
		[][]interface{}{{"2026-03-01", "TSF1", 0, 10000, 0}},
	)
	calc := newTestCalculator(t, path)
	calc.memo[facilityPeriodKey{"TSF1", domain.CalculationPeriod{Year: 2026, Month: 2}}] = domain.StorageRecord{
		ClosingVolumeM3: 5000,
	}

	rec, _, err := calc.GetStorageRecord("TSF1", domain.CalculationPeriod{Year: 2026, Month: 3}, 500000, nil)
	if err != nil {
		t.Fatalf("GetStorageRecord: %v", err)
	}

	if rec.DeficitM3 != 5000 {
		t.Fatalf("deficit = %v, want 5000", rec.DeficitM3)
	}
	if rec.ClosingVolumeM3 != 0 {
		t.Fatalf("closing = %v, want 0 (clamped)", rec.ClosingVolumeM3)
	}
	foundDeficitWarning := false
	for _, w := range rec.Warnings {
		if w[:7] == "DEFICIT" {
			foundDeficitWarning = true
		}
	}
	if !foundDeficitWarning {
		t.Fatalf("expected a DEFICIT warning, got %v", rec.Warnings)
	}
}

// Invariant 2: missing previous month falls back to 10% of capacity.
func TestOpeningVolumeBaselineFallback(t *testing.T) {
	path := buildWorkbook(t,
		[][]interface{}{{"2026-01-01", 0, 0, 0.8}},
		[][]interface{}{{"2026-01-01", "TSF1", 1000, 0, 0}},
	)
	calc := newTestCalculator(t, path)

	rec, flags, err := calc.GetStorageRecord("TSF1", domain.CalculationPeriod{Year: 2026, Month: 1}, 500000, nil)
	if err != nil {
		t.Fatalf("GetStorageRecord: %v", err)
	}
	if rec.OpeningVolumeM3 != 50000 {
		t.Fatalf("opening = %v, want 50000 (10%% of capacity)", rec.OpeningVolumeM3)
	}
	if !flags.Estimated["opening_m3"] {
		t.Fatalf("expected opening_m3 flagged estimated")
	}
	if len(flags.Warnings) == 0 {
		t.Fatalf("expected a baseline-fallback warning")
	}
}
