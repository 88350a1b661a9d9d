package workbook

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/aristath/waterbalance/internal/domain"
)

func buildTestWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()

	writeSheet := func(name string, header []string, rows [][]interface{}) {
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

	writeSheet(SheetEnvironmental, []string{"Date", "Rainfall_mm", "Custom_Evaporation_mm", "Pan_Coefficient"},
		[][]interface{}{{"2026-03-01", 50, 30, 0.8}})

	writeSheet(SheetStorageFacilities, []string{"Date", "Facility_Code", "Inflow_m3", "Outflow_m3", "Abstraction_m3"},
		[][]interface{}{{"2026-03-01", "TSF1", 20000, 15000, 1000}})

	writeSheet(SheetProduction, []string{"Date", "Concentrate_Produced_t", "Concentrate_Moisture_Percent", "Slurry_Density_t_per_m3", "Tailings_Moisture_Percent"},
		[][]interface{}{{"2026-03-01", 1000, 8.0, 1.4, 25.0}})

	writeSheet(SheetConsumption, []string{"Date", "Dust_Suppression_m3", "Mining_m3", "Domestic_m3", "Irrigation_m3", "Other_m3"},
		[][]interface{}{{"2026-03-01", 100, 200, 50, 30, 10}})

	writeSheet(SheetSeepageLosses, []string{"Date", "Seepage_Loss_m3", "Seepage_Gain_m3", "Unaccounted_Losses_m3"},
		[][]interface{}{{"2026-03-01", 500, 0, 0}})

	writeSheet(SheetDischarge, []string{"Date", "Facility_Code", "Discharge_Volume_m3", "Discharge_Type", "Reason", "Approval_Reference"},
		[][]interface{}{{"2026-03-01", "TSF1", 2000, "controlled", "excess capacity", "APR-001"}})

	f.DeleteSheet("Sheet1")

	path := filepath.Join(t.TempDir(), "water_balance.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

func TestRepositoryLoadsAllSheetsConcurrently(t *testing.T) {
	path := buildTestWorkbook(t)
	repo := NewRepository(path, zerolog.Nop(), nil)

	if err := repo.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	period := domain.CalculationPeriod{Year: 2026, Month: 3}

	if got := repo.GetRainfall(period); got == nil || *got != 50 {
		t.Fatalf("GetRainfall = %v, want 50", got)
	}
	if got := repo.GetEvaporation(period); got == nil || *got != 30 {
		t.Fatalf("GetEvaporation = %v, want 30", got)
	}

	row, ok := repo.GetStorageRow("TSF1", period)
	if !ok {
		t.Fatalf("expected storage row for TSF1")
	}
	if row.InflowM3 == nil || *row.InflowM3 != 20000 {
		t.Fatalf("InflowM3 = %v, want 20000", row.InflowM3)
	}

	discharge := repo.GetDischarge(period)
	if len(discharge) != 1 || discharge[0].DischargeVolumeM3 != 2000 {
		t.Fatalf("GetDischarge = %+v, want one row of 2000", discharge)
	}

	if repo.Signature() == "" {
		t.Fatalf("expected non-empty signature after load")
	}
}

func TestRepositoryLoadMissingFileIsEmptyNotError(t *testing.T) {
	repo := NewRepository(filepath.Join(t.TempDir(), "does-not-exist.xlsx"), zerolog.Nop(), nil)
	if err := repo.Load(); err != nil {
		t.Fatalf("Load on missing file should not error, got %v", err)
	}
	period := domain.CalculationPeriod{Year: 2026, Month: 3}
	if got := repo.GetRainfall(period); got != nil {
		t.Fatalf("expected nil rainfall for empty repo, got %v", *got)
	}
}

func TestRepositoryReloadPurgesSignatureHook(t *testing.T) {
	path := buildTestWorkbook(t)
	var purged string
	repo := NewRepository(path, zerolog.Nop(), func(p string) { purged = p })

	if err := repo.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := repo.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if purged != path {
		t.Fatalf("expected reload hook called with %q, got %q", path, purged)
	}
}
