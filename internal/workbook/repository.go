// Package workbook implements the Time-Series Repository: it materializes
// a workbook's six monthly sheets into typed, queryable in-memory frames,
// loading them concurrently. The file is read once by Load; a change to the
// file is picked up only by an explicit Reload, which recomputes the
// signature.
package workbook

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/aristath/waterbalance/internal/domain"
)

// ReloadHook is invoked whenever Reload() purges cached state for this
// workbook path, so collaborators (the persistent cache) can drop their
// own entries in step.
type ReloadHook func(workbookPath string)

// Repository loads and serves the six monthly sheets.
type Repository struct {
	path string
	log  zerolog.Logger

	onReload ReloadHook

	mu        sync.RWMutex
	loaded    bool
	signature string

	environmental map[domain.CalculationPeriod]EnvironmentalRow
	storage       map[domain.CalculationPeriod]map[string]StorageFacilityRow
	production    map[domain.CalculationPeriod]ProductionRow
	consumption   map[domain.CalculationPeriod]ConsumptionRow
	seepage       map[domain.CalculationPeriod]SeepageRow
	discharge     map[domain.CalculationPeriod][]DischargeRow
}

// NewRepository constructs a Repository for the workbook at path.
func NewRepository(path string, log zerolog.Logger, onReload ReloadHook) *Repository {
	return &Repository{
		path:     path,
		log:      log.With().Str("component", "workbook_repository").Logger(),
		onReload: onReload,
	}
}

// Path returns the workbook's filesystem path.
func (r *Repository) Path() string {
	return r.path
}

// Signature returns the last-computed workbook signature.
func (r *Repository) Signature() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.signature
}

// Load idempotently loads all six sheets. On a missing or non-file path it
// marks the repository loaded-empty rather than panicking.
func (r *Repository) Load() error {
	r.mu.Lock()
	if r.loaded {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()
	return r.reloadLocked()
}

// Reload forces a re-read, clearing in-memory frames (and, via onReload,
// the persistent cache entries for this workbook).
func (r *Repository) Reload() error {
	if r.onReload != nil {
		r.onReload(r.path)
	}
	return r.reloadLocked()
}

func (r *Repository) reloadLocked() error {
	start := time.Now()

	sig, sigErr := Signature(r.path)
	if sigErr != nil {
		r.log.Error().Err(sigErr).Str("path", r.path).Msg("workbook not accessible; loading empty")
		r.mu.Lock()
		r.loaded = true
		r.signature = ""
		r.environmental = map[domain.CalculationPeriod]EnvironmentalRow{}
		r.storage = map[domain.CalculationPeriod]map[string]StorageFacilityRow{}
		r.production = map[domain.CalculationPeriod]ProductionRow{}
		r.consumption = map[domain.CalculationPeriod]ConsumptionRow{}
		r.seepage = map[domain.CalculationPeriod]SeepageRow{}
		r.discharge = map[domain.CalculationPeriod][]DischargeRow{}
		r.mu.Unlock()
		return nil
	}

	f, err := excelize.OpenFile(r.path)
	if err != nil {
		r.log.Error().Err(err).Str("path", r.path).Msg("failed to open workbook; loading empty")
		r.mu.Lock()
		r.loaded = true
		r.signature = sig
		r.mu.Unlock()
		return nil
	}
	defer f.Close()

	var wg sync.WaitGroup

	var envOut map[domain.CalculationPeriod]EnvironmentalRow
	var storageOut map[domain.CalculationPeriod]map[string]StorageFacilityRow
	var prodOut map[domain.CalculationPeriod]ProductionRow
	var consOut map[domain.CalculationPeriod]ConsumptionRow
	var seepOut map[domain.CalculationPeriod]SeepageRow
	var dischOut map[domain.CalculationPeriod][]DischargeRow

	run := func(sheet string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					r.log.Error().Interface("panic", p).Str("sheet", sheet).Msg("sheet load panicked; isolated")
				}
			}()
			sheetStart := time.Now()
			fn()
			r.log.Info().Str("sheet", sheet).Dur("elapsed", time.Since(sheetStart)).Msg("sheet loaded")
		}()
	}

	run(SheetEnvironmental, func() { envOut = loadEnvironmental(f, r.log) })
	run(SheetStorageFacilities, func() { storageOut = loadStorage(f, r.log) })
	run(SheetProduction, func() { prodOut = loadProduction(f, r.log) })
	run(SheetConsumption, func() { consOut = loadConsumption(f, r.log) })
	run(SheetSeepageLosses, func() { seepOut = loadSeepage(f, r.log) })
	run(SheetDischarge, func() { dischOut = loadDischarge(f, r.log) })

	wg.Wait()

	r.mu.Lock()
	r.loaded = true
	r.signature = sig
	r.environmental = nonNilEnv(envOut)
	r.storage = nonNilStorage(storageOut)
	r.production = nonNilProd(prodOut)
	r.consumption = nonNilCons(consOut)
	r.seepage = nonNilSeep(seepOut)
	r.discharge = nonNilDisch(dischOut)
	r.mu.Unlock()

	r.log.Info().Dur("elapsed", time.Since(start)).Str("signature", sig).Msg("workbook loaded")
	return nil
}

func nonNilEnv(m map[domain.CalculationPeriod]EnvironmentalRow) map[domain.CalculationPeriod]EnvironmentalRow {
	if m == nil {
		return map[domain.CalculationPeriod]EnvironmentalRow{}
	}
	return m
}
func nonNilStorage(m map[domain.CalculationPeriod]map[string]StorageFacilityRow) map[domain.CalculationPeriod]map[string]StorageFacilityRow {
	if m == nil {
		return map[domain.CalculationPeriod]map[string]StorageFacilityRow{}
	}
	return m
}
func nonNilProd(m map[domain.CalculationPeriod]ProductionRow) map[domain.CalculationPeriod]ProductionRow {
	if m == nil {
		return map[domain.CalculationPeriod]ProductionRow{}
	}
	return m
}
func nonNilCons(m map[domain.CalculationPeriod]ConsumptionRow) map[domain.CalculationPeriod]ConsumptionRow {
	if m == nil {
		return map[domain.CalculationPeriod]ConsumptionRow{}
	}
	return m
}
func nonNilSeep(m map[domain.CalculationPeriod]SeepageRow) map[domain.CalculationPeriod]SeepageRow {
	if m == nil {
		return map[domain.CalculationPeriod]SeepageRow{}
	}
	return m
}
func nonNilDisch(m map[domain.CalculationPeriod][]DischargeRow) map[domain.CalculationPeriod][]DischargeRow {
	if m == nil {
		return map[domain.CalculationPeriod][]DischargeRow{}
	}
	return m
}

// GetRainfall returns the rainfall reading for period, if any.
func (r *Repository) GetRainfall(period domain.CalculationPeriod) *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.environmental[period].RainfallMM
}

// GetEvaporation returns the evaporation reading for period, if any.
func (r *Repository) GetEvaporation(period domain.CalculationPeriod) *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.environmental[period].EvaporationMM
}

// GetPanCoefficient returns the pan coefficient for period, if any.
func (r *Repository) GetPanCoefficient(period domain.CalculationPeriod) *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.environmental[period].PanCoefficient
}

// GetConcentrateProduced returns production tonnage for period, if any.
func (r *Repository) GetConcentrateProduced(period domain.CalculationPeriod) *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.production[period].ConcentrateProducedT
}

// GetConcentrateMoisture returns concentrate moisture percent for period.
func (r *Repository) GetConcentrateMoisture(period domain.CalculationPeriod) *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.production[period].ConcentrateMoisturePercent
}

// GetSlurryDensity returns slurry density for period, if any.
func (r *Repository) GetSlurryDensity(period domain.CalculationPeriod) *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.production[period].SlurryDensityTPerM3
}

// GetTailingsMoisture returns tailings moisture percent for period, if any.
func (r *Repository) GetTailingsMoisture(period domain.CalculationPeriod) *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.production[period].TailingsMoisturePercent
}

// GetConsumption returns the Consumption sheet row for period, if any.
func (r *Repository) GetConsumption(period domain.CalculationPeriod) (ConsumptionRow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.consumption[period]
	return row, ok
}

// GetSeepage returns the Seepage_Losses sheet row for period, if any.
func (r *Repository) GetSeepage(period domain.CalculationPeriod) (SeepageRow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.seepage[period]
	return row, ok
}

// GetDischarge returns every discharge record for period.
func (r *Repository) GetDischarge(period domain.CalculationPeriod) []DischargeRow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]DischargeRow(nil), r.discharge[period]...)
}

// GetAllStorageRaw returns the raw (facility, inflow, outflow) tuples for a
// period without any derived computation.
func (r *Repository) GetAllStorageRaw(period domain.CalculationPeriod) map[string]StorageFacilityRow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]StorageFacilityRow, len(r.storage[period]))
	for k, v := range r.storage[period] {
		out[k] = v
	}
	return out
}

// GetStorageRow returns the raw storage row for one facility/period.
func (r *Repository) GetStorageRow(facilityCode string, period domain.CalculationPeriod) (StorageFacilityRow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.storage[period][facilityCode]
	return row, ok
}

// --- sheet loaders -----------------------------------------------------

func headerIndex(rows [][]string) map[string]int {
	idx := map[string]int{}
	if len(rows) == 0 {
		return idx
	}
	for i, h := range rows[0] {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func cellAt(row []string, idx map[string]int, col string) (string, bool) {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return "", false
	}
	v := strings.TrimSpace(row[i])
	if v == "" {
		return "", false
	}
	return v, true
}

func parseFloatCell(row []string, idx map[string]int, col string) *float64 {
	raw, ok := cellAt(row, idx, col)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}

func parsePeriodCell(row []string, idx map[string]int) (domain.CalculationPeriod, bool) {
	raw, ok := cellAt(row, idx, colDate)
	if !ok {
		return domain.CalculationPeriod{}, false
	}

	layouts := []string{"2006-01-02", "01/02/2006", "1/2/2006", "2006-01-02T15:04:05Z07:00"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return domain.CalculationPeriod{Year: t.Year(), Month: int(t.Month())}, true
		}
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return domain.CalculationPeriod{Year: t.Year(), Month: int(t.Month())}, true
		}
	}
	return domain.CalculationPeriod{}, false
}

func sheetRows(f *excelize.File, sheet string, log zerolog.Logger) [][]string {
	rows, err := f.GetRows(sheet)
	if err != nil {
		log.Warn().Err(err).Str("sheet", sheet).Msg("sheet missing or unreadable; using empty frame")
		return nil
	}
	return rows
}

func loadEnvironmental(f *excelize.File, log zerolog.Logger) map[domain.CalculationPeriod]EnvironmentalRow {
	out := map[domain.CalculationPeriod]EnvironmentalRow{}
	rows := sheetRows(f, SheetEnvironmental, log)
	if len(rows) < 2 {
		return out
	}
	idx := headerIndex(rows)
	for _, row := range rows[1:] {
		period, ok := parsePeriodCell(row, idx)
		if !ok {
			continue
		}
		out[period] = EnvironmentalRow{
			RainfallMM:     parseFloatCell(row, idx, colRainfallMM),
			EvaporationMM:  parseFloatCell(row, idx, colCustomEvaporationMM),
			PanCoefficient: parseFloatCell(row, idx, colPanCoefficient),
		}
	}
	return out
}

func loadStorage(f *excelize.File, log zerolog.Logger) map[domain.CalculationPeriod]map[string]StorageFacilityRow {
	out := map[domain.CalculationPeriod]map[string]StorageFacilityRow{}
	rows := sheetRows(f, SheetStorageFacilities, log)
	if len(rows) < 2 {
		return out
	}
	idx := headerIndex(rows)
	for _, row := range rows[1:] {
		period, ok := parsePeriodCell(row, idx)
		if !ok {
			continue
		}
		code, ok := cellAt(row, idx, colFacilityCode)
		if !ok {
			continue
		}
		if out[period] == nil {
			out[period] = map[string]StorageFacilityRow{}
		}
		out[period][code] = StorageFacilityRow{
			FacilityCode:  code,
			InflowM3:      parseFloatCell(row, idx, colInflowM3),
			OutflowM3:     parseFloatCell(row, idx, colOutflowM3),
			AbstractionM3: parseFloatCell(row, idx, colAbstractionM3),
		}
	}
	return out
}

func loadProduction(f *excelize.File, log zerolog.Logger) map[domain.CalculationPeriod]ProductionRow {
	out := map[domain.CalculationPeriod]ProductionRow{}
	rows := sheetRows(f, SheetProduction, log)
	if len(rows) < 2 {
		return out
	}
	idx := headerIndex(rows)
	for _, row := range rows[1:] {
		period, ok := parsePeriodCell(row, idx)
		if !ok {
			continue
		}
		out[period] = ProductionRow{
			ConcentrateProducedT:       parseFloatCell(row, idx, colConcentrateProducedT),
			ConcentrateMoisturePercent: parseFloatCell(row, idx, colConcentrateMoisturePercent),
			SlurryDensityTPerM3:        parseFloatCell(row, idx, colSlurryDensityTPerM3),
			TailingsMoisturePercent:    parseFloatCell(row, idx, colTailingsMoisturePercent),
		}
	}
	return out
}

func loadConsumption(f *excelize.File, log zerolog.Logger) map[domain.CalculationPeriod]ConsumptionRow {
	out := map[domain.CalculationPeriod]ConsumptionRow{}
	rows := sheetRows(f, SheetConsumption, log)
	if len(rows) < 2 {
		return out
	}
	idx := headerIndex(rows)
	for _, row := range rows[1:] {
		period, ok := parsePeriodCell(row, idx)
		if !ok {
			continue
		}
		out[period] = ConsumptionRow{
			DustSuppressionM3: parseFloatCell(row, idx, colDustSuppressionM3),
			MiningM3:          parseFloatCell(row, idx, colMiningM3),
			DomesticM3:        parseFloatCell(row, idx, colDomesticM3),
			IrrigationM3:      parseFloatCell(row, idx, colIrrigationM3),
			OtherM3:           parseFloatCell(row, idx, colOtherM3),
		}
	}
	return out
}

func loadSeepage(f *excelize.File, log zerolog.Logger) map[domain.CalculationPeriod]SeepageRow {
	out := map[domain.CalculationPeriod]SeepageRow{}
	rows := sheetRows(f, SheetSeepageLosses, log)
	if len(rows) < 2 {
		return out
	}
	idx := headerIndex(rows)
	for _, row := range rows[1:] {
		period, ok := parsePeriodCell(row, idx)
		if !ok {
			continue
		}
		out[period] = SeepageRow{
			SeepageLossM3:       parseFloatCell(row, idx, colSeepageLossM3),
			SeepageGainM3:       parseFloatCell(row, idx, colSeepageGainM3),
			UnaccountedLossesM3: parseFloatCell(row, idx, colUnaccountedLossesM3),
		}
	}
	return out
}

func loadDischarge(f *excelize.File, log zerolog.Logger) map[domain.CalculationPeriod][]DischargeRow {
	out := map[domain.CalculationPeriod][]DischargeRow{}
	rows := sheetRows(f, SheetDischarge, log)
	if len(rows) < 2 {
		return out
	}
	idx := headerIndex(rows)
	for _, row := range rows[1:] {
		period, ok := parsePeriodCell(row, idx)
		if !ok {
			continue
		}
		code, _ := cellAt(row, idx, colFacilityCode)
		volume := parseFloatCell(row, idx, colDischargeVolumeM3)
		if volume == nil {
			continue
		}
		dischargeType, _ := cellAt(row, idx, colDischargeType)
		reason, _ := cellAt(row, idx, colReason)
		approval, _ := cellAt(row, idx, colApprovalReference)

		out[period] = append(out[period], DischargeRow{
			FacilityCode:      code,
			DischargeVolumeM3: *volume,
			DischargeType:     dischargeType,
			Reason:            reason,
			ApprovalReference: approval,
		})
	}
	return out
}
