// Package calculator implements the Storage Calculator (§ Storage
// Calculator): the per-facility monthly opening/closing balance, with
// environmental flows, clamping, and an explicit memoized table in place
// of the recursive lazy opening-volume the original design used.
package calculator

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/cache"
	"github.com/aristath/waterbalance/internal/domain"
	"github.com/aristath/waterbalance/internal/workbook"
)

// maxBacktrackMonths bounds how far the calculator will walk backward
// looking for a prior closing volume, guarding against pathological
// workbooks with no data at all.
const maxBacktrackMonths = 600

// facilityPeriodKey is the in-memory memo table key.
type facilityPeriodKey struct {
	facility string
	period   domain.CalculationPeriod
}

// Calculator computes per-facility monthly StorageRecords.
type Calculator struct {
	repo  *workbook.Repository
	cache *cache.Cache
	log   zerolog.Logger

	memo map[facilityPeriodKey]domain.StorageRecord
}

// New constructs a Calculator over repo (raw monthly rows) and cache
// (persistent write-through/read-through store).
func New(repo *workbook.Repository, c *cache.Cache, log zerolog.Logger) *Calculator {
	return &Calculator{
		repo:  repo,
		cache: c,
		log:   log.With().Str("component", "storage_calculator").Logger(),
		memo:  map[facilityPeriodKey]domain.StorageRecord{},
	}
}

// InvalidateFacility drops every in-memory memo entry for a facility code,
// used when the facility service mutates a facility's capacity/surface area.
func (c *Calculator) InvalidateFacility(facilityCode string) {
	for k := range c.memo {
		if k.facility == facilityCode {
			delete(c.memo, k)
		}
	}
}

// GetStorageRecord returns the StorageRecord for (facility, period), along
// with the quality flags accumulated while deriving it. surfaceAreaM2 may
// be nil (environmental flows are then skipped).
func (c *Calculator) GetStorageRecord(facilityCode string, period domain.CalculationPeriod, capacityM3 float64, surfaceAreaM2 *float64) (domain.StorageRecord, domain.DataQualityFlags, error) {
	flags := domain.NewDataQualityFlags()

	if capacityM3 < 0 {
		return domain.StorageRecord{}, flags, fmt.Errorf("capacity_m3 must be >= 0")
	}

	signature := c.repo.Signature()
	if signature != "" {
		if rec, ok := c.cache.Get(c.repo.Path(), facilityCode, period, signature); ok {
			c.memo[facilityPeriodKey{facilityCode, period}] = rec
			return rec, flags, nil
		}
	}
	if rec, ok := c.memo[facilityPeriodKey{facilityCode, period}]; ok {
		return rec, flags, nil
	}

	// Walk backward collecting the chain of periods with no known closing,
	// bounded by maxBacktrackMonths, then compute forward in ascending
	// order so each period observes the previous month's closing exactly
	// once.
	var chain []domain.CalculationPeriod
	cur := period
	depth := 0
	for {
		if _, ok := c.memo[facilityPeriodKey{facilityCode, cur}]; ok {
			break
		}
		chain = append(chain, cur)
		depth++
		if depth >= maxBacktrackMonths {
			break
		}
		cur = cur.Previous()
	}
	reverse(chain)

	opening := 0.0
	// governedByBaseline tracks whether the opening volume fed into the next
	// chain iteration still traces back to the baseline guess below, rather
	// than a real closing volume. An overflow or deficit clamp snaps the
	// running balance to a concrete bound (0 or capacityM3), which severs
	// that lineage: from that period forward the opening is real, not a
	// guess compounded through deltas.
	governedByBaseline := false
	if prior, ok := c.memo[facilityPeriodKey{facilityCode, cur}]; ok {
		opening = prior.ClosingVolumeM3
	} else if len(chain) > 0 {
		// No prior record within the backtrack window: baseline fallback.
		opening = 0
		if capacityM3 > 0 {
			opening = 0.10 * capacityM3
		}
		governedByBaseline = true
	}

	var result domain.StorageRecord
	for _, p := range chain {
		rec, recFlags := c.computePeriod(facilityCode, p, capacityM3, surfaceAreaM2, opening)
		c.memo[facilityPeriodKey{facilityCode, p}] = rec
		if signature != "" {
			_ = c.cache.Put(c.repo.Path(), p, signature, rec)
		}
		if p == period {
			result = rec
			flags.Merge(recFlags)
			if governedByBaseline {
				msg := fmt.Sprintf("baseline opening volume used for %s %s: no prior record", facilityCode, period)
				flags.FlagEstimated("opening_m3", msg)
				flags.Warn(msg)
			}
		}
		if rec.OverflowM3 > 0 || rec.DeficitM3 > 0 {
			governedByBaseline = false
		}
		opening = rec.ClosingVolumeM3
	}

	if len(chain) == 0 {
		result = c.memo[facilityPeriodKey{facilityCode, period}]
	}

	return result, flags, nil
}

func (c *Calculator) computePeriod(facilityCode string, period domain.CalculationPeriod, capacityM3 float64, surfaceAreaM2 *float64, opening float64) (domain.StorageRecord, domain.DataQualityFlags) {
	flags := domain.NewDataQualityFlags()

	row, haveRow := c.repo.GetStorageRow(facilityCode, period)
	if !haveRow {
		flags.FlagMissing("inflow_manual_m3")
		flags.FlagMissing("outflow_manual_m3")
	}

	inflowManual := valueOr(row.InflowM3, 0)
	outflowManual := valueOr(row.OutflowM3, 0)
	abstractionToPlant := valueOr(row.AbstractionM3, 0)
	if row.AbstractionM3 == nil {
		flags.FlagMissing("abstraction_to_plant_m3")
	}

	var rainfallVolume, evaporationVolume float64
	if surfaceAreaM2 != nil && *surfaceAreaM2 > 0 {
		rainfallMM := c.repo.GetRainfall(period)
		evapMM := c.repo.GetEvaporation(period)
		if rainfallMM == nil {
			flags.FlagMissing("rainfall_mm")
		} else {
			rainfallVolume = (*rainfallMM / 1000) * *surfaceAreaM2
		}
		if evapMM == nil {
			flags.FlagMissing("evaporation_mm")
		} else {
			evaporationVolume = (*evapMM / 1000) * *surfaceAreaM2
		}
	}

	inflowTotal := inflowManual + rainfallVolume
	outflowTotal := outflowManual + evaporationVolume + abstractionToPlant

	closing := opening + inflowTotal - outflowTotal

	var overflow, deficit float64
	var warnings []string
	if closing > capacityM3 {
		overflow = closing - capacityM3
		closing = capacityM3
		warnings = append(warnings, fmt.Sprintf("OVERFLOW: closing volume exceeded capacity by %.2f m3", overflow))
	}
	if closing < 0 {
		deficit = -closing
		closing = 0
		warnings = append(warnings, fmt.Sprintf("DEFICIT: closing volume fell below zero by %.2f m3", deficit))
	}

	if capacityM3 > 0 && inflowTotal > 1.5*capacityM3 {
		warnings = append(warnings, "inflow exceeds 150% of capacity")
	}
	if opening > 0 && outflowTotal > 1.2*opening {
		warnings = append(warnings, "outflow exceeds 120% of opening volume")
	}

	levelPercent := 0.0
	if capacityM3 > 0 {
		levelPercent = opening / capacityM3
	}

	rec := domain.StorageRecord{
		FacilityCode:         facilityCode,
		Period:               period,
		OpeningVolumeM3:      opening,
		ClosingVolumeM3:      closing,
		LevelPercent:         levelPercent,
		InflowManualM3:       inflowManual,
		OutflowManualM3:      outflowManual,
		InflowTotalM3:        inflowTotal,
		OutflowTotalM3:       outflowTotal,
		RainfallVolumeM3:     rainfallVolume,
		EvaporationVolumeM3:  evaporationVolume,
		AbstractionToPlantM3: abstractionToPlant,
		OverflowM3:           overflow,
		DeficitM3:            deficit,
		Warnings:             warnings,
	}
	for _, w := range warnings {
		flags.Warn(w)
	}
	return rec, flags
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func reverse(periods []domain.CalculationPeriod) {
	for i, j := 0, len(periods)-1; i < j; i, j = i+1, j-1 {
		periods[i], periods[j] = periods[j], periods[i]
	}
}
