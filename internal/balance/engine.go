// Package balance implements the Balance Engine: it turns the per-facility
// StorageRecords produced by the calculator, together with the monthly
// frames and system constants, into a period-level BalanceResult with
// closure error, recycled-water KPIs, and quality flags.
package balance

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/constants"
	"github.com/aristath/waterbalance/internal/domain"
	"github.com/aristath/waterbalance/internal/waterr"
	"github.com/aristath/waterbalance/internal/workbook"
	"github.com/aristath/waterbalance/pkg/formulas"
)

// FacilityInput is one active facility's calculator output plus its
// transfer totals for the period, as assembled by the orchestrator.
type FacilityInput struct {
	Facility      *domain.StorageFacility
	Record        domain.StorageRecord
	RecordFlags   domain.DataQualityFlags
	TransfersInM3  float64
	TransfersOutM3 float64

	// AuthoritativeInflowTotalM3 and AuthoritativeOutflowTotalM3 come from
	// the Monthly Parameters Store when a facility has a manually reported
	// total for the period (§4.6). When set, they override the engine's
	// own per-facility derivation rather than sitting alongside it unused.
	AuthoritativeInflowTotalM3  *float64
	AuthoritativeOutflowTotalM3 *float64
}

// PeriodInputs bundles everything the engine needs to produce one
// BalanceResult, so it never reaches for I/O on its own.
type PeriodInputs struct {
	Period              domain.CalculationPeriod
	Facilities          []FacilityInput
	TonnesMilled        *float64
	LicenseLimitM3      *float64
	RWDIntensityMeasured *float64
	RecycledOverride    *domain.RecycledWater
	ThresholdPct        float64
}

// Engine computes BalanceResults from PeriodInputs plus the monthly frames
// and system constants.
type Engine struct {
	repo      *workbook.Repository
	constants *constants.Store
	log       zerolog.Logger
}

// New constructs an Engine.
func New(repo *workbook.Repository, constantsStore *constants.Store, log zerolog.Logger) *Engine {
	return &Engine{
		repo:      repo,
		constants: constantsStore,
		log:       log.With().Str("component", "balance_engine").Logger(),
	}
}

// Compute produces the BalanceResult for in.Period. It never fails on
// missing inputs; it only returns an error for contract violations.
func (e *Engine) Compute(in PeriodInputs) (domain.BalanceResult, error) {
	flags := domain.NewDataQualityFlags()

	for _, fi := range in.Facilities {
		if fi.Facility.CapacityM3 < 0 {
			return domain.BalanceResult{}, waterr.New(waterr.InvariantViolation, fmt.Sprintf("facility %s has negative capacity", fi.Facility.Code))
		}
	}

	inflows := e.enumerateInflows(in, &flags)
	outflows := e.enumerateOutflows(in, &flags)
	storageChange := e.storageChange(in, &flags)

	result := domain.BalanceResult{
		Period:       in.Period,
		Inflows:      inflows,
		Outflows:     outflows,
		Storage:      storageChange,
		Facilities:   e.facilityBalances(in),
		QualityFlags: flags,
		ThresholdPct: in.ThresholdPct,
	}
	if result.ThresholdPct <= 0 {
		result.ThresholdPct = e.constants.GetFloat("balance_error_threshold_pct", 5.0)
	}
	result.Classify()

	recycled := e.recycledWater(in)
	result.Recycled = &recycled

	kpis := e.kpis(in, inflows, recycled, &flags)
	result.KPIs = &kpis
	result.QualityFlags = flags

	return result, nil
}

func (e *Engine) enumerateInflows(in PeriodInputs, flags *domain.DataQualityFlags) domain.InflowResult {
	var rainfall float64
	for _, fi := range in.Facilities {
		rainfall += fi.Record.RainfallVolumeM3
	}

	var oreMoisture float64
	concentrate := e.repo.GetConcentrateProduced(in.Period)
	moisture := e.repo.GetConcentrateMoisture(in.Period)
	if concentrate != nil && moisture != nil {
		oreMoisture = *concentrate * (*moisture / 100)
	} else {
		flags.FlagMissing("ore_moisture_m3")
	}

	return domain.InflowResult{
		Rainfall:                rainfall,
		Abstraction:             sumManualInflow(in),
		OreMoisture:             oreMoisture,
		AuthoritativeAdjustment: authoritativeInflowAdjustment(in),
	}
}

// sumManualInflow treats the facility storage row's manual inflow as
// external abstraction: it is the only inflow source besides rainfall
// modeled on the per-facility record.
func sumManualInflow(in PeriodInputs) float64 {
	var total float64
	for _, fi := range in.Facilities {
		total += fi.Record.InflowManualM3
	}
	return total
}

// authoritativeInflowAdjustment folds each facility's Monthly Parameters
// authoritative inflow total, when present, into the system total: the
// difference between the authoritative figure and the facility's
// rainfall+abstraction derivation replaces the derived estimate rather than
// sitting alongside it unused.
func authoritativeInflowAdjustment(in PeriodInputs) float64 {
	var adjustment float64
	for _, fi := range in.Facilities {
		if fi.AuthoritativeInflowTotalM3 == nil {
			continue
		}
		derived := fi.Record.RainfallVolumeM3 + fi.Record.InflowManualM3
		adjustment += *fi.AuthoritativeInflowTotalM3 - derived
	}
	return adjustment
}

func (e *Engine) enumerateOutflows(in PeriodInputs, flags *domain.DataQualityFlags) domain.OutflowResult {
	var evaporation, abstractionToPlant float64
	for _, fi := range in.Facilities {
		evaporation += fi.Record.EvaporationVolumeM3
		abstractionToPlant += fi.Record.AbstractionToPlantM3
	}
	flags.Notes["abstraction_to_plant"] = "facility-local outflow; reported in AbstractionToPlant but excluded from the outflows total"

	seepage := e.seepage(in, flags)

	consumption, haveConsumption := e.repo.GetConsumption(in.Period)
	if !haveConsumption {
		flags.FlagMissing("dust_suppression_m3")
		flags.FlagMissing("mining_m3")
		flags.FlagMissing("domestic_m3")
		flags.FlagMissing("irrigation_m3")
		flags.FlagMissing("other_consumption_m3")
	}

	tailingsLockup := e.tailingsLockup(in, flags)

	var discharge float64
	for _, row := range e.repo.GetDischarge(in.Period) {
		discharge += row.DischargeVolumeM3
	}

	return domain.OutflowResult{
		Evaporation:             evaporation,
		Seepage:                 seepage,
		DustSuppression:         valueOr(consumption.DustSuppressionM3, 0),
		Mining:                  valueOr(consumption.MiningM3, 0),
		Domestic:                valueOr(consumption.DomesticM3, 0),
		Irrigation:              valueOr(consumption.IrrigationM3, 0),
		Other:                   valueOr(consumption.OtherM3, 0),
		TailingsLockup:          tailingsLockup,
		Discharge:               discharge,
		AbstractionToPlant:      abstractionToPlant,
		AuthoritativeAdjustment: authoritativeOutflowAdjustment(in),
	}
}

// authoritativeOutflowAdjustment folds each facility's Monthly Parameters
// authoritative outflow total, when present, into the system total. The
// derivation base is the facility-specific components the engine can
// attribute to one facility (evaporation, abstraction-to-plant); seepage and
// the period-level consumption/discharge/tailings components keep their own
// dedicated derivations regardless of this override.
func authoritativeOutflowAdjustment(in PeriodInputs) float64 {
	var adjustment float64
	for _, fi := range in.Facilities {
		if fi.AuthoritativeOutflowTotalM3 == nil {
			continue
		}
		derived := fi.Record.EvaporationVolumeM3 + fi.Record.AbstractionToPlantM3
		adjustment += *fi.AuthoritativeOutflowTotalM3 - derived
	}
	return adjustment
}

// seepage prefers the direct Seepage_Losses column; absent that, it falls
// back to rate × opening_volume per facility, selected by lining status.
func (e *Engine) seepage(in PeriodInputs, flags *domain.DataQualityFlags) float64 {
	row, ok := e.repo.GetSeepage(in.Period)
	if ok && row.SeepageLossM3 != nil {
		return *row.SeepageLossM3
	}
	flags.FlagEstimated("seepage_m3", "no direct seepage column; derived from opening volume and lining-based rate")

	linedRate := e.constants.GetFloat("seepage_rate_lined_pct", 0.5) / 100
	unlinedRate := e.constants.GetFloat("seepage_rate_unlined_pct", 2.0) / 100

	var total float64
	for _, fi := range in.Facilities {
		if fi.Facility.FacilityType == domain.FacilityTank && fi.Facility.IsLined == nil {
			continue
		}
		rate := unlinedRate
		if fi.Facility.IsLined != nil && *fi.Facility.IsLined {
			rate = linedRate
		}
		total += rate * fi.Record.OpeningVolumeM3
	}
	return total
}

func (e *Engine) tailingsLockup(in PeriodInputs, flags *domain.DataQualityFlags) float64 {
	tonnes := e.repo.GetConcentrateProduced(in.Period)
	moisture := e.repo.GetTailingsMoisture(in.Period)
	density := e.constants.GetFloat("tailings_solids_density_t_per_m3", 2.65)

	if tonnes == nil || moisture == nil || density <= 0 {
		flags.FlagMissing("tailings_lockup_m3")
		return 0
	}
	return *tonnes * (*moisture / 100) / density
}

func (e *Engine) storageChange(in PeriodInputs, flags *domain.DataQualityFlags) domain.StorageChange {
	byFacility := map[string]float64{}
	var delta, netTransfer float64
	for _, fi := range in.Facilities {
		d := fi.Record.ClosingVolumeM3 - fi.Record.OpeningVolumeM3
		byFacility[fi.Facility.Code] = d
		delta += d
		netTransfer += fi.TransfersInM3 - fi.TransfersOutM3
	}
	if netTransfer != 0 {
		flags.FlagEstimated("facility_transfers", fmt.Sprintf("topology transfers do not net to zero (%.2f m3); likely an untracked transfer", netTransfer))
	}
	return domain.StorageChange{Delta: delta, ByFacility: byFacility}
}

func (e *Engine) facilityBalances(in PeriodInputs) []domain.FacilityBalance {
	out := make([]domain.FacilityBalance, 0, len(in.Facilities))
	for _, fi := range in.Facilities {
		out = append(out, domain.FacilityBalance{
			Record:         fi.Record,
			TransfersInM3:  fi.TransfersInM3,
			TransfersOutM3: fi.TransfersOutM3,
		})
	}
	return out
}

// recycledWater returns the period's recirculation flows, which never enter
// the mass balance. It returns in.RecycledOverride when the caller supplies
// one; otherwise every component is zero, since the engine reads no
// recirculation flows (TSF return, RWD return, process recirculation) itself.
func (e *Engine) recycledWater(in PeriodInputs) domain.RecycledWater {
	if in.RecycledOverride != nil {
		return *in.RecycledOverride
	}
	return domain.RecycledWater{}
}

func (e *Engine) kpis(in PeriodInputs, inflows domain.InflowResult, recycled domain.RecycledWater, flags *domain.DataQualityFlags) domain.KPIs {
	var k domain.KPIs

	recycledTotal := recycled.Total()
	freshIn := inflows.Total()
	if freshIn+recycledTotal > 0 {
		pct := recycledTotal / (freshIn + recycledTotal) * 100
		k.RecycledPct = &pct
	}

	if in.TonnesMilled != nil && *in.TonnesMilled > 0 {
		v := freshIn / *in.TonnesMilled
		k.WaterIntensityM3PerTonne = &v
	} else {
		flags.FlagMissing("water_intensity_m3_per_tonne")
	}

	if in.LicenseLimitM3 != nil && *in.LicenseLimitM3 > 0 {
		v := inflows.Abstraction / *in.LicenseLimitM3 * 100
		k.AbstractionPctOfLicense = &v
	} else {
		flags.FlagMissing("abstraction_pct_of_license")
	}

	k.RWDIntensityMeasured = in.RWDIntensityMeasured
	calculated := e.rwdIntensityCalculated(in)
	k.RWDIntensityCalculated = calculated

	if in.RWDIntensityMeasured != nil && calculated != nil && *in.RWDIntensityMeasured != 0 {
		tolerance := e.constants.GetFloat("rwd_cross_check_tolerance_pct", 5.0)
		diffPct := absFloat(*in.RWDIntensityMeasured-*calculated) / absFloat(*in.RWDIntensityMeasured) * 100
		if diffPct > tolerance {
			k.RWDIntensityCrossCheckFlag = true
			flags.Warn(fmt.Sprintf("RWD intensity cross-check: measured=%.4f calculated=%.4f differ by %.2f%% (tolerance %.2f%%)", *in.RWDIntensityMeasured, *calculated, diffPct, tolerance))
		}
	}

	tailingsMoisture := e.repo.GetTailingsMoisture(in.Period)
	if tailingsMoisture == nil {
		density := e.repo.GetSlurryDensity(in.Period)
		if density != nil {
			derived := moistureFromDensity(*density)
			k.TailingsMoistureFromDensity = &derived
			flags.FlagEstimated("tailings_moisture_from_density", "measured tailings moisture absent; derived from slurry density")
		}
	}

	return k
}

// rwdIntensityCalculated derives a comparable RWD intensity value from the
// period's inflow series; returns nil when there is nothing to average over.
func (e *Engine) rwdIntensityCalculated(in PeriodInputs) *float64 {
	var samples []float64
	for _, fi := range in.Facilities {
		samples = append(samples, fi.Record.InflowTotalM3)
	}
	if len(samples) == 0 {
		return nil
	}
	mean := formulas.Mean(samples)
	return &mean
}

// moistureFromDensity is a simple inverse approximation: denser slurry
// implies lower moisture fraction. It is only used when the measured
// tailings moisture column is absent.
func moistureFromDensity(densityTPerM3 float64) float64 {
	if densityTPerM3 <= 1.0 {
		return 100
	}
	return 100 / densityTPerM3
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
