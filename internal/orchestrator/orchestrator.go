// Package orchestrator wires the calculator, balance engine, alert
// evaluator, and persistence stores into a single monthly-close operation,
// under one of three modes: REGULATOR, INTERNAL, AUDIT.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/alerts"
	"github.com/aristath/waterbalance/internal/balance"
	"github.com/aristath/waterbalance/internal/calculator"
	"github.com/aristath/waterbalance/internal/config"
	"github.com/aristath/waterbalance/internal/constants"
	"github.com/aristath/waterbalance/internal/domain"
	"github.com/aristath/waterbalance/internal/events"
	"github.com/aristath/waterbalance/internal/facility"
	"github.com/aristath/waterbalance/internal/monthlyparams"
	"github.com/aristath/waterbalance/internal/waterr"
)

// internalModeLooseningFactor widens the closure-error threshold for
// INTERNAL-mode reviews, which care about catching gross errors rather than
// regulatory-grade precision.
const internalModeLooseningFactor = 2.0

// StorageHistoryStore is the subset of persistence the orchestrator needs
// to record each period's closed-out facility balances.
type StorageHistoryStore interface {
	Upsert(domain.StorageHistory) error
}

// TransferStore is the subset of persistence the orchestrator needs to
// read topology transfers for a period.
type TransferStore interface {
	ListByPeriod(year, month int) ([]domain.FacilityTransfer, error)
}

// Archiver offsite-archives a closed period's BalanceResult. Only AUDIT
// mode invokes it.
type Archiver interface {
	ArchiveBalanceResult(ctx context.Context, period domain.CalculationPeriod, result domain.BalanceResult) error
}

// archiveTimeout bounds how long Close waits on the archiver before giving
// up and logging a warning; archival failure never fails the close itself.
const archiveTimeout = 30 * time.Second

// Orchestrator runs one monthly close: validate, compute per-facility
// records, run the engine, evaluate alerts, persist where the mode
// requires it.
type Orchestrator struct {
	facilities *facility.Service
	calc       *calculator.Calculator
	engine     *balance.Engine
	params     *monthlyparams.Store
	constants  *constants.Store
	history    StorageHistoryStore
	transfers  TransferStore
	evaluator  *alerts.Evaluator
	events     *events.Manager
	archiver   Archiver
	mode       config.BalanceMode
	log        zerolog.Logger
}

// New constructs an Orchestrator. history and transfers may be nil, in
// which case persistence and topology cross-checks are skipped. evmgr may
// be nil, in which case no domain events are emitted. archiver may be nil,
// in which case AUDIT mode closes without offsite archival.
func New(
	facilities *facility.Service,
	calc *calculator.Calculator,
	engine *balance.Engine,
	params *monthlyparams.Store,
	constantsStore *constants.Store,
	history StorageHistoryStore,
	transfers TransferStore,
	evaluator *alerts.Evaluator,
	evmgr *events.Manager,
	archiver Archiver,
	mode config.BalanceMode,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		facilities: facilities,
		calc:       calc,
		engine:     engine,
		params:     params,
		constants:  constantsStore,
		history:    history,
		transfers:  transfers,
		evaluator:  evaluator,
		events:     evmgr,
		archiver:   archiver,
		mode:       mode,
		log:        log.With().Str("component", "balance_orchestrator").Logger(),
	}
}

// thresholdPct returns the closure-error threshold to classify this
// period's BalanceResult against: the constants-store default for
// REGULATOR and AUDIT, widened for INTERNAL review.
func (o *Orchestrator) thresholdPct() float64 {
	base := o.constants.GetFloat("balance_error_threshold_pct", 5.0)
	if o.mode == config.ModeInternal {
		return base * internalModeLooseningFactor
	}
	return base
}

// Close runs the full monthly close for period and returns the resulting
// BalanceResult.
func (o *Orchestrator) Close(period domain.CalculationPeriod) (domain.BalanceResult, error) {
	if o.events != nil {
		o.events.Emit(events.MonthlyCloseStarted, "orchestrator", map[string]interface{}{"period": period.String(), "mode": string(o.mode)})
	}

	active, err := o.facilities.ListByStatus(domain.StatusActive)
	if err != nil {
		return domain.BalanceResult{}, err
	}

	transfersInByFacility, transfersOutByFacility, err := o.transferTotals(period)
	if err != nil {
		return domain.BalanceResult{}, err
	}

	facilityInputs := make([]balance.FacilityInput, 0, len(active))
	for _, f := range active {
		if f.CapacityM3 < 0 {
			return domain.BalanceResult{}, waterr.New(waterr.InvariantViolation, fmt.Sprintf("facility %s has negative capacity", f.Code))
		}

		rec, recFlags, err := o.calc.GetStorageRecord(f.Code, period, f.CapacityM3, f.SurfaceAreaM2)
		if err != nil {
			return domain.BalanceResult{}, err
		}

		var authInflow, authOutflow *float64
		if mp, err := o.params.GetByPeriod(f.ID, period.Year, period.Month); err == nil {
			rec.InflowTotalM3 = mp.TotalInflowsM3
			rec.OutflowTotalM3 = mp.TotalOutflowsM3
			authInflow = &mp.TotalInflowsM3
			authOutflow = &mp.TotalOutflowsM3
		}

		facilityInputs = append(facilityInputs, balance.FacilityInput{
			Facility:                    f,
			Record:                      rec,
			RecordFlags:                 recFlags,
			TransfersInM3:               transfersInByFacility[f.Code],
			TransfersOutM3:              transfersOutByFacility[f.Code],
			AuthoritativeInflowTotalM3:  authInflow,
			AuthoritativeOutflowTotalM3: authOutflow,
		})
	}

	result, err := o.engine.Compute(balance.PeriodInputs{
		Period:       period,
		Facilities:   facilityInputs,
		ThresholdPct: o.thresholdPct(),
	})
	if err != nil {
		return domain.BalanceResult{}, err
	}

	if o.evaluator != nil {
		calcDate := period.StartDate()
		if err := o.evaluator.Evaluate(calcDate, alerts.Metric{Category: "balance", Name: "error_pct", Value: result.ErrorPct()}); err != nil {
			o.log.Warn().Err(err).Msg("alert evaluation failed")
		}
		for _, fb := range result.Facilities {
			if fb.Record.OverflowM3 > 0 {
				code := fb.Record.FacilityCode
				if err := o.evaluator.Evaluate(calcDate, alerts.Metric{Category: "storage", Name: "overflow_m3", Value: fb.Record.OverflowM3, SourceID: &code}); err != nil {
					o.log.Warn().Err(err).Msg("alert evaluation failed")
				}
			}
		}
	}

	if o.mode != config.ModeAudit {
		result.Facilities = trimAuditBreakdown(result.Facilities)
	}

	if o.history != nil && o.mode != config.ModeInternal {
		if err := o.persistHistory(period, facilityInputs); err != nil {
			o.log.Warn().Err(err).Msg("failed to persist storage history")
		}
	}

	if o.mode == config.ModeAudit && o.archiver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		if err := o.archiver.ArchiveBalanceResult(ctx, period, result); err != nil {
			o.log.Warn().Err(err).Msg("failed to archive balance result")
		}
		cancel()
	}

	if o.events != nil {
		o.events.Emit(events.MonthlyCloseCompleted, "orchestrator", map[string]interface{}{
			"period": period.String(),
			"status": string(result.Status),
		})
		if result.Status == domain.StatusRed {
			o.events.Emit(events.BalanceRedStatus, "orchestrator", map[string]interface{}{
				"period":    period.String(),
				"error_pct": result.ErrorPct(),
			})
		}
	}

	return result, nil
}

// transferTotals sums FacilityTransfer rows per facility for the period.
func (o *Orchestrator) transferTotals(period domain.CalculationPeriod) (map[string]float64, map[string]float64, error) {
	in := map[string]float64{}
	out := map[string]float64{}
	if o.transfers == nil {
		return in, out, nil
	}
	rows, err := o.transfers.ListByPeriod(period.Year, period.Month)
	if err != nil {
		return nil, nil, err
	}
	for _, t := range rows {
		in[t.DestFacilityCode] += t.VolumeM3
		out[t.SourceFacilityCode] += t.VolumeM3
	}
	return in, out, nil
}

func (o *Orchestrator) persistHistory(period domain.CalculationPeriod, inputs []balance.FacilityInput) error {
	for _, fi := range inputs {
		h := domain.StorageHistory{
			FacilityCode:    fi.Facility.Code,
			Year:            period.Year,
			Month:           period.Month,
			OpeningVolumeM3: fi.Record.OpeningVolumeM3,
			ClosingVolumeM3: fi.Record.ClosingVolumeM3,
			DataSource:      domain.SourceCalculated,
		}
		if err := o.history.Upsert(h); err != nil {
			return err
		}
	}
	return nil
}

// trimAuditBreakdown clears per-facility Warnings outside of AUDIT mode,
// keeping the summary-level quality flags as the sole source of anomalies.
func trimAuditBreakdown(facilities []domain.FacilityBalance) []domain.FacilityBalance {
	out := make([]domain.FacilityBalance, len(facilities))
	for i, fb := range facilities {
		fb.Record.Warnings = nil
		out[i] = fb
	}
	return out
}
