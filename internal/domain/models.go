// Package domain holds the value objects and result types shared across
// the water balance core: periods, facilities, monthly records, and the
// computed balance result tree.
package domain

import (
	"fmt"
	"time"
)

// CalculationPeriod is an immutable calendar month used as a cache key
// component throughout the core.
type CalculationPeriod struct {
	Year  int
	Month int
}

// NewPeriod validates and constructs a CalculationPeriod.
func NewPeriod(year, month int) (CalculationPeriod, error) {
	if month < 1 || month > 12 {
		return CalculationPeriod{}, fmt.Errorf("month out of range: %d", month)
	}
	if year < 2000 || year > 2100 {
		return CalculationPeriod{}, fmt.Errorf("year out of range: %d", year)
	}
	return CalculationPeriod{Year: year, Month: month}, nil
}

// StartDate returns the first instant of the period.
func (p CalculationPeriod) StartDate() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// EndDate returns the last day of the period.
func (p CalculationPeriod) EndDate() time.Time {
	return p.StartDate().AddDate(0, 1, -1)
}

// DaysInPeriod returns the number of days in the period's month.
func (p CalculationPeriod) DaysInPeriod() int {
	return p.EndDate().Day()
}

// Previous returns the preceding calendar month.
func (p CalculationPeriod) Previous() CalculationPeriod {
	prev := p.StartDate().AddDate(0, -1, 0)
	return CalculationPeriod{Year: prev.Year(), Month: int(prev.Month())}
}

// String renders the period as "YYYY-MM".
func (p CalculationPeriod) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// FacilityType enumerates the kinds of storage facility the topology models.
type FacilityType string

const (
	FacilityTSF   FacilityType = "TSF"
	FacilityPond  FacilityType = "Pond"
	FacilityDam   FacilityType = "Dam"
	FacilityTank  FacilityType = "Tank"
	FacilityOther FacilityType = "Other"
)

// FacilityStatus enumerates a facility's lifecycle state.
type FacilityStatus string

const (
	StatusActive        FacilityStatus = "active"
	StatusInactive       FacilityStatus = "inactive"
	StatusDecommissioned FacilityStatus = "decommissioned"
)

// StorageFacility is the durable record of a named storage facility in the
// topology. It is owned by the facility service; nothing outside that
// service mutates it directly.
type StorageFacility struct {
	ID             int64
	Code           string
	Name           string
	FacilityType   FacilityType
	CapacityM3     float64
	SurfaceAreaM2  *float64
	CurrentVolumeM3 float64
	IsLined        *bool
	Status         FacilityStatus
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NormalizeLining forces IsLined to null when the facility is a Tank. Other
// facility types keep their IsLined value, which may also be null.
func (f *StorageFacility) NormalizeLining() {
	if f.FacilityType == FacilityTank {
		f.IsLined = nil
	}
}

// Validate enforces the facility invariants from the data model.
func (f *StorageFacility) Validate() error {
	if f.Code == "" {
		return fmt.Errorf("code is required")
	}
	if f.CapacityM3 <= 0 {
		return fmt.Errorf("capacity_m3 must be > 0")
	}
	if f.CurrentVolumeM3 < 0 || f.CurrentVolumeM3 > f.CapacityM3 {
		return fmt.Errorf("current_volume_m3 must be within [0, capacity]")
	}
	if f.FacilityType == FacilityTank && f.IsLined != nil {
		return fmt.Errorf("is_lined must be null for facility_type=Tank")
	}
	if f.FacilityType != FacilityTank && f.IsLined == nil {
		// allowed: unknown lining for non-tank facilities is permitted,
		// only Tank forces null.
	}
	return nil
}

// MonthlyParameters is the persistent, authoritative-when-present total
// inflow/outflow for a facility in a period.
type MonthlyParameters struct {
	ID              int64
	FacilityID      int64
	Year            int
	Month           int
	TotalInflowsM3  float64
	TotalOutflowsM3 float64
}

// DataSource enumerates the provenance of a StorageHistory row.
type DataSource string

const (
	SourceMeasured   DataSource = "measured"
	SourceCalculated DataSource = "calculated"
	SourceEstimated  DataSource = "estimated"
	SourceImported   DataSource = "imported"
)

// StorageHistory is the one-per-(facility,year,month) persisted opening/
// closing record.
type StorageHistory struct {
	ID               int64
	FacilityCode     string
	Year             int
	Month            int
	OpeningVolumeM3  float64
	ClosingVolumeM3  float64
	DataSource       DataSource
}

// Delta computes closing minus opening; the history store writes it to the
// delta_m3 column for query speed.
func (h StorageHistory) Delta() float64 {
	return h.ClosingVolumeM3 - h.OpeningVolumeM3
}

// TransferMethod enumerates how water physically moved between facilities.
type TransferMethod string

const (
	TransferPump     TransferMethod = "pump"
	TransferGravity  TransferMethod = "gravity"
	TransferSpillway TransferMethod = "spillway"
	TransferOther    TransferMethod = "other"
)

// FacilityTransfer records an internal movement of water between two
// facilities in the topology.
type FacilityTransfer struct {
	ID                  int64
	SourceFacilityCode  string
	DestFacilityCode    string
	Year                int
	Month               int
	VolumeM3            float64
	TransferMethod      TransferMethod
}

// EnvironmentalMonthly is the one-per-(year,month) rainfall/evaporation row.
type EnvironmentalMonthly struct {
	ID            int64
	Year          int
	Month         int
	RainfallMM    float64
	EvaporationMM float64
}

// SystemConstant is a versioned, bounded numeric configuration value.
type SystemConstant struct {
	ID            int64
	ConstantKey   string
	ConstantValue float64
	MinValue      *float64
	MaxValue      *float64
	Unit          string
	Category      string
	Editable      bool
}

// InBounds reports whether value respects the constant's configured bounds.
func (c SystemConstant) InBounds(value float64) bool {
	if c.MinValue != nil && value < *c.MinValue {
		return false
	}
	if c.MaxValue != nil && value > *c.MaxValue {
		return false
	}
	return true
}

// ConstantAudit is one append-only row recording a SystemConstant write.
type ConstantAudit struct {
	ID          int64
	ChangedAt   time.Time
	Key         string
	OldValue    *float64
	NewValue    float64
	UpdatedBy   string
}

// DataQualityFlags tracks which computed fields rest on missing, estimated,
// or simulated inputs. A field name appears in at most one of the three
// sets.
type DataQualityFlags struct {
	Missing   map[string]bool
	Estimated map[string]bool
	Simulated map[string]bool
	Notes     map[string]string
	Warnings  []string
}

// NewDataQualityFlags returns an empty, ready-to-use flag set.
func NewDataQualityFlags() DataQualityFlags {
	return DataQualityFlags{
		Missing:   map[string]bool{},
		Estimated: map[string]bool{},
		Simulated: map[string]bool{},
		Notes:     map[string]string{},
	}
}

// FlagMissing marks field as missing, clearing it from the other two sets.
func (d *DataQualityFlags) FlagMissing(field string) {
	delete(d.Estimated, field)
	delete(d.Simulated, field)
	d.Missing[field] = true
}

// FlagEstimated marks field as estimated, clearing it from the other two sets.
func (d *DataQualityFlags) FlagEstimated(field, note string) {
	delete(d.Missing, field)
	delete(d.Simulated, field)
	d.Estimated[field] = true
	if note != "" {
		d.Notes[field] = note
	}
}

// FlagSimulated marks field as simulated, clearing it from the other two sets.
func (d *DataQualityFlags) FlagSimulated(field, note string) {
	delete(d.Missing, field)
	delete(d.Estimated, field)
	d.Simulated[field] = true
	if note != "" {
		d.Notes[field] = note
	}
}

// Warn appends a free-text warning to the flag set.
func (d *DataQualityFlags) Warn(msg string) {
	d.Warnings = append(d.Warnings, msg)
}

// Merge folds other's flags and warnings into d.
func (d *DataQualityFlags) Merge(other DataQualityFlags) {
	for k := range other.Missing {
		d.FlagMissing(k)
	}
	for k := range other.Estimated {
		d.FlagEstimated(k, "")
	}
	for k := range other.Simulated {
		d.FlagSimulated(k, "")
	}
	for k, v := range other.Notes {
		d.Notes[k] = v
	}
	d.Warnings = append(d.Warnings, other.Warnings...)
}

// StorageRecord is the per-facility, per-period output of the storage
// calculator (§ Storage Calculator).
type StorageRecord struct {
	FacilityCode        string
	Period              CalculationPeriod
	OpeningVolumeM3     float64
	ClosingVolumeM3     float64
	LevelPercent        float64
	InflowManualM3      float64
	OutflowManualM3     float64
	InflowTotalM3       float64
	OutflowTotalM3      float64
	RainfallVolumeM3    float64
	EvaporationVolumeM3 float64
	AbstractionToPlantM3 float64
	OverflowM3          float64
	DeficitM3           float64
	Warnings            []string
}

// InflowResult is the period-level enumeration of fresh inflow sources.
// AuthoritativeAdjustment folds in the difference between any facility's
// Monthly Parameters authoritative inflow total and this engine's own
// rainfall+abstraction derivation for that facility (§4.6); it is zero when
// no facility has a reported monthly total for the period.
type InflowResult struct {
	Rainfall                float64
	Abstraction             float64
	OreMoisture             float64
	AuthoritativeAdjustment float64
}

// Total sums the enumerated inflow components.
func (i InflowResult) Total() float64 {
	return i.Rainfall + i.Abstraction + i.OreMoisture + i.AuthoritativeAdjustment
}

// OutflowResult is the period-level enumeration of outflow sources.
// AuthoritativeAdjustment is the outflow counterpart of
// InflowResult.AuthoritativeAdjustment (§4.6).
type OutflowResult struct {
	Evaporation             float64
	Seepage                 float64
	DustSuppression         float64
	Mining                  float64
	Domestic                float64
	Irrigation              float64
	Other                   float64
	TailingsLockup          float64
	Discharge               float64
	AbstractionToPlant      float64
	AuthoritativeAdjustment float64
}

// Total sums the enumerated outflow components. AbstractionToPlant is
// deliberately excluded: it is modeled as a facility-local transfer, not a
// system-boundary outflow (see the open-question resolution on plant
// abstraction).
func (o OutflowResult) Total() float64 {
	return o.Evaporation + o.Seepage + o.DustSuppression + o.Mining +
		o.Domestic + o.Irrigation + o.Other + o.TailingsLockup + o.Discharge +
		o.AuthoritativeAdjustment
}

// StorageChange is the period-level sum of per-facility closing-minus-
// opening deltas, with the per-facility breakdown retained for reporting.
type StorageChange struct {
	Delta      float64
	ByFacility map[string]float64
}

// RecycledWater tracks recirculation flows for KPI purposes only; it never
// enters the mass-balance equation.
type RecycledWater struct {
	TSFReturn       float64
	RWDReturn       float64
	ProcessRecirc   float64
}

// Total sums the recirculation components.
func (r RecycledWater) Total() float64 {
	return r.TSFReturn + r.RWDReturn + r.ProcessRecirc
}

// KPIs holds the period's derived key performance indicators.
type KPIs struct {
	RecycledPct                 *float64
	WaterIntensityM3PerTonne    *float64
	AbstractionPctOfLicense     *float64
	RWDIntensityMeasured        *float64
	RWDIntensityCalculated      *float64
	RWDIntensityCrossCheckFlag  bool
	TailingsMoistureFromDensity *float64
}

// BalanceStatus is the GREEN/RED closure classification.
type BalanceStatus string

const (
	StatusGreen BalanceStatus = "GREEN"
	StatusRed   BalanceStatus = "RED"
)

// FacilityBalance is the per-facility breakdown attached to a BalanceResult.
type FacilityBalance struct {
	Record        StorageRecord
	TransfersInM3  float64
	TransfersOutM3 float64
}

// BalanceResult is the transient, optionally-persisted output of one period
// of the balance engine.
type BalanceResult struct {
	Period        CalculationPeriod
	Inflows       InflowResult
	Outflows      OutflowResult
	Storage       StorageChange
	Recycled      *RecycledWater
	KPIs          *KPIs
	Facilities    []FacilityBalance
	QualityFlags  DataQualityFlags
	Status        BalanceStatus
	ThresholdPct  float64
}

// BalanceErrorM3 is the closure error in cubic meters.
func (b BalanceResult) BalanceErrorM3() float64 {
	return b.Inflows.Total() - b.Outflows.Total() - b.Storage.Delta
}

// ErrorPct is the closure error as a percentage of fresh inflows, zero when
// inflows are zero (never NaN).
func (b BalanceResult) ErrorPct() float64 {
	total := b.Inflows.Total()
	if total == 0 {
		return 0
	}
	errM3 := b.BalanceErrorM3()
	if errM3 < 0 {
		errM3 = -errM3
	}
	return errM3 / total * 100
}

// Classify sets Status from ErrorPct against ThresholdPct.
func (b *BalanceResult) Classify() {
	pct := b.ErrorPct()
	if pct < b.ThresholdPct {
		b.Status = StatusGreen
	} else {
		b.Status = StatusRed
	}
}

// AlertOperator enumerates the comparison an AlertRule applies to its
// metric.
type AlertOperator string

const (
	OpLess           AlertOperator = "<"
	OpGreater        AlertOperator = ">"
	OpLessOrEqual    AlertOperator = "<="
	OpGreaterOrEqual AlertOperator = ">="
	OpEqual          AlertOperator = "="
)

// AlertSeverity enumerates an AlertRule's severity tier.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertRule is a single threshold rule evaluated against a named metric.
type AlertRule struct {
	RuleID          string
	Category        string
	MetricName      string
	Operator        AlertOperator
	Threshold       float64
	Severity        AlertSeverity
	Title           string
	MessageTemplate string
	ShowPopup       bool
	AutoResolve     bool
	Active          bool
}

// Evaluate reports whether metric satisfies the rule's operator/threshold.
func (r AlertRule) Evaluate(metric float64) bool {
	switch r.Operator {
	case OpLess:
		return metric < r.Threshold
	case OpGreater:
		return metric > r.Threshold
	case OpLessOrEqual:
		return metric <= r.Threshold
	case OpGreaterOrEqual:
		return metric >= r.Threshold
	case OpEqual:
		return metric == r.Threshold
	default:
		return false
	}
}

// AlertStatus enumerates an Alert's lifecycle state.
type AlertStatus string

const (
	AlertActive   AlertStatus = "active"
	AlertResolved AlertStatus = "resolved"
)

// Alert is one materialized rule trigger for a specific calculation date
// and (optionally) facility/source.
type Alert struct {
	ID              int64
	RuleID          string
	CalculationDate time.Time
	FacilityID      *int64
	SourceID        *string
	MetricValue     float64
	Status          AlertStatus
	ResolvedBy      *string
	CreatedAt       time.Time
	LastCheckedAt   time.Time
	ResolvedAt      *time.Time
}
