package workbook

// EnvironmentalRow is one monthly row of the Environmental sheet.
type EnvironmentalRow struct {
	RainfallMM      *float64
	EvaporationMM   *float64
	PanCoefficient  *float64
}

// StorageFacilityRow is one monthly (facility, period) row of the
// Storage_Facilities sheet.
type StorageFacilityRow struct {
	FacilityCode  string
	InflowM3      *float64
	OutflowM3     *float64
	AbstractionM3 *float64
}

// ProductionRow is one monthly row of the Production sheet.
type ProductionRow struct {
	ConcentrateProducedT       *float64
	ConcentrateMoisturePercent *float64
	SlurryDensityTPerM3        *float64
	TailingsMoisturePercent    *float64
}

// ConsumptionRow is one monthly row of the Consumption sheet.
type ConsumptionRow struct {
	DustSuppressionM3 *float64
	MiningM3          *float64
	DomesticM3        *float64
	IrrigationM3      *float64
	OtherM3           *float64
}

// SeepageRow is one monthly row of the Seepage_Losses sheet.
type SeepageRow struct {
	SeepageLossM3       *float64
	SeepageGainM3       *float64
	UnaccountedLossesM3 *float64
}

// DischargeRow is one record of the Discharge sheet (a period may have
// several discharge events).
type DischargeRow struct {
	FacilityCode       string
	DischargeVolumeM3  float64
	DischargeType      string
	Reason             string
	ApprovalReference  string
}
