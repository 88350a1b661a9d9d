package workbook

// Sheet names and column headers are kept as a constants table at this
// boundary; code above the repository layer never carries string literals
// for column names.
const (
	SheetEnvironmental    = "Environmental"
	SheetStorageFacilities = "Storage_Facilities"
	SheetProduction       = "Production"
	SheetConsumption      = "Consumption"
	SheetSeepageLosses    = "Seepage_Losses"
	SheetDischarge        = "Discharge"
)

const (
	colDate = "Date"

	colRainfallMM           = "Rainfall_mm"
	colCustomEvaporationMM  = "Custom_Evaporation_mm"
	colPanCoefficient       = "Pan_Coefficient"

	colFacilityCode    = "Facility_Code"
	colInflowM3        = "Inflow_m3"
	colOutflowM3       = "Outflow_m3"
	colAbstractionM3   = "Abstraction_m3"

	colConcentrateProducedT       = "Concentrate_Produced_t"
	colConcentrateMoisturePercent = "Concentrate_Moisture_Percent"
	colSlurryDensityTPerM3        = "Slurry_Density_t_per_m3"
	colTailingsMoisturePercent    = "Tailings_Moisture_Percent"

	colDustSuppressionM3 = "Dust_Suppression_m3"
	colMiningM3          = "Mining_m3"
	colDomesticM3        = "Domestic_m3"
	colIrrigationM3      = "Irrigation_m3"
	colOtherM3           = "Other_m3"

	colSeepageLossM3       = "Seepage_Loss_m3"
	colSeepageGainM3       = "Seepage_Gain_m3"
	colUnaccountedLossesM3 = "Unaccounted_Losses_m3"

	colDischargeVolumeM3   = "Discharge_Volume_m3"
	colDischargeType       = "Discharge_Type"
	colReason              = "Reason"
	colApprovalReference   = "Approval_Reference"
)

// friendlyNames maps the exact workbook column headers to the labels
// callers outside the repository boundary are allowed to reference, so
// nothing above this package carries a literal spreadsheet header string.
var friendlyNames = map[string]string{
	colRainfallMM:                  "rainfall",
	colCustomEvaporationMM:         "evaporation",
	colPanCoefficient:              "pan_coefficient",
	colInflowM3:                    "inflow",
	colOutflowM3:                   "outflow",
	colAbstractionM3:               "abstraction",
	colConcentrateProducedT:        "concentrate_produced",
	colConcentrateMoisturePercent:  "concentrate_moisture",
	colSlurryDensityTPerM3:         "slurry_density",
	colTailingsMoisturePercent:     "tailings_moisture",
	colDustSuppressionM3:           "dust_suppression",
	colMiningM3:                    "mining",
	colDomesticM3:                  "domestic",
	colIrrigationM3:                "irrigation",
	colOtherM3:                     "other",
	colSeepageLossM3:               "seepage_loss",
	colSeepageGainM3:               "seepage_gain",
	colUnaccountedLossesM3:         "unaccounted_losses",
	colDischargeVolumeM3:           "discharge_volume",
	colDischargeType:               "discharge_type",
}

// FriendlyName returns the human label for an internal column constant,
// falling back to the raw name if unmapped.
func FriendlyName(column string) string {
	if name, ok := friendlyNames[column]; ok {
		return name
	}
	return column
}
