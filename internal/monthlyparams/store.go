// Package monthlyparams persists the per-(facility, year, month) manual
// inflow/outflow totals that, when present, are authoritative over the
// calculator's derived values.
package monthlyparams

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/database/repositories"
	"github.com/aristath/waterbalance/internal/domain"
	"github.com/aristath/waterbalance/internal/waterr"
)

// Store is the persistent map (facility_id, year, month) -> totals.
type Store struct {
	*repositories.BaseRepository
}

// NewStore constructs a monthlyparams Store.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{BaseRepository: repositories.NewBase(db, log.With().Str("store", "monthly_parameters").Logger())}
}

// GetByPeriod returns the stored totals for a facility/period, or NotFound.
func (s *Store) GetByPeriod(facilityID int64, year, month int) (*domain.MonthlyParameters, error) {
	row := s.DB().QueryRow(
		`SELECT id, facility_id, year, month, total_inflows_m3, total_outflows_m3
		 FROM facility_monthly_parameters WHERE facility_id = ? AND year = ? AND month = ?`,
		facilityID, year, month,
	)
	var p domain.MonthlyParameters
	err := row.Scan(&p.ID, &p.FacilityID, &p.Year, &p.Month, &p.TotalInflowsM3, &p.TotalOutflowsM3)
	if err == sql.ErrNoRows {
		return nil, waterr.New(waterr.NotFound, fmt.Sprintf("monthly parameters for facility %d %04d-%02d not found", facilityID, year, month))
	}
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "get monthly parameters", err)
	}
	return &p, nil
}

// Upsert inserts or replaces the totals for a facility/period.
func (s *Store) Upsert(p domain.MonthlyParameters) error {
	if p.TotalInflowsM3 < 0 || p.TotalOutflowsM3 < 0 {
		return waterr.New(waterr.InvariantViolation, "monthly parameter totals must be >= 0")
	}
	_, err := s.DB().Exec(
		`INSERT INTO facility_monthly_parameters (facility_id, year, month, total_inflows_m3, total_outflows_m3)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(facility_id, year, month) DO UPDATE SET
			total_inflows_m3 = excluded.total_inflows_m3,
			total_outflows_m3 = excluded.total_outflows_m3`,
		p.FacilityID, p.Year, p.Month, p.TotalInflowsM3, p.TotalOutflowsM3,
	)
	if err != nil {
		return waterr.Wrap(waterr.StorageBackendError, "upsert monthly parameters", err)
	}
	return nil
}

// ListByFacility returns all stored monthly parameters for a facility,
// ordered chronologically.
func (s *Store) ListByFacility(facilityID int64) ([]domain.MonthlyParameters, error) {
	rows, err := s.DB().Query(
		`SELECT id, facility_id, year, month, total_inflows_m3, total_outflows_m3
		 FROM facility_monthly_parameters WHERE facility_id = ? ORDER BY year, month`,
		facilityID,
	)
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "list monthly parameters", err)
	}
	defer rows.Close()

	var out []domain.MonthlyParameters
	for rows.Next() {
		var p domain.MonthlyParameters
		if err := rows.Scan(&p.ID, &p.FacilityID, &p.Year, &p.Month, &p.TotalInflowsM3, &p.TotalOutflowsM3); err != nil {
			return nil, waterr.Wrap(waterr.StorageBackendError, "scan monthly parameters", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Delete removes a single facility/period row.
func (s *Store) Delete(facilityID int64, year, month int) error {
	_, err := s.DB().Exec(
		`DELETE FROM facility_monthly_parameters WHERE facility_id = ? AND year = ? AND month = ?`,
		facilityID, year, month,
	)
	if err != nil {
		return waterr.Wrap(waterr.StorageBackendError, "delete monthly parameters", err)
	}
	return nil
}
