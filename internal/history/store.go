// Package history persists the closed-out per-facility storage_history
// rows the orchestrator writes after each monthly close.
package history

import (
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/database/repositories"
	"github.com/aristath/waterbalance/internal/domain"
	"github.com/aristath/waterbalance/internal/waterr"
)

// Store persists StorageHistory rows.
type Store struct {
	*repositories.BaseRepository
}

// NewStore constructs a history Store.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{BaseRepository: repositories.NewBase(db, log.With().Str("store", "storage_history").Logger())}
}

// Upsert writes (or replaces) the one-per-(facility,year,month) record.
func (s *Store) Upsert(h domain.StorageHistory) error {
	_, err := s.DB().Exec(
		`INSERT INTO storage_history (facility_code, year, month, opening_volume_m3, closing_volume_m3, delta_m3, data_source)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(facility_code, year, month) DO UPDATE SET
			opening_volume_m3 = excluded.opening_volume_m3,
			closing_volume_m3 = excluded.closing_volume_m3,
			delta_m3 = excluded.delta_m3,
			data_source = excluded.data_source`,
		h.FacilityCode, h.Year, h.Month, h.OpeningVolumeM3, h.ClosingVolumeM3, h.Delta(), h.DataSource,
	)
	if err != nil {
		return waterr.Wrap(waterr.StorageBackendError, "upsert storage history", err)
	}
	return nil
}

// ListByFacility returns all history rows for a facility, ordered
// chronologically.
func (s *Store) ListByFacility(facilityCode string) ([]domain.StorageHistory, error) {
	rows, err := s.DB().Query(
		`SELECT id, facility_code, year, month, opening_volume_m3, closing_volume_m3, data_source
		 FROM storage_history WHERE facility_code = ? ORDER BY year, month`,
		facilityCode,
	)
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "list storage history", err)
	}
	defer rows.Close()

	var out []domain.StorageHistory
	for rows.Next() {
		var h domain.StorageHistory
		if err := rows.Scan(&h.ID, &h.FacilityCode, &h.Year, &h.Month, &h.OpeningVolumeM3, &h.ClosingVolumeM3, &h.DataSource); err != nil {
			return nil, waterr.Wrap(waterr.StorageBackendError, "scan storage history", err)
		}
		out = append(out, h)
	}
	return out, nil
}
