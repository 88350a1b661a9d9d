// Package transfers persists FacilityTransfer rows recording internal
// movements of water between facilities in the topology.
package transfers

import (
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/database/repositories"
	"github.com/aristath/waterbalance/internal/domain"
	"github.com/aristath/waterbalance/internal/waterr"
)

// Store persists FacilityTransfer rows.
type Store struct {
	*repositories.BaseRepository
}

// NewStore constructs a transfers Store.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{BaseRepository: repositories.NewBase(db, log.With().Str("store", "facility_transfers").Logger())}
}

// Insert records a new transfer.
func (s *Store) Insert(t domain.FacilityTransfer) (*domain.FacilityTransfer, error) {
	if t.VolumeM3 <= 0 {
		return nil, waterr.New(waterr.InvariantViolation, "transfer volume_m3 must be > 0")
	}
	if t.SourceFacilityCode == t.DestFacilityCode {
		return nil, waterr.New(waterr.InvariantViolation, "transfer source and destination must differ")
	}

	res, err := s.DB().Exec(
		`INSERT INTO facility_transfers (source_facility_code, dest_facility_code, year, month, volume_m3, transfer_method)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.SourceFacilityCode, t.DestFacilityCode, t.Year, t.Month, t.VolumeM3, t.TransferMethod,
	)
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "insert facility transfer", err)
	}
	id, _ := res.LastInsertId()
	t.ID = id
	return &t, nil
}

// ListByPeriod returns every transfer recorded for (year, month).
func (s *Store) ListByPeriod(year, month int) ([]domain.FacilityTransfer, error) {
	rows, err := s.DB().Query(
		`SELECT id, source_facility_code, dest_facility_code, year, month, volume_m3, transfer_method
		 FROM facility_transfers WHERE year = ? AND month = ?`,
		year, month,
	)
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "list facility transfers by period", err)
	}
	defer rows.Close()

	var out []domain.FacilityTransfer
	for rows.Next() {
		var t domain.FacilityTransfer
		if err := rows.Scan(&t.ID, &t.SourceFacilityCode, &t.DestFacilityCode, &t.Year, &t.Month, &t.VolumeM3, &t.TransferMethod); err != nil {
			return nil, waterr.Wrap(waterr.StorageBackendError, "scan facility transfer", err)
		}
		out = append(out, t)
	}
	return out, nil
}
