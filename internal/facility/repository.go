// Package facility implements the Storage Facility Service + Repository:
// durable facility records with invariants and safety rules.
package facility

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/database/repositories"
	"github.com/aristath/waterbalance/internal/domain"
	"github.com/aristath/waterbalance/internal/waterr"
)

// Repository persists StorageFacility rows.
type Repository struct {
	*repositories.BaseRepository
}

// NewRepository constructs a facility Repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{BaseRepository: repositories.NewBase(db, log.With().Str("repo", "facility").Logger())}
}

func scanFacility(row interface{ Scan(...interface{}) error }) (*domain.StorageFacility, error) {
	var f domain.StorageFacility
	var surfaceArea sql.NullFloat64
	var isLined sql.NullInt64
	var createdAt, updatedAt string

	err := row.Scan(
		&f.ID, &f.Code, &f.Name, &f.FacilityType, &f.CapacityM3,
		&surfaceArea, &f.CurrentVolumeM3, &isLined, &f.Status, &f.Notes,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.SurfaceAreaM2 = repositories.FromNullFloat64(surfaceArea)
	f.IsLined = repositories.BoolPtrFromNullInt(isLined)
	f.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	f.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &f, nil
}

const facilityColumns = `id, code, name, facility_type, capacity_m3, surface_area_m2,
	current_volume_m3, is_lined, status, notes, created_at, updated_at`

// GetAll returns every facility ordered by code.
func (r *Repository) GetAll() ([]*domain.StorageFacility, error) {
	rows, err := r.DB().Query(`SELECT ` + facilityColumns + ` FROM storage_facilities ORDER BY code`)
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "list facilities", err)
	}
	defer rows.Close()

	var out []*domain.StorageFacility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, waterr.Wrap(waterr.StorageBackendError, "scan facility", err)
		}
		out = append(out, f)
	}
	return out, nil
}

// GetByID returns a single facility by primary key.
func (r *Repository) GetByID(id int64) (*domain.StorageFacility, error) {
	row := r.DB().QueryRow(`SELECT `+facilityColumns+` FROM storage_facilities WHERE id = ?`, id)
	f, err := scanFacility(row)
	if err == sql.ErrNoRows {
		return nil, waterr.New(waterr.NotFound, fmt.Sprintf("facility id %d not found", id))
	}
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "get facility by id", err)
	}
	return f, nil
}

// GetByCode returns a single facility via the unique code index.
func (r *Repository) GetByCode(code string) (*domain.StorageFacility, error) {
	row := r.DB().QueryRow(`SELECT `+facilityColumns+` FROM storage_facilities WHERE code = ?`, code)
	f, err := scanFacility(row)
	if err == sql.ErrNoRows {
		return nil, waterr.New(waterr.NotFound, fmt.Sprintf("facility code %q not found", code))
	}
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "get facility by code", err)
	}
	return f, nil
}

// ListByStatus returns facilities with the given status, index-backed.
func (r *Repository) ListByStatus(status domain.FacilityStatus) ([]*domain.StorageFacility, error) {
	rows, err := r.DB().Query(`SELECT `+facilityColumns+` FROM storage_facilities WHERE status = ? ORDER BY code`, status)
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "list facilities by status", err)
	}
	defer rows.Close()

	var out []*domain.StorageFacility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, waterr.Wrap(waterr.StorageBackendError, "scan facility", err)
		}
		out = append(out, f)
	}
	return out, nil
}

// codeExists checks whether code is already in use, for pre-insert
// uniqueness checks.
func (r *Repository) codeExists(code string) (bool, error) {
	var count int
	err := r.DB().QueryRow(`SELECT COUNT(1) FROM storage_facilities WHERE code = ?`, code).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Insert creates a new facility row, returning it with its assigned ID.
func (r *Repository) Insert(f *domain.StorageFacility) (*domain.StorageFacility, error) {
	exists, err := r.codeExists(f.Code)
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "check code uniqueness", err)
	}
	if exists {
		return nil, waterr.New(waterr.DuplicateCode, fmt.Sprintf("facility code %q already exists", f.Code))
	}

	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now

	res, err := r.DB().Exec(
		`INSERT INTO storage_facilities
			(code, name, facility_type, capacity_m3, surface_area_m2, current_volume_m3, is_lined, status, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Code, f.Name, f.FacilityType, f.CapacityM3, repositories.NullFloat64(f.SurfaceAreaM2),
		f.CurrentVolumeM3, repositories.NullBoolPtr(f.IsLined), f.Status, f.Notes,
		f.CreatedAt.Format(time.RFC3339), f.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "insert facility", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "read inserted facility id", err)
	}
	f.ID = id
	return f, nil
}

// allowedUpdateFields whitelists the columns Update may touch, so dynamic
// UPDATE statements never take an attacker- or caller-supplied column name.
var allowedUpdateFields = map[string]bool{
	"name": true, "facility_type": true, "capacity_m3": true,
	"surface_area_m2": true, "current_volume_m3": true, "is_lined": true,
	"status": true, "notes": true,
}

// Update writes the given fields (whitelisted) for the facility with id.
func (r *Repository) Update(id int64, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	setClauses := make([]string, 0, len(fields)+1)
	args := make([]interface{}, 0, len(fields)+2)

	for k, v := range fields {
		if !allowedUpdateFields[k] {
			return waterr.New(waterr.InvariantViolation, fmt.Sprintf("field %q is not updatable", k))
		}
		setClauses = append(setClauses, k+" = ?")
		args = append(args, v)
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339))
	args = append(args, id)

	query := "UPDATE storage_facilities SET "
	for i, c := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += c
	}
	query += " WHERE id = ?"

	res, err := r.DB().Exec(query, args...)
	if err != nil {
		return waterr.Wrap(waterr.StorageBackendError, "update facility", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return waterr.New(waterr.NotFound, fmt.Sprintf("facility id %d not found", id))
	}
	return nil
}

// Delete removes the facility row with id.
func (r *Repository) Delete(id int64) error {
	res, err := r.DB().Exec(`DELETE FROM storage_facilities WHERE id = ?`, id)
	if err != nil {
		return waterr.Wrap(waterr.StorageBackendError, "delete facility", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return waterr.New(waterr.NotFound, fmt.Sprintf("facility id %d not found", id))
	}
	return nil
}
