// Package repositories holds the shared repository scaffolding used by
// internal/facility, internal/monthlyparams, internal/constants, and
// internal/alerts.
package repositories

import (
	"database/sql"

	"github.com/rs/zerolog"
)

// BaseRepository provides the common database handle and logger every
// repository embeds.
type BaseRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewBase creates a new base repository.
func NewBase(db *sql.DB, log zerolog.Logger) *BaseRepository {
	return &BaseRepository{
		db:  db,
		log: log,
	}
}

// DB returns the database connection.
func (r *BaseRepository) DB() *sql.DB {
	return r.db
}

// Log returns the repository's child logger.
func (r *BaseRepository) Log() zerolog.Logger {
	return r.log
}

// NullFloat64 converts a *float64 to sql.NullFloat64 for scanning params.
func NullFloat64(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// NullString converts a *string to sql.NullString for scanning params.
func NullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

// FromNullFloat64 converts a scanned sql.NullFloat64 back to *float64.
func FromNullFloat64(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// FromNullString converts a scanned sql.NullString back to *string.
func FromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// BoolToInt converts a Go bool to the 0/1 sqlite stores it as.
func BoolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// IntToBool converts a 0/1 sqlite column back to a Go bool.
func IntToBool(i int) bool {
	return i != 0
}

// NullBoolPtr converts a *bool to a nullable int column value (nil when ptr
// is nil, matching StorageFacility.IsLined's null-for-Tank semantics).
func NullBoolPtr(v *bool) interface{} {
	if v == nil {
		return nil
	}
	return BoolToInt(*v)
}

// BoolPtrFromNullInt converts a nullable int column back to *bool.
func BoolPtrFromNullInt(v sql.NullInt64) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Int64 != 0
	return &b
}

// NullableInt64 converts a *int64 to a driver value, nil when ptr is nil.
func NullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// NullableString converts a *string to a driver value, nil when ptr is nil.
func NullableString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// FromNullInt64 converts a scanned sql.NullInt64 back to *int64.
func FromNullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}
