// Package constants implements the Constants Store: a keyed, bounded
// numeric registry with an append-only audit trail and idempotent default
// seeding from a YAML payload.
package constants

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/aristath/waterbalance/internal/database/repositories"
	"github.com/aristath/waterbalance/internal/domain"
	"github.com/aristath/waterbalance/internal/waterr"
)

// Store is the keyed numeric registry with bounds and audit.
type Store struct {
	*repositories.BaseRepository
}

// NewStore constructs a constants Store.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{BaseRepository: repositories.NewBase(db, log.With().Str("store", "constants").Logger())}
}

// Get returns a single constant by key.
func (s *Store) Get(key string) (*domain.SystemConstant, error) {
	row := s.DB().QueryRow(
		`SELECT id, constant_key, constant_value, min_value, max_value, unit, category, editable
		 FROM system_constants WHERE constant_key = ?`, key,
	)
	return scanConstant(row)
}

// GetFloat is a convenience accessor for callers that just want the value,
// returning fallback when the key is absent.
func (s *Store) GetFloat(key string, fallback float64) float64 {
	c, err := s.Get(key)
	if err != nil {
		return fallback
	}
	return c.ConstantValue
}

func scanConstant(row interface{ Scan(...interface{}) error }) (*domain.SystemConstant, error) {
	var c domain.SystemConstant
	var minVal, maxVal sql.NullFloat64
	var editable int
	err := row.Scan(&c.ID, &c.ConstantKey, &c.ConstantValue, &minVal, &maxVal, &c.Unit, &c.Category, &editable)
	if err == sql.ErrNoRows {
		return nil, waterr.New(waterr.NotFound, "constant not found")
	}
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "scan constant", err)
	}
	c.MinValue = repositories.FromNullFloat64(minVal)
	c.MaxValue = repositories.FromNullFloat64(maxVal)
	c.Editable = repositories.IntToBool(editable)
	return &c, nil
}

// ListAll returns every registered constant, ordered by category then key.
func (s *Store) ListAll() ([]domain.SystemConstant, error) {
	rows, err := s.DB().Query(
		`SELECT id, constant_key, constant_value, min_value, max_value, unit, category, editable
		 FROM system_constants ORDER BY category, constant_key`,
	)
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "list constants", err)
	}
	defer rows.Close()

	var out []domain.SystemConstant
	for rows.Next() {
		c, err := scanConstant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// Set writes a new value for key, enforcing bounds and appending exactly
// one audit row.
func (s *Store) Set(key string, value float64, updatedBy string) error {
	existing, err := s.Get(key)
	if err != nil {
		return err
	}
	if !existing.InBounds(value) {
		return waterr.New(waterr.InvariantViolation, fmt.Sprintf("constant %q value %.4f out of bounds", key, value))
	}
	if !existing.Editable {
		return waterr.New(waterr.InvariantViolation, fmt.Sprintf("constant %q is not editable", key))
	}

	tx, err := s.DB().Begin()
	if err != nil {
		return waterr.Wrap(waterr.StorageBackendError, "begin constant update", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE system_constants SET constant_value = ? WHERE constant_key = ?`, value, key); err != nil {
		return waterr.Wrap(waterr.StorageBackendError, "update constant", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO system_constants_audit (changed_at, constant_key, old_value, new_value, updated_by) VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), key, existing.ConstantValue, value, updatedBy,
	); err != nil {
		return waterr.Wrap(waterr.StorageBackendError, "append constant audit row", err)
	}

	if err := tx.Commit(); err != nil {
		return waterr.Wrap(waterr.StorageBackendError, "commit constant update", err)
	}
	return nil
}

// AuditHistory returns the audit rows for a key within [from, to].
func (s *Store) AuditHistory(key string, from, to time.Time) ([]domain.ConstantAudit, error) {
	rows, err := s.DB().Query(
		`SELECT id, changed_at, constant_key, old_value, new_value, updated_by
		 FROM system_constants_audit
		 WHERE constant_key = ? AND changed_at BETWEEN ? AND ?
		 ORDER BY changed_at`,
		key, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "query constant audit history", err)
	}
	defer rows.Close()

	var out []domain.ConstantAudit
	for rows.Next() {
		var a domain.ConstantAudit
		var changedAt string
		var oldVal sql.NullFloat64
		if err := rows.Scan(&a.ID, &changedAt, &a.Key, &oldVal, &a.NewValue, &a.UpdatedBy); err != nil {
			return nil, waterr.Wrap(waterr.StorageBackendError, "scan constant audit row", err)
		}
		a.ChangedAt, _ = time.Parse(time.RFC3339, changedAt)
		a.OldValue = repositories.FromNullFloat64(oldVal)
		out = append(out, a)
	}
	return out, nil
}

// SeedSpec describes one default constant in the YAML seed payload.
type SeedSpec struct {
	Key      string   `yaml:"key"`
	Value    float64  `yaml:"value"`
	MinValue *float64 `yaml:"min_value,omitempty"`
	MaxValue *float64 `yaml:"max_value,omitempty"`
	Unit     string   `yaml:"unit"`
	Category string   `yaml:"category"`
	Editable bool     `yaml:"editable"`
}

// DefaultSeedYAML is the built-in payload of known constants, seeded at
// startup; keys already in the table are skipped. Idempotent: re-running
// inserts zero rows.
const DefaultSeedYAML = `
- key: balance_error_threshold_pct
  value: 5.0
  min_value: 0.1
  max_value: 50.0
  unit: percent
  category: balance
  editable: true
- key: seepage_rate_lined_pct
  value: 0.5
  min_value: 0.0
  max_value: 100.0
  unit: percent
  category: seepage
  editable: true
- key: seepage_rate_unlined_pct
  value: 2.0
  min_value: 0.0
  max_value: 100.0
  unit: percent
  category: seepage
  editable: true
- key: tailings_solids_density_t_per_m3
  value: 2.65
  min_value: 1.0
  max_value: 5.0
  unit: t_per_m3
  category: production
  editable: true
- key: rwd_cross_check_tolerance_pct
  value: 5.0
  min_value: 0.0
  max_value: 100.0
  unit: percent
  category: kpi
  editable: true
`

// Seed parses payload (YAML, see SeedSpec) and inserts every key absent from
// the table. Existing keys are left untouched. Returns the number of rows
// inserted.
func (s *Store) Seed(payload string) (int, error) {
	var specs []SeedSpec
	if err := yaml.Unmarshal([]byte(payload), &specs); err != nil {
		return 0, waterr.Wrap(waterr.InputFormat, "parse constants seed payload", err)
	}

	inserted := 0
	for _, spec := range specs {
		exists, err := s.exists(spec.Key)
		if err != nil {
			return inserted, err
		}
		if exists {
			continue
		}
		_, err = s.DB().Exec(
			`INSERT INTO system_constants (constant_key, constant_value, min_value, max_value, unit, category, editable)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			spec.Key, spec.Value, repositories.NullFloat64(spec.MinValue), repositories.NullFloat64(spec.MaxValue),
			spec.Unit, spec.Category, repositories.BoolToInt(spec.Editable),
		)
		if err != nil {
			return inserted, waterr.Wrap(waterr.StorageBackendError, "insert seeded constant", err)
		}
		inserted++
	}
	return inserted, nil
}

func (s *Store) exists(key string) (bool, error) {
	var count int
	err := s.DB().QueryRow(`SELECT COUNT(1) FROM system_constants WHERE constant_key = ?`, key).Scan(&count)
	if err != nil {
		return false, waterr.Wrap(waterr.StorageBackendError, "check constant existence", err)
	}
	return count > 0, nil
}
