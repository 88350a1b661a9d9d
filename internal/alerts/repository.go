// Package alerts implements the Alert Evaluator: rule storage, a 5-minute
// in-memory rules cache, deduplicated evaluation against a BalanceResult,
// and auto-resolution.
package alerts

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/database/repositories"
	"github.com/aristath/waterbalance/internal/domain"
	"github.com/aristath/waterbalance/internal/waterr"
)

// Repository persists alert rules and materialized alerts.
type Repository struct {
	*repositories.BaseRepository
}

// NewRepository constructs an alerts Repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{BaseRepository: repositories.NewBase(db, log.With().Str("repo", "alerts").Logger())}
}

// ActiveRules returns every rule with active=1.
func (r *Repository) ActiveRules() ([]domain.AlertRule, error) {
	rows, err := r.DB().Query(
		`SELECT rule_id, category, metric_name, operator, threshold, severity, title, message_template, show_popup, auto_resolve, active
		 FROM alert_rules WHERE active = 1`,
	)
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "list active alert rules", err)
	}
	defer rows.Close()

	var out []domain.AlertRule
	for rows.Next() {
		var rule domain.AlertRule
		var showPopup, autoResolve, active int
		if err := rows.Scan(&rule.RuleID, &rule.Category, &rule.MetricName, &rule.Operator, &rule.Threshold,
			&rule.Severity, &rule.Title, &rule.MessageTemplate, &showPopup, &autoResolve, &active); err != nil {
			return nil, waterr.Wrap(waterr.StorageBackendError, "scan alert rule", err)
		}
		rule.ShowPopup = repositories.IntToBool(showPopup)
		rule.AutoResolve = repositories.IntToBool(autoResolve)
		rule.Active = repositories.IntToBool(active)
		out = append(out, rule)
	}
	return out, nil
}

// UpsertRule inserts or replaces a rule definition.
func (r *Repository) UpsertRule(rule domain.AlertRule) error {
	_, err := r.DB().Exec(
		`INSERT INTO alert_rules (rule_id, category, metric_name, operator, threshold, severity, title, message_template, show_popup, auto_resolve, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(rule_id) DO UPDATE SET
			category = excluded.category, metric_name = excluded.metric_name, operator = excluded.operator,
			threshold = excluded.threshold, severity = excluded.severity, title = excluded.title,
			message_template = excluded.message_template, show_popup = excluded.show_popup,
			auto_resolve = excluded.auto_resolve, active = excluded.active`,
		rule.RuleID, rule.Category, rule.MetricName, rule.Operator, rule.Threshold, rule.Severity,
		rule.Title, rule.MessageTemplate, repositories.BoolToInt(rule.ShowPopup),
		repositories.BoolToInt(rule.AutoResolve), repositories.BoolToInt(rule.Active),
	)
	if err != nil {
		return waterr.Wrap(waterr.StorageBackendError, "upsert alert rule", err)
	}
	return nil
}

// FindActiveAlert looks up an existing active alert matching the
// deduplication key (rule_id, calculation_date, facility_id?, source_id?).
func (r *Repository) FindActiveAlert(ruleID string, calcDate time.Time, facilityID *int64, sourceID *string) (*domain.Alert, error) {
	row := r.DB().QueryRow(
		`SELECT id, rule_id, calculation_date, facility_id, source_id, metric_value, status, resolved_by, created_at, last_checked_at, resolved_at
		 FROM alerts
		 WHERE rule_id = ? AND calculation_date = ? AND status = 'active'
		   AND facility_id IS ? AND source_id IS ?`,
		ruleID, calcDate.Format("2006-01-02"), repositories.NullableInt64(facilityID), repositories.NullableString(sourceID),
	)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "find active alert", err)
	}
	return a, nil
}

func scanAlert(row interface{ Scan(...interface{}) error }) (*domain.Alert, error) {
	var a domain.Alert
	var calcDate, createdAt, lastChecked string
	var facilityID sql.NullInt64
	var sourceID, resolvedBy, resolvedAt sql.NullString
	err := row.Scan(&a.ID, &a.RuleID, &calcDate, &facilityID, &sourceID, &a.MetricValue, &a.Status,
		&resolvedBy, &createdAt, &lastChecked, &resolvedAt)
	if err != nil {
		return nil, err
	}
	a.CalculationDate, _ = time.Parse("2006-01-02", calcDate)
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.LastCheckedAt, _ = time.Parse(time.RFC3339, lastChecked)
	a.FacilityID = repositories.FromNullInt64(facilityID)
	a.SourceID = repositories.FromNullString(sourceID)
	a.ResolvedBy = repositories.FromNullString(resolvedBy)
	if resolvedAt.Valid {
		t, _ := time.Parse(time.RFC3339, resolvedAt.String)
		a.ResolvedAt = &t
	}
	return &a, nil
}

// InsertAlert creates a new active alert.
func (r *Repository) InsertAlert(a domain.Alert) (*domain.Alert, error) {
	now := time.Now().UTC()
	a.CreatedAt, a.LastCheckedAt = now, now
	a.Status = domain.AlertActive

	res, err := r.DB().Exec(
		`INSERT INTO alerts (rule_id, calculation_date, facility_id, source_id, metric_value, status, created_at, last_checked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RuleID, a.CalculationDate.Format("2006-01-02"), repositories.NullableInt64(a.FacilityID),
		repositories.NullableString(a.SourceID), a.MetricValue, a.Status,
		a.CreatedAt.Format(time.RFC3339), a.LastCheckedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "insert alert", err)
	}
	id, _ := res.LastInsertId()
	a.ID = id
	return &a, nil
}

// UpdateMetric refreshes an existing alert's metric value and last-checked
// timestamp without changing its status.
func (r *Repository) UpdateMetric(id int64, metricValue float64) error {
	_, err := r.DB().Exec(
		`UPDATE alerts SET metric_value = ?, last_checked_at = ? WHERE id = ?`,
		metricValue, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return waterr.Wrap(waterr.StorageBackendError, "update alert metric", err)
	}
	return nil
}

// Resolve transitions an alert to resolved.
func (r *Repository) Resolve(id int64, resolvedBy string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.DB().Exec(
		`UPDATE alerts SET status = 'resolved', resolved_by = ?, resolved_at = ?, last_checked_at = ? WHERE id = ?`,
		resolvedBy, now, now, id,
	)
	if err != nil {
		return waterr.Wrap(waterr.StorageBackendError, "resolve alert", err)
	}
	return nil
}

// ListActive returns every active alert across all rules, newest first.
func (r *Repository) ListActive() ([]domain.Alert, error) {
	rows, err := r.DB().Query(
		`SELECT id, rule_id, calculation_date, facility_id, source_id, metric_value, status, resolved_by, created_at, last_checked_at, resolved_at
		 FROM alerts WHERE status = 'active' ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "list active alerts", err)
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, waterr.Wrap(waterr.StorageBackendError, "scan alert", err)
		}
		out = append(out, *a)
	}
	return out, nil
}

// ListActiveByRule returns every active alert for a rule, used by the
// auto-resolve pass.
func (r *Repository) ListActiveByRule(ruleID string) ([]domain.Alert, error) {
	rows, err := r.DB().Query(
		`SELECT id, rule_id, calculation_date, facility_id, source_id, metric_value, status, resolved_by, created_at, last_checked_at, resolved_at
		 FROM alerts WHERE rule_id = ? AND status = 'active'`,
		ruleID,
	)
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "list active alerts by rule", err)
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, waterr.Wrap(waterr.StorageBackendError, "scan alert", err)
		}
		out = append(out, *a)
	}
	return out, nil
}
