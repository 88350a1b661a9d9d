package alerts

import (
	"github.com/aristath/waterbalance/internal/domain"
	"github.com/aristath/waterbalance/internal/waterr"
	"gopkg.in/yaml.v3"
)

// ruleSpec is the YAML shape of one default rule.
type ruleSpec struct {
	RuleID          string  `yaml:"rule_id"`
	Category        string  `yaml:"category"`
	MetricName      string  `yaml:"metric_name"`
	Operator        string  `yaml:"operator"`
	Threshold       float64 `yaml:"threshold"`
	Severity        string  `yaml:"severity"`
	Title           string  `yaml:"title"`
	MessageTemplate string  `yaml:"message_template"`
	ShowPopup       bool    `yaml:"show_popup"`
	AutoResolve     bool    `yaml:"auto_resolve"`
	Active          bool    `yaml:"active"`
}

// DefaultSeedYAML is the built-in default rule set, seeded at startup;
// rules whose rule_id is already in alert_rules are skipped.
const DefaultSeedYAML = `
- rule_id: balance_closure_red
  category: balance
  metric_name: error_pct
  operator: ">="
  threshold: 5.0
  severity: critical
  title: Balance closure exceeded threshold
  message_template: "closure error %.2f%% exceeds threshold"
  show_popup: true
  auto_resolve: true
  active: true
- rule_id: facility_overflow
  category: storage
  metric_name: overflow_m3
  operator: ">"
  threshold: 0
  severity: warning
  title: Facility overflow
  message_template: "overflow of %.0f m3 recorded"
  show_popup: true
  auto_resolve: true
  active: true
- rule_id: facility_days_to_minimum
  category: storage
  metric_name: days_to_minimum
  operator: "<"
  threshold: 7
  severity: warning
  title: Facility approaching minimum operating level
  message_template: "%.0f days to minimum operating level"
  show_popup: true
  auto_resolve: true
  active: true
`

// Seed inserts every rule in payload whose rule_id is not already present.
func (r *Repository) Seed(payload string) (int, error) {
	var specs []ruleSpec
	if err := yaml.Unmarshal([]byte(payload), &specs); err != nil {
		return 0, waterr.Wrap(waterr.InputFormat, "parse alert rule seed payload", err)
	}

	existing, err := r.allRuleIDs()
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, spec := range specs {
		if existing[spec.RuleID] {
			continue
		}
		rule := domain.AlertRule{
			RuleID:          spec.RuleID,
			Category:        spec.Category,
			MetricName:      spec.MetricName,
			Operator:        domain.AlertOperator(spec.Operator),
			Threshold:       spec.Threshold,
			Severity:        domain.AlertSeverity(spec.Severity),
			Title:           spec.Title,
			MessageTemplate: spec.MessageTemplate,
			ShowPopup:       spec.ShowPopup,
			AutoResolve:     spec.AutoResolve,
			Active:          spec.Active,
		}
		if err := r.UpsertRule(rule); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func (r *Repository) allRuleIDs() (map[string]bool, error) {
	rows, err := r.DB().Query(`SELECT rule_id FROM alert_rules`)
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "list alert rule ids", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, waterr.Wrap(waterr.StorageBackendError, "scan alert rule id", err)
		}
		out[id] = true
	}
	return out, nil
}
