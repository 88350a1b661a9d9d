package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/domain"
	"github.com/aristath/waterbalance/internal/events"
)

// rulesCacheTTL is how long the in-memory rules cache is trusted before a
// refresh is forced.
const rulesCacheTTL = 5 * time.Minute

// Metric is one named value to evaluate against the active rules of a
// category, e.g. a BalanceResult's error_pct or a facility's days-to-minimum
// projection.
type Metric struct {
	Category   string
	Name       string
	Value      float64
	FacilityID *int64
	SourceID   *string
}

// Evaluator evaluates Metrics against cached AlertRules, deduplicates,
// and auto-resolves.
type Evaluator struct {
	repo   *Repository
	log    zerolog.Logger
	events *events.Manager

	mu      sync.Mutex
	rules   []domain.AlertRule
	rulesAt time.Time
}

// New constructs an Evaluator. evmgr may be nil, in which case triggered and
// resolved alerts are only logged, never emitted as events.
func New(repo *Repository, log zerolog.Logger, evmgr *events.Manager) *Evaluator {
	return &Evaluator{repo: repo, log: log.With().Str("component", "alert_evaluator").Logger(), events: evmgr}
}

// rulesFor returns active rules for category, refreshing the cache if it is
// older than rulesCacheTTL.
func (e *Evaluator) rulesFor(category string) ([]domain.AlertRule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if time.Since(e.rulesAt) > rulesCacheTTL || e.rules == nil {
		fresh, err := e.repo.ActiveRules()
		if err != nil {
			return nil, err
		}
		e.rules = fresh
		e.rulesAt = time.Now()
	}

	var out []domain.AlertRule
	for _, r := range e.rules {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out, nil
}

// InvalidateRulesCache forces the next evaluation to refetch rules.
func (e *Evaluator) InvalidateRulesCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = nil
}

// Evaluate runs every active rule in metric.Category against metric.Value,
// deduplicating against existing active alerts for calcDate, and
// auto-resolving any rule whose condition no longer holds.
func (e *Evaluator) Evaluate(calcDate time.Time, metric Metric) error {
	rules, err := e.rulesFor(metric.Category)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if rule.MetricName != metric.Name {
			continue
		}
		if err := e.applyRule(rule, calcDate, metric); err != nil {
			return err
		}
	}
	return nil
}

func (e *Evaluator) applyRule(rule domain.AlertRule, calcDate time.Time, metric Metric) error {
	triggered := rule.Evaluate(metric.Value)

	existing, err := e.repo.FindActiveAlert(rule.RuleID, calcDate, metric.FacilityID, metric.SourceID)
	if err != nil {
		return err
	}

	if triggered {
		if existing != nil {
			return e.repo.UpdateMetric(existing.ID, metric.Value)
		}
		a := domain.Alert{
			RuleID:          rule.RuleID,
			CalculationDate: calcDate,
			FacilityID:      metric.FacilityID,
			SourceID:        metric.SourceID,
			MetricValue:     metric.Value,
		}
		if _, err := e.repo.InsertAlert(a); err != nil {
			return err
		}
		e.log.Info().Str("rule_id", rule.RuleID).Float64("metric_value", metric.Value).Msg("alert triggered")
		if e.events != nil {
			e.events.Emit(events.AlertTriggered, "alerts", map[string]interface{}{
				"rule_id":      rule.RuleID,
				"severity":     rule.Severity,
				"metric_value": metric.Value,
			})
		}
		return nil
	}

	if existing != nil && rule.AutoResolve {
		if err := e.repo.Resolve(existing.ID, "auto"); err != nil {
			return err
		}
		e.log.Info().Str("rule_id", rule.RuleID).Msg("alert auto-resolved")
		if e.events != nil {
			e.events.Emit(events.AlertResolved, "alerts", map[string]interface{}{
				"rule_id": rule.RuleID,
			})
		}
	}
	return nil
}

// AutoResolveStale re-evaluates every active alert for rules with
// auto_resolve=true using currentMetrics (keyed by rule_id) and resolves any
// whose condition no longer holds. Rules absent from currentMetrics are left
// untouched.
func (e *Evaluator) AutoResolveStale(currentMetrics map[string]float64) error {
	e.mu.Lock()
	rules := e.rules
	e.mu.Unlock()

	for _, rule := range rules {
		if !rule.AutoResolve {
			continue
		}
		value, ok := currentMetrics[rule.RuleID]
		if !ok {
			continue
		}
		if rule.Evaluate(value) {
			continue
		}
		active, err := e.repo.ListActiveByRule(rule.RuleID)
		if err != nil {
			return err
		}
		for _, a := range active {
			if err := e.repo.Resolve(a.ID, "auto"); err != nil {
				return err
			}
		}
	}
	return nil
}

// Message renders a rule's message_template (a fmt verb such as "%.1f") with
// the triggering metric value.
func Message(rule domain.AlertRule, value float64) string {
	return fmt.Sprintf(rule.MessageTemplate, value)
}
