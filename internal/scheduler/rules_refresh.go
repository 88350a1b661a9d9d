package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/alerts"
)

// RulesCacheRefreshJob forces the alert evaluator's in-memory rules cache
// to refetch on its next evaluation, so rule edits made through the API
// take effect without waiting out the cache's own TTL.
type RulesCacheRefreshJob struct {
	log       zerolog.Logger
	evaluator *alerts.Evaluator
}

// NewRulesCacheRefreshJob constructs a RulesCacheRefreshJob.
func NewRulesCacheRefreshJob(evaluator *alerts.Evaluator, log zerolog.Logger) *RulesCacheRefreshJob {
	return &RulesCacheRefreshJob{evaluator: evaluator, log: log.With().Str("job", "rules_cache_refresh").Logger()}
}

// Name returns the job name.
func (j *RulesCacheRefreshJob) Name() string {
	return "rules_cache_refresh"
}

// Run invalidates the cache.
func (j *RulesCacheRefreshJob) Run() error {
	j.evaluator.InvalidateRulesCache()
	j.log.Debug().Msg("alert rules cache invalidated")
	return nil
}
