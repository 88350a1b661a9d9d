package scheduler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/domain"
	"github.com/aristath/waterbalance/internal/orchestrator"
)

// MonthlyCloseJob runs the balance orchestrator's Close for the previous
// calendar month. It is the automated equivalent of a regulator's
// end-of-month sign-off.
type MonthlyCloseJob struct {
	log  zerolog.Logger
	orch *orchestrator.Orchestrator
}

// NewMonthlyCloseJob constructs a MonthlyCloseJob.
func NewMonthlyCloseJob(orch *orchestrator.Orchestrator, log zerolog.Logger) *MonthlyCloseJob {
	return &MonthlyCloseJob{orch: orch, log: log.With().Str("job", "monthly_close").Logger()}
}

// Name returns the job name.
func (j *MonthlyCloseJob) Name() string {
	return "monthly_close"
}

// Run closes the previous month.
func (j *MonthlyCloseJob) Run() error {
	prev := time.Now().AddDate(0, -1, 0)
	period, err := domain.NewPeriod(prev.Year(), int(prev.Month()))
	if err != nil {
		return err
	}

	result, err := j.orch.Close(period)
	if err != nil {
		return err
	}

	j.log.Info().
		Str("period", period.String()).
		Str("status", string(result.Status)).
		Float64("error_pct", result.ErrorPct()).
		Msg("monthly close completed")
	return nil
}
