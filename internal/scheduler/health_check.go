package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/database"
)

// HealthCheckJob runs SQLite's integrity check and forces a WAL checkpoint
// on the application database.
type HealthCheckJob struct {
	log zerolog.Logger
	db  *database.DB
}

// NewHealthCheckJob constructs a HealthCheckJob.
func NewHealthCheckJob(db *database.DB, log zerolog.Logger) *HealthCheckJob {
	return &HealthCheckJob{db: db, log: log.With().Str("job", "health_check").Logger()}
}

// Name returns the job name.
func (j *HealthCheckJob) Name() string {
	return "health_check"
}

// Run executes the health check.
func (j *HealthCheckJob) Run() error {
	result, err := j.db.HealthCheck()
	if err != nil {
		return fmt.Errorf("database %s: integrity check failed: %w", j.db.Name(), err)
	}
	if result != "ok" {
		return fmt.Errorf("database %s: integrity check returned %q", j.db.Name(), result)
	}

	if err := j.db.WALCheckpoint("PASSIVE"); err != nil {
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
		return nil
	}
	j.log.Debug().Msg("health check passed")
	return nil
}
