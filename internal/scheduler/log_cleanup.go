package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/logging"
)

// LogCleanupJob sweeps rotated log files older than the sink's configured
// retention horizon, independently of the sweep the sink already runs at
// startup.
type LogCleanupJob struct {
	log  zerolog.Logger
	sink *logging.Sink
}

// NewLogCleanupJob constructs a LogCleanupJob.
func NewLogCleanupJob(sink *logging.Sink, log zerolog.Logger) *LogCleanupJob {
	return &LogCleanupJob{sink: sink, log: log.With().Str("job", "log_cleanup").Logger()}
}

// Name returns the job name.
func (j *LogCleanupJob) Name() string {
	return "log_cleanup"
}

// Run sweeps stale rotated log files.
func (j *LogCleanupJob) Run() error {
	j.sink.Cleanup()
	j.log.Debug().Msg("stale log sweep completed")
	return nil
}
