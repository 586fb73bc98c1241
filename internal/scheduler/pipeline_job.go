package scheduler

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/export"
	"github.com/mhalford/revcast/internal/runner"
)

// PipelineJob runs the full forecast pipeline and, when an exporter is
// configured, writes the artifact pack for the completed run.
type PipelineJob struct {
	runner   *runner.Runner
	exporter *export.Exporter // nil disables export
	log      zerolog.Logger
}

// NewPipelineJob creates a new pipeline job
func NewPipelineJob(r *runner.Runner, exporter *export.Exporter, log zerolog.Logger) *PipelineJob {
	return &PipelineJob{
		runner:   r,
		exporter: exporter,
		log:      log.With().Str("job", "pipeline_run").Logger(),
	}
}

// Name returns the job name
func (j *PipelineJob) Name() string { return "pipeline_run" }

// Run executes one pipeline run. An already-running pipeline is not an
// error: the scheduled tick is skipped.
func (j *PipelineJob) Run() error {
	ctx := context.Background()

	result, err := j.runner.Run(ctx, "schedule")
	if errors.Is(err, runner.ErrRunInProgress) {
		j.log.Warn().Msg("Pipeline already running, skipping scheduled run")
		return nil
	}
	if err != nil {
		return err
	}

	if j.exporter != nil {
		if _, err := j.exporter.Export(ctx, result.RunID); err != nil {
			return err
		}
	}
	return nil
}
