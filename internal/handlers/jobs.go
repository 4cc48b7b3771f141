package handlers

import (
	"context"

	"github.com/xpanvictor/xscribe/internal/domains/pipeline"
	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/registry"
)

// Runner executes one pipeline run. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, progress chan<- pipeline.Progress) (*pipeline.Result, error)
}

// JobRunner starts pipeline runs in the background and mirrors their
// progress into the job registry.
type JobRunner struct {
	ctx      context.Context
	runner   Runner
	registry registry.Registry
	logger   *Logger.Logger
}

// NewJobRunner ties background runs to ctx, so cancelling it stops them.
func NewJobRunner(ctx context.Context, runner Runner, reg registry.Registry, logger *Logger.Logger) *JobRunner {
	return &JobRunner{ctx: ctx, runner: runner, registry: reg, logger: logger}
}

// Start registers a job for req and runs it asynchronously.
func (j *JobRunner) Start(req pipeline.Request) registry.Job {
	job := j.registry.Create()
	log := j.logger.With("job", job.ID.String())
	progress := make(chan pipeline.Progress, 16)
	forwarded := make(chan struct{})

	go func() {
		defer close(forwarded)
		for p := range progress {
			// the terminal event is recorded by Complete
			if p.Stage.Terminal() {
				continue
			}
			if err := j.registry.Update(job.ID, p); err != nil {
				log.Debugf("progress dropped: %v", err)
			}
		}
	}()

	go func() {
		res, err := j.runner.Run(j.ctx, req, progress)
		<-forwarded
		if err != nil {
			log.Errorf("failed: %v", err)
		} else {
			log.Infof("done: transcript %s", res.TranscriptID)
		}
		if cerr := j.registry.Complete(job.ID, res, err); cerr != nil {
			log.Errorf("not completed: %v", cerr)
		}
	}()
	return job
}
