package registry

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/xscribe/internal/domains/pipeline"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobFinished = errors.New("job already finished")
)

type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Job is a snapshot of one pipeline run.
type Job struct {
	ID        uuid.UUID         `json:"id"`
	Status    Status            `json:"status"`
	Progress  pipeline.Progress `json:"progress"`
	Result    *pipeline.Result  `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type Registry interface {
	// job lifecycle
	Create() Job
	Update(id uuid.UUID, p pipeline.Progress) error
	Complete(id uuid.UUID, res *pipeline.Result, err error) error
	// queries
	Get(id uuid.UUID) (Job, bool)
	// Subscribe streams progress for id until the job finishes, then closes
	// the channel. cancel detaches early.
	Subscribe(id uuid.UUID) (events <-chan pipeline.Progress, cancel func(), err error)
	// Close stops background expiry.
	Close() error
}
