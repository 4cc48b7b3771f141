package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/xpanvictor/xscribe/internal/domains/pipeline"
	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/registry"
	memoryregistry "github.com/xpanvictor/xscribe/pkg/io/registry/memoryRegistry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestJobRunnerTagsLogsWithJob(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	reg := memoryregistry.New(0)
	runner := &fakeRunner{err: errors.New("boom")}
	jobs := NewJobRunner(context.Background(), runner, reg, &Logger.Logger{SugaredLogger: zap.New(core).Sugar()})

	job := jobs.Start(pipeline.Request{})
	eventually(t, func() bool {
		got, _ := reg.Get(job.ID)
		return got.Status == registry.StatusFailed
	})

	failed := logs.FilterMessage("failed: boom").All()
	if len(failed) != 1 {
		t.Fatalf("failure logged %d times, want 1", len(failed))
	}
	if got := failed[0].ContextMap()["job"]; got != job.ID.String() {
		t.Errorf("job field = %v, want %s", got, job.ID)
	}
}
