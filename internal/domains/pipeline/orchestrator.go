package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/xpanvictor/xscribe/internal/config"
	"github.com/xpanvictor/xscribe/internal/domains/library"
	"github.com/xpanvictor/xscribe/internal/domains/summary"
	"github.com/xpanvictor/xscribe/internal/domains/transcription"
	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/ingest"
	"github.com/xpanvictor/xscribe/pkg/io/stt/models"
)

// SummaryUnavailable prefixes the placeholder stored when summarization errors.
const SummaryUnavailable = "Summary unavailable: "

type Ingestor interface {
	IngestFile(ctx context.Context, name, declaredMime string, content []byte) (*ingest.AudioUnit, error)
	Release(u *ingest.AudioUnit)
}

type ModelLoader interface {
	IsLoaded(name string) bool
	LoadModel(ctx context.Context, name string, onProgress func(float64)) (bool, error)
	WaitLoad(ctx context.Context) error
	Catalog() *models.Catalog
}

// Orchestrator sequences one clip through every stage. Runs share the
// collaborators but nothing else.
type Orchestrator struct {
	ingestor    Ingestor
	store       library.Service
	models      ModelLoader
	transcriber transcription.Service
	summarizer  summary.Service
	logger      *Logger.Logger
}

func NewOrchestrator(
	ingestor Ingestor,
	store library.Service,
	models ModelLoader,
	transcriber transcription.Service,
	summarizer summary.Service,
	logger *Logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		ingestor:    ingestor,
		store:       store,
		models:      models,
		transcriber: transcriber,
		summarizer:  summarizer,
		logger:      logger.Named("pipeline"),
	}
}

// run carries the per-run state machine and observer.
type run struct {
	ctx      context.Context
	o        *Orchestrator
	machine  *fsm.FSM
	progress chan<- Progress
	logger   *Logger.Logger
}

func newMachine(onEnter func(ctx context.Context, e *fsm.Event)) *fsm.FSM {
	nonTerminal := []string{
		string(Idle), string(Ingesting), string(PersistingAudio), string(ModelReady),
		string(Transcribing), string(Summarizing), string(PersistingTranscript),
	}
	return fsm.NewFSM(
		string(Idle),
		fsm.Events{
			{Name: string(evIngest), Src: []string{string(Idle)}, Dst: string(Ingesting)},
			{Name: string(evStoreAudio), Src: []string{string(Ingesting)}, Dst: string(PersistingAudio)},
			{Name: string(evPrepareModel), Src: []string{string(PersistingAudio)}, Dst: string(ModelReady)},
			{Name: string(evTranscribe), Src: []string{string(ModelReady)}, Dst: string(Transcribing)},
			{Name: string(evSummarize), Src: []string{string(Transcribing)}, Dst: string(Summarizing)},
			{Name: string(evStoreTranscript), Src: []string{string(Transcribing), string(Summarizing)}, Dst: string(PersistingTranscript)},
			{Name: string(evFinish), Src: []string{string(PersistingTranscript)}, Dst: string(Done)},
			{Name: string(evFail), Src: nonTerminal, Dst: string(Failed)},
		},
		fsm.Callbacks{
			"enter_state": onEnter,
		},
	)
}

// Run drives req through the pipeline, publishing every transition and
// forwarded progress value on progress, which is closed on return. progress
// may be nil.
func (o *Orchestrator) Run(ctx context.Context, req Request, progress chan<- Progress) (*Result, error) {
	r := &run{ctx: ctx, o: o, progress: progress, logger: o.logger}
	if progress != nil {
		defer close(progress)
	}
	r.machine = newMachine(func(_ context.Context, e *fsm.Event) {
		r.logger.Infof("stage %s -> %s", e.Src, e.Dst)
		if Phase(e.Dst) != Failed {
			r.emit(r.ctx, Phase(e.Dst), 0)
		}
	})

	res, err := r.execute(ctx, req)
	if err != nil {
		var se *StageError
		if !errors.As(err, &se) {
			se = &StageError{Stage: r.phase(), Err: err}
		}
		r.logger.Errorf("pipeline failed in %s: %v", se.Stage, se.Err)
		r.fire(ctx, evFail)
		r.send(ctx, Progress{Stage: Failed, Label: Failed.Label(), Value: 1, Error: se.Error()})
		return nil, se
	}
	r.emit(ctx, Done, 1)
	return res, nil
}

func (r *run) execute(ctx context.Context, req Request) (*Result, error) {
	o := r.o
	prefs := req.Preferences

	// ingesting
	if err := r.fire(ctx, evIngest); err != nil {
		return nil, err
	}
	unit := req.Source.Unit
	if unit == nil {
		var err error
		unit, err = o.ingestor.IngestFile(ctx, req.Source.FileName, req.Source.MimeType, req.Source.Content)
		if err != nil {
			return nil, r.fail(err)
		}
	}
	defer o.ingestor.Release(unit)
	r.emit(ctx, Ingesting, 1)

	// persisting audio
	if err := r.fire(ctx, evStoreAudio); err != nil {
		return nil, err
	}
	audioID, err := o.store.SaveAudio(ctx, &library.AudioRecord{
		Name:            unit.Name,
		MimeType:        unit.MimeType,
		Content:         unit.Content,
		DurationSeconds: unit.DurationSeconds,
	})
	if err != nil {
		return nil, r.fail(err)
	}
	r.emit(ctx, PersistingAudio, 1)

	// model
	if err := r.fire(ctx, evPrepareModel); err != nil {
		return nil, err
	}
	if err := r.ensureModel(ctx, prefs.Model); err != nil {
		return nil, r.fail(err)
	}
	r.emit(ctx, ModelReady, 1)

	// transcribing
	if err := r.fire(ctx, evTranscribe); err != nil {
		return nil, err
	}
	transcript, err := o.transcriber.Transcribe(ctx, unit, prefs.Language, func(f float64) {
		r.emit(ctx, Transcribing, f)
	})
	if err != nil {
		return nil, r.fail(err)
	}
	// a preload may have replaced the model since ModelReady
	text, modelUsed := transcript.Text, transcript.Model
	r.emit(ctx, Transcribing, 1)

	// summarizing
	var summaryText *string
	if o.summarizer.HasValidAPIKey() {
		if err := r.fire(ctx, evSummarize); err != nil {
			return nil, err
		}
		s := r.summarize(ctx, text, prefs)
		summaryText = &s
	} else {
		r.logger.Infof("no valid summarization key, skipping summary")
	}

	// persisting transcript
	if err := r.fire(ctx, evStoreTranscript); err != nil {
		return nil, err
	}
	rec := &library.TranscriptionRecord{
		AudioID:        audioID,
		FileName:       unit.Name,
		TranscriptText: text,
		SummaryText:    summaryText,
		ModelUsed:      modelUsed,
		LanguageCode:   prefs.Language,
	}
	transcriptID, err := o.store.SaveTranscript(ctx, rec)
	if err != nil {
		return nil, r.fail(err)
	}
	r.emit(ctx, PersistingTranscript, 1)

	if err := r.fire(ctx, evFinish); err != nil {
		return nil, err
	}
	return &Result{
		AudioID:        audioID,
		TranscriptID:   transcriptID,
		FileName:       unit.Name,
		TranscriptText: text,
		SummaryText:    summaryText,
		ModelUsed:      modelUsed,
		Language:       prefs.Language,
		SizeWarning:    unit.SizeWarning,
	}, nil
}

// ensureModel loads name unless it is already cached, falling back once to
// the smallest catalog model. A load already in flight is waited out rather
// than counted as a failure.
func (r *run) ensureModel(ctx context.Context, name string) error {
	onProgress := func(f float64) { r.emit(ctx, ModelReady, f) }

	ok, err := r.load(ctx, name, onProgress)
	if ok {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	primaryErr := describeLoad(err)

	fallback := r.o.models.Catalog().Smallest()
	r.logger.Warnf("could not load %s (%s), falling back to %s", name, primaryErr, fallback.Name)
	ok, err = r.load(ctx, fallback.Name, onProgress)
	if ok {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %s: %s; fallback %s: %s",
		ErrModelLoad, name, primaryErr, fallback.Name, describeLoad(err))
}

// load makes name the cached model, waiting for any other load first.
func (r *run) load(ctx context.Context, name string, onProgress func(float64)) (bool, error) {
	mm := r.o.models
	for {
		if mm.IsLoaded(name) {
			r.logger.Infof("model %s already loaded", name)
			return true, nil
		}
		ok, err := mm.LoadModel(ctx, name, onProgress)
		if !errors.Is(err, models.ErrBusy) {
			return ok, err
		}
		r.logger.Infof("another model load is running, waiting before loading %s", name)
		if err := mm.WaitLoad(ctx); err != nil {
			return false, err
		}
	}
}

func describeLoad(err error) string {
	if err == nil {
		return "cancelled"
	}
	return err.Error()
}

// summarize never fails the run; errors become placeholder text.
func (r *run) summarize(ctx context.Context, text string, prefs config.Preferences) string {
	r.emit(ctx, Summarizing, 0.5)
	s, err := r.o.summarizer.Summarize(ctx, text, prefs.SummaryLength, prefs.Language)
	if err != nil {
		r.logger.Warnf("summary failed, storing placeholder: %v", err)
		s = SummaryUnavailable + err.Error()
	}
	r.emit(ctx, Summarizing, 1)
	return s
}

func (r *run) phase() Phase {
	return Phase(r.machine.Current())
}

func (r *run) fire(ctx context.Context, ev Event) error {
	// the run's own ctx may already be cancelled; transitions must still happen
	if err := r.machine.Event(context.WithoutCancel(ctx), string(ev)); err != nil {
		return fmt.Errorf("transition %s from %s: %w", ev, r.phase(), err)
	}
	return nil
}

func (r *run) fail(err error) error {
	return &StageError{Stage: r.phase(), Err: err}
}

func (r *run) emit(ctx context.Context, stage Phase, value float64) {
	r.send(ctx, Progress{Stage: stage, Label: stage.Label(), Value: value})
}

func (r *run) send(ctx context.Context, p Progress) {
	if r.progress == nil {
		return
	}
	select {
	case r.progress <- p:
	case <-ctx.Done():
	}
}
