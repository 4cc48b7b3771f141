package models

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xpanvictor/xscribe/internal/config"
	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/stt"
)

type fakeRecognizer struct {
	name   string
	mu     sync.Mutex
	closed bool
}

func (f *fakeRecognizer) Recognize(context.Context, *stt.AudioInput) (stt.Output, error) {
	return stt.Output{Content: f.name}, nil
}

func (f *fakeRecognizer) Name() string { return f.name }

func (f *fakeRecognizer) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeRecognizer) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeLoader blocks on gate when set and fails for names in fail.
type fakeLoader struct {
	gate     chan struct{}
	started  chan string
	fail     map[string]error
	progress []float64
}

func (l *fakeLoader) Load(ctx context.Context, entry config.ModelEntry, onProgress func(float64)) (stt.Recognizer, error) {
	if l.started != nil {
		l.started <- entry.Name
	}
	for _, p := range l.progress {
		onProgress(p)
	}
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := l.fail[entry.Name]; err != nil {
		return nil, err
	}
	return &fakeRecognizer{name: entry.Name}, nil
}

func newManager(l Loader) *Manager {
	return NewManager(NewCatalog(config.DefaultCatalog(), "whisper-tiny"), l, Logger.Nop())
}

func TestLoadModel(t *testing.T) {
	m := newManager(&fakeLoader{})
	ctx := context.Background()

	if _, _, err := m.Acquire(); !errors.Is(err, stt.ErrModelNotLoaded) {
		t.Errorf("Acquire before load err = %v", err)
	}

	ok, err := m.LoadModel(ctx, "whisper-small", nil)
	if !ok || err != nil {
		t.Fatalf("LoadModel = %v, %v", ok, err)
	}
	if !m.IsLoaded("whisper-small") || m.IsLoaded("whisper-base") {
		t.Error("IsLoaded mismatch after loading whisper-small")
	}
	first, release, err := m.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	release()

	ok, err = m.LoadModel(ctx, "whisper-base", nil)
	if !ok || err != nil {
		t.Fatalf("second LoadModel = %v, %v", ok, err)
	}
	if !first.(*fakeRecognizer).isClosed() {
		t.Error("replaced model was not closed")
	}
	if m.Current() != "whisper-base" {
		t.Errorf("Current = %q", m.Current())
	}
}

func TestLoadUnknownFallsBackToDefault(t *testing.T) {
	m := newManager(&fakeLoader{})
	ok, err := m.LoadModel(context.Background(), "whisper-huge", nil)
	if !ok || err != nil {
		t.Fatalf("LoadModel = %v, %v", ok, err)
	}
	if m.Current() != "whisper-tiny" {
		t.Errorf("Current = %q, want whisper-tiny", m.Current())
	}
}

func TestLoadBusy(t *testing.T) {
	l := &fakeLoader{gate: make(chan struct{}), started: make(chan string, 2)}
	m := newManager(l)
	ctx := context.Background()

	l.gate = nil
	if ok, _ := m.LoadModel(ctx, "whisper-tiny", nil); !ok {
		t.Fatal("initial load failed")
	}
	<-l.started
	l.gate = make(chan struct{})

	done := make(chan bool)
	go func() {
		ok, _ := m.LoadModel(ctx, "whisper-medium", nil)
		done <- ok
	}()
	<-l.started

	if m.IsLoaded("whisper-tiny") {
		t.Error("IsLoaded must be false while a load is in flight")
	}
	// the cached model stays usable until the new one replaces it
	if rec, release, err := m.Acquire(); err != nil || rec.Name() != "whisper-tiny" {
		t.Errorf("Acquire during load = %v, %v", rec, err)
	} else {
		release()
	}

	ok, err := m.LoadModel(ctx, "whisper-base", nil)
	if ok || !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent LoadModel = %v, %v; want false, ErrBusy", ok, err)
	}

	close(l.gate)
	if !<-done {
		t.Error("first load should succeed")
	}
	if m.Current() != "whisper-medium" {
		t.Errorf("Current = %q", m.Current())
	}
}

func TestLoadBusyKeepsPreviousModel(t *testing.T) {
	l := &fakeLoader{started: make(chan string, 4)}
	m := newManager(l)
	ctx := context.Background()

	if ok, _ := m.LoadModel(ctx, "whisper-small", nil); !ok {
		t.Fatal("initial load failed")
	}
	<-l.started

	l.gate = make(chan struct{})
	l.fail = map[string]error{"whisper-large": errors.New("disk full")}
	done := make(chan error)
	go func() {
		_, err := m.LoadModel(ctx, "whisper-large", nil)
		done <- err
	}()
	<-l.started

	if ok, err := m.LoadModel(ctx, "whisper-base", nil); ok || !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent LoadModel = %v, %v", ok, err)
	}
	close(l.gate)
	if err := <-done; err == nil {
		t.Fatal("expected the large load to fail")
	}
	if !m.IsLoaded("whisper-small") {
		t.Error("previous model should stay active after a failed load")
	}
}

func TestCancelLoad(t *testing.T) {
	l := &fakeLoader{gate: make(chan struct{}), started: make(chan string, 1)}
	m := newManager(l)

	done := make(chan struct {
		ok  bool
		err error
	})
	go func() {
		ok, err := m.LoadModel(context.Background(), "whisper-small", nil)
		done <- struct {
			ok  bool
			err error
		}{ok, err}
	}()
	<-l.started
	m.CancelLoad()

	select {
	case res := <-done:
		if res.ok || res.err != nil {
			t.Errorf("cancelled load = %v, %v; want false, nil", res.ok, res.err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancel did not stop the load")
	}
	if m.Loading() {
		t.Error("loading flag not cleared")
	}
}

func TestProgressIsClamped(t *testing.T) {
	l := &fakeLoader{progress: []float64{-0.5, 0.2, 0.1, 0.6, 1.4}}
	m := newManager(l)

	var got []float64
	if ok, _ := m.LoadModel(context.Background(), "whisper-tiny", func(f float64) { got = append(got, f) }); !ok {
		t.Fatal("load failed")
	}
	want := []float64{0, 0.2, 0.2, 0.6, 1}
	if len(got) != len(want) {
		t.Fatalf("progress = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("progress[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCatalog(t *testing.T) {
	c := NewCatalog(config.DefaultCatalog(), "whisper-tiny")
	if c.Smallest().Name != "whisper-tiny" {
		t.Errorf("Smallest = %s", c.Smallest().Name)
	}
	if got := c.Resolve("whisper-medium").ModelID; got != "ggml-medium.bin" {
		t.Errorf("Resolve(medium) = %s", got)
	}
	if got := c.Resolve("nope").Name; got != "whisper-tiny" {
		t.Errorf("Resolve(unknown) = %s", got)
	}
	if c.Known("nope") || !c.Known("whisper-large") {
		t.Error("Known mismatch")
	}

	shuffled := []config.ModelEntry{{Name: "b", SizeMB: 20}, {Name: "a", SizeMB: 5}}
	if NewCatalog(shuffled, "missing").Default().Name != "b" {
		t.Error("unknown default should fall back to the first entry")
	}
	if NewCatalog(shuffled, "b").Smallest().Name != "a" {
		t.Error("Smallest should pick by size")
	}
}

func TestAcquirePinsReplacedModel(t *testing.T) {
	m := newManager(&fakeLoader{})
	ctx := context.Background()
	if ok, _ := m.LoadModel(ctx, "whisper-small", nil); !ok {
		t.Fatal("initial load failed")
	}

	rec, release, err := m.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := m.LoadModel(ctx, "whisper-base", nil); !ok {
		t.Fatal("second load failed")
	}
	if rec.(*fakeRecognizer).isClosed() {
		t.Fatal("pinned recognizer closed while in use")
	}
	if rec.Name() != "whisper-small" || m.Current() != "whisper-base" {
		t.Errorf("pinned = %s current = %s", rec.Name(), m.Current())
	}

	release()
	release()
	if !rec.(*fakeRecognizer).isClosed() {
		t.Error("replaced recognizer not closed after release")
	}

	cur, release, _ := m.Acquire()
	m.Close()
	if cur.(*fakeRecognizer).isClosed() {
		t.Error("Close must wait for the holder")
	}
	release()
	if !cur.(*fakeRecognizer).isClosed() {
		t.Error("recognizer not closed after Close and release")
	}
}

func TestWaitLoad(t *testing.T) {
	l := &fakeLoader{gate: make(chan struct{}), started: make(chan string, 1)}
	m := newManager(l)

	if err := m.WaitLoad(context.Background()); err != nil {
		t.Fatalf("WaitLoad while idle: %v", err)
	}

	go m.LoadModel(context.Background(), "whisper-small", nil)
	<-l.started

	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.WaitLoad(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitLoad during load err = %v, want deadline", err)
	}

	waited := make(chan error)
	go func() { waited <- m.WaitLoad(context.Background()) }()
	close(l.gate)
	if err := <-waited; err != nil {
		t.Fatalf("WaitLoad: %v", err)
	}
	if !m.IsLoaded("whisper-small") {
		t.Error("WaitLoad returned before the model was cached")
	}
}
