package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dhcgn/eml-to-mbox/config"
	"github.com/dhcgn/eml-to-mbox/model"
	"github.com/dhcgn/eml-to-mbox/state"
	"github.com/dhcgn/eml-to-mbox/stats"
)

type StageFunc func(context.Context) error

type stage struct {
	name string
	fn   StageFunc
}

type subscriber struct {
	name   string
	fn     func(context.Context, <-chan stats.Event) error
	events chan stats.Event
}

// Runner connects the eml producer to the archive writer. Results travel
// over unbuffered channels so only a few messages are held in memory and
// the archive order equals the producer order.
type Runner struct {
	cfg    config.Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	results chan model.Result
	writes  chan model.Message

	tracker state.Tracker

	stages      []stage
	subscribers []*subscriber

	workWG  sync.WaitGroup
	statsWG sync.WaitGroup

	errMu sync.Mutex
	err   error

	startOnce        sync.Once
	closeResultsOnce sync.Once
	closeWritesOnce  sync.Once
	closeEventsOnce  sync.Once
	since            time.Time
}

func New(parent context.Context, cfg config.Config, logger *slog.Logger) *Runner {
	if parent == nil {
		parent = context.Background()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(parent)

	r := &Runner{
		cfg:     cfg,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		results: make(chan model.Result),
		writes:  make(chan model.Message),
	}
	if cfg.SkipDuplicates {
		r.tracker = state.NewMemoryTracker()
	}

	r.AddStage("bridge", r.bridge)
	return r
}

func (r *Runner) Config() config.Config {
	return r.cfg
}

func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

func (r *Runner) Context() context.Context {
	return r.ctx
}

// Tracker is nil unless duplicate skipping is enabled.
func (r *Runner) Tracker() state.Tracker {
	return r.tracker
}

func (r *Runner) ResultWriter() chan<- model.Result {
	return r.results
}

func (r *Runner) CloseResults() {
	r.closeResultsOnce.Do(func() {
		close(r.results)
	})
}

func (r *Runner) Writes() <-chan model.Message {
	return r.writes
}

func (r *Runner) EmitEvent(evt stats.Event) {
	for _, sub := range r.subscribers {
		select {
		case <-r.ctx.Done():
			return
		case sub.events <- evt:
		}
	}
}

// SubscribeStats registers fn to receive every event. Subscribers must be
// registered before Start.
func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	r.subscribers = append(r.subscribers, &subscriber{
		name:   name,
		fn:     fn,
		events: make(chan stats.Event, 128),
	})
}

// AddStage registers a stage; all stages are launched by Start.
func (r *Runner) AddStage(name string, fn StageFunc) {
	r.stages = append(r.stages, stage{name: name, fn: fn})
}

// Start runs all stages and subscribers and blocks until they are done. It
// returns the first fatal stage error. Start may only be called once.
func (r *Runner) Start() error {
	started := false
	r.startOnce.Do(func() { started = true })
	if !started {
		return errors.New("runner already started")
	}
	r.since = time.Now()

	for _, sub := range r.subscribers {
		r.statsWG.Add(1)
		go func(sub *subscriber) {
			defer r.statsWG.Done()
			if err := sub.fn(r.ctx, sub.events); err != nil && !errors.Is(err, context.Canceled) {
				r.fail(fmt.Errorf("%s stats: %w", sub.name, err))
			}
		}(sub)
	}

	for _, st := range r.stages {
		r.workWG.Add(1)
		go func(st stage) {
			defer r.workWG.Done()
			if err := st.fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.fail(fmt.Errorf("%s stage: %w", st.name, err))
			}
		}(st)
	}

	r.workWG.Wait()
	r.closeEvents()
	r.statsWG.Wait()

	r.cancel()

	r.errMu.Lock()
	err := r.err
	r.errMu.Unlock()

	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return err
	}

	r.logger.Info("pipeline completed", "duration", duration)
	return nil
}

// bridge turns per-file results into stats events and forwards convertible
// messages to the writer. Per-file errors never stop the run.
func (r *Runner) bridge(ctx context.Context) error {
	defer r.closeWrites()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok := <-r.results:
			if !ok {
				return nil
			}

			msg := result.Message
			r.EmitEvent(stats.Event{Stage: stats.StageEML, Type: stats.EventTypeScanned, Path: msg.Path})

			if result.Err != nil {
				r.logger.Warn("skipping message", "path", msg.Path, "err", result.Err)
				r.EmitEvent(stats.Event{Stage: stats.StageEML, Type: stats.EventTypeError, Path: msg.Path, Err: result.Err})
				continue
			}

			switch result.Skip {
			case model.SkipFiltered:
				r.logger.Debug("message filtered", "path", msg.Path)
				r.EmitEvent(stats.Event{Stage: stats.StageEML, Type: stats.EventTypeFiltered, Path: msg.Path})
				continue
			case model.SkipDuplicate:
				r.logger.Debug("duplicate message skipped", "path", msg.Path, "hash", msg.Hash)
				r.EmitEvent(stats.Event{Stage: stats.StageEML, Type: stats.EventTypeDuplicate, Path: msg.Path})
				continue
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.writes <- msg:
			}
		}
	}
}

func (r *Runner) closeWrites() {
	r.closeWritesOnce.Do(func() {
		close(r.writes)
	})
}

func (r *Runner) closeEvents() {
	r.closeEventsOnce.Do(func() {
		for _, sub := range r.subscribers {
			close(sub.events)
		}
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
