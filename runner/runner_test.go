package runner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/eml-to-mbox/config"
	"github.com/dhcgn/eml-to-mbox/model"
	"github.com/dhcgn/eml-to-mbox/stats"
)

type eventLog struct {
	mu     sync.Mutex
	events []stats.Event
}

func (l *eventLog) consume(ctx context.Context, events <-chan stats.Event) error {
	for evt := range events {
		l.mu.Lock()
		l.events = append(l.events, evt)
		l.mu.Unlock()
	}
	return nil
}

func (l *eventLog) types() []stats.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]stats.EventType, 0, len(l.events))
	for _, evt := range l.events {
		out = append(out, evt.Type)
	}
	return out
}

func produce(r *Runner, results ...model.Result) {
	r.AddStage("producer", func(ctx context.Context) error {
		defer r.CloseResults()
		for _, res := range results {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.ResultWriter() <- res:
			}
		}
		return nil
	})
}

func TestBridgeRoutesResults(t *testing.T) {
	r := New(context.Background(), config.Config{}, nil)

	first, second := &eventLog{}, &eventLog{}
	r.SubscribeStats("first", first.consume)
	r.SubscribeStats("second", second.consume)

	produce(r,
		model.Result{Message: model.Message{Path: "a.eml"}},
		model.Result{Message: model.Message{Path: "b.eml"}, Err: errors.New("unreadable")},
		model.Result{Message: model.Message{Path: "c.eml"}, Skip: model.SkipFiltered},
		model.Result{Message: model.Message{Path: "d.eml"}, Skip: model.SkipDuplicate},
		model.Result{Message: model.Message{Path: "e.eml"}},
	)

	var written []string
	r.AddStage("writer", func(ctx context.Context) error {
		for msg := range r.Writes() {
			written = append(written, msg.Path)
		}
		return nil
	})

	require.NoError(t, r.Start())

	assert.Equal(t, []string{"a.eml", "e.eml"}, written)

	want := []stats.EventType{
		stats.EventTypeScanned,
		stats.EventTypeScanned, stats.EventTypeError,
		stats.EventTypeScanned, stats.EventTypeFiltered,
		stats.EventTypeScanned, stats.EventTypeDuplicate,
		stats.EventTypeScanned,
	}
	assert.Equal(t, want, first.types())
	assert.Equal(t, want, second.types(), "every subscriber sees every event")
}

func TestStartReturnsFirstStageError(t *testing.T) {
	r := New(context.Background(), config.Config{}, nil)
	boom := errors.New("disk full")

	produce(r,
		model.Result{Message: model.Message{Path: "a.eml"}},
		model.Result{Message: model.Message{Path: "b.eml"}},
		model.Result{Message: model.Message{Path: "c.eml"}},
	)
	r.AddStage("writer", func(ctx context.Context) error {
		<-r.Writes()
		return boom
	})

	err := r.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestStartOnlyOnce(t *testing.T) {
	r := New(context.Background(), config.Config{}, nil)
	produce(r)
	r.AddStage("writer", func(ctx context.Context) error {
		for range r.Writes() {
		}
		return nil
	})

	require.NoError(t, r.Start())
	assert.Error(t, r.Start())
}

func TestTrackerOnlyWithSkipDuplicates(t *testing.T) {
	assert.Nil(t, New(context.Background(), config.Config{}, nil).Tracker())
	assert.NotNil(t, New(context.Background(), config.Config{SkipDuplicates: true}, nil).Tracker())
}
