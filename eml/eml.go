package eml

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dhcgn/eml-to-mbox/envelope"
	"github.com/dhcgn/eml-to-mbox/filter"
	"github.com/dhcgn/eml-to-mbox/model"
	"github.com/dhcgn/eml-to-mbox/runner"
	"github.com/dhcgn/eml-to-mbox/state"
	"github.com/dhcgn/eml-to-mbox/transcode"
)

var (
	ErrEmptyMessage = errors.New("message file is empty")
	ErrPanic        = errors.New("unexpected failure while converting message")
)

type Options struct {
	Paths   []string
	Filter  filter.Options
	Tracker state.Tracker
	// Now overrides the clock used for envelopes without a usable Date.
	Now func() time.Time
}

type Reader interface {
	Stream(ctx context.Context, out chan<- model.Result) error
}

func NewReader(opts Options, logger *slog.Logger) (Reader, error) {
	var f *filter.Filter
	if opts.Filter.Active() {
		var err error
		f, err = filter.New(opts.Filter)
		if err != nil {
			return nil, err
		}
	}

	return &fileReader{
		paths:   opts.Paths,
		logger:  logger,
		convert: NewConverter(f, opts.Tracker, opts.Now),
	}, nil
}

type fileReader struct {
	paths   []string
	logger  *slog.Logger
	convert *Converter
}

// Stream converts the paths in order and sends one result per path.
func (f *fileReader) Stream(ctx context.Context, out chan<- model.Result) error {
	for idx, path := range f.paths {
		if err := ctx.Err(); err != nil {
			return err
		}

		result := f.convert.File(idx, path)
		if f.logger != nil && result.Err == nil && result.Skip == model.SkipNone {
			f.logger.Debug("message converted", "path", path, "sender", result.Message.Sender, "date", result.Message.Date, "size", result.Message.Size)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- result:
		}
	}
	return nil
}

// Converter turns raw .eml content into archive records.
type Converter struct {
	filter    *filter.Filter
	tracker   state.Tracker
	extractor *envelope.Extractor
}

// NewConverter builds a Converter. filter, tracker and now may be nil.
func NewConverter(f *filter.Filter, tracker state.Tracker, now func() time.Time) *Converter {
	return &Converter{
		filter:    f,
		tracker:   tracker,
		extractor: &envelope.Extractor{Now: now},
	}
}

// File reads path and converts it. Read errors, empty files and panics are
// reported in the result, never returned.
func (c *Converter) File(idx int, path string) (result model.Result) {
	defer func() {
		if p := recover(); p != nil {
			result = model.Result{
				Message: model.Message{Index: idx, Path: path},
				Err:     fmt.Errorf("%w: %v", ErrPanic, p),
			}
		}
	}()

	raw, err := os.ReadFile(path)
	if err != nil {
		return model.Result{
			Message: model.Message{Index: idx, Path: path},
			Err:     fmt.Errorf("read message: %w", err),
		}
	}
	return c.Bytes(idx, path, raw)
}

// Bytes converts an already loaded message.
func (c *Converter) Bytes(idx int, path string, raw []byte) model.Result {
	msg := model.Message{Index: idx, Path: path, Size: int64(len(raw))}

	content := envelope.Prepare(raw)
	if len(bytes.TrimSpace(content)) == 0 {
		return model.Result{Message: msg, Err: ErrEmptyMessage}
	}

	if c.filter != nil {
		header, body := envelope.SplitHeader(content)
		if !c.filter.Allows(header, body) {
			return model.Result{Message: msg, Skip: model.SkipFiltered}
		}
	}

	if c.tracker != nil {
		msg.Hash = state.Hash(content)
		if c.tracker.AlreadyProcessed(msg.Hash) {
			return model.Result{Message: msg, Skip: model.SkipDuplicate}
		}
		if err := c.tracker.MarkProcessed(msg.Hash, path); err != nil {
			return model.Result{Message: msg, Err: fmt.Errorf("track message: %w", err)}
		}
	}

	env := c.extractor.Extract(raw)
	msg.Sender = env.Sender
	msg.Date = env.Date
	msg.Envelope = env.Line()
	msg.Body = transcode.Transcode(content)

	return model.Result{Message: msg}
}

type Producer struct {
	reader Reader
	runner *runner.Runner
}

func NewProducer(opts Options, r *runner.Runner, logger *slog.Logger) (*Producer, error) {
	if opts.Tracker == nil {
		opts.Tracker = r.Tracker()
	}
	reader, err := NewReader(opts, logger)
	if err != nil {
		return nil, err
	}
	producer := &Producer{reader: reader, runner: r}
	r.AddStage("eml", producer.run)
	return producer, nil
}

func (p *Producer) run(ctx context.Context) error {
	defer p.runner.CloseResults()
	return p.reader.Stream(ctx, p.runner.ResultWriter())
}
