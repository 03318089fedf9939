package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dhcgn/eml-to-mbox/model"
	"github.com/dhcgn/eml-to-mbox/runner"
	"github.com/dhcgn/eml-to-mbox/stats"
)

var (
	ErrOutputDirMissing  = errors.New("output directory does not exist")
	ErrOutputIsDirectory = errors.New("output path is a directory")
	ErrOutputNotWritable = errors.New("output file is not writable")
)

// CheckDestination verifies that path can be created or overwritten. It does
// not modify an existing file.
func CheckDestination(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return fmt.Errorf("%w: %s", ErrOutputDirMissing, dir)
	}
	if err != nil {
		return fmt.Errorf("stat output directory: %w", err)
	}

	info, err = os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat output file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s", ErrOutputIsDirectory, path)
	}

	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutputNotWritable, err)
	}
	return file.Close()
}

// Writer appends mboxrd records to an underlying writer.
type Writer struct {
	bw      *bufio.Writer
	written int64
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriterSize(w, 64*1024)}
}

// WriteMessage writes the envelope line followed by the transcoded body and
// returns the number of bytes written for this record.
func (w *Writer) WriteMessage(msg model.Message) (int64, error) {
	n1, err := w.bw.Write(msg.Envelope)
	if err != nil {
		return int64(n1), fmt.Errorf("write envelope: %w", err)
	}
	n2, err := w.bw.Write(msg.Body)
	n := int64(n1 + n2)
	w.written += n
	if err != nil {
		return n, fmt.Errorf("write body: %w", err)
	}
	return n, nil
}

// Written reports the total number of bytes accepted so far.
func (w *Writer) Written() int64 {
	return w.written
}

func (w *Writer) Flush() error {
	return w.bw.Flush()
}

type Options struct {
	Path string
}

// Archiver is the pipeline stage that writes messages, in arrival order, to
// the output file.
type Archiver struct {
	opts   Options
	runner *runner.Runner
	writes <-chan model.Message
	logger *slog.Logger
}

func NewArchiver(opts Options, r *runner.Runner, logger *slog.Logger) (*Archiver, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("archive path is empty")
	}
	a := &Archiver{
		opts:   opts,
		runner: r,
		writes: r.Writes(),
		logger: logger,
	}
	r.AddStage("archive", a.run)
	return a, nil
}

func (a *Archiver) run(ctx context.Context) (err error) {
	file, err := os.OpenFile(a.opts.Path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close archive: %w", cerr)
		}
	}()

	w := NewWriter(file)
	for {
		select {
		case <-ctx.Done():
			_ = w.Flush()
			return ctx.Err()
		case msg, ok := <-a.writes:
			if !ok {
				if err := w.Flush(); err != nil {
					return fmt.Errorf("flush archive: %w", err)
				}
				if a.logger != nil {
					a.logger.Debug("archive written", "path", a.opts.Path, "bytes", w.Written())
				}
				return nil
			}

			n, err := w.WriteMessage(msg)
			if err != nil {
				err = fmt.Errorf("write %s: %w", msg.Path, err)
				a.runner.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeError, Path: msg.Path, Err: err})
				return err
			}

			a.runner.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeConverted, Path: msg.Path, Bytes: n})
			if a.logger != nil {
				a.logger.Debug("message archived", "path", msg.Path, "sender", msg.Sender, "bytes", n)
			}
		}
	}
}
