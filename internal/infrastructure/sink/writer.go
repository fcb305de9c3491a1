// Package sink writes detection output: a JSONL event stream, a run
// summary document, and optionally a Postgres table.
package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	apperrors "github.com/storesight/storesight/internal/domain/errors"
	"github.com/storesight/storesight/internal/domain/event"
)

// EventWriter appends one envelope per line to a JSONL file.
type EventWriter struct {
	f   *os.File
	buf *bufio.Writer
	enc *json.Encoder
}

// NewEventWriter creates the output file, making parent directories as
// needed. An existing file is truncated.
func NewEventWriter(path string) (*EventWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.Wrap(err, "creating output directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, apperrors.Wrap(err, "creating events file")
	}
	buf := bufio.NewWriter(f)
	return &EventWriter{f: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

func (w *EventWriter) Write(_ context.Context, ev *event.Event) error {
	if err := w.enc.Encode(ev.Envelope()); err != nil {
		return apperrors.Wrap(err, "encoding event")
	}
	return nil
}

func (w *EventWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// WriteSummary writes the run summary as one indented JSON document.
func WriteSummary(path string, summary any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.Wrap(err, "creating output directory")
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return apperrors.Wrap(err, "encoding summary")
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.Wrap(err, "writing summary file")
	}
	return nil
}
