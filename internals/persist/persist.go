// Package persist accumulates the files a sync pass produces and commits
// them to durable storage in size-bounded batches.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"
)

// DefaultMaxBytes bounds the cumulative payload of one commit.
const DefaultMaxBytes = 100_000_000

// ErrNoFile is returned by a Loader when the named file was never stored.
var ErrNoFile = errors.New("file not in storage")

type File struct {
	Name string
	Data []byte
}

// Committer stores one batch of files atomically.
type Committer interface {
	CommitFiles(ctx context.Context, files []File, message string) error
}

type Loader interface {
	ReadFile(name string) ([]byte, error)
}

// Writer collects pending file writes until Flush.
type Writer struct {
	maxBytes int
	pending  []File
}

func NewWriter(maxBytes int) *Writer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Writer{maxBytes: maxBytes}
}

// Add queues data under name, replacing an earlier write of the same name.
func (w *Writer) Add(name string, data []byte) {
	for i, f := range w.pending {
		if f.Name == name {
			w.pending[i].Data = data
			return
		}
	}
	w.pending = append(w.pending, File{Name: name, Data: data})
}

// AddJSON queues v as indented JSON.
func (w *Writer) AddJSON(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	w.Add(name, append(b, '\n'))
	return nil
}

func (w *Writer) Pending() []File { return w.pending }

// Batches splits the pending files so that no batch exceeds the byte ceiling.
// A file larger than the ceiling on its own is placed in a batch by itself.
func (w *Writer) Batches() [][]File {
	var (
		batches [][]File
		current []File
		size    int
	)
	for _, f := range w.pending {
		if len(current) > 0 && size+len(f.Data) > w.maxBytes {
			batches = append(batches, current)
			current, size = nil, 0
		}
		current = append(current, f)
		size += len(f.Data)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// Flush commits every batch in order and clears the queue. It stops at the
// first failed batch; batches already committed stay committed.
func (w *Writer) Flush(ctx context.Context, c Committer, message string) error {
	log := clog.FromContext(ctx)
	batches := w.Batches()
	for i, batch := range batches {
		msg := message
		if len(batches) > 1 {
			msg = fmt.Sprintf("%s (%d/%d)", message, i+1, len(batches))
		}
		if err := c.CommitFiles(ctx, batch, msg); err != nil {
			w.pending = remaining(batches[i:])
			return fmt.Errorf("commit batch %d/%d: %w", i+1, len(batches), err)
		}
		log.With("batch", i+1, "files", len(batch)).Info("Committed storage batch")
	}
	w.pending = nil
	return nil
}

// LoadJSON decodes a stored file into v. A missing file leaves v untouched.
func LoadJSON(l Loader, name string, v any) error {
	b, err := l.ReadFile(name)
	if errors.Is(err, ErrNoFile) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func remaining(batches [][]File) []File {
	var out []File
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}
