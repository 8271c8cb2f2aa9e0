// Package table writes extracted rows to the output CSV file.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/MikeSquared-Agency/ladder/internal/ladder"
)

// Writer appends rows to one CSV file and can rewrite them in place. It is
// safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	csv    *csv.Writer
	header []string
}

// Create truncates path and writes the header for categories.
func Create(path string, categories []string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	w := &Writer{file: f, csv: csv.NewWriter(f)}
	w.csv.UseCRLF = true

	w.header = ladder.Header(categories)
	if err := w.writeRecord(w.header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return w, nil
}

// Path returns the file the writer appends to.
func (w *Writer) Path() string {
	return w.file.Name()
}

// Write appends one row and flushes it to disk.
func (w *Writer) Write(row ladder.Row) error {
	rec, err := w.record(row)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeRecord(rec)
}

// Rewrite truncates the file and writes the header followed by rows.
func (w *Writer) Rewrite(rows []ladder.Row) error {
	recs := make([][]string, 0, len(rows))
	for _, row := range rows {
		rec, err := w.record(row)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate %s: %w", w.file.Name(), err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", w.file.Name(), err)
	}
	if err := w.csv.Write(w.header); err != nil {
		return err
	}
	if err := w.csv.WriteAll(recs); err != nil {
		return err
	}
	return nil
}

func (w *Writer) record(row ladder.Row) ([]string, error) {
	rec := row.Record()
	if len(rec) != len(w.header) {
		return nil, fmt.Errorf("row for %s has %d fields, header has %d", row.SessionID, len(rec), len(w.header))
	}
	return rec, nil
}

func (w *Writer) writeRecord(rec []string) error {
	if err := w.csv.Write(rec); err != nil {
		return err
	}
	w.csv.Flush()
	return w.csv.Error()
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
