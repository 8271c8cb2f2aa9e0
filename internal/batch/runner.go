// Package batch walks a directory of transcripts and writes one output row
// per transcript.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/ladder/internal/hermes"
	"github.com/MikeSquared-Agency/ladder/internal/ladder"
)

// Config holds the batch configuration.
type Config struct {
	DataDir string
	Output  string // output table path, reported in events
	Workers int
	Source  string // source label for mirrored rows and events (default: "extract")
}

// Summary counts what a run did.
type Summary struct {
	RunID    uuid.UUID     `json:"run_id"`
	Files    int           `json:"files"`
	Rows     int           `json:"rows"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// RowWriter receives rows in file order.
type RowWriter interface {
	Write(row ladder.Row) error
}

// RowRewriter is a RowWriter that can replace every row written so far.
// When the output implements it, a transcript that changes after its row was
// written gets that row replaced.
type RowRewriter interface {
	Rewrite(rows []ladder.Row) error
}

// RowSink mirrors written rows somewhere else, such as Postgres.
type RowSink interface {
	WriteRow(ctx context.Context, runID uuid.UUID, source, file string, row ladder.Row) (uuid.UUID, error)
}

// EventPublisher announces written rows and finished batches.
type EventPublisher interface {
	Publish(subject string, data any) error
}

// Option configures optional Runner collaborators.
type Option func(*Runner)

// WithSink mirrors every written row to s.
func WithSink(s RowSink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithEvents publishes row and batch events to p.
func WithEvents(p EventPublisher) Option {
	return func(r *Runner) { r.events = p }
}

// Runner orchestrates extraction over a data directory.
type Runner struct {
	cfg     Config
	builder *ladder.Builder
	out     RowWriter
	sink    RowSink
	events  EventPublisher
	runID   uuid.UUID
	logger  *slog.Logger

	mu    sync.Mutex
	files map[string]fileState
	rows  []ladder.Row
}

var errUnchanged = errors.New("transcript unchanged")

// NewRunner creates a runner with a fresh run id.
func NewRunner(cfg Config, b *ladder.Builder, out RowWriter, logger *slog.Logger, opts ...Option) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Source == "" {
		cfg.Source = "extract"
	}
	runID := uuid.New()
	r := &Runner{
		cfg:     cfg,
		builder: b,
		out:     out,
		runID:   runID,
		logger:  logger.With("run_id", runID.String()),
		files:   make(map[string]fileState),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunID identifies this runner in logs, mirrored rows and events.
func (r *Runner) RunID() uuid.UUID {
	return r.runID
}

type fileOutcome struct {
	result ladder.Result
	hash   string
	err    error
	done   chan struct{}
}

// Run processes every transcript under the data directory. Files are built by
// up to cfg.Workers goroutines and their rows are written in discovery order.
// When ctx is cancelled, rows already built are written and ctx.Err() is
// returned.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: r.runID}

	files, err := DiscoverFiles(r.cfg.DataDir)
	if err != nil {
		r.logger.Warn("data directory unavailable", "dir", r.cfg.DataDir, "error", err)
	}
	sum.Files = len(files)
	r.logger.Info("files discovered", "dir", r.cfg.DataDir, "files", len(files), "workers", r.cfg.Workers)

	outcomes := make([]*fileOutcome, len(files))
	for i := range outcomes {
		outcomes[i] = &fileOutcome{done: make(chan struct{})}
	}

	sem := newSemaphore(r.cfg.Workers)
	go func() {
		for i, path := range files {
			if err := sem.acquire(ctx); err != nil {
				for _, o := range outcomes[i:] {
					o.err = err
					close(o.done)
				}
				return
			}
			go func(o *fileOutcome, path string) {
				defer sem.release()
				defer close(o.done)
				o.result, o.hash, o.err = r.build(ctx, path)
			}(outcomes[i], path)
		}
	}()

	var runErr error
	for i, path := range files {
		o := outcomes[i]
		<-o.done
		if ctx.Err() != nil && errors.Is(o.err, ctx.Err()) {
			runErr = ctx.Err()
			continue
		}
		written, err := r.handle(ctx, path, o.hash, o.result, o.err)
		if err != nil {
			return sum, err
		}
		switch {
		case written:
			sum.Rows++
		case o.err == nil, isSkip(o.err), errors.Is(o.err, errUnchanged):
			sum.Skipped++
		default:
			sum.Failed++
		}
	}
	sum.Duration = time.Since(start)

	if runErr != nil {
		r.logger.Info("extraction interrupted", "rows", sum.Rows, "skipped", sum.Skipped, "failed", sum.Failed)
		return sum, runErr
	}

	r.logger.Info("extraction complete",
		"files", sum.Files,
		"rows", sum.Rows,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
		"duration", sum.Duration,
	)
	r.publish(hermes.SubjectBatchCompleted, hermes.BatchCompleted{
		RunID:      r.runID.String(),
		Source:     r.cfg.Source,
		Output:     r.cfg.Output,
		Files:      sum.Files,
		Rows:       sum.Rows,
		Skipped:    sum.Skipped,
		Failed:     sum.Failed,
		DurationMS: sum.Duration.Milliseconds(),
	})
	return sum, nil
}

// ProcessFile extracts and writes the row for a single transcript. Skipped
// and unchanged files are logged and return nil. Every transcript keeps one
// row: a file handled before with the same content writes nothing, and a
// changed file replaces its earlier row.
func (r *Runner) ProcessFile(ctx context.Context, path string) error {
	res, hash, buildErr := r.build(ctx, path)
	if buildErr != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if _, err := r.handle(ctx, path, hash, res, buildErr); err != nil {
		return err
	}
	if buildErr != nil && !isSkip(buildErr) && !errors.Is(buildErr, errUnchanged) {
		return buildErr
	}
	return nil
}

func (r *Runner) build(ctx context.Context, path string) (ladder.Result, string, error) {
	if err := ctx.Err(); err != nil {
		return ladder.Result{}, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ladder.Result{}, "", fmt.Errorf("read transcript: %w", err)
	}
	hash := contentHash(data)
	if r.isProcessed(path, hash) {
		return ladder.Result{}, hash, errUnchanged
	}
	res, err := r.builder.Build(ctx, path, string(data))
	if err != nil {
		return ladder.Result{}, hash, err
	}
	// A scan cut short by cancellation yields empty answers, not a real row.
	if err := ctx.Err(); err != nil {
		return ladder.Result{}, hash, err
	}
	return res, hash, nil
}

// handle logs the outcome for one file and records its row. It reports
// whether the output changed; the error is non-nil only when the output
// table fails.
func (r *Runner) handle(ctx context.Context, path, hash string, res ladder.Result, buildErr error) (bool, error) {
	switch {
	case errors.Is(buildErr, errUnchanged):
		r.logger.Debug("transcript unchanged", "path", path)
		return false, nil
	case errors.Is(buildErr, ladder.ErrEmptyInput):
		r.logger.Info("skipped file", "path", path, "reason", "empty transcript")
		r.markSkipped(path, hash)
		return false, nil
	case errors.Is(buildErr, ladder.ErrNoEntries):
		r.logger.Info("skipped file", "path", path, "reason", "no valid transcript entries")
		r.markSkipped(path, hash)
		return false, nil
	case buildErr != nil:
		r.logger.Error("failed to process file", "path", path, "error", buildErr)
		return false, nil
	}

	written, err := r.record(path, hash, res.Row)
	if err != nil || !written {
		return false, err
	}
	r.logger.Info("processed file",
		"path", path,
		"session_id", res.Row.SessionID,
		"participant", res.Row.Participant,
		"turns", res.Turns,
		"family_matched", res.FamilyQuestion != "",
	)

	if r.sink != nil {
		if _, err := r.sink.WriteRow(ctx, r.runID, r.cfg.Source, path, res.Row); err != nil {
			r.logger.Warn("failed to mirror row", "path", path, "error", err)
		}
	}
	r.publish(hermes.SubjectRowExtracted, hermes.RowExtracted{
		RunID:  r.runID.String(),
		Source: r.cfg.Source,
		File:   path,
		Row:    res.Row,
	})
	return true, nil
}

func (r *Runner) publish(subject string, data any) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(subject, data); err != nil {
		r.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

func isSkip(err error) bool {
	return errors.Is(err, ladder.ErrEmptyInput) || errors.Is(err, ladder.ErrNoEntries)
}

// IsTranscript reports whether path names a transcript file.
func IsTranscript(path string) bool {
	return filepath.Ext(path) == ".txt"
}

// DiscoverFiles returns every transcript under dir in lexical walk order.
// Unreadable subdirectories are skipped.
func DiscoverFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && IsTranscript(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
