package batch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/ladder/internal/hermes"
	"github.com/MikeSquared-Agency/ladder/internal/ladder"
	"github.com/MikeSquared-Agency/ladder/internal/matcher"
	"github.com/MikeSquared-Agency/ladder/internal/similarity"
	"github.com/MikeSquared-Agency/ladder/internal/table"
	"github.com/MikeSquared-Agency/ladder/internal/watcher"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type identityLemmas struct{}

func (identityLemmas) Lemma(word string) string { return word }

func newTestBuilder() *ladder.Builder {
	m := matcher.New(similarity.NewLocal(), identityLemmas{}, time.Second, discardLogger())
	return ladder.NewBuilder(m, nil, discardLogger())
}

type memWriter struct {
	mu       sync.Mutex
	rows     []ladder.Row
	rewrites int
	err      error
}

func (w *memWriter) Write(row ladder.Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.rows = append(w.rows, row)
	return nil
}

func (w *memWriter) Rewrite(rows []ladder.Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append([]ladder.Row(nil), rows...)
	w.rewrites++
	return nil
}

// appendOnly hides memWriter's Rewrite.
type appendOnly struct {
	w *memWriter
}

func (a appendOnly) Write(row ladder.Row) error { return a.w.Write(row) }

func (w *memWriter) sessions() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var ids []string
	for _, r := range w.rows {
		ids = append(ids, r.SessionID)
	}
	return ids
}

type fakeSink struct {
	mu    sync.Mutex
	files []string
	err   error
}

func (s *fakeSink) WriteRow(_ context.Context, _ uuid.UUID, _, file string, _ ladder.Row) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, filepath.Base(file))
	return uuid.New(), s.err
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	last     any
}

func (p *fakePublisher) Publish(subject string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.last = data
	return nil
}

func transcriptFor(word string) string {
	return transcriptAnswering(word, "Probably around a 7.")
}

func transcriptAnswering(word, answer string) string {
	return "1\n00:00:01,000 --> 00:00:04,000\nINTERVIEWER: Where do you think your " + word + " is on this ladder?\n\n" +
		"2\n00:00:05,000 --> 00:00:07,000\nADOLESCENT: " + answer + "\n"
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// seedData lays out two good transcripts, two skippable ones and a non-transcript.
func seedData(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "wave2/a2,p2 parent.txt", transcriptFor("family"))
	writeFile(t, dir, "wave1/a1,p1 joint.txt", transcriptFor("family"))
	writeFile(t, dir, "empty.txt", "   \n")
	writeFile(t, dir, "notes.txt", "no headers here\njust text\n")
	writeFile(t, dir, "readme.md", transcriptFor("family"))
	return dir
}

func TestDiscoverFiles(t *testing.T) {
	dir := seedData(t)

	files, err := DiscoverFiles(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var names []string
	for _, f := range files {
		rel, _ := filepath.Rel(dir, f)
		names = append(names, filepath.ToSlash(rel))
	}
	want := []string{"empty.txt", "notes.txt", "wave1/a1,p1 joint.txt", "wave2/a2,p2 parent.txt"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("expected %v, got %v", want, names)
	}

	if _, err := DiscoverFiles(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestRun_WritesRowsInDiscoveryOrder(t *testing.T) {
	dir := seedData(t)
	out := &memWriter{}
	r := NewRunner(Config{DataDir: dir, Workers: 4}, newTestBuilder(), out, discardLogger())

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Files != 4 || sum.Rows != 2 || sum.Skipped != 2 || sum.Failed != 0 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if sum.RunID != r.RunID() {
		t.Errorf("summary run id %s differs from runner %s", sum.RunID, r.RunID())
	}
	if got := out.sessions(); !reflect.DeepEqual(got, []string{"a1,p1", "a2,p2"}) {
		t.Errorf("expected rows in walk order, got %v", got)
	}
	if out.rows[0].FamilyResponse != "Probably around a 7." {
		t.Errorf("unexpected family response %q", out.rows[0].FamilyResponse)
	}
}

func TestRun_OutputIsRepeatable(t *testing.T) {
	dir := seedData(t)
	outDir := t.TempDir()

	run := func(name string, workers int) []byte {
		path := filepath.Join(outDir, name)
		w, err := table.Create(path, ladder.DefaultCategories)
		if err != nil {
			t.Fatalf("create table: %v", err)
		}
		r := NewRunner(Config{DataDir: dir, Output: path, Workers: workers}, newTestBuilder(), w, discardLogger())
		if _, err := r.Run(context.Background()); err != nil {
			t.Fatalf("run: %v", err)
		}
		w.Close()
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}

	first := run("first.csv", 1)
	second := run("second.csv", 3)
	if !bytes.Equal(first, second) {
		t.Errorf("expected identical output, got:\n%s\n---\n%s", first, second)
	}
	if bytes.Count(first, []byte("\r\n")) != 3 {
		t.Errorf("expected header and two rows, got:\n%s", first)
	}
}

func TestRun_MirrorsRowsAndPublishesEvents(t *testing.T) {
	dir := seedData(t)
	sink := &fakeSink{err: errors.New("database down")}
	pub := &fakePublisher{}
	r := NewRunner(Config{DataDir: dir, Output: "out.csv"}, newTestBuilder(), &memWriter{}, discardLogger(),
		WithSink(sink), WithEvents(pub))

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("sink failures must not abort the batch: %v", err)
	}
	if sum.Rows != 2 {
		t.Errorf("expected 2 rows, got %d", sum.Rows)
	}
	if !reflect.DeepEqual(sink.files, []string{"a1,p1 joint.txt", "a2,p2 parent.txt"}) {
		t.Errorf("unexpected mirrored files %v", sink.files)
	}

	want := []string{hermes.SubjectRowExtracted, hermes.SubjectRowExtracted, hermes.SubjectBatchCompleted}
	if !reflect.DeepEqual(pub.subjects, want) {
		t.Errorf("expected subjects %v, got %v", want, pub.subjects)
	}
	done, ok := pub.last.(hermes.BatchCompleted)
	if !ok {
		t.Fatalf("expected BatchCompleted payload, got %T", pub.last)
	}
	if done.RunID != r.RunID().String() || done.Rows != 2 || done.Skipped != 2 || done.Source != "extract" {
		t.Errorf("unexpected batch event %+v", done)
	}
}

func TestRun_MissingDataDir(t *testing.T) {
	out := &memWriter{}
	r := NewRunner(Config{DataDir: filepath.Join(t.TempDir(), "nope")}, newTestBuilder(), out, discardLogger())

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Files != 0 || len(out.rows) != 0 {
		t.Errorf("expected empty run, got %+v", sum)
	}
}

func TestRun_Cancelled(t *testing.T) {
	dir := seedData(t)
	out := &memWriter{}
	pub := &fakePublisher{}
	r := NewRunner(Config{DataDir: dir, Workers: 2}, newTestBuilder(), out, discardLogger(), WithEvents(pub))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := r.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sum.Rows != 0 || len(out.rows) != 0 {
		t.Errorf("expected no rows after cancellation, got %d", sum.Rows)
	}
	for _, s := range pub.subjects {
		if s == hermes.SubjectBatchCompleted {
			t.Error("interrupted batch must not publish completion")
		}
	}
}

func TestRun_WriterFailureStops(t *testing.T) {
	dir := seedData(t)
	out := &memWriter{err: errors.New("disk full")}
	r := NewRunner(Config{DataDir: dir}, newTestBuilder(), out, discardLogger())

	if _, err := r.Run(context.Background()); err == nil {
		t.Fatal("expected output failure to be returned")
	}
}

func TestProcessFile(t *testing.T) {
	dir := seedData(t)
	out := &memWriter{}
	r := NewRunner(Config{DataDir: dir}, newTestBuilder(), out, discardLogger())
	ctx := context.Background()

	if err := r.ProcessFile(ctx, filepath.Join(dir, "wave1", "a1,p1 joint.txt")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.ProcessFile(ctx, filepath.Join(dir, "empty.txt")); err != nil {
		t.Errorf("skipped file should not be an error: %v", err)
	}
	if err := r.ProcessFile(ctx, filepath.Join(dir, "gone.txt")); err == nil {
		t.Error("expected error for unreadable file")
	}
	if got := out.sessions(); !reflect.DeepEqual(got, []string{"a1,p1"}) {
		t.Errorf("expected one row, got %v", got)
	}
}

func TestIsTranscript(t *testing.T) {
	if !IsTranscript("data/a.txt") {
		t.Error("expected .txt to be a transcript")
	}
	for _, p := range []string{"a.md", "a.txt.bak", "a"} {
		if IsTranscript(p) {
			t.Errorf("%s should not be a transcript", p)
		}
	}
}

func TestProcessFile_UnchangedFileKeepsOneRow(t *testing.T) {
	dir := seedData(t)
	out := &memWriter{}
	pub := &fakePublisher{}
	r := NewRunner(Config{DataDir: dir}, newTestBuilder(), out, discardLogger(), WithEvents(pub))
	ctx := context.Background()

	if _, err := r.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	path := filepath.Join(dir, "wave1", "a1,p1 joint.txt")
	for i := 0; i < 2; i++ {
		if err := r.ProcessFile(ctx, path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// Rewriting the same bytes is an unchanged file too.
	writeFile(t, dir, "wave1/a1,p1 joint.txt", transcriptFor("family"))
	if err := r.ProcessFile(ctx, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.ProcessFile(ctx, filepath.Join(dir, "empty.txt")); err != nil {
		t.Errorf("skipped file should not be an error: %v", err)
	}

	if got := out.sessions(); !reflect.DeepEqual(got, []string{"a1,p1", "a2,p2"}) {
		t.Errorf("expected one row per transcript, got %v", got)
	}
	if out.rewrites != 0 {
		t.Errorf("expected no rewrites, got %d", out.rewrites)
	}
	rowEvents := 0
	for _, s := range pub.subjects {
		if s == hermes.SubjectRowExtracted {
			rowEvents++
		}
	}
	if rowEvents != 2 {
		t.Errorf("expected 2 row events, got %d", rowEvents)
	}
}

func TestProcessFile_ChangedFileReplacesRow(t *testing.T) {
	dir := seedData(t)
	out := &memWriter{}
	r := NewRunner(Config{DataDir: dir}, newTestBuilder(), out, discardLogger())
	ctx := context.Background()

	if _, err := r.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	writeFile(t, dir, "wave1/a1,p1 joint.txt", transcriptAnswering("family", "Maybe a 9."))
	if err := r.ProcessFile(ctx, filepath.Join(dir, "wave1", "a1,p1 joint.txt")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := out.sessions(); !reflect.DeepEqual(got, []string{"a1,p1", "a2,p2"}) {
		t.Fatalf("expected the row to be replaced in place, got %v", got)
	}
	if out.rows[0].FamilyResponse != "Maybe a 9." {
		t.Errorf("expected the new answer, got %q", out.rows[0].FamilyResponse)
	}
	if out.rows[1].FamilyResponse != "Probably around a 7." {
		t.Errorf("other rows must be kept, got %q", out.rows[1].FamilyResponse)
	}
	if out.rewrites != 1 {
		t.Errorf("expected 1 rewrite, got %d", out.rewrites)
	}
}

func TestProcessFile_ChangedFileAppendOnlyOutput(t *testing.T) {
	dir := seedData(t)
	mem := &memWriter{}
	r := NewRunner(Config{DataDir: dir}, newTestBuilder(), appendOnly{w: mem}, discardLogger())
	ctx := context.Background()

	if _, err := r.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	writeFile(t, dir, "wave1/a1,p1 joint.txt", transcriptAnswering("family", "Maybe a 9."))
	if err := r.ProcessFile(ctx, filepath.Join(dir, "wave1", "a1,p1 joint.txt")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := mem.sessions(); !reflect.DeepEqual(got, []string{"a1,p1", "a2,p2"}) {
		t.Errorf("expected one row per transcript, got %v", got)
	}
	if mem.rows[0].FamilyResponse != "Probably around a 7." {
		t.Errorf("expected the first row to be kept, got %q", mem.rows[0].FamilyResponse)
	}
}

func TestWatch_ResavedTranscriptKeepsOneRow(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a1,p1 joint.txt", transcriptFor("family"))
	out := &memWriter{}
	r := NewRunner(Config{DataDir: dir, Source: "watch"}, newTestBuilder(), out, discardLogger())

	handled := make(chan string, 8)
	handler := func(ctx context.Context, path string) error {
		err := r.ProcessFile(ctx, path)
		handled <- filepath.Base(path)
		return err
	}
	w, err := watcher.New(dir, handler, IsTranscript, discardLogger(), 1, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer w.Close()

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	writeFile(t, dir, "a1,p1 joint.txt", transcriptFor("family"))
	writeFile(t, dir, "a2,p2 parent.txt", transcriptFor("family"))

	seen := map[string]bool{}
	timeout := time.After(5 * time.Second)
	for !seen["a1,p1 joint.txt"] || !seen["a2,p2 parent.txt"] {
		select {
		case name := <-handled:
			seen[name] = true
		case <-timeout:
			t.Fatalf("timed out, handled %v", seen)
		}
	}

	if got := out.sessions(); !reflect.DeepEqual(got, []string{"a1,p1", "a2,p2"}) {
		t.Errorf("expected one row per transcript file, got %v", got)
	}
}
