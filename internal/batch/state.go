package batch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/MikeSquared-Agency/ladder/internal/ladder"
)

// fileState is what the runner remembers about a handled transcript.
type fileState struct {
	hash string
	row  int // index into Runner.rows, -1 when the file was skipped
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func fileKey(path string) string {
	return filepath.Clean(path)
}

// isProcessed reports whether path was already handled with this content.
func (r *Runner) isProcessed(path, hash string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.files[fileKey(path)]
	return ok && st.hash == hash
}

// markSkipped records a file that produced no row. A row written for an
// earlier version of the file is kept.
func (r *Runner) markSkipped(path, hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fileKey(path)
	st, ok := r.files[key]
	if !ok {
		st.row = -1
	}
	st.hash = hash
	r.files[key] = st
}

// record writes the row for path unless the same content already has one.
// A file whose content changed gets its earlier row replaced when the output
// supports rewriting. It reports whether the output changed.
func (r *Runner) record(path, hash string, row ladder.Row) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fileKey(path)
	st, ok := r.files[key]
	if ok && st.hash == hash {
		r.logger.Debug("transcript unchanged", "path", path)
		return false, nil
	}

	if ok && st.row >= 0 {
		rw, canRewrite := r.out.(RowRewriter)
		if !canRewrite {
			r.logger.Warn("transcript changed after its row was written, keeping the first row", "path", path)
			r.files[key] = fileState{hash: hash, row: st.row}
			return false, nil
		}
		rows := append([]ladder.Row(nil), r.rows...)
		rows[st.row] = row
		if err := rw.Rewrite(rows); err != nil {
			return false, fmt.Errorf("rewrite rows for %s: %w", path, err)
		}
		r.rows = rows
		r.files[key] = fileState{hash: hash, row: st.row}
		r.logger.Info("replaced row for changed transcript", "path", path)
		return true, nil
	}

	if err := r.out.Write(row); err != nil {
		return false, fmt.Errorf("write row for %s: %w", path, err)
	}
	r.files[key] = fileState{hash: hash, row: len(r.rows)}
	r.rows = append(r.rows, row)
	return true, nil
}
