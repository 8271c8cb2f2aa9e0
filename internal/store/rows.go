package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/ladder/internal/ladder"
)

// WriteRow mirrors one output table row into ladder_responses.
func (s *Store) WriteRow(ctx context.Context, runID uuid.UUID, source, file string, row ladder.Row) (uuid.UUID, error) {
	categories, err := json.Marshal(row.Categories)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal categories: %w", err)
	}

	id := uuid.New()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ladder_responses (id, run_id, source, file, session_id, participant, family_response, reason, categories)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)`,
		id, runID, source, file, row.SessionID, string(row.Participant), row.FamilyResponse, row.Reason, string(categories),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert ladder response: %w", err)
	}
	return id, nil
}

// StoredRow is a ladder_responses record.
type StoredRow struct {
	ID        uuid.UUID
	RunID     uuid.UUID
	Source    string
	File      string
	Row       ladder.Row
	CreatedAt time.Time
}

// RowsForRun returns the rows written by one run, oldest first.
func (s *Store) RowsForRun(ctx context.Context, runID uuid.UUID) ([]StoredRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, source, file, session_id, participant, family_response, reason, categories, created_at
		FROM ladder_responses
		WHERE run_id = $1
		ORDER BY created_at, file`, runID)
	if err != nil {
		return nil, fmt.Errorf("query ladder responses: %w", err)
	}
	defer rows.Close()

	var out []StoredRow
	for rows.Next() {
		var r StoredRow
		var participant string
		var categories []byte
		if err := rows.Scan(&r.ID, &r.RunID, &r.Source, &r.File, &r.Row.SessionID, &participant,
			&r.Row.FamilyResponse, &r.Row.Reason, &categories, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ladder response: %w", err)
		}
		r.Row.Participant = ladder.Participant(participant)
		if err := json.Unmarshal(categories, &r.Row.Categories); err != nil {
			return nil, fmt.Errorf("decode categories: %w", err)
		}
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}
