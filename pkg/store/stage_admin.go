package store

import (
	"context"
	"fmt"
)

// StageCount is the processed-row count for one pipeline stage.
type StageCount struct {
	Stage string
	Count int64
}

// StageStatus reports how many ai_processing rows exist per stage, in
// pipeline order — the data behind `process status`.
func (s *Store) StageStatus(ctx context.Context) ([]StageCount, error) {
	stages := []string{StageFilter, StageCategorize, StageSummarize, StageExtract, StageFormat}
	out := make([]StageCount, len(stages))
	for i, stage := range stages {
		var n int64
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ai_processing WHERE stage = ?`, stage).Scan(&n); err != nil {
			return nil, fmt.Errorf("store: stage status %s: %w", stage, err)
		}
		out[i] = StageCount{Stage: stage, Count: n}
	}
	return out, nil
}

// ResetStage deletes every ai_processing row for stage, making its
// candidates reappear as unprocessed on the next run — `process reset
// <stage>`. It never touches the entities themselves (messages,
// extracts), only their per-stage memoization rows.
func (s *Store) ResetStage(ctx context.Context, stage string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM ai_processing WHERE stage = ?`, stage)
	if err != nil {
		return 0, fmt.Errorf("store: reset stage %s: %w", stage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: reset stage %s: rows affected: %w", stage, err)
	}
	return n, nil
}
