package store

import (
	"context"
	"fmt"
	"time"
)

// Rule run outcomes.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunSkipped   = "skipped"
)

// RuleRun is one audit record of a rule executing against an entity.
type RuleRun struct {
	ID         string    `json:"id"`
	RuleID     string    `json:"ruleId"`
	EntityKind string    `json:"entityKind"`
	EntityID   string    `json:"entityId"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RecordRuleRun appends an audit record. Duplicate IDs are ignored.
func (s *Store) RecordRuleRun(ctx context.Context, run RuleRun) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO rule_runs (id, rule_id, entity_kind, entity_id, status, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`),
		run.ID,
		run.RuleID,
		run.EntityKind,
		run.EntityID,
		run.Status,
		run.Message,
		run.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record rule run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuleRuns returns the audit records of one entity, oldest first.
func (s *Store) ListRuleRuns(ctx context.Context, entityKind, entityID string) ([]RuleRun, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, rule_id, entity_kind, entity_id, status, message, created_at
		FROM rule_runs
		WHERE entity_kind = ? AND entity_id = ?
		ORDER BY created_at ASC, id ASC
	`), entityKind, entityID)
	if err != nil {
		return nil, fmt.Errorf("query rule runs: %w", err)
	}
	defer rows.Close()

	runs := []RuleRun{}
	for rows.Next() {
		var r RuleRun
		if err := rows.Scan(&r.ID, &r.RuleID, &r.EntityKind, &r.EntityID, &r.Status, &r.Message, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rule run: %w", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rule runs: %w", err)
	}
	return runs, nil
}
