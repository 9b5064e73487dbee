package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ClaimWatermark records that an alert keyed by key fires at now, unless
// the previous alert for the same key happened less than cooldown ago.
// Returns true when the caller owns the alert and should fire it.
//
// The read and the write happen in one transaction, so two concurrent
// claims for the same key never both succeed.
func (s *Store) ClaimWatermark(ctx context.Context, key string, now time.Time, cooldown time.Duration) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("claim watermark %s: begin tx: %w", key, err)
	}
	defer tx.Rollback()

	var last time.Time
	err = tx.QueryRowContext(ctx, s.q(`SELECT alerted_at FROM alert_watermarks WHERE alert_key = ?`+s.dialect.LockClause), key).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, s.q(`INSERT INTO alert_watermarks (alert_key, alerted_at) VALUES (?, ?)`), key, now.UTC())
		if err != nil {
			return false, fmt.Errorf("claim watermark %s: insert: %w", key, err)
		}
	case err != nil:
		return false, fmt.Errorf("claim watermark %s: select: %w", key, err)
	default:
		if now.Sub(last) < cooldown {
			return false, nil
		}
		_, err = tx.ExecContext(ctx, s.q(`UPDATE alert_watermarks SET alerted_at = ? WHERE alert_key = ?`), now.UTC(), key)
		if err != nil {
			return false, fmt.Errorf("claim watermark %s: update: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("claim watermark %s: commit: %w", key, err)
	}
	return true, nil
}
