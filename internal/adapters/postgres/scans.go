package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"ghostleaks/internal/domain"
)

const scanColumns = `id, user_id, email, status, breach_details, threats_found, severity, risk_score,
	summary, recommendations, sources, processing_time_ms, created_at, updated_at`

func scanScan(row pgx.Row) (domain.Scan, error) {
	var s domain.Scan
	var status, sev string
	var ms int64
	err := row.Scan(&s.ID, &s.UserID, &s.Email, &status, &s.BreachDetails, &s.ThreatsFound, &sev, &s.RiskScore,
		&s.Summary, &s.Recommendations, &s.Sources, &ms, &s.CreatedAt, &s.UpdatedAt)
	s.Status = domain.ScanStatus(status)
	s.Severity = domain.Severity(sev)
	s.ProcessingTime = time.Duration(ms) * time.Millisecond
	return s, err
}

// ScanRepository

func (db *DB) CreateScan(ctx context.Context, scan domain.Scan) (string, error) {
	if scan.Status == "" {
		scan.Status = domain.ScanProcessing
	}
	if scan.Severity == "" {
		scan.Severity = domain.SeverityLow
	}
	var id string
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO scans (user_id, email, status, severity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()), now())
		RETURNING id
	`, scan.UserID, scan.Email, string(scan.Status), string(scan.Severity), nullTime(scan.CreatedAt)).Scan(&id)
	return id, err
}

// UpdateScan writes the terminal state in one statement guarded on
// status = 'processing', so a scan is finalized at most once.
func (db *DB) UpdateScan(ctx context.Context, scanID string, p domain.ScanPatch) error {
	if !(domain.Scan{Status: domain.ScanProcessing}).CanTransition(p.Status) {
		return domain.ErrInvalidTransition
	}
	details := p.BreachDetails
	if details == nil {
		details = []domain.BreachDetail{}
	}
	recs := p.Recommendations
	if recs == nil {
		recs = []string{}
	}
	sources := p.Sources
	if sources == nil {
		sources = map[string]domain.SourceStatus{}
	}
	tag, err := db.Pool.Exec(ctx, `
		UPDATE scans SET
			status = $2, breach_details = $3, threats_found = $4, severity = $5, risk_score = $6,
			summary = $7, recommendations = $8, sources = $9, processing_time_ms = $10, updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, scanID, string(p.Status), details, p.ThreatsFound, string(p.Severity), p.RiskScore,
		p.Summary, recs, sources, p.ProcessingTime.Milliseconds())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := db.GetScan(ctx, scanID); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

func (db *DB) GetScan(ctx context.Context, scanID string) (domain.Scan, error) {
	s, err := scanScan(db.Pool.QueryRow(ctx, `SELECT `+scanColumns+` FROM scans WHERE id = $1`, scanID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Scan{}, domain.ErrNotFound
	}
	return s, err
}

func (db *DB) FindLatestCompletedScan(ctx context.Context, userID, email string) (domain.Scan, bool, error) {
	s, err := scanScan(db.Pool.QueryRow(ctx, `
		SELECT `+scanColumns+` FROM scans
		WHERE user_id = $1 AND email = $2 AND status = 'completed'
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`, userID, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Scan{}, false, nil
	}
	if err != nil {
		return domain.Scan{}, false, err
	}
	return s, true, nil
}

func (db *DB) ListScannedEmails(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `SELECT DISTINCT email FROM scans WHERE user_id = $1 ORDER BY email`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// historyColumns matches scanColumns with breach details left out.
const historyColumns = `id, user_id, email, status, '[]'::jsonb, threats_found, severity, risk_score,
	summary, recommendations, sources, processing_time_ms, created_at, updated_at`

func (db *DB) ListScans(ctx context.Context, userID string, limit, offset int) ([]domain.Scan, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+historyColumns+` FROM scans
		WHERE user_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Scan, error) { return scanScan(row) })
}

func (db *DB) CountScans(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM scans WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (db *DB) HasScanSince(ctx context.Context, userID, email string, since time.Time) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM scans
			WHERE user_id = $1 AND email = $2 AND status <> 'failed' AND created_at >= $3
		)
	`, userID, email, since).Scan(&exists)
	return exists, err
}

// FailStaleScans fails scans left processing since before cutoff, typically
// by a process that exited mid-scan.
func (db *DB) FailStaleScans(ctx context.Context, cutoff time.Time, summary string) (n int, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	rows, err := tx.Query(ctx, `
		SELECT id FROM scans
		WHERE status = 'processing' AND created_at < $1
		FOR UPDATE SKIP LOCKED
	`, cutoff)
	if err != nil {
		return 0, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := tx.Exec(ctx, `
		UPDATE scans SET
			status = 'failed', severity = 'low', summary = $2,
			processing_time_ms = (EXTRACT(EPOCH FROM (now() - created_at)) * 1000)::bigint,
			updated_at = now()
		WHERE id = ANY($1) AND status = 'processing'
	`, ids, summary)
	if err != nil {
		return 0, fmt.Errorf("fail stale scans: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
