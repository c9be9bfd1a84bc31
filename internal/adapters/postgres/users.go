package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"ghostleaks/internal/domain"
)

const userColumns = `id, email, plan, scans_remaining, last_scan_reset, is_active, alert_email, alert_telegram, telegram_username`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	var plan string
	err := row.Scan(&u.ID, &u.Email, &plan, &u.ScansRemaining, &u.LastScanReset, &u.IsActive,
		&u.Alerts.Email, &u.Alerts.Telegram, &u.Alerts.TelegramUsername)
	u.Plan = domain.Plan(plan)
	return u, err
}

// UserRepository

func (db *DB) GetUser(ctx context.Context, userID string) (domain.User, error) {
	u, err := scanUser(db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	return u, err
}

func (db *DB) ResetDailyScans(ctx context.Context, userID string, remaining int, at time.Time) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE users SET scans_remaining = $2, last_scan_reset = $3 WHERE id = $1`, userID, remaining, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DecrementScans is a single conditional update so concurrent requests cannot
// drive the allowance below zero.
func (db *DB) DecrementScans(ctx context.Context, userID string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE users SET scans_remaining = scans_remaining - 1
		WHERE id = $1 AND scans_remaining > 0
	`, userID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := db.GetUser(ctx, userID); err != nil {
		return false, err
	}
	return false, nil
}

func (db *DB) ListAlertSubscribers(ctx context.Context) ([]domain.User, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE is_active AND (alert_email OR alert_telegram)
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.User, error) { return scanUser(row) })
}

// UpsertUser provisions or replaces an account row.
func (db *DB) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO users (id, email, plan, scans_remaining, last_scan_reset, is_active, alert_email, alert_telegram, telegram_username)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()), $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email, plan = EXCLUDED.plan, scans_remaining = EXCLUDED.scans_remaining,
			last_scan_reset = EXCLUDED.last_scan_reset, is_active = EXCLUDED.is_active,
			alert_email = EXCLUDED.alert_email, alert_telegram = EXCLUDED.alert_telegram,
			telegram_username = EXCLUDED.telegram_username
	`, u.ID, u.Email, string(u.Plan), u.ScansRemaining, nullTime(u.LastScanReset), u.IsActive,
		u.Alerts.Email, u.Alerts.Telegram, u.Alerts.TelegramUsername)
	return err
}
