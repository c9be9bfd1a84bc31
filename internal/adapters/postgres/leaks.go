package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"ghostleaks/internal/domain"
)

const leakColumns = `id, name, source, domain, breach_date, added_date, pwn_count, description,
	data_classes, is_verified, is_fabricated, is_sensitive, is_retired, severity_hint, severity`

func scanLeak(row pgx.Row) (domain.Leak, error) {
	var l domain.Leak
	var hint, sev string
	err := row.Scan(&l.ID, &l.Name, &l.Source, &l.Domain, &l.BreachDate, &l.AddedDate, &l.PwnCount, &l.Description,
		&l.DataClasses, &l.IsVerified, &l.IsFabricated, &l.IsSensitive, &l.IsRetired, &hint, &sev)
	l.SeverityHint = domain.Severity(hint)
	l.Severity = domain.Severity(sev)
	return l, err
}

// LeakStore

func (db *DB) FindLeak(ctx context.Context, name, source string) (domain.Leak, bool, error) {
	l, err := scanLeak(db.Pool.QueryRow(ctx, `SELECT `+leakColumns+` FROM leaks WHERE name = $1 AND source = $2`, name, source))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Leak{}, false, nil
	}
	if err != nil {
		return domain.Leak{}, false, err
	}
	l.AffectedEmails, err = db.affectedEmails(ctx, l.ID)
	if err != nil {
		return domain.Leak{}, false, err
	}
	return l, true, nil
}

// CreateLeak inserts the leak unless (name, source) already exists, then
// returns whichever row won.
func (db *DB) CreateLeak(ctx context.Context, leak domain.Leak) (domain.Leak, error) {
	if leak.DataClasses == nil {
		leak.DataClasses = []string{}
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO leaks (name, source, domain, breach_date, added_date, pwn_count, description,
			data_classes, is_verified, is_fabricated, is_sensitive, is_retired, severity_hint, severity)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()), $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (name, source) DO NOTHING
	`, leak.Name, leak.Source, leak.Domain, leak.BreachDate, nullTime(leak.AddedDate), leak.PwnCount, leak.Description,
		leak.DataClasses, leak.IsVerified, leak.IsFabricated, leak.IsSensitive, leak.IsRetired, string(leak.SeverityHint), string(leak.Severity))
	if err != nil {
		return domain.Leak{}, err
	}
	out, found, err := db.FindLeak(ctx, leak.Name, leak.Source)
	if err != nil {
		return domain.Leak{}, err
	}
	if !found {
		return domain.Leak{}, domain.ErrNotFound
	}
	return out, nil
}

func (db *DB) AppendAffectedEmail(ctx context.Context, leakID string, ae domain.AffectedEmail) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		INSERT INTO leak_affected_emails (leak_id, email, found_date, context)
		VALUES ($1, $2, COALESCE($3, now()), $4)
		ON CONFLICT (leak_id, email) DO NOTHING
	`, leakID, ae.Email, nullTime(ae.FoundDate), ae.Context)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (db *DB) affectedEmails(ctx context.Context, leakID string) ([]domain.AffectedEmail, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT email, found_date, context FROM leak_affected_emails
		WHERE leak_id = $1 ORDER BY found_date, email
	`, leakID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AffectedEmail, error) {
		var ae domain.AffectedEmail
		err := row.Scan(&ae.Email, &ae.FoundDate, &ae.Context)
		return ae, err
	})
}
