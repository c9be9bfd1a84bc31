package ports

import (
	"context"
	"time"

	"ghostleaks/internal/domain"
)

// LeakStore is the durable breach catalog.
type LeakStore interface {
	FindLeak(ctx context.Context, name, source string) (leak domain.Leak, found bool, err error)
	// CreateLeak inserts the leak, or returns the existing one when another
	// writer created the same (name, source) first.
	CreateLeak(ctx context.Context, leak domain.Leak) (domain.Leak, error)
	// AppendAffectedEmail records email on the leak if absent. It is a
	// conditional write and reports whether a row was added.
	AppendAffectedEmail(ctx context.Context, leakID string, ae domain.AffectedEmail) (added bool, err error)
}

// ScanRepository manages scan records.
type ScanRepository interface {
	CreateScan(ctx context.Context, scan domain.Scan) (scanID string, err error)
	// UpdateScan applies a terminal patch; it fails with
	// domain.ErrInvalidTransition unless the scan is still processing.
	UpdateScan(ctx context.Context, scanID string, patch domain.ScanPatch) error
	GetScan(ctx context.Context, scanID string) (domain.Scan, error)
	FindLatestCompletedScan(ctx context.Context, userID, email string) (scan domain.Scan, found bool, err error)
	ListScannedEmails(ctx context.Context, userID string) ([]string, error)
	// ListScans pages through userID's scans, newest first. Breach details
	// are not loaded.
	ListScans(ctx context.Context, userID string, limit, offset int) ([]domain.Scan, error)
	CountScans(ctx context.Context, userID string) (int, error)
	// HasScanSince reports a processing or completed scan created at or
	// after since. Failed scans do not count.
	HasScanSince(ctx context.Context, userID, email string, since time.Time) (bool, error)
	// FailStaleScans fails scans stuck in processing since before cutoff.
	FailStaleScans(ctx context.Context, cutoff time.Time, summary string) (int, error)
}

// UserRepository backs quota accounting and alert subscriptions.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	ResetDailyScans(ctx context.Context, userID string, remaining int, at time.Time) error
	// DecrementScans takes one scan slot if any remain.
	DecrementScans(ctx context.Context, userID string) (ok bool, err error)
	ListAlertSubscribers(ctx context.Context) ([]domain.User, error)
}
