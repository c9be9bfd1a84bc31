// Package rescanner periodically rescans the emails of alert subscribers and
// notifies them of breaches that were not present in their previous scan.
package rescanner

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"ghostleaks/internal/domain"
	"ghostleaks/internal/ports"
)

// Rescanner runs one rescan and returns the newly observed breaches.
type Rescanner interface {
	Run(ctx context.Context, userID, email string) ([]domain.Finding, error)
}

// Stats summarizes one sweep.
type Stats struct {
	Users    int
	Emails   int
	Skipped  int
	Alerted  int
	Failures int
}

type Worker struct {
	users    ports.UserRepository
	scans    ports.ScanRepository
	rescans  Rescanner
	alerts   ports.AlertDispatcher
	interval time.Duration
	cooldown time.Duration
	trigger  chan struct{}
	now      func() time.Time
	log      *logrus.Entry
}

// New builds a worker. A zero interval disables the timer; sweeps then run
// only on Trigger.
func New(users ports.UserRepository, scans ports.ScanRepository, rescans Rescanner, alerts ports.AlertDispatcher, interval, cooldown time.Duration, log *logrus.Entry) *Worker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Worker{
		users:    users,
		scans:    scans,
		rescans:  rescans,
		alerts:   alerts,
		interval: interval,
		cooldown: cooldown,
		trigger:  make(chan struct{}, 1),
		now:      time.Now,
		log:      log.WithField("component", "rescanner"),
	}
}

// WithClock overrides the time source.
func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now
	return w
}

// Trigger requests a sweep. It returns false when one is already pending.
func (w *Worker) Trigger() bool {
	select {
	case w.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run sweeps on every tick and on Trigger until ctx is done. Sweeps never
// overlap.
func (w *Worker) Run(ctx context.Context) {
	var tick <-chan time.Time
	if w.interval > 0 {
		t := time.NewTicker(w.interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-w.trigger:
		}
		if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
			w.log.WithError(err).Error("rescan sweep failed")
		}
	}
}

// Sweep rescans every distinct email of every alert subscriber, skipping
// emails scanned within the cooldown. Per-email failures are logged and do
// not stop the sweep.
func (w *Worker) Sweep(ctx context.Context) (Stats, error) {
	var st Stats
	start := w.now()
	users, err := w.users.ListAlertSubscribers(ctx)
	if err != nil {
		return st, err
	}
	for _, u := range users {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		st.Users++
		emails, err := w.scans.ListScannedEmails(ctx, u.ID)
		if err != nil {
			w.log.WithError(err).WithField("user_id", u.ID).Warn("list scanned emails")
			st.Failures++
			continue
		}
		for _, email := range emails {
			st.Emails++
			w.rescan(ctx, u, email, &st)
		}
	}
	w.log.WithFields(logrus.Fields{
		"users":       st.Users,
		"emails":      st.Emails,
		"skipped":     st.Skipped,
		"alerted":     st.Alerted,
		"failures":    st.Failures,
		"duration_ms": w.now().Sub(start).Milliseconds(),
	}).Info("rescan sweep finished")
	return st, nil
}

func (w *Worker) rescan(ctx context.Context, u domain.User, email string, st *Stats) {
	l := w.log.WithFields(logrus.Fields{"user_id": u.ID, "email_domain": domain.EmailDomain(email)})
	if w.cooldown > 0 {
		recent, err := w.scans.HasScanSince(ctx, u.ID, email, w.now().Add(-w.cooldown))
		if err != nil {
			l.WithError(err).Warn("check recent scans")
			st.Failures++
			return
		}
		if recent {
			st.Skipped++
			return
		}
	}
	fresh, err := w.rescans.Run(ctx, u.ID, email)
	if err != nil {
		l.WithError(err).Warn("rescan failed")
		st.Failures++
		return
	}
	if len(fresh) == 0 {
		return
	}
	if err := w.alerts.DispatchNewBreaches(ctx, u, email, fresh); err != nil {
		l.WithError(err).Warn("dispatch alerts")
		st.Failures++
		return
	}
	st.Alerted++
}
