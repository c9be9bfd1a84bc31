// Package notify delivers rescan alerts.
package notify

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"ghostleaks/internal/domain"
	"ghostleaks/internal/services/severity"
)

// LogDispatcher records new-breach alerts as structured log events, one per
// enabled channel. It stands in for the email and Telegram senders.
type LogDispatcher struct {
	log *logrus.Entry
	now func() time.Time
}

func NewLogDispatcher(log *logrus.Entry) *LogDispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LogDispatcher{log: log.WithField("component", "alerts"), now: time.Now}
}

func (d *LogDispatcher) DispatchNewBreaches(ctx context.Context, user domain.User, email string, findings []domain.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	names := make([]string, 0, len(findings))
	worst := domain.SeverityLow
	for _, f := range findings {
		names = append(names, f.Name)
		worst = domain.MaxSeverity(worst, severity.ForFinding(f, d.now()))
	}
	fields := logrus.Fields{
		"user_id":      user.ID,
		"email_domain": domain.EmailDomain(email),
		"new_breaches": names,
		"severity":     worst,
	}
	if user.Alerts.Email {
		d.log.WithFields(fields).WithField("channel", "email").Info("new breach alert")
	}
	if user.Alerts.Telegram && user.Alerts.TelegramUsername != "" {
		d.log.WithFields(fields).WithField("channel", "telegram").Info("new breach alert")
	}
	return nil
}
