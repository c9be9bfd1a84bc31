package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ghostleaks/internal/domain"
	"ghostleaks/internal/ports"
	"ghostleaks/internal/services/severity"
)

// Catalog records breaches and the scanned emails found in them.
type Catalog struct {
	leaks ports.LeakStore
	now   func() time.Time
	log   *logrus.Entry
}

func New(leaks ports.LeakStore, log *logrus.Entry) *Catalog {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Catalog{leaks: leaks, now: time.Now, log: log.WithField("component", "catalog")}
}

// WithClock overrides the time source. Used by tests.
func (c *Catalog) WithClock(now func() time.Time) *Catalog {
	c.now = now
	return c
}

// Upsert makes sure the breach behind f exists and that email is linked to it.
// Existing breach metadata is never overwritten by a later observation.
func (c *Catalog) Upsert(ctx context.Context, f domain.Finding, email string) (domain.Leak, error) {
	leak, found, err := c.leaks.FindLeak(ctx, f.Name, f.Source)
	if err != nil {
		return domain.Leak{}, fmt.Errorf("find leak %q/%s: %w", f.Name, f.Source, err)
	}
	if !found {
		leak, err = c.leaks.CreateLeak(ctx, c.newLeak(f))
		if err != nil {
			return domain.Leak{}, fmt.Errorf("create leak %q/%s: %w", f.Name, f.Source, err)
		}
		c.log.WithFields(logrus.Fields{
			"leak":     leak.Name,
			"source":   leak.Source,
			"severity": leak.Severity,
		}).Info("new leak cataloged")
	}

	ae := domain.AffectedEmail{Email: email, FoundDate: c.now(), Context: f.Context}
	added, err := c.leaks.AppendAffectedEmail(ctx, leak.ID, ae)
	if err != nil {
		return domain.Leak{}, fmt.Errorf("append affected email to %s: %w", leak.ID, err)
	}
	if added {
		leak.AffectedEmails = append(leak.AffectedEmails, ae)
	}
	return leak, nil
}

func (c *Catalog) newLeak(f domain.Finding) domain.Leak {
	now := c.now()
	l := domain.Leak{
		Name:         f.Name,
		Source:       f.Source,
		Domain:       f.Domain,
		BreachDate:   f.BreachDate,
		AddedDate:    now,
		PwnCount:     f.PwnCount,
		Description:  f.Description,
		DataClasses:  append([]string(nil), f.DataClasses...),
		IsVerified:   f.IsVerified,
		IsSensitive:  f.IsSensitive,
		SeverityHint: f.SeverityHint,
	}
	if l.DataClasses == nil {
		l.DataClasses = []string{}
	}
	l.Severity = severity.ForLeak(l, now)
	return l
}
