package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ghostleaks/internal/domain"
	"ghostleaks/internal/ports"
)

// AggregateResult is the merged outcome of one fan-out: findings in adapter
// order and a status per source.
type AggregateResult struct {
	Findings []domain.Finding
	Sources  map[string]domain.SourceStatus
}

// Degraded lists sources that were checked but failed, sorted by name.
func (r AggregateResult) Degraded() []string {
	var out []string
	for name, st := range r.Sources {
		if st.Failed {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Orchestrator queries every configured adapter concurrently.
type Orchestrator struct {
	adapters []ports.SourceAdapter
	// timeout bounds each adapter call on top of the adapter's own client timeout.
	timeout time.Duration
	log     *logrus.Entry
}

func NewOrchestrator(adapters []ports.SourceAdapter, timeout time.Duration, log *logrus.Entry) *Orchestrator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{adapters: adapters, timeout: timeout, log: log.WithField("component", "orchestrator")}
}

// Adapters returns the configured adapters.
func (o *Orchestrator) Adapters() []ports.SourceAdapter { return o.adapters }

type outcome struct {
	findings []domain.Finding
	status   domain.SourceStatus
}

// Run waits for every adapter to settle. An adapter failure never cancels its
// siblings and never fails the run.
func (o *Orchestrator) Run(ctx context.Context, email string) AggregateResult {
	outcomes := make([]outcome, len(o.adapters))
	var g errgroup.Group
	for i, a := range o.adapters {
		i, a := i, a
		// Source errors are classified into outcomes[i] rather than returned,
		// so one failing adapter never cancels the group.
		g.Go(func() error {
			outcomes[i] = o.query(ctx, a, email)
			return nil
		})
	}
	_ = g.Wait()

	res := AggregateResult{Sources: make(map[string]domain.SourceStatus, len(o.adapters))}
	for i, a := range o.adapters {
		res.Findings = append(res.Findings, outcomes[i].findings...)
		res.Sources[a.Name()] = outcomes[i].status
	}
	if degraded := res.Degraded(); len(degraded) > 0 {
		o.log.WithFields(logrus.Fields{
			"email_domain": domain.EmailDomain(email),
			"degraded":     degraded,
			"sources":      len(o.adapters),
		}).Warn("scan ran with degraded sources")
	}
	return res
}

func (o *Orchestrator) query(ctx context.Context, a ports.SourceAdapter, email string) outcome {
	l := o.log.WithFields(logrus.Fields{"source": a.Name(), "email_domain": domain.EmailDomain(email)})
	start := time.Now()
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	findings, err := lookup(ctx, a, email)
	l = l.WithField("duration_ms", time.Since(start).Milliseconds())
	switch {
	case err == nil:
		l.WithField("findings", len(findings)).Info("source checked")
		return outcome{findings: findings, status: domain.SourceStatus{Checked: true, Found: len(findings) > 0}}
	case errors.Is(err, domain.ErrSourceNotFound):
		l.Info("source has no records")
		return outcome{status: domain.SourceStatus{Checked: true}}
	case errors.Is(err, domain.ErrSourceUnavailable):
		l.Warn("source not configured, skipping")
		return outcome{status: domain.SourceStatus{Reason: domain.ReasonNotConfigured}}
	default:
		reason := domain.SourceErrorReason(err)
		l.WithError(err).WithField("reason", reason).Warn("source degraded")
		return outcome{status: domain.SourceStatus{Checked: true, Failed: true, Reason: reason}}
	}
}

// lookup runs the adapter but returns as soon as ctx ends, so an adapter that
// ignores its context cannot hold the fan-out past the deadline. A panicking
// adapter is reported as a transient failure.
func lookup(ctx context.Context, a ports.SourceAdapter, email string) ([]domain.Finding, error) {
	type result struct {
		findings []domain.Finding
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("adapter panic: %v: %w", r, domain.ErrSourceTransient)}
			}
		}()
		f, err := a.Lookup(ctx, email)
		ch <- result{findings: f, err: err}
	}()
	select {
	case r := <-ch:
		return r.findings, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%v: %w", ctx.Err(), domain.ErrSourceTransient)
	}
}
