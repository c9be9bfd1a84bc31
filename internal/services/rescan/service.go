package rescan

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ghostleaks/internal/domain"
	"ghostleaks/internal/ports"
	"ghostleaks/internal/services/narrative"
	"ghostleaks/internal/services/scanner"
)

const abandonTimeout = 5 * time.Second

// Service runs the recurring check for one (user, email) pair. Unlike the
// interactive path it reports only breaches absent from the previous
// completed scan.
type Service struct {
	scans    ports.ScanRepository
	pipeline *scanner.Pipeline
	now      func() time.Time
	log      *logrus.Entry
}

func New(scans ports.ScanRepository, pipeline *scanner.Pipeline, policy Policy, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if policy.Enabled() {
		// Each attempt is still bounded by the adapter's client timeout; the
		// retry loop as a whole is not.
		o := pipeline.Orchestrator()
		pipeline = pipeline.WithOrchestrator(scanner.NewOrchestrator(WithBackoff(o.Adapters(), policy), 0, log))
	}
	return &Service{scans: scans, pipeline: pipeline, now: time.Now, log: log.WithField("component", "rescan")}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run rescans email for userID and returns newly observed breaches. When
// there are any, a completed scan holding the full current snapshot is
// recorded so the next run diffs against it. Breaches previously reported by
// a source that failed or was skipped this run stay in that snapshot.
func (s *Service) Run(ctx context.Context, userID, rawEmail string) ([]domain.Finding, error) {
	email, err := domain.NormalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	start := s.now()
	l := s.log.WithFields(logrus.Fields{"user_id": userID, "email_domain": domain.EmailDomain(email)})

	prev, found, err := s.scans.FindLatestCompletedScan(ctx, userID, email)
	if err != nil {
		return nil, fmt.Errorf("load previous scan: %w", err)
	}
	out, err := s.pipeline.Run(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPipelineFault, err)
	}

	var previous []domain.Finding
	if found {
		for _, d := range prev.BreachDetails {
			previous = append(previous, d.Finding())
		}
	}
	fresh := DiffNew(out.Findings, previous)
	if len(fresh) == 0 {
		l.WithField("findings", len(out.Findings)).Info("rescan found nothing new")
		return nil, nil
	}

	details := out.Details
	if found {
		carried := carryForward(out.Details, prev.BreachDetails, out.Sources)
		if len(carried) > 0 {
			l.WithField("carried", len(carried)).Info("kept breaches from sources that did not answer")
			details = append(append([]domain.BreachDetail{}, out.Details...), carried...)
		}
	}
	if err := s.record(ctx, userID, email, start, details, out.Sources); err != nil {
		return nil, err
	}
	l.WithFields(logrus.Fields{"findings": len(details), "new": len(fresh)}).Info("rescan found new breaches")
	return fresh, nil
}

// carryForward returns the previous snapshot entries whose source did not
// answer cleanly this run and whose breach name is not already in current.
// A source that was checked without failing is authoritative for its own
// entries.
func carryForward(current, previous []domain.BreachDetail, sources map[string]domain.SourceStatus) []domain.BreachDetail {
	have := make(map[string]struct{}, len(current))
	for _, d := range current {
		have[d.Name] = struct{}{}
	}
	var out []domain.BreachDetail
	for _, d := range previous {
		if st, ok := sources[d.Source]; ok && st.Checked && !st.Failed {
			continue
		}
		if _, ok := have[d.Name]; ok {
			continue
		}
		have[d.Name] = struct{}{}
		out = append(out, d)
	}
	return out
}

func (s *Service) record(ctx context.Context, userID, email string, start time.Time, details []domain.BreachDetail, sources map[string]domain.SourceStatus) error {
	scanID, err := s.scans.CreateScan(ctx, domain.Scan{
		UserID:    userID,
		Email:     email,
		Status:    domain.ScanProcessing,
		Severity:  domain.SeverityLow,
		CreatedAt: start,
	})
	if err != nil {
		return fmt.Errorf("create rescan record: %w", err)
	}
	n := narrative.Generate(details, email)
	err = s.scans.UpdateScan(ctx, scanID, domain.ScanPatch{
		Status:          domain.ScanCompleted,
		BreachDetails:   details,
		ThreatsFound:    len(details),
		Severity:        n.Severity,
		RiskScore:       n.RiskScore,
		Summary:         n.Summary,
		Recommendations: n.Recommendations,
		Sources:         sources,
		ProcessingTime:  s.now().Sub(start),
	})
	if err != nil {
		s.abandon(ctx, scanID, start)
		return fmt.Errorf("complete rescan record %s: %w", scanID, err)
	}
	return nil
}

// abandon fails a record that could not be completed so it does not linger
// in processing.
func (s *Service) abandon(ctx context.Context, scanID string, start time.Time) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abandonTimeout)
	defer cancel()
	err := s.scans.UpdateScan(wctx, scanID, domain.ScanPatch{
		Status:         domain.ScanFailed,
		Severity:       domain.SeverityLow,
		Summary:        narrative.FailedSummary,
		ProcessingTime: s.now().Sub(start),
	})
	if err != nil {
		s.log.WithError(err).WithField("scan_id", scanID).Error("mark rescan record failed")
	}
}
