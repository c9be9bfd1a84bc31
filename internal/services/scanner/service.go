package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ghostleaks/internal/domain"
	"ghostleaks/internal/ports"
	"ghostleaks/internal/services/narrative"
)

// terminalWriteTimeout bounds the final scan update, which runs even when the
// processing context has been canceled.
const terminalWriteTimeout = 5 * time.Second

type Service struct {
	scans      ports.ScanRepository
	quota      ports.Quota
	pipeline   *Pipeline
	dispatcher ports.Dispatcher
	now        func() time.Time
	log        *logrus.Entry
}

func New(scans ports.ScanRepository, quota ports.Quota, pipeline *Pipeline, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Service{
		scans:    scans,
		quota:    quota,
		pipeline: pipeline,
		now:      time.Now,
		log:      log.WithField("component", "scanner"),
	}
	s.dispatcher = goDispatcher{s}
	return s
}

// SetDispatcher routes accepted scans to d instead of a bare goroutine.
func (s *Service) SetDispatcher(d ports.Dispatcher) { s.dispatcher = d }

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type goDispatcher struct{ s *Service }

func (d goDispatcher) Dispatch(scanID string) {
	go func() { _ = d.s.Process(context.Background(), scanID) }()
}

type Accepted struct {
	ScanID string
	Status domain.ScanStatus
}

// Submit checks and consumes quota, records a processing scan and hands it to
// background processing. The quota slot is not refunded if the scan later fails.
func (s *Service) Submit(ctx context.Context, userID, rawEmail string) (Accepted, error) {
	email, err := domain.NormalizeEmail(rawEmail)
	if err != nil {
		return Accepted{}, err
	}
	ok, err := s.quota.CanConsume(ctx, userID)
	if err != nil {
		return Accepted{}, fmt.Errorf("check quota: %w", err)
	}
	if !ok {
		return Accepted{}, domain.ErrQuotaExceeded
	}
	if err := s.quota.Consume(ctx, userID); err != nil {
		return Accepted{}, err
	}

	scanID, err := s.scans.CreateScan(ctx, domain.Scan{
		UserID:    userID,
		Email:     email,
		Status:    domain.ScanProcessing,
		Severity:  domain.SeverityLow,
		CreatedAt: s.now(),
	})
	if err != nil {
		return Accepted{}, fmt.Errorf("create scan: %w", err)
	}
	s.log.WithFields(logrus.Fields{"scan_id": scanID, "user_id": userID, "email_domain": domain.EmailDomain(email)}).Info("scan accepted")
	s.dispatcher.Dispatch(scanID)
	return Accepted{ScanID: scanID, Status: domain.ScanProcessing}, nil
}

// Result is the caller-facing view of a scan.
type Result struct {
	ID              string
	UserID          string
	Email           string
	Status          domain.ScanStatus
	ThreatsFound    int
	Severity        domain.Severity
	RiskScore       int
	Summary         string
	Recommendations []string
	// BreachDetails is set only for completed scans.
	BreachDetails  []domain.BreachDetail
	Sources        map[string]domain.SourceStatus
	ProcessingTime time.Duration
	CreatedAt      time.Time
}

func (s *Service) Result(ctx context.Context, scanID string) (Result, error) {
	scan, err := s.scans.GetScan(ctx, scanID)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		ID:             scan.ID,
		UserID:         scan.UserID,
		Email:          scan.Email,
		Status:         scan.Status,
		ThreatsFound:   scan.ThreatsFound,
		Severity:       scan.Severity,
		RiskScore:      scan.RiskScore,
		Summary:        scan.Summary,
		Sources:        scan.Sources,
		ProcessingTime: scan.ProcessingTime,
		CreatedAt:      scan.CreatedAt,
	}
	if scan.Status == domain.ScanCompleted {
		res.BreachDetails = scan.BreachDetails
		res.Recommendations = scan.Recommendations
	}
	return res, nil
}

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100
)

// History is one page of a user's scans, newest first. Entries carry no
// breach details.
type History struct {
	Scans []Result
	Page  int
	Limit int
	Total int
	Pages int
}

// History returns page (1-based) of userID's scans. Out of range values fall
// back to the first page and the default page size.
func (s *Service) History(ctx context.Context, userID string, page, limit int) (History, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)

	total, err := s.scans.CountScans(ctx, userID)
	if err != nil {
		return History{}, fmt.Errorf("count scans: %w", err)
	}
	h := History{Page: page, Limit: limit, Total: total, Pages: (total + limit - 1) / limit, Scans: []Result{}}
	if (page-1)*limit >= total {
		return h, nil
	}
	scans, err := s.scans.ListScans(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return History{}, fmt.Errorf("list scans: %w", err)
	}
	for _, sc := range scans {
		h.Scans = append(h.Scans, Result{
			ID:             sc.ID,
			UserID:         sc.UserID,
			Email:          sc.Email,
			Status:         sc.Status,
			ThreatsFound:   sc.ThreatsFound,
			Severity:       sc.Severity,
			RiskScore:      sc.RiskScore,
			Summary:        sc.Summary,
			ProcessingTime: sc.ProcessingTime,
			CreatedAt:      sc.CreatedAt,
		})
	}
	return h, nil
}

// Process drives a processing scan to completed or failed. It is safe to call
// for a scan that is already terminal.
func (s *Service) Process(ctx context.Context, scanID string) error {
	start := s.now()
	lctx, cancel := terminalContext(ctx)
	scan, err := s.scans.GetScan(lctx, scanID)
	cancel()
	if err != nil {
		return fmt.Errorf("load scan %s: %w", scanID, err)
	}
	if scan.Status != domain.ScanProcessing {
		return nil
	}
	l := s.log.WithFields(logrus.Fields{"scan_id": scanID, "email_domain": domain.EmailDomain(scan.Email)})

	if ctx.Err() != nil {
		// Handed over after shutdown began; there is no time left to scan.
		err := fmt.Errorf("%w: interrupted before start: %v", domain.ErrPipelineFault, ctx.Err())
		l.WithError(err).Warn("scan abandoned")
		s.fail(ctx, scanID, s.now().Sub(start), l)
		return err
	}

	out, err := s.run(ctx, scan.Email)
	if err == nil && ctx.Err() != nil {
		// Sources cut off by shutdown would read as a clean result.
		err = fmt.Errorf("%w: interrupted: %v", domain.ErrPipelineFault, ctx.Err())
	}
	if err != nil {
		l.WithError(err).Error("scan pipeline failed")
		s.fail(ctx, scanID, s.now().Sub(start), l)
		return err
	}

	n := out.Narrative
	patch := domain.ScanPatch{
		Status:          domain.ScanCompleted,
		BreachDetails:   out.Details,
		ThreatsFound:    len(out.Details),
		Severity:        n.Severity,
		RiskScore:       n.RiskScore,
		Summary:         n.Summary,
		Recommendations: n.Recommendations,
		Sources:         out.Sources,
		ProcessingTime:  s.now().Sub(start),
	}
	wctx, cancel := terminalContext(ctx)
	defer cancel()
	if err := s.scans.UpdateScan(wctx, scanID, patch); err != nil {
		l.WithError(err).Error("persist completed scan")
		if !errors.Is(err, domain.ErrInvalidTransition) {
			s.fail(ctx, scanID, s.now().Sub(start), l)
		}
		return fmt.Errorf("%w: persist scan: %v", domain.ErrPipelineFault, err)
	}
	l.WithFields(logrus.Fields{
		"findings":    patch.ThreatsFound,
		"severity":    patch.Severity,
		"risk_score":  patch.RiskScore,
		"duration_ms": patch.ProcessingTime.Milliseconds(),
	}).Info("scan completed")
	return nil
}

// run executes the pipeline, turning any panic into ErrPipelineFault.
func (s *Service) run(ctx context.Context, email string) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrPipelineFault, r)
		}
	}()
	out, err = s.pipeline.Run(ctx, email)
	if err != nil {
		return out, fmt.Errorf("%w: %v", domain.ErrPipelineFault, err)
	}
	return out, nil
}

func (s *Service) fail(ctx context.Context, scanID string, elapsed time.Duration, l *logrus.Entry) {
	wctx, cancel := terminalContext(ctx)
	defer cancel()
	err := s.scans.UpdateScan(wctx, scanID, domain.ScanPatch{
		Status:         domain.ScanFailed,
		Severity:       domain.SeverityLow,
		Summary:        narrative.FailedSummary,
		ProcessingTime: elapsed,
	})
	if err != nil {
		l.WithError(err).Error("mark scan failed")
	}
}

func terminalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
}
