package scanner

import (
	"context"
	"fmt"
	"time"

	"ghostleaks/internal/domain"
	"ghostleaks/internal/services/narrative"
	"ghostleaks/internal/services/severity"
)

// LeakRecorder links a finding to the breach catalog.
type LeakRecorder interface {
	Upsert(ctx context.Context, f domain.Finding, email string) (domain.Leak, error)
}

// Outcome is everything a completed scan records.
type Outcome struct {
	Findings  []domain.Finding
	Details   []domain.BreachDetail
	Sources   map[string]domain.SourceStatus
	Narrative narrative.Narrative
}

// Pipeline runs fan-out, consolidation, catalog upsert, scoring and narrative
// for one email.
type Pipeline struct {
	orchestrator *Orchestrator
	catalog      LeakRecorder
	now          func() time.Time
}

func NewPipeline(o *Orchestrator, catalog LeakRecorder) *Pipeline {
	return &Pipeline{orchestrator: o, catalog: catalog, now: time.Now}
}

// WithClock overrides the time source used for scoring.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// WithOrchestrator returns a copy of p that fans out through o.
func (p *Pipeline) WithOrchestrator(o *Orchestrator) *Pipeline {
	cp := *p
	cp.orchestrator = o
	return &cp
}

// Orchestrator returns the orchestrator the pipeline fans out through.
func (p *Pipeline) Orchestrator() *Orchestrator { return p.orchestrator }

// Run never fails because of a source; errors come from the catalog.
func (p *Pipeline) Run(ctx context.Context, email string) (Outcome, error) {
	agg := p.orchestrator.Run(ctx, email)
	findings := Consolidate(agg.Findings)

	for _, f := range findings {
		if _, err := p.catalog.Upsert(ctx, f, email); err != nil {
			return Outcome{Sources: agg.Sources}, fmt.Errorf("catalog: %w", err)
		}
	}

	now := p.now()
	details := make([]domain.BreachDetail, 0, len(findings))
	for _, f := range findings {
		details = append(details, Snapshot(f, severity.ForFinding(f, now)))
	}
	return Outcome{
		Findings:  findings,
		Details:   details,
		Sources:   agg.Sources,
		Narrative: narrative.Generate(details, email),
	}, nil
}

// Snapshot copies a finding into the immutable form stored on a scan.
func Snapshot(f domain.Finding, sev domain.Severity) domain.BreachDetail {
	classes := append([]string{}, f.DataClasses...)
	return domain.BreachDetail{
		Source:         f.Source,
		Name:           f.Name,
		Domain:         f.Domain,
		Date:           f.BreachDate,
		Description:    f.Description,
		DataClasses:    classes,
		PwnCount:       f.PwnCount,
		IsVerified:     f.IsVerified,
		IsSensitive:    f.IsSensitive,
		SourceSeverity: f.SeverityHint,
		Severity:       sev,
	}
}
