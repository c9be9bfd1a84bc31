package rescan

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostleaks/internal/adapters/memory"
	"ghostleaks/internal/domain"
	"ghostleaks/internal/ports"
	"ghostleaks/internal/services/catalog"
	"ghostleaks/internal/services/scanner"
)

var now = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func quietLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

type scriptedAdapter struct {
	name  string
	mu    sync.Mutex
	steps []step
	calls int
}

type step struct {
	findings []domain.Finding
	err      error
}

func (s *scriptedAdapter) Name() string { return s.name }

func (s *scriptedAdapter) Lookup(ctx context.Context, email string) ([]domain.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	return s.steps[i].findings, s.steps[i].err
}

func (s *scriptedAdapter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func names(fs []domain.Finding) []string {
	var out []string
	for _, f := range fs {
		out = append(out, f.Name)
	}
	return out
}

func newService(store *memory.Store, policy Policy, adapters ...ports.SourceAdapter) *Service {
	clock := func() time.Time { return now }
	cat := catalog.New(store, quietLog()).WithClock(clock)
	pipeline := scanner.NewPipeline(scanner.NewOrchestrator(adapters, time.Second, quietLog()), cat).WithClock(clock)
	return New(store, pipeline, policy, quietLog()).WithClock(clock)
}

func TestDiffNew(t *testing.T) {
	current := []domain.Finding{{Name: "Adobe", Source: "hibp"}, {Name: "Canva", Source: "hibp"}, {Name: "Dropbox", Source: "breach_directory"}}
	previous := []domain.Finding{{Name: "Adobe", Source: "breach_directory"}, {Name: "Canva", Source: "hibp"}}

	assert.Equal(t, []string{"Dropbox"}, names(DiffNew(current, previous)))
	assert.Empty(t, DiffNew(current, current))
	assert.Equal(t, names(current), names(DiffNew(current, nil)))
}

func TestProperty_DiffNew(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	toFindings := func(ns []string) []domain.Finding {
		out := make([]domain.Finding, 0, len(ns))
		for _, n := range ns {
			out = append(out, domain.Finding{Name: n, Source: "hibp"})
		}
		return out
	}

	properties.Property("identical inputs yield nothing new", prop.ForAll(
		func(ns []string) bool {
			fs := toFindings(ns)
			return len(DiffNew(fs, fs)) == 0
		},
		gen.SliceOf(gen.AlphaString()),
	))
	properties.Property("empty history returns current", prop.ForAll(
		func(ns []string) bool {
			fs := toFindings(ns)
			return assert.ObjectsAreEqual(names(fs), names(DiffNew(fs, nil)))
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func TestRunReportsOnlyNewBreaches(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore().WithClock(func() time.Time { return now })
	hibp := &scriptedAdapter{name: "hibp", steps: []step{
		{findings: []domain.Finding{{Name: "Adobe", Source: "hibp"}}},
		{findings: []domain.Finding{{Name: "Adobe", Source: "hibp"}}},
		{findings: []domain.Finding{{Name: "Adobe", Source: "hibp"}, {Name: "Canva", Source: "hibp"}}},
		{findings: []domain.Finding{{Name: "Adobe", Source: "hibp"}, {Name: "Canva", Source: "hibp"}}},
	}}
	svc := newService(store, Policy{}, hibp)

	// No history: everything is new.
	fresh, err := svc.Run(ctx, "u1", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"Adobe"}, names(fresh))

	// Same findings again: nothing to alert.
	fresh, err = svc.Run(ctx, "u1", "a@example.com")
	require.NoError(t, err)
	assert.Empty(t, fresh)

	fresh, err = svc.Run(ctx, "u1", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"Canva"}, names(fresh))

	// The recorded snapshot holds the full set, so Adobe is not re-reported.
	fresh, err = svc.Run(ctx, "u1", "a@example.com")
	require.NoError(t, err)
	assert.Empty(t, fresh)

	last, found, err := store.FindLatestCompletedScan(ctx, "u1", "a@example.com")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, last.ThreatsFound)
}

func TestRunKeepsBreachesFromFailedSources(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore().WithClock(func() time.Time { return now })
	hibp := &scriptedAdapter{name: "hibp", steps: []step{
		{findings: []domain.Finding{{Name: "Adobe", Source: "hibp"}}},
		{err: domain.ErrSourceTransient},
		{findings: []domain.Finding{{Name: "Adobe", Source: "hibp"}}},
	}}
	bd := &scriptedAdapter{name: "breach_directory", steps: []step{
		{err: domain.ErrSourceNotFound},
		{findings: []domain.Finding{{Name: "Canva", Source: "breach_directory"}}},
		{findings: []domain.Finding{{Name: "Canva", Source: "breach_directory"}}},
	}}
	svc := newService(store, Policy{}, hibp, bd)

	fresh, err := svc.Run(ctx, "u1", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"Adobe"}, names(fresh))

	// hibp is down, so Adobe must survive in the recorded snapshot.
	fresh, err = svc.Run(ctx, "u1", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"Canva"}, names(fresh))

	last, found, err := store.FindLatestCompletedScan(ctx, "u1", "a@example.com")
	require.NoError(t, err)
	require.True(t, found)
	var recorded []string
	for _, d := range last.BreachDetails {
		recorded = append(recorded, d.Name)
	}
	assert.ElementsMatch(t, []string{"Adobe", "Canva"}, recorded)
	assert.Equal(t, 2, last.ThreatsFound)
	assert.True(t, last.Sources["hibp"].Failed)

	fresh, err = svc.Run(ctx, "u1", "a@example.com")
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestCarryForward(t *testing.T) {
	previous := []domain.BreachDetail{
		{Name: "Adobe", Source: "hibp"},
		{Name: "Canva", Source: "breach_directory"},
		{Name: "Leak", Source: "pastebin"},
		{Name: "Dropbox", Source: "github"},
	}
	current := []domain.BreachDetail{{Name: "Dropbox", Source: "hibp"}}
	sources := map[string]domain.SourceStatus{
		"hibp":             {Checked: true},
		"breach_directory": {Checked: true, Failed: true, Reason: domain.ReasonTransient},
		"pastebin":         {Reason: domain.ReasonNotConfigured},
	}

	var got []string
	for _, d := range carryForward(current, previous, sources) {
		got = append(got, d.Name)
	}
	// Adobe: hibp answered cleanly without it. Dropbox: already current.
	assert.Equal(t, []string{"Canva", "Leak"}, got)
}

// failingCompletion rejects the completing write of every record.
type failingCompletion struct {
	*memory.Store
	created []string
}

func (f *failingCompletion) CreateScan(ctx context.Context, scan domain.Scan) (string, error) {
	id, err := f.Store.CreateScan(ctx, scan)
	f.created = append(f.created, id)
	return id, err
}

func (f *failingCompletion) UpdateScan(ctx context.Context, scanID string, patch domain.ScanPatch) error {
	if patch.Status == domain.ScanCompleted {
		return errors.New("connection reset")
	}
	return f.Store.UpdateScan(ctx, scanID, patch)
}

func TestRecordFailureDoesNotLeaveProcessingScan(t *testing.T) {
	ctx := context.Background()
	store := &failingCompletion{Store: memory.NewStore().WithClock(func() time.Time { return now })}
	hibp := &scriptedAdapter{name: "hibp", steps: []step{{findings: []domain.Finding{{Name: "Adobe", Source: "hibp"}}}}}
	clock := func() time.Time { return now }
	pipeline := scanner.NewPipeline(scanner.NewOrchestrator([]ports.SourceAdapter{hibp}, time.Second, quietLog()),
		catalog.New(store.Store, quietLog()).WithClock(clock)).WithClock(clock)
	svc := New(store, pipeline, Policy{}, quietLog()).WithClock(clock)

	_, err := svc.Run(ctx, "u1", "a@example.com")
	require.Error(t, err)

	require.Len(t, store.created, 1)
	sc, err := store.GetScan(ctx, store.created[0])
	require.NoError(t, err)
	assert.Equal(t, domain.ScanFailed, sc.Status)

	// The abandoned record must not hold off the next sweep.
	recent, err := store.HasScanSince(ctx, "u1", "a@example.com", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, recent)
}

func TestRunDiffsAcrossSources(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	prev, _ := store.CreateScan(ctx, domain.Scan{UserID: "u1", Email: "a@example.com"})
	require.NoError(t, store.UpdateScan(ctx, prev, domain.ScanPatch{
		Status:        domain.ScanCompleted,
		BreachDetails: []domain.BreachDetail{{Name: "Adobe", Source: "breach_directory"}},
	}))

	hibp := &scriptedAdapter{name: "hibp", steps: []step{{findings: []domain.Finding{{Name: "Adobe", Source: "hibp"}}}}}
	fresh, err := newService(store, Policy{}, hibp).Run(ctx, "u1", "a@example.com")
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestRetryOnRateLimit(t *testing.T) {
	ctx := context.Background()
	hibp := &scriptedAdapter{name: "hibp", steps: []step{
		{err: domain.ErrSourceRateLimited},
		{err: domain.ErrSourceRateLimited},
		{findings: []domain.Finding{{Name: "Adobe", Source: "hibp"}}},
	}}
	svc := newService(memory.NewStore(), Policy{MaxRetries: 3, Backoff: time.Millisecond}, hibp)

	fresh, err := svc.Run(ctx, "u1", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"Adobe"}, names(fresh))
	assert.Equal(t, 3, hibp.Calls())
}

func TestNoRetryByDefault(t *testing.T) {
	hibp := &scriptedAdapter{name: "hibp", steps: []step{
		{err: domain.ErrSourceRateLimited},
		{findings: []domain.Finding{{Name: "Adobe", Source: "hibp"}}},
	}}
	fresh, err := newService(memory.NewStore(), Policy{}, hibp).Run(context.Background(), "u1", "a@example.com")
	require.NoError(t, err)
	assert.Empty(t, fresh)
	assert.Equal(t, 1, hibp.Calls())
}

func TestRetryDoesNotRetryOtherErrors(t *testing.T) {
	hibp := &scriptedAdapter{name: "hibp", steps: []step{{err: domain.ErrSourceTransient}}}
	wrapped := WithBackoff([]ports.SourceAdapter{hibp}, Policy{MaxRetries: 5, Backoff: time.Millisecond})
	_, err := wrapped[0].Lookup(context.Background(), "a@example.com")
	assert.ErrorIs(t, err, domain.ErrSourceTransient)
	assert.Equal(t, 1, hibp.Calls())
	assert.Equal(t, "hibp", wrapped[0].Name())
}
