package scanner

import (
	"context"
	"sync"
	"time"

	"ghostleaks/internal/domain"
)

type stubAdapter struct {
	name     string
	findings []domain.Finding
	err      error
	delay    time.Duration
	panics   bool

	mu    sync.Mutex
	calls int
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Lookup(ctx context.Context, email string) ([]domain.Finding, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.panics {
		panic("boom")
	}
	if s.delay > 0 {
		// Deliberately ignores ctx to model a stuck provider.
		time.Sleep(s.delay)
	}
	return s.findings, s.err
}

func (s *stubAdapter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (d *recordingDispatcher) Dispatch(scanID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, scanID)
}

type failingRecorder struct{ err error }

func (f failingRecorder) Upsert(ctx context.Context, _ domain.Finding, _ string) (domain.Leak, error) {
	return domain.Leak{}, f.err
}

type panickingRecorder struct{}

func (panickingRecorder) Upsert(ctx context.Context, _ domain.Finding, _ string) (domain.Leak, error) {
	panic("catalog exploded")
}
