// Package memory implements the repository ports in process memory.
// It backs tests and DB-less development runs; data is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ghostleaks/internal/domain"
)

type leakKey struct{ name, source string }

// Store implements ports.LeakStore, ports.ScanRepository and ports.UserRepository.
type Store struct {
	mu     sync.RWMutex
	leaks  map[string]*domain.Leak
	byKey  map[leakKey]string
	scans  map[string]*domain.Scan
	users  map[string]*domain.User
	now    func() time.Time
	seq    int64
	orders map[string]int64
}

func NewStore() *Store {
	return &Store{
		leaks:  make(map[string]*domain.Leak),
		byKey:  make(map[leakKey]string),
		scans:  make(map[string]*domain.Scan),
		users:  make(map[string]*domain.User),
		now:    time.Now,
		orders: make(map[string]int64),
	}
}

// WithClock overrides the time source used for timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.users[u.ID] = &cp
}

// LeakStore

func (s *Store) FindLeak(ctx context.Context, name, source string) (domain.Leak, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[leakKey{name, source}]
	if !ok {
		return domain.Leak{}, false, nil
	}
	return copyLeak(*s.leaks[id]), true, nil
}

func (s *Store) CreateLeak(ctx context.Context, leak domain.Leak) (domain.Leak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := leakKey{leak.Name, leak.Source}
	if id, ok := s.byKey[k]; ok {
		return copyLeak(*s.leaks[id]), nil
	}
	leak.ID = uuid.NewString()
	if leak.AddedDate.IsZero() {
		leak.AddedDate = s.now()
	}
	leak.AffectedEmails = nil
	cp := copyLeak(leak)
	s.leaks[leak.ID] = &cp
	s.byKey[k] = leak.ID
	return copyLeak(cp), nil
}

func (s *Store) AppendAffectedEmail(ctx context.Context, leakID string, ae domain.AffectedEmail) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leaks[leakID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if l.HasAffectedEmail(ae.Email) {
		return false, nil
	}
	l.AffectedEmails = append(l.AffectedEmails, ae)
	return true, nil
}

// Leaks returns a snapshot of all cataloged leaks.
func (s *Store) Leaks() []domain.Leak {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Leak, 0, len(s.leaks))
	for _, l := range s.leaks {
		out = append(out, copyLeak(*l))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Source < out[j].Source
	})
	return out
}

// ScanRepository

func (s *Store) CreateScan(ctx context.Context, scan domain.Scan) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan.ID = uuid.NewString()
	if scan.Status == "" {
		scan.Status = domain.ScanProcessing
	}
	now := s.now()
	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = now
	}
	scan.UpdatedAt = now
	cp := copyScan(scan)
	s.scans[scan.ID] = &cp
	s.seq++
	s.orders[scan.ID] = s.seq
	return scan.ID, nil
}

func (s *Store) UpdateScan(ctx context.Context, scanID string, patch domain.ScanPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scans[scanID]
	if !ok {
		return domain.ErrNotFound
	}
	if !sc.CanTransition(patch.Status) {
		return domain.ErrInvalidTransition
	}
	updated := patch.Apply(*sc, s.now())
	s.scans[scanID] = &updated
	return nil
}

func (s *Store) GetScan(ctx context.Context, scanID string) (domain.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scans[scanID]
	if !ok {
		return domain.Scan{}, domain.ErrNotFound
	}
	return copyScan(*sc), nil
}

func (s *Store) FindLatestCompletedScan(ctx context.Context, userID, email string) (domain.Scan, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *domain.Scan
	for _, sc := range s.scans {
		if sc.UserID != userID || sc.Email != email || sc.Status != domain.ScanCompleted {
			continue
		}
		if best == nil || s.newer(sc, best) {
			best = sc
		}
	}
	if best == nil {
		return domain.Scan{}, false, nil
	}
	return copyScan(*best), true, nil
}

// newer orders by creation time, then insertion order for equal timestamps.
func (s *Store) newer(a, b *domain.Scan) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return s.orders[a.ID] > s.orders[b.ID]
}

func (s *Store) ListScannedEmails(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	var out []string
	for _, sc := range s.scans {
		if sc.UserID != userID {
			continue
		}
		if _, ok := seen[sc.Email]; ok {
			continue
		}
		seen[sc.Email] = struct{}{}
		out = append(out, sc.Email)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ListScans(ctx context.Context, userID string, limit, offset int) ([]domain.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var mine []*domain.Scan
	for _, sc := range s.scans {
		if sc.UserID == userID {
			mine = append(mine, sc)
		}
	}
	sort.Slice(mine, func(i, j int) bool { return s.newer(mine[i], mine[j]) })
	if offset >= len(mine) {
		return nil, nil
	}
	mine = mine[offset:]
	if limit < len(mine) {
		mine = mine[:limit]
	}
	out := make([]domain.Scan, 0, len(mine))
	for _, sc := range mine {
		cp := copyScan(*sc)
		cp.BreachDetails = nil
		out = append(out, cp)
	}
	return out, nil
}

func (s *Store) CountScans(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sc := range s.scans {
		if sc.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *Store) HasScanSince(ctx context.Context, userID, email string, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sc := range s.scans {
		if sc.UserID == userID && sc.Email == email && sc.Status != domain.ScanFailed && !sc.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) FailStaleScans(ctx context.Context, cutoff time.Time, summary string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := s.now()
	for id, sc := range s.scans {
		if sc.Status != domain.ScanProcessing || !sc.CreatedAt.Before(cutoff) {
			continue
		}
		failed := domain.ScanPatch{
			Status:         domain.ScanFailed,
			Severity:       domain.SeverityLow,
			Summary:        summary,
			ProcessingTime: now.Sub(sc.CreatedAt),
		}.Apply(*sc, now)
		s.scans[id] = &failed
		n++
	}
	return n, nil
}

// UserRepository

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return *u, nil
}

func (s *Store) ResetDailyScans(ctx context.Context, userID string, remaining int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.ScansRemaining = remaining
	u.LastScanReset = at
	return nil
}

func (s *Store) DecrementScans(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if u.ScansRemaining <= 0 {
		return false, nil
	}
	u.ScansRemaining--
	return true, nil
}

func (s *Store) ListAlertSubscribers(ctx context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.User
	for _, u := range s.users {
		if u.WantsAlerts() {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func copyLeak(l domain.Leak) domain.Leak {
	l.DataClasses = append([]string(nil), l.DataClasses...)
	l.AffectedEmails = append([]domain.AffectedEmail(nil), l.AffectedEmails...)
	return l
}

func copyScan(s domain.Scan) domain.Scan {
	s.BreachDetails = append([]domain.BreachDetail(nil), s.BreachDetails...)
	s.Recommendations = append([]string(nil), s.Recommendations...)
	if s.Sources != nil {
		src := make(map[string]domain.SourceStatus, len(s.Sources))
		for k, v := range s.Sources {
			src[k] = v
		}
		s.Sources = src
	}
	return s
}
