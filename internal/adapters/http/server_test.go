package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostleaks/internal/adapters/memory"
	"ghostleaks/internal/domain"
	"ghostleaks/internal/ports"
	"ghostleaks/internal/services/catalog"
	"ghostleaks/internal/services/quota"
	"ghostleaks/internal/services/scanner"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type fakeSource struct{ findings []domain.Finding }

func (f fakeSource) Name() string { return domain.SourceHIBP }

func (f fakeSource) Lookup(ctx context.Context, email string) ([]domain.Finding, error) {
	if len(f.findings) == 0 {
		return nil, domain.ErrSourceNotFound
	}
	return f.findings, nil
}

type heldDispatcher struct{ ids []string }

func (d *heldDispatcher) Dispatch(scanID string) { d.ids = append(d.ids, scanID) }

type fakeTrigger struct{ pending bool }

func (f *fakeTrigger) Trigger() bool {
	if f.pending {
		return false
	}
	f.pending = true
	return true
}

type harness struct {
	srv        *httptest.Server
	svc        *scanner.Service
	dispatcher *heldDispatcher
}

func newHarness(t *testing.T, scansLeft int, sources ...ports.SourceAdapter) harness {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	log := logrus.NewEntry(logger)

	clock := func() time.Time { return testNow }
	store := memory.NewStore().WithClock(clock)
	store.PutUser(domain.User{ID: "u1", Plan: domain.PlanFree, IsActive: true, ScansRemaining: scansLeft, LastScanReset: testNow})
	store.PutUser(domain.User{ID: "u2", Plan: domain.PlanPro, IsActive: true})

	pipeline := scanner.NewPipeline(scanner.NewOrchestrator(sources, time.Second, log), catalog.New(store, log)).WithClock(clock)
	svc := scanner.New(store, quota.New(store, 5, 24*time.Hour).WithClock(clock), pipeline, log).WithClock(clock)
	d := &heldDispatcher{}
	svc.SetDispatcher(d)

	srv := httptest.NewServer(New(svc, &fakeTrigger{}, log).Routes())
	t.Cleanup(srv.Close)
	return harness{srv: srv, svc: svc, dispatcher: d}
}

func (h harness) do(t *testing.T, method, path, userID, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, 5)
	resp, body := h.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestScanFlow(t *testing.T) {
	h := newHarness(t, 5, fakeSource{findings: []domain.Finding{{
		Source: domain.SourceHIBP, Name: "Adobe", PwnCount: 152_000_000,
		DataClasses: []string{"Passwords", "Email addresses"}, IsVerified: true,
	}}})

	resp, body := h.do(t, http.MethodPost, "/scans", "u1", `{"email":"Alice@Example.com"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "processing", body["status"])
	scanID := body["scanId"].(string)
	assert.Equal(t, []string{scanID}, h.dispatcher.ids)

	resp, body = h.do(t, http.MethodGet, "/scans/"+scanID, "u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "processing", body["status"])
	assert.Nil(t, body["breachDetails"])

	require.NoError(t, h.svc.Process(context.Background(), scanID))

	resp, body = h.do(t, http.MethodGet, "/scans/"+scanID, "u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "alice@example.com", body["email"])
	assert.EqualValues(t, 1, body["threatsFound"])
	details := body["breachDetails"].([]any)
	require.Len(t, details, 1)
	assert.Equal(t, "Adobe", details[0].(map[string]any)["name"])
	assert.NotEmpty(t, body["recommendations"])

	// Scans are private to their owner.
	resp, _ = h.do(t, http.MethodGet, "/scans/"+scanID, "u2", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScanErrors(t *testing.T) {
	h := newHarness(t, 1)

	resp, _ := h.do(t, http.MethodPost, "/scans", "", `{"email":"a@example.com"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/scans", "u1", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/scans", "u1", `{"email":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/scans", "u1", `{"email":"a@example.com"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, body := h.do(t, http.MethodPost, "/scans", "u1", `{"email":"a@example.com"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "daily scan limit reached", body["error"])

	resp, _ = h.do(t, http.MethodGet, "/scans/missing", "u1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/scans", "nobody", `{"email":"a@example.com"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScanHistory(t *testing.T) {
	h := newHarness(t, 5, fakeSource{findings: []domain.Finding{{Source: domain.SourceHIBP, Name: "Adobe"}}})

	var ids []string
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		resp, body := h.do(t, http.MethodPost, "/scans", "u1", `{"email":"`+email+`"}`)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		ids = append(ids, body["scanId"].(string))
	}
	require.NoError(t, h.svc.Process(context.Background(), ids[2]))

	resp, _ := h.do(t, http.MethodGet, "/scans", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := h.do(t, http.MethodGet, "/scans?page=1&limit=2", "u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"page": 1.0, "limit": 2.0, "total": 3.0, "pages": 2.0}, body["pagination"])
	scans := body["scans"].([]any)
	require.Len(t, scans, 2)
	first := scans[0].(map[string]any)
	assert.Equal(t, ids[2], first["id"])
	assert.Equal(t, "c@example.com", first["email"])
	assert.Equal(t, "completed", first["status"])
	assert.EqualValues(t, 1, first["threatsFound"])
	assert.NotContains(t, first, "breachDetails")
	assert.Equal(t, ids[1], scans[1].(map[string]any)["id"])

	resp, body = h.do(t, http.MethodGet, "/scans?page=2&limit=2", "u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["scans"].([]any), 1)

	// Bad paging values fall back to defaults.
	resp, body = h.do(t, http.MethodGet, "/scans?page=x&limit=-3", "u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"page": 1.0, "limit": 10.0, "total": 3.0, "pages": 1.0}, body["pagination"])

	// Other users see only their own history.
	resp, body = h.do(t, http.MethodGet, "/scans", "u2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["scans"])
	assert.Equal(t, 0.0, body["pagination"].(map[string]any)["total"])
}

func TestRescanTrigger(t *testing.T) {
	h := newHarness(t, 5)
	resp, body := h.do(t, http.MethodPost, "/rescans", "", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, true, body["queued"])

	resp, _ = h.do(t, http.MethodPost, "/rescans", "", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
