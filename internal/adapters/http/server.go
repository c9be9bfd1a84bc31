package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"ghostleaks/internal/domain"
	"ghostleaks/internal/services/scanner"
)

// UserHeader carries the authenticated caller, set by the fronting gateway.
const UserHeader = "X-User-ID"

const maxBodyBytes = 1 << 20

type ScanService interface {
	Submit(ctx context.Context, userID, email string) (scanner.Accepted, error)
	Result(ctx context.Context, scanID string) (scanner.Result, error)
	History(ctx context.Context, userID string, page, limit int) (scanner.History, error)
}

// RescanTrigger queues an out-of-schedule rescan sweep.
type RescanTrigger interface {
	Trigger() bool
}

type Server struct {
	scans   ScanService
	rescans RescanTrigger
	log     *logrus.Entry
}

// New builds the HTTP surface. rescans may be nil, in which case
// POST /rescans answers 503.
func New(scans ScanService, rescans RescanTrigger, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{scans: scans, rescans: rescans, log: log.WithField("component", "http")}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.getHealthz)
	r.Post("/scans", s.postScan)
	r.Get("/scans", s.getScanHistory)
	r.Get("/scans/{id}", s.getScan)
	r.Post("/rescans", s.postRescans)
	return r
}

func (s *Server) getHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scanRequest struct {
	Email string `json:"email"`
}

type scanAccepted struct {
	ScanID string            `json:"scanId"`
	Status domain.ScanStatus `json:"status"`
}

func (s *Server) postScan(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(UserHeader)
	if userID == "" {
		s.writeError(w, r, &httpError{code: http.StatusUnauthorized, msg: "missing " + UserHeader})
		return
	}
	var req scanRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, &httpError{code: http.StatusBadRequest, msg: "invalid JSON body"})
		return
	}
	acc, err := s.scans.Submit(r.Context(), userID, req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, scanAccepted{ScanID: acc.ScanID, Status: acc.Status})
}

type scanResponse struct {
	ID               string                         `json:"id"`
	Email            string                         `json:"email"`
	Status           domain.ScanStatus              `json:"status"`
	ThreatsFound     int                            `json:"threatsFound"`
	Severity         domain.Severity                `json:"severity"`
	RiskScore        int                            `json:"riskScore"`
	Summary          string                         `json:"summary,omitempty"`
	Recommendations  []string                       `json:"recommendations,omitempty"`
	BreachDetails    []domain.BreachDetail          `json:"breachDetails,omitempty"`
	Sources          map[string]domain.SourceStatus `json:"sources,omitempty"`
	ProcessingTimeMs int64                          `json:"processingTimeMs"`
	CreatedAt        time.Time                      `json:"createdAt"`
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(UserHeader)
	if userID == "" {
		s.writeError(w, r, &httpError{code: http.StatusUnauthorized, msg: "missing " + UserHeader})
		return
	}
	res, err := s.scans.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res.UserID != userID {
		s.writeError(w, r, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{
		ID:               res.ID,
		Email:            res.Email,
		Status:           res.Status,
		ThreatsFound:     res.ThreatsFound,
		Severity:         res.Severity,
		RiskScore:        res.RiskScore,
		Summary:          res.Summary,
		Recommendations:  res.Recommendations,
		BreachDetails:    res.BreachDetails,
		Sources:          res.Sources,
		ProcessingTimeMs: res.ProcessingTime.Milliseconds(),
		CreatedAt:        res.CreatedAt,
	})
}

type historyEntry struct {
	ID               string            `json:"id"`
	Email            string            `json:"email"`
	Status           domain.ScanStatus `json:"status"`
	ThreatsFound     int               `json:"threatsFound"`
	Severity         domain.Severity   `json:"severity"`
	RiskScore        int               `json:"riskScore"`
	Summary          string            `json:"summary,omitempty"`
	ProcessingTimeMs int64             `json:"processingTimeMs"`
	CreatedAt        time.Time         `json:"createdAt"`
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type historyResponse struct {
	Scans      []historyEntry `json:"scans"`
	Pagination pagination     `json:"pagination"`
}

// getScanHistory lists the caller's scans. page and limit are optional;
// unparsable values use the defaults.
func (s *Server) getScanHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(UserHeader)
	if userID == "" {
		s.writeError(w, r, &httpError{code: http.StatusUnauthorized, msg: "missing " + UserHeader})
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	h, err := s.scans.History(r.Context(), userID, page, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := historyResponse{
		Scans:      make([]historyEntry, 0, len(h.Scans)),
		Pagination: pagination{Page: h.Page, Limit: h.Limit, Total: h.Total, Pages: h.Pages},
	}
	for _, sc := range h.Scans {
		resp.Scans = append(resp.Scans, historyEntry{
			ID:               sc.ID,
			Email:            sc.Email,
			Status:           sc.Status,
			ThreatsFound:     sc.ThreatsFound,
			Severity:         sc.Severity,
			RiskScore:        sc.RiskScore,
			Summary:          sc.Summary,
			ProcessingTimeMs: sc.ProcessingTime.Milliseconds(),
			CreatedAt:        sc.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) postRescans(w http.ResponseWriter, r *http.Request) {
	if s.rescans == nil {
		s.writeError(w, r, &httpError{code: http.StatusServiceUnavailable, msg: "rescans disabled"})
		return
	}
	if !s.rescans.Trigger() {
		s.writeError(w, r, &httpError{code: http.StatusConflict, msg: "rescan already pending"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

type httpError struct {
	code int
	msg  string
}

func (e *httpError) Error() string { return e.msg }

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := http.StatusInternalServerError, "internal error"
	var he *httpError
	switch {
	case errors.As(err, &he):
		code, msg = he.code, he.msg
	case errors.Is(err, domain.ErrInvalidEmail):
		code, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrQuotaExceeded):
		code, msg = http.StatusTooManyRequests, "daily scan limit reached"
	case errors.Is(err, domain.ErrNotFound):
		code, msg = http.StatusNotFound, "not found"
	default:
		s.log.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).Error("request failed")
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}
