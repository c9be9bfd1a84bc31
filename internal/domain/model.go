package domain

import (
	"time"
)

// Core domain models used internally. Storage and transport adapters map
// to and from these; keep them free of driver types.

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

func (s Severity) Valid() bool { return s.Rank() > 0 }

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

type ScanStatus string

const (
	ScanProcessing ScanStatus = "processing"
	ScanCompleted  ScanStatus = "completed"
	ScanFailed     ScanStatus = "failed"
)

// Source identifiers as persisted on leaks and scans.
const (
	SourceHIBP            = "hibp"
	SourceBreachDirectory = "breach_directory"
	SourcePastebin        = "pastebin"
	SourceGitHub          = "github"
)

// Finding is one breach exposure as reported by a single source. It is never
// persisted directly.
type Finding struct {
	Source       string
	Name         string
	Domain       string
	BreachDate   *time.Time
	PwnCount     int64
	Description  string
	DataClasses  []string
	IsVerified   bool
	IsSensitive  bool
	SeverityHint Severity
	// Context is where the email was seen (paste URL, repository path).
	Context string
}

type AffectedEmail struct {
	Email     string
	FoundDate time.Time
	Context   string
}

// Leak is the catalog record of a known breach, unique by (Name, Source).
type Leak struct {
	ID             string
	Name           string
	Source         string
	Domain         string
	BreachDate     *time.Time
	AddedDate      time.Time
	PwnCount       int64
	Description    string
	DataClasses    []string
	IsVerified     bool
	IsFabricated   bool
	IsSensitive    bool
	IsRetired      bool
	SeverityHint   Severity
	Severity       Severity
	AffectedEmails []AffectedEmail
}

// HasAffectedEmail reports whether email was already recorded for the leak.
func (l Leak) HasAffectedEmail(email string) bool {
	for _, ae := range l.AffectedEmails {
		if ae.Email == email {
			return true
		}
	}
	return false
}

// BreachDetail is the point-in-time copy of a finding stored on a scan.
type BreachDetail struct {
	Source         string     `json:"source"`
	Name           string     `json:"name"`
	Domain         string     `json:"domain,omitempty"`
	Date           *time.Time `json:"date,omitempty"`
	Description    string     `json:"description,omitempty"`
	DataClasses    []string   `json:"dataClasses"`
	PwnCount       int64      `json:"pwnCount"`
	IsVerified     bool       `json:"isVerified"`
	IsSensitive    bool       `json:"isSensitive"`
	SourceSeverity Severity   `json:"sourceSeverity,omitempty"`
	Severity       Severity   `json:"severity"`
}

// Finding rebuilds the finding a detail was captured from.
func (d BreachDetail) Finding() Finding {
	return Finding{
		Source:       d.Source,
		Name:         d.Name,
		Domain:       d.Domain,
		BreachDate:   d.Date,
		PwnCount:     d.PwnCount,
		Description:  d.Description,
		DataClasses:  append([]string(nil), d.DataClasses...),
		IsVerified:   d.IsVerified,
		IsSensitive:  d.IsSensitive,
		SeverityHint: d.SourceSeverity,
	}
}

// SourceStatus is the per-source outcome of one fan-out.
type SourceStatus struct {
	Checked bool   `json:"checked"`
	Found   bool   `json:"found"`
	Failed  bool   `json:"failed"`
	Reason  string `json:"reason,omitempty"`
}

type Scan struct {
	ID              string
	UserID          string
	Email           string
	Status          ScanStatus
	BreachDetails   []BreachDetail
	ThreatsFound    int
	Severity        Severity
	RiskScore       int
	Summary         string
	Recommendations []string
	Sources         map[string]SourceStatus
	ProcessingTime  time.Duration
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CanTransition reports whether the scan may move from its current status to
// next. Only processing scans move, and only to a terminal status.
func (s Scan) CanTransition(next ScanStatus) bool {
	return s.Status == ScanProcessing && (next == ScanCompleted || next == ScanFailed)
}

// ScanPatch is the single terminal update applied to a processing scan.
type ScanPatch struct {
	Status          ScanStatus
	BreachDetails   []BreachDetail
	ThreatsFound    int
	Severity        Severity
	RiskScore       int
	Summary         string
	Recommendations []string
	Sources         map[string]SourceStatus
	ProcessingTime  time.Duration
}

// Apply returns a copy of s with the patch applied.
func (p ScanPatch) Apply(s Scan, at time.Time) Scan {
	s.Status = p.Status
	s.BreachDetails = append([]BreachDetail(nil), p.BreachDetails...)
	s.ThreatsFound = p.ThreatsFound
	s.Severity = p.Severity
	s.RiskScore = p.RiskScore
	s.Summary = p.Summary
	s.Recommendations = append([]string(nil), p.Recommendations...)
	s.Sources = make(map[string]SourceStatus, len(p.Sources))
	for k, v := range p.Sources {
		s.Sources[k] = v
	}
	s.ProcessingTime = p.ProcessingTime
	s.UpdatedAt = at
	return s
}

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

type AlertSettings struct {
	Email            bool
	Telegram         bool
	TelegramUsername string
}

type User struct {
	ID             string
	Email          string
	Plan           Plan
	ScansRemaining int
	LastScanReset  time.Time
	IsActive       bool
	Alerts         AlertSettings
}

// WantsAlerts reports whether scheduled rescans should cover the user.
func (u User) WantsAlerts() bool {
	return u.IsActive && (u.Alerts.Email || u.Alerts.Telegram)
}
