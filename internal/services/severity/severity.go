// Package severity holds the one scoring function shared by the leak catalog
// and per-scan findings. Do not add a second copy of these thresholds.
package severity

import (
	"strings"
	"time"

	"ghostleaks/internal/domain"
)

const year = 365 * 24 * time.Hour

// SensitiveKeywords are matched as case-insensitive substrings of data classes.
var SensitiveKeywords = []string{
	"password", "credit card", "social security", "financial",
	"bank", "payment", "ssn", "passport", "driver license",
}

// Signals are the inputs to Score.
type Signals struct {
	PwnCount    int64
	DataClasses []string
	IsSensitive bool
	IsVerified  bool
	BreachDate  *time.Time
	// Hint is a source-supplied floor on the classified severity.
	Hint domain.Severity
}

func FindingSignals(f domain.Finding) Signals {
	return Signals{
		PwnCount:    f.PwnCount,
		DataClasses: f.DataClasses,
		IsSensitive: f.IsSensitive,
		IsVerified:  f.IsVerified,
		BreachDate:  f.BreachDate,
		Hint:        f.SeverityHint,
	}
}

func LeakSignals(l domain.Leak) Signals {
	return Signals{
		PwnCount:    l.PwnCount,
		DataClasses: l.DataClasses,
		IsSensitive: l.IsSensitive,
		IsVerified:  l.IsVerified,
		BreachDate:  l.BreachDate,
		Hint:        l.SeverityHint,
	}
}

// Score is the additive integer score. Only the highest account-count tier
// and the most recent age tier apply.
func Score(s Signals, now time.Time) int {
	score := 0
	switch {
	case s.PwnCount > 100_000_000:
		score += 4
	case s.PwnCount > 10_000_000:
		score += 3
	case s.PwnCount > 1_000_000:
		score += 2
	default:
		score++
	}
	if HasSensitiveData(s.DataClasses) {
		score += 3
	}
	if s.IsSensitive {
		score += 2
	}
	if s.IsVerified {
		score++
	}
	if s.BreachDate != nil {
		age := now.Sub(*s.BreachDate)
		switch {
		case age < year:
			score += 2
		case age < 3*year:
			score++
		}
	}
	return score
}

// Classify maps a score to a severity.
func Classify(score int) domain.Severity {
	switch {
	case score >= 8:
		return domain.SeverityCritical
	case score >= 6:
		return domain.SeverityHigh
	case score >= 4:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// Assess classifies signals, raising the result to the hint when the hint is higher.
func Assess(s Signals, now time.Time) domain.Severity {
	sev := Classify(Score(s, now))
	if s.Hint.Valid() {
		sev = domain.MaxSeverity(sev, s.Hint)
	}
	return sev
}

func ForFinding(f domain.Finding, now time.Time) domain.Severity {
	return Assess(FindingSignals(f), now)
}

func ForLeak(l domain.Leak, now time.Time) domain.Severity {
	return Assess(LeakSignals(l), now)
}

// HasSensitiveData reports whether any data class contains a sensitive keyword.
func HasSensitiveData(dataClasses []string) bool {
	return len(SensitiveTypes(dataClasses)) > 0
}

// SensitiveTypes lists the keywords found in dataClasses, in keyword order.
func SensitiveTypes(dataClasses []string) []string {
	var out []string
	for _, kw := range SensitiveKeywords {
		for _, dc := range dataClasses {
			if strings.Contains(strings.ToLower(dc), kw) {
				out = append(out, kw)
				break
			}
		}
	}
	return out
}

// Weight is the risk-score contribution of one finding.
func Weight(s domain.Severity) int {
	switch s {
	case domain.SeverityCritical:
		return 25
	case domain.SeverityHigh:
		return 15
	case domain.SeverityMedium:
		return 8
	case domain.SeverityLow:
		return 3
	}
	return 0
}

// RiskScore sums finding weights, capped at 100.
func RiskScore(sevs []domain.Severity) int {
	total := 0
	for _, s := range sevs {
		total += Weight(s)
	}
	if total > 100 {
		return 100
	}
	return total
}

// Aggregate returns the scan severity and risk score for a set of finding
// severities. The result is never below the most severe finding.
func Aggregate(sevs []domain.Severity) (domain.Severity, int) {
	risk := RiskScore(sevs)
	var worst domain.Severity
	for _, s := range sevs {
		worst = domain.MaxSeverity(worst, s)
	}
	switch {
	case worst == domain.SeverityCritical || risk >= 80:
		return domain.SeverityCritical, risk
	case worst == domain.SeverityHigh || risk >= 60:
		return domain.SeverityHigh, risk
	case worst == domain.SeverityMedium || risk >= 30:
		return domain.SeverityMedium, risk
	}
	return domain.SeverityLow, risk
}
