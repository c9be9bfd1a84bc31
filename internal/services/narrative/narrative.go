// Package narrative renders the deterministic "AI summary" of a scan from its
// already-scored breach details. No model is called; output depends only on
// the inputs.
package narrative

import (
	"fmt"

	"ghostleaks/internal/domain"
	"ghostleaks/internal/services/severity"
)

// FailedSummary is the only text a failed scan ever carries.
const FailedSummary = "The scan could not be completed. Please retry later."

type Narrative struct {
	Summary         string
	Severity        domain.Severity
	RiskScore       int
	Recommendations []string
	Analysis        Analysis
}

type Analysis struct {
	TotalBreaches        int
	SeverityCounts       map[domain.Severity]int
	MostRecentBreach     *domain.BreachDetail
	LargestBreach        *domain.BreachDetail
	SensitiveDataExposed []string
}

var cleanRecommendations = []string{
	"Keep using strong, unique passwords",
	"Enable two-factor authentication wherever it is offered",
	"Run regular scans to stay informed",
}

var baseRecommendations = []string{
	"Use a password manager",
	"Enable two-factor authentication",
	"Monitor your accounts regularly",
}

var severityRecommendations = map[domain.Severity][]string{
	domain.SeverityCritical: {
		"URGENT: change ALL of your passwords immediately",
		"Contact your banks to watch for suspicious activity",
		"Consider a temporary credit freeze",
		"Review all financial accounts daily",
		"Report any suspicious activity to the authorities",
	},
	domain.SeverityHigh: {
		"Change your passwords within 24 hours",
		"Review the last three months of bank statements",
		"Turn on login alerts for every account",
		"Consider changing your primary email address",
	},
	domain.SeverityMedium: {
		"Change your passwords within the week",
		"Review your main accounts",
		"Turn on security notifications",
		"Watch out for phishing attempts",
	},
	domain.SeverityLow: {
		"Change your passwords when convenient",
		"Stay alert to suspicious emails",
		"Run regular scans",
	},
}

// Generate builds the narrative for details found for email.
func Generate(details []domain.BreachDetail, email string) Narrative {
	sevs := make([]domain.Severity, 0, len(details))
	for _, d := range details {
		sevs = append(sevs, d.Severity)
	}
	overall, risk := severity.Aggregate(sevs)
	analysis := analyze(details)

	if len(details) == 0 {
		return Narrative{
			Summary:         fmt.Sprintf("Good news: %s was not found in any known data breach. Your information appears safe in public breach databases.", email),
			Severity:        domain.SeverityLow,
			RiskScore:       0,
			Recommendations: append([]string(nil), cleanRecommendations...),
			Analysis:        analysis,
		}
	}

	recs := append([]string(nil), severityRecommendations[overall]...)
	recs = append(recs, baseRecommendations...)
	return Narrative{
		Summary:         summarize(overall, analysis, email),
		Severity:        overall,
		RiskScore:       risk,
		Recommendations: recs,
		Analysis:        analysis,
	}
}

func summarize(overall domain.Severity, a Analysis, email string) string {
	n := a.TotalBreaches
	c := a.SeverityCounts
	switch overall {
	case domain.SeverityCritical:
		return fmt.Sprintf("CRITICAL ALERT: %s was found in %d data breach(es), %d of them rated critical. These breaches likely include sensitive information such as passwords or financial data. Act immediately to secure all of your accounts.", email, n, c[domain.SeverityCritical])
	case domain.SeverityHigh:
		return fmt.Sprintf("HIGH RISK: %d breach(es) detected for %s, including %d high-risk breach(es). Your personal data has been exposed and could be used by criminals. Change your passwords quickly.", n, email, c[domain.SeverityHigh])
	case domain.SeverityMedium:
		return fmt.Sprintf("MODERATE RISK: %d breach(es) identified for %s. They are less critical but still need your attention. Check your account security and change your passwords as a precaution.", n, email)
	}
	return fmt.Sprintf("LOW RISK: %d minor breach(es) detected for %s. Exposure appears limited, but stay alert and monitor your accounts regularly.", n, email)
}

func analyze(details []domain.BreachDetail) Analysis {
	a := Analysis{
		TotalBreaches: len(details),
		SeverityCounts: map[domain.Severity]int{
			domain.SeverityLow:      0,
			domain.SeverityMedium:   0,
			domain.SeverityHigh:     0,
			domain.SeverityCritical: 0,
		},
	}
	var classes []string
	for i := range details {
		d := &details[i]
		a.SeverityCounts[d.Severity]++
		if d.Date != nil && (a.MostRecentBreach == nil || d.Date.After(*a.MostRecentBreach.Date)) {
			a.MostRecentBreach = d
		}
		if d.PwnCount > 0 && (a.LargestBreach == nil || d.PwnCount > a.LargestBreach.PwnCount) {
			a.LargestBreach = d
		}
		classes = append(classes, d.DataClasses...)
	}
	a.SensitiveDataExposed = severity.SensitiveTypes(classes)
	return a
}
