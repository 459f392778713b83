package domain

import (
	"fmt"
	"strings"
)

// Category classifies the subject matter of a ticket.
type Category string

const (
	CategoryBilling        Category = "Billing"
	CategoryTechnical      Category = "Technical"
	CategoryLoginAccess    Category = "Login / Access"
	CategoryFeatureRequest Category = "Feature Request"
	CategoryGeneralInquiry Category = "General Inquiry"
	CategoryOther          Category = "Other"
)

// AllCategories lists the closed category set.
var AllCategories = []Category{
	CategoryBilling,
	CategoryTechnical,
	CategoryLoginAccess,
	CategoryFeatureRequest,
	CategoryGeneralInquiry,
	CategoryOther,
}

// Urgency ranks how soon a ticket needs attention.
type Urgency string

const (
	UrgencyLow    Urgency = "Low"
	UrgencyMedium Urgency = "Medium"
	UrgencyHigh   Urgency = "High"
)

// Confidence is the classifier's self-reported certainty.
type Confidence string

const (
	ConfidenceLow    Confidence = "Low"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceHigh   Confidence = "High"
)

// Analysis is the schema-valid classification attached to a ticket.
type Analysis struct {
	Category           Category
	Urgency            Urgency
	Summary            string
	FixSteps           []string
	DraftResponse      string
	Confidence         Confidence
	EscalationRequired bool
	// Error annotates a degraded result; empty when the backend answered cleanly.
	Error string
}

// Degraded reports whether the analysis was produced without a usable backend answer.
func (a Analysis) Degraded() bool {
	return a.Error != ""
}

// Validate checks that every field holds a member of its closed set.
func (a Analysis) Validate() error {
	if _, ok := ParseCategory(string(a.Category)); !ok {
		return fmt.Errorf("%w: category %q", ErrIncompleteAnalysis, a.Category)
	}
	if _, ok := ParseUrgency(string(a.Urgency)); !ok {
		return fmt.Errorf("%w: urgency %q", ErrIncompleteAnalysis, a.Urgency)
	}
	if _, ok := ParseConfidence(string(a.Confidence)); !ok {
		return fmt.Errorf("%w: confidence %q", ErrIncompleteAnalysis, a.Confidence)
	}
	if strings.TrimSpace(a.Summary) == "" {
		return fmt.Errorf("%w: summary", ErrIncompleteAnalysis)
	}
	if strings.TrimSpace(a.DraftResponse) == "" {
		return fmt.Errorf("%w: draft response", ErrIncompleteAnalysis)
	}
	return nil
}

// ParseCategory matches s against the category set, ignoring case and spacing.
func ParseCategory(s string) (Category, bool) {
	key := foldLabel(s)
	for _, c := range AllCategories {
		if foldLabel(string(c)) == key {
			return c, true
		}
	}
	return "", false
}

// ParseUrgency matches s against the urgency set, ignoring case.
func ParseUrgency(s string) (Urgency, bool) {
	for _, u := range []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh} {
		if strings.EqualFold(strings.TrimSpace(s), string(u)) {
			return u, true
		}
	}
	return "", false
}

// ParseConfidence matches s against the confidence set, ignoring case.
func ParseConfidence(s string) (Confidence, bool) {
	for _, c := range []Confidence{ConfidenceLow, ConfidenceMedium, ConfidenceHigh} {
		if strings.EqualFold(strings.TrimSpace(s), string(c)) {
			return c, true
		}
	}
	return "", false
}

func foldLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch r {
		case ' ', '\t', '/', '-', '_', '&':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
