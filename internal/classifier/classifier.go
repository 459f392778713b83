// Package classifier turns an untrusted language-model answer into a
// schema-valid ticket analysis. It never fails: a missing backend, a
// timeout or unusable output all yield a degraded analysis flagged for
// escalation.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
)

// Request carries the ticket facts sent to the backend.
type Request struct {
	TicketID   string
	Sender     string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// Backend produces a raw JSON answer for the rendered prompts.
type Backend interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Adapter implements the ticket classification contract.
type Adapter struct {
	backend Backend
	profile *Profile
	timeout time.Duration
	logger  *zap.Logger
}

// Dependencies wires an Adapter. Backend may be nil.
type Dependencies struct {
	Backend Backend
	Profile *Profile
	Timeout time.Duration
	Logger  *zap.Logger
}

var errNoBackend = errors.New("classification backend not configured")

// New builds an Adapter, falling back to the embedded profile.
func New(deps Dependencies) (*Adapter, error) {
	profile := deps.Profile
	if profile == nil {
		var err error
		if profile, err = DefaultProfile(); err != nil {
			return nil, err
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		backend: deps.Backend,
		profile: profile,
		timeout: deps.Timeout,
		logger:  logger,
	}, nil
}

// Configured reports whether a backend is wired.
func (a *Adapter) Configured() bool {
	return a.backend != nil
}

// Classify returns a complete analysis for req.
func (a *Adapter) Classify(ctx context.Context, req Request) domain.Analysis {
	if a.backend == nil {
		return a.degraded(req, a.profile.Degraded.Unconfigured, errNoBackend)
	}

	system, user, err := a.profile.Prompts(req)
	if err != nil {
		return a.degraded(req, a.profile.Degraded.Failed, err)
	}

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	raw, err := a.backend.Complete(callCtx, system, user)
	if err != nil {
		a.logger.Warn("classification backend failed", zap.String("ticket_id", req.TicketID), zap.Error(err))
		return a.degraded(req, a.profile.Degraded.Failed, fmt.Errorf("classification request: %w", err))
	}

	analysis, err := a.parse(req, raw)
	if err != nil {
		a.logger.Warn("classification output rejected", zap.String("ticket_id", req.TicketID), zap.Error(err))
		return a.degraded(req, a.profile.Degraded.Failed, err)
	}
	return analysis
}

func (a *Adapter) degraded(req Request, text DegradedText, cause error) domain.Analysis {
	return domain.Analysis{
		Category:           domain.CategoryOther,
		Urgency:            domain.UrgencyMedium,
		Summary:            text.Summary,
		FixSteps:           append([]string(nil), text.FixSteps...),
		DraftResponse:      a.profile.HoldingReplyFor(req),
		Confidence:         domain.ConfidenceLow,
		EscalationRequired: true,
		Error:              cause.Error(),
	}
}

// parse validates raw against the fixed output shape. Fields outside the
// shape, including any approval or status claims, are dropped.
func (a *Adapter) parse(req Request, raw string) (domain.Analysis, error) {
	obj := extractObject(raw)
	if obj == nil {
		return domain.Analysis{}, errors.New("failed to parse classification output: no JSON object found")
	}

	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(obj)))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return domain.Analysis{}, fmt.Errorf("failed to parse classification output: %w", err)
	}

	analysis := domain.Analysis{
		Category:           domain.CategoryOther,
		Urgency:            domain.UrgencyMedium,
		Confidence:         domain.ConfidenceLow,
		Summary:            "Summary unavailable; manual review required.",
		EscalationRequired: false,
	}
	if c, ok := domain.ParseCategory(stringField(fields, "category")); ok {
		analysis.Category = c
	}
	if u, ok := domain.ParseUrgency(stringField(fields, "urgency")); ok {
		analysis.Urgency = u
	}
	if c, ok := domain.ParseConfidence(stringField(fields, "confidence")); ok {
		analysis.Confidence = c
	}
	if s := stringField(fields, "summary"); s != "" {
		analysis.Summary = s
	}
	analysis.FixSteps = stepsField(fields["fix_steps"])

	analysis.DraftResponse = stringField(fields, "response")
	if analysis.DraftResponse == "" {
		analysis.DraftResponse = stringField(fields, "draft_response")
	}
	if analysis.DraftResponse == "" {
		analysis.DraftResponse = a.profile.HoldingReplyFor(req)
	}
	if b, ok := boolField(fields["escalation_required"]); ok {
		analysis.EscalationRequired = b
	}

	return analysis, analysis.Validate()
}

// extractObject returns the outermost {...} span, tolerating code fences
// and prose around it.
func extractObject(raw string) []byte {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil
	}
	return []byte(raw[start : end+1])
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	}
	return ""
}

func boolField(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
	}
	return false, false
}

var stepNumber = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s*`)

// stepsField accepts either a JSON array or a numbered multi-line string.
func stepsField(v any) []string {
	var lines []string
	switch s := v.(type) {
	case []any:
		for _, item := range s {
			if str, ok := item.(string); ok {
				lines = append(lines, str)
			}
		}
	case string:
		lines = strings.Split(s, "\n")
	}

	steps := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(stepNumber.ReplaceAllString(line, ""))
		if line != "" {
			steps = append(steps, line)
		}
	}
	return steps
}
