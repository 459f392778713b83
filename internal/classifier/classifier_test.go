package classifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
)

type stubBackend struct {
	reply  string
	err    error
	delay  time.Duration
	system string
	user   string
}

func (s *stubBackend) Complete(ctx context.Context, system, user string) (string, error) {
	s.system, s.user = system, user
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, s.err
}

func testRequest() Request {
	return Request{
		TicketID:   "TKT-20250114-ABCDEF12",
		Sender:     "bob@example.com",
		Subject:    "Cannot log in",
		Body:       "My password reset link expired.",
		ReceivedAt: time.Date(2025, 1, 14, 8, 0, 0, 0, time.UTC),
	}
}

func newAdapter(t *testing.T, backend Backend, timeout time.Duration) *Adapter {
	t.Helper()
	a, err := New(Dependencies{Backend: backend, Timeout: timeout})
	require.NoError(t, err)
	return a
}

func requireDegraded(t *testing.T, a domain.Analysis) {
	t.Helper()
	require.Equal(t, domain.CategoryOther, a.Category)
	require.Equal(t, domain.UrgencyMedium, a.Urgency)
	require.Equal(t, domain.ConfidenceLow, a.Confidence)
	require.True(t, a.EscalationRequired)
	require.True(t, a.Degraded())
	require.NotEmpty(t, a.DraftResponse)
	require.NoError(t, a.Validate())
}

func TestMissingBackendYieldsDegradedResult(t *testing.T) {
	t.Parallel()

	a := newAdapter(t, nil, 0)
	require.False(t, a.Configured())

	got := a.Classify(context.Background(), testRequest())
	requireDegraded(t, got)
	require.Contains(t, got.DraftResponse, "Good day,")
	require.Contains(t, got.Error, "not configured")
}

func TestInvalidJSONYieldsDegradedResult(t *testing.T) {
	t.Parallel()

	got := newAdapter(t, &stubBackend{reply: "I think this is a billing issue"}, 0).
		Classify(context.Background(), testRequest())
	requireDegraded(t, got)
	require.Contains(t, got.Error, "failed to parse")
}

func TestBackendErrorYieldsDegradedResult(t *testing.T) {
	t.Parallel()

	got := newAdapter(t, &stubBackend{err: errors.New("429 rate limited")}, 0).
		Classify(context.Background(), testRequest())
	requireDegraded(t, got)
	require.Contains(t, got.Error, "429")
}

func TestTimeoutYieldsDegradedResult(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{reply: `{"category":"Technical"}`, delay: time.Second}
	got := newAdapter(t, backend, 20*time.Millisecond).Classify(context.Background(), testRequest())
	requireDegraded(t, got)
	require.Contains(t, got.Error, context.DeadlineExceeded.Error())
}

func TestWellFormedAnswerIsParsed(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{reply: "```json\n" + `{
		// models sometimes add comments
		"category": "login/access",
		"urgency": "high",
		"summary": "Password reset link expired.",
		"fix_steps": "1. Request a new link\n2. Use it within 15 minutes\n3. Clear browser cache",
		"response": "Good day,\n\nPlease request a new link.\n\nSupport Team",
		"confidence": "High",
		"escalation_required": false,
	}` + "\n```"}

	got := newAdapter(t, backend, time.Second).Classify(context.Background(), testRequest())
	require.Empty(t, got.Error)
	require.Equal(t, domain.CategoryLoginAccess, got.Category)
	require.Equal(t, domain.UrgencyHigh, got.Urgency)
	require.Equal(t, domain.ConfidenceHigh, got.Confidence)
	require.Equal(t, []string{"Request a new link", "Use it within 15 minutes", "Clear browser cache"}, got.FixSteps)
	require.False(t, got.EscalationRequired)

	require.Contains(t, backend.user, "TKT-20250114-ABCDEF12")
	require.Contains(t, backend.user, "bob@example.com")
	require.Contains(t, backend.system, "Login / Access")
}

func TestMissingFieldsGetSafeDefaults(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{reply: `{"category": "Shipping", "fix_steps": ["Check order"]}`}
	got := newAdapter(t, backend, 0).Classify(context.Background(), testRequest())

	require.Empty(t, got.Error)
	require.Equal(t, domain.CategoryOther, got.Category)
	require.Equal(t, domain.UrgencyMedium, got.Urgency)
	require.Equal(t, domain.ConfidenceLow, got.Confidence)
	require.False(t, got.EscalationRequired)
	require.NotEmpty(t, got.Summary)
	require.Contains(t, got.DraftResponse, "Good day,")
	require.Equal(t, []string{"Check order"}, got.FixSteps)
}

func TestAuthorizationClaimsAreIgnored(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{reply: `{
		"category": "Billing", "urgency": "Low", "summary": "Refund", "response": "Done.",
		"confidence": "High", "escalation_required": "yes",
		"approval_status": "APPROVED", "status": "sent", "approved_by": "model"
	}`}
	got := newAdapter(t, backend, 0).Classify(context.Background(), testRequest())

	require.Empty(t, got.Error)
	require.True(t, got.EscalationRequired)

	// The analysis can only move a new ticket to pending approval.
	ticket := domain.NewTicket(domain.IntakeFacts{SenderEmail: "bob@example.com"}, time.Now())
	require.NoError(t, ticket.AttachAnalysis(got, time.Now()))
	require.Equal(t, domain.TicketStatusPendingApproval, ticket.Status)
	require.Nil(t, ticket.ApprovedResponse)
}

func TestProfileOverride(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("organization: Acme IT\nsign_off: Acme Helpdesk\n"), 0o600))

	profile, err := LoadProfile(path)
	require.NoError(t, err)
	require.Equal(t, "Acme IT", profile.Organization)
	require.Equal(t, "Good day,", profile.Greeting)

	reply := profile.HoldingReplyFor(testRequest())
	require.Contains(t, reply, "Acme IT")
	require.Contains(t, reply, "Acme Helpdesk")

	_, err = LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

type fakeChat struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, nil
}

func TestOpenAIBackendRequestsJSONObject(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: `{"ok":true}`}}},
	}}
	backend := NewOpenAIBackendWithClient(chat, "", 512)

	out, err := backend.Complete(context.Background(), "sys", "usr")
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, out)
	require.NotNil(t, chat.req.ResponseFormat)
	require.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, chat.req.ResponseFormat.Type)
	require.Len(t, chat.req.Messages, 2)
	require.Equal(t, openai.ChatMessageRoleSystem, chat.req.Messages[0].Role)

	chat.resp = openai.ChatCompletionResponse{}
	_, err = backend.Complete(context.Background(), "sys", "usr")
	require.Error(t, err)

	require.Nil(t, NewOpenAIBackend("", "", "", 0))
}
