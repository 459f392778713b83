package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/classifier"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/mailbox"
	"github.com/spec-kit/support-desk/internal/mailer"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/secrets"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// fakeMailbox is an in-memory IMAP folder.
type fakeMailbox struct {
	mu       sync.Mutex
	order    []uint32
	messages map[uint32][]byte
	seen     map[uint32]bool
	dialErr  error
	fetchErr map[uint32]error
	markErr  map[uint32]error
	dials    int
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		messages: map[uint32][]byte{},
		seen:     map[uint32]bool{},
		fetchErr: map[uint32]error{},
		markErr:  map[uint32]error{},
	}
}

func (m *fakeMailbox) add(uid uint32, raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = append(m.order, uid)
	m.messages[uid] = []byte(raw)
}

func (m *fakeMailbox) isSeen(uid uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[uid]
}

func (m *fakeMailbox) Dial(_ context.Context, _ mailbox.Account) (mailbox.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dials++
	if m.dialErr != nil {
		return nil, m.dialErr
	}
	return m, nil
}

func (m *fakeMailbox) ListUnseen(context.Context) ([]uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uint32
	for _, uid := range m.order {
		if !m.seen[uid] {
			out = append(out, uid)
		}
	}
	return out, nil
}

func (m *fakeMailbox) Fetch(_ context.Context, uid uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fetchErr[uid]; err != nil {
		return nil, err
	}
	return m.messages[uid], nil
}

func (m *fakeMailbox) MarkSeen(_ context.Context, uid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.markErr[uid]; err != nil {
		return err
	}
	m.seen[uid] = true
	return nil
}

func (m *fakeMailbox) Close() error { return nil }

// scriptedBackend returns a fixed answer for every prompt.
type scriptedBackend struct {
	answer string
	err    error
}

func (b scriptedBackend) Complete(context.Context, string, string) (string, error) {
	return b.answer, b.err
}

const goodAnswer = `{"category":"Technical","urgency":"High","summary":"VPN drops",
"fix_steps":["Restart client","Update driver"],"response":"Good day,\nPlease restart the VPN client.\nSupport Team",
"confidence":"High","escalation_required":false}`

// fakeSender fails for the recipients listed in failFor.
type fakeSender struct {
	mu      sync.Mutex
	failFor map[string]error
	sent    []mailer.Reply
	relays  []mailer.Relay
}

func (s *fakeSender) Send(_ context.Context, relay mailer.Relay, reply mailer.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor[reply.To]; err != nil {
		return err
	}
	s.sent = append(s.sent, reply)
	s.relays = append(s.relays, relay)
	return nil
}

type fakeLocker struct {
	err      error
	held     bool
	released int
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.held = true
	return func(context.Context) error {
		l.held = false
		l.released++
		return nil
	}, nil
}

type harness struct {
	store     *repository.Store
	mailbox   *fakeMailbox
	sender    *fakeSender
	metrics   *observability.Metrics
	settings  *SettingsService
	tickets   *TicketService
	ingestion *IngestionService
	dispatch  *DispatchService
}

type harnessOption func(*IngestionDependencies)

func withBackend(b classifier.Backend) harnessOption {
	return func(d *IngestionDependencies) {
		adapter, err := classifier.New(classifier.Dependencies{Backend: b})
		if err != nil {
			panic(err)
		}
		d.Classifier = adapter
	}
}

func withLocker(l RunLocker) harnessOption {
	return func(d *IngestionDependencies) { d.Locker = l }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	store := repository.NewMemoryStore()
	identity, err := secrets.GenerateIdentity()
	require.NoError(t, err)
	sealer, err := secrets.NewAgeSealer(identity)
	require.NoError(t, err)

	h := &harness{
		store:   store,
		mailbox: newFakeMailbox(),
		sender:  &fakeSender{failFor: map[string]error{}},
		metrics: observability.NewMetrics(),
	}
	h.settings = NewSettingsService(SettingsDependencies{
		ConfigRepo:        store.Config,
		Sealer:            sealer,
		SchedulerDefaults: domain.DefaultSchedulerConfig(),
		Clock:             fixedClock,
	})
	h.tickets = NewTicketService(TicketDependencies{TicketRepo: store.Tickets, Clock: fixedClock})

	adapter, err := classifier.New(classifier.Dependencies{})
	require.NoError(t, err)
	deps := IngestionDependencies{
		TicketRepo: store.Tickets,
		MailConfig: h.settings,
		Dialer:     h.mailbox,
		Classifier: adapter,
		Metrics:    h.metrics,
		Clock:      fixedClock,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.ingestion = NewIngestionService(deps)
	h.dispatch = NewDispatchService(DispatchDependencies{
		TicketRepo: store.Tickets,
		MailConfig: h.settings,
		Sender:     h.sender,
		Metrics:    h.metrics,
		Clock:      fixedClock,
	})
	return h
}

func (h *harness) configureMail(t *testing.T) {
	t.Helper()
	_, err := h.settings.UpdateMailConfig(context.Background(), domain.MailConfig{
		IMAPHost:     "imap.example.com",
		IMAPUsername: "support@example.com",
		IMAPPassword: "imap-secret",
		SMTPHost:     "smtp.example.com",
		SMTPUsername: "support@example.com",
		SMTPPassword: "smtp-secret",
		FromEmail:    "support@example.com",
	})
	require.NoError(t, err)
}

// seedPending creates a pending-approval ticket from sender.
func (h *harness) seedPending(t *testing.T, sender string) *domain.Ticket {
	t.Helper()
	ticket, err := h.ingestion.SubmitManual(context.Background(), ManualIntake{
		SenderEmail: sender,
		Subject:     "Help",
		Body:        "Something broke",
	})
	require.NoError(t, err)
	return ticket
}

// seedApproved creates an approved ticket from sender.
func (h *harness) seedApproved(t *testing.T, sender string) *domain.Ticket {
	t.Helper()
	ticket := h.seedPending(t, sender)
	approved, err := h.tickets.Approve(context.Background(), ticket.ID, "Reply to "+sender, "alice@example.com")
	require.NoError(t, err)
	return approved
}

func rawMessage(messageID, from, subject, body string) string {
	return fmt.Sprintf("Message-ID: %s\r\nFrom: %s\r\nTo: support@example.com\r\nSubject: %s\r\nDate: Fri, 14 Mar 2025 08:00:00 +0000\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		messageID, from, subject, body)
}

var errRelayDown = errors.New("421 service not available")
