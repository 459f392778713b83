// Package scheduler drives mailbox ingestion on an operator-configured
// interval. One Scheduler owns one cron entry; reconfiguring replaces it.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/service"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// Skip reasons reported by RunOnce.
const (
	SkipDisabled        = "scheduler disabled"
	SkipNoMailConfig    = "no active mail configuration"
	SkipStillRunning    = "previous run still in progress"
	SkipLockedElsewhere = "ingestion running in another process"
)

// Ingestor runs one ingestion pass.
type Ingestor interface {
	Run(ctx context.Context) (*service.IngestionResult, error)
}

// Settings reads the scheduler record and stores run telemetry.
type Settings interface {
	SchedulerSettings(ctx context.Context) (domain.SchedulerConfig, error)
	MailConfigured(ctx context.Context) (bool, error)
	RecordSchedulerRun(ctx context.Context, at time.Time, processed int) error
}

// Outcome describes one tick.
type Outcome struct {
	Skipped bool
	Reason  string
	Result  *service.IngestionResult
	Err     error
}

// Scheduler is the recurring ingestion driver.
type Scheduler struct {
	cron       *cron.Cron
	ingestor   Ingestor
	settings   Settings
	runTimeout time.Duration
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.Mutex
	entryID  cron.EntryID
	interval time.Duration
	started  bool
	running  atomic.Bool
}

// Dependencies wires a Scheduler.
type Dependencies struct {
	Ingestor   Ingestor
	Settings   Settings
	RunTimeout time.Duration
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
}

// New builds a stopped scheduler.
func New(deps Dependencies) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	cronLogger := zapCronLogger{logger: logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		ingestor:   deps.Ingestor,
		settings:   deps.Settings,
		runTimeout: deps.RunTimeout,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clock,
	}
}

// Start loads the stored configuration, schedules the job if enabled and
// starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	cfg, err := s.settings.SchedulerSettings(ctx)
	if err != nil {
		return fmt.Errorf("load scheduler settings: %w", err)
	}
	if err := s.Reconfigure(ctx, cfg); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.cron.Start()
		s.started = true
	}
	return nil
}

// Stop halts the cron loop and waits for a running job, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reconfigure removes the current entry and, when enabled, schedules a new
// one at the configured interval.
func (s *Scheduler) Reconfigure(_ context.Context, cfg domain.SchedulerConfig) error {
	if cfg.Enabled {
		if err := domain.ValidateInterval(cfg.IntervalMinutes); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
		s.interval = 0
	}
	if !cfg.Enabled {
		s.logger.Info("auto-fetch disabled")
		return nil
	}

	s.interval = cfg.Interval()
	s.entryID = s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(s.tick))
	s.logger.Info("auto-fetch scheduled", zap.Int("interval_minutes", cfg.IntervalMinutes))
	return nil
}

// Interval returns the active interval, or zero when nothing is scheduled.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// NextRun returns the next scheduled tick, or nil.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	id := s.entryID
	s.mu.Unlock()
	if id == 0 {
		return nil
	}
	next := s.cron.Entry(id).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}
	s.RunOnce(ctx)
}

// RunOnce performs one tick: it re-checks the enabled flag and mail
// configuration, runs ingestion and records telemetry. A failed run is
// recorded with zero processed. Failures are logged and returned in the
// outcome, never panicked.
func (s *Scheduler) RunOnce(ctx context.Context) Outcome {
	if !s.running.CompareAndSwap(false, true) {
		return s.skip(SkipStillRunning)
	}
	defer s.running.Store(false)

	cfg, err := s.settings.SchedulerSettings(ctx)
	if err != nil {
		s.logger.Error("scheduled run failed", zap.Error(err))
		return Outcome{Err: err}
	}
	if !cfg.Enabled {
		return s.skip(SkipDisabled)
	}
	configured, err := s.settings.MailConfigured(ctx)
	if err != nil {
		s.logger.Error("scheduled run failed", zap.Error(err))
		return Outcome{Err: err}
	}
	if !configured {
		return s.skip(SkipNoMailConfig)
	}

	result, err := s.ingestor.Run(ctx)
	if err != nil {
		if de := apperrors.ToDomainError(err); de.Code == "CONFLICT" {
			return s.skip(SkipLockedElsewhere)
		}
		s.logger.Error("scheduled run failed", zap.Error(err))
		if recErr := s.settings.RecordSchedulerRun(ctx, s.now(), 0); recErr != nil {
			s.logger.Error("recording scheduler run failed", zap.Error(recErr))
		}
		return Outcome{Err: err}
	}

	if err := s.settings.RecordSchedulerRun(ctx, s.now(), result.Processed); err != nil {
		s.logger.Error("recording scheduler run failed", zap.Error(err))
	}
	s.logger.Info("scheduled run finished",
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)))
	return Outcome{Result: result}
}

func (s *Scheduler) skip(reason string) Outcome {
	s.metrics.Inc(observability.CounterSchedulerSkipped)
	s.logger.Info("scheduled run skipped", zap.String("reason", reason))
	return Outcome{Skipped: true, Reason: reason}
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw("cron: "+msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}

var _ cron.Logger = zapCronLogger{}
