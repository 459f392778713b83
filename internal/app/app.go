// Package app assembles the support desk from configuration. Both the HTTP
// server and the operator CLI build on it.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/classifier"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/mailbox"
	"github.com/spec-kit/support-desk/internal/mailer"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/persistence"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/scheduler"
	"github.com/spec-kit/support-desk/internal/secrets"
	"github.com/spec-kit/support-desk/internal/service"
	"github.com/spec-kit/support-desk/internal/worker"
)

const eventQueueSize = 512

// App holds the wired services and the resources they own.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	Store      *repository.Store
	Redis      *persistence.Redis
	Dispatcher events.Dispatcher

	Tickets   *service.TicketService
	Ingestion *service.IngestionService
	Dispatch  *service.DispatchService
	Settings  *service.SettingsService
	Auth      *service.AuthService
	Scheduler *scheduler.Scheduler

	forwarder *worker.EventForwarder
	kafka     *events.KafkaPublisher
}

// Options tunes Build for the calling binary.
type Options struct {
	// ForceMigrations applies migrations even when the driver's
	// RUN_MIGRATIONS flag is off.
	ForceMigrations bool
	// Store replaces the configured backend, mainly for tests.
	Store *repository.Store
	// Backend replaces the OpenAI classification backend.
	Backend classifier.Backend
	// Dialer and Sender replace the real mailbox and relay clients.
	Dialer mailbox.Dialer
	Sender mailer.Sender
}

// Build opens the store and wires every service. Call Close when done.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{
		Config:     cfg,
		Logger:     logger,
		Metrics:    observability.NewMetrics(),
		Dispatcher: events.NewInMemoryDispatcher(),
	}

	store := opts.Store
	if store == nil {
		var err error
		if store, err = OpenStore(ctx, cfg, logger, opts.ForceMigrations); err != nil {
			return nil, err
		}
	}
	a.Store = store

	if err := a.wire(cfg, logger, opts); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) wire(cfg *config.Config, logger *zap.Logger, opts Options) error {
	sealer, err := newSealer(cfg.Secrets, logger)
	if err != nil {
		return err
	}

	adapter, err := newClassifier(cfg.Classifier, opts.Backend, logger)
	if err != nil {
		return err
	}

	a.Redis = persistence.NewRedis(cfg.Redis, logger)

	a.Settings = service.NewSettingsService(service.SettingsDependencies{
		ConfigRepo: a.Store.Config,
		Sealer:     sealer,
		SchedulerDefaults: domain.SchedulerConfig{
			Enabled:         cfg.Scheduler.DefaultEnabled,
			IntervalMinutes: cfg.Scheduler.DefaultIntervalMinutes,
		},
		Logger: logger.Named("settings"),
	})

	a.Tickets = service.NewTicketService(service.TicketDependencies{
		TicketRepo: a.Store.Tickets,
		Dispatcher: a.Dispatcher,
		Logger:     logger.Named("tickets"),
	})

	dialer := opts.Dialer
	if dialer == nil {
		dialer = mailbox.IMAPDialer{Timeout: cfg.Mail.IMAPTimeout()}
	}
	ingestDeps := service.IngestionDependencies{
		TicketRepo: a.Store.Tickets,
		MailConfig: a.Settings,
		Dialer:     dialer,
		Classifier: adapter,
		LockTTL:    cfg.Redis.IngestLockTTL(),
		Mailbox:    cfg.Mail.Mailbox,
		Dispatcher: a.Dispatcher,
		Metrics:    a.Metrics,
		Logger:     logger.Named("ingestion"),
	}
	if a.Redis != nil {
		ingestDeps.Locker = a.Redis
	}
	a.Ingestion = service.NewIngestionService(ingestDeps)

	sender := opts.Sender
	if sender == nil {
		sender = mailer.SMTPSender{Timeout: cfg.Mail.SMTPTimeout()}
	}
	a.Dispatch = service.NewDispatchService(service.DispatchDependencies{
		TicketRepo:    a.Store.Tickets,
		MailConfig:    a.Settings,
		Sender:        sender,
		RatePerSecond: cfg.Mail.SendRatePerSecond,
		Dispatcher:    a.Dispatcher,
		Metrics:       a.Metrics,
		Logger:        logger.Named("dispatch"),
	})

	a.Auth = service.NewAuthService(cfg.Auth, a.Store.Operators, logger.Named("auth"))

	a.Scheduler = scheduler.New(scheduler.Dependencies{
		Ingestor:   a.Ingestion,
		Settings:   a.Settings,
		RunTimeout: cfg.Scheduler.RunTimeout(),
		Metrics:    a.Metrics,
		Logger:     logger.Named("scheduler"),
	})
	a.Settings.SetReconfigurer(a.Scheduler)

	a.wireEvents(cfg.Kafka, logger)
	return nil
}

// wireEvents logs every lifecycle event and, when brokers are configured,
// forwards it to Kafka off the request path.
func (a *App) wireEvents(cfg config.KafkaConfig, logger *zap.Logger) {
	var sink service.EventSink
	if a.kafka = events.NewKafkaPublisher(cfg.Brokers, cfg.Topic); a.kafka != nil {
		a.forwarder = worker.NewEventForwarder(a.kafka, eventQueueSize, a.Metrics, logger.Named("events"))
		a.forwarder.Start()
		sink = a.forwarder
		logger.Info("relaying ticket events to kafka",
			zap.Strings("brokers", cfg.Brokers),
			zap.String("topic", cfg.Topic))
	}
	service.NewEventRelay(a.Dispatcher, sink, logger.Named("events")).RegisterHandlers()
}

// BootstrapAdmin creates the configured admin when no operator exists yet.
func (a *App) BootstrapAdmin(ctx context.Context) error {
	email, password := a.Config.Auth.BootstrapAdminEmail, a.Config.Auth.BootstrapAdminPass
	if email == "" || password == "" {
		return nil
	}
	created, err := a.Auth.EnsureBootstrapAdmin(ctx, email, password)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		a.Logger.Info("bootstrap admin created", zap.String("email", email))
	}
	return nil
}

// Close flushes queued events and releases store and Redis connections.
func (a *App) Close(ctx context.Context) {
	if a.forwarder != nil {
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := a.forwarder.Stop(stopCtx); err != nil {
			a.Logger.Warn("event forwarder did not drain", zap.Error(err))
		}
		cancel()
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.Logger.Warn("kafka writer close failed", zap.Error(err))
		}
	}
	a.Redis.Close()
	a.Store.Close()
}

// OpenStore connects the configured backend and applies migrations when
// enabled or forced.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, forceMigrations bool) (*repository.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Postgres.RunMigrations || forceMigrations {
			if err := persistence.RunMigrations(pg.PoolHandle(), logger); err != nil {
				pg.Close()
				return nil, fmt.Errorf("postgres migrations: %w", err)
			}
		}
		return repository.NewPostgresStore(pg.PoolHandle()), nil

	case config.StoreDriverSQLite:
		db, err := persistence.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		if cfg.SQLite.RunMigrations || forceMigrations {
			if err := persistence.RunSQLiteMigrations(db, logger); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("sqlite migrations: %w", err)
			}
		}
		logger.Info("using sqlite store", zap.String("path", cfg.SQLite.Path))
		return repository.NewSQLiteStore(db), nil

	case config.StoreDriverMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
}

func newSealer(cfg config.SecretsConfig, logger *zap.Logger) (secrets.Sealer, error) {
	if cfg.AgeIdentity == "" {
		logger.Warn("SECRETS_AGE_IDENTITY not set; mail credentials are stored unsealed")
		return secrets.PlainSealer{}, nil
	}
	sealer, err := secrets.NewAgeSealer(cfg.AgeIdentity)
	if err != nil {
		return nil, fmt.Errorf("parse SECRETS_AGE_IDENTITY: %w", err)
	}
	return sealer, nil
}

func newClassifier(cfg config.ClassifierConfig, backend classifier.Backend, logger *zap.Logger) (*classifier.Adapter, error) {
	profile, err := classifier.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, err
	}
	if backend == nil && cfg.OpenAIAPIKey != "" {
		backend = classifier.NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.BaseURL, cfg.Model, profile.MaxCompletionTokens)
	}
	if backend == nil {
		logger.Warn("OPENAI_API_KEY not set; tickets will receive degraded analyses")
	}
	return classifier.New(classifier.Dependencies{
		Backend: backend,
		Profile: profile,
		Timeout: cfg.Timeout(),
		Logger:  logger.Named("classifier"),
	})
}
