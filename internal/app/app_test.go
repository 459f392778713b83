package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
)

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	return &config.Config{
		App:   config.AppConfig{Name: "support-desk-test"},
		Store: config.StoreConfig{Driver: driver},
		SQLite: config.SQLiteConfig{
			Path: filepath.Join(t.TempDir(), "desk", "desk.db"),
		},
		Auth: config.AuthConfig{
			JWTSecret:             "test-secret",
			AccessTokenTTLMinutes: 30,
			BcryptCost:            4,
			BootstrapAdminEmail:   "root@example.com",
			BootstrapAdminPass:    "root-password",
		},
		Scheduler: config.SchedulerConfig{DefaultIntervalMinutes: 15},
	}
}

func TestBuildOverSQLiteBootstrapsAdmin(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.StoreDriverSQLite)

	desk, err := Build(ctx, cfg, zap.NewNop(), Options{ForceMigrations: true})
	require.NoError(t, err)
	defer desk.Close(ctx)

	require.NoError(t, desk.Store.Ping(ctx))
	require.NoError(t, desk.BootstrapAdmin(ctx))
	require.NoError(t, desk.BootstrapAdmin(ctx))

	count, err := desk.Store.Operators.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	op, _, _, err := desk.Auth.Login(ctx, "root@example.com", "root-password")
	require.NoError(t, err)
	require.Equal(t, domain.OperatorRoleAdmin, op.Role)

	sched, err := desk.Settings.SchedulerSettings(ctx)
	require.NoError(t, err)
	require.False(t, sched.Enabled)
	require.Equal(t, 15, sched.IntervalMinutes)
}

func TestOpenStoreRejectsMissingPostgresDSN(t *testing.T) {
	cfg := testConfig(t, config.StoreDriverPostgres)
	_, err := OpenStore(context.Background(), cfg, zap.NewNop(), false)
	require.ErrorContains(t, err, "POSTGRES_DSN")
}

func TestBuildRejectsBadAgeIdentity(t *testing.T) {
	cfg := testConfig(t, config.StoreDriverMemory)
	cfg.Secrets.AgeIdentity = "not-an-identity"
	_, err := Build(context.Background(), cfg, zap.NewNop(), Options{})
	require.ErrorContains(t, err, "SECRETS_AGE_IDENTITY")
}
