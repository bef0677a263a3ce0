package config

import (
	"testing"
	"time"

	"github.com/ayo6706/ledger-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, domain.StrategyPessimistic, cfg.DefaultTransferStrategy)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.Equal(t, 5, cfg.OptimisticMaxAttempts)
	assert.Equal(t, int32(50), cfg.OutboxBatchSize)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.True(t, cfg.MigrateOnStart)
}

func TestLoad_PrefixedAliases(t *testing.T) {
	t.Setenv("LEDGER_JWT_SECRET", testSecret)
	t.Setenv("LEDGER_PORT", "9090")
	t.Setenv("LEDGER_DEFAULT_TRANSFER_STRATEGY", "Optimistic")
	t.Setenv("LEDGER_LOCK_TIMEOUT", "250ms")
	t.Setenv("LEDGER_MIGRATE_ON_START", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, domain.StrategyOptimistic, cfg.DefaultTransferStrategy)
	assert.Equal(t, 250*time.Millisecond, cfg.LockTimeout)
	assert.False(t, cfg.MigrateOnStart)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":   {"JWT_SECRET": ""},
		"short secret":     {"JWT_SECRET": "short"},
		"bad duration":     {"JWT_SECRET": testSecret, "LOCK_TIMEOUT": "soon"},
		"zero lock":        {"JWT_SECRET": testSecret, "LOCK_TIMEOUT": "0s"},
		"negative ttl":     {"JWT_SECRET": testSecret, "IDEMPOTENCY_TTL": "-1h"},
		"unknown strategy": {"JWT_SECRET": testSecret, "DEFAULT_TRANSFER_STRATEGY": "serializable"},
		"zero attempts":    {"JWT_SECRET": testSecret, "OPTIMISTIC_MAX_ATTEMPTS": "0"},
		"blank issuer":     {"JWT_SECRET": testSecret, "JWT_ISSUER": " "},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
