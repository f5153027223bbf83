package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"NODE_ADDR", "DATABASE_URL", "REDIS_URL", "KAFKA_BROKERS", "OFFCHAIN_BACKEND",
		"DOH_ENDPOINT", "DOH_TIMEOUT", "REGISTRATION_FEE", "MAX_REQUESTS_PER_CONTEXT",
		"BLOCK_TIME", "GENESIS_BALANCES", "DATABASE_DRIVER",
		"RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW",
	} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Addr)
	assert.Equal(t, DefaultDoHEndpoint, cfg.DoH.Endpoint)
	assert.Equal(t, 2*time.Second, cfg.DoH.Timeout)
	assert.Equal(t, uint64(DefaultRegistrationFee), cfg.Verification.RegistrationFee)
	assert.Equal(t, DefaultMaxRequestsPerContext, cfg.Verification.MaxRequestsPerContext)
	assert.Equal(t, OffchainMemory, cfg.Offchain.Backend)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Runtime.GenesisBalances)
	assert.Equal(t, DriverPQ, cfg.Database.Driver)
	assert.Equal(t, DefaultRateLimitRequests, cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("REGISTRATION_FEE", "25")
	t.Setenv("BLOCK_TIME", "500ms")
	t.Setenv("GENESIS_BALANCES", "0x01=100, 0x02=5")
	t.Setenv("OFFCHAIN_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("DATABASE_DRIVER", "pgx")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, uint64(25), cfg.Verification.RegistrationFee)
	assert.Equal(t, 500*time.Millisecond, cfg.Runtime.BlockTime)
	assert.Equal(t, map[string]uint64{"0x01": 100, "0x02": 5}, cfg.Runtime.GenesisBalances)
	assert.Equal(t, OffchainRedis, cfg.Offchain.Backend)
	assert.Equal(t, DriverPGX, cfg.Database.Driver)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad fee", "REGISTRATION_FEE", "ten"},
		{"negative fee", "REGISTRATION_FEE", "-1"},
		{"zero max", "MAX_REQUESTS_PER_CONTEXT", "0"},
		{"bad duration", "DOH_TIMEOUT", "soon"},
		{"bad balances", "GENESIS_BALANCES", "0x01"},
		{"unknown backend", "OFFCHAIN_BACKEND", "etcd"},
		{"unknown driver", "DATABASE_DRIVER", "mysql"},
		{"zero rate window", "RATE_LIMIT_WINDOW", "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := FromEnv()
			require.Error(t, err)
		})
	}
}

func TestFromEnv_RedisBackendRequiresURL(t *testing.T) {
	t.Setenv("OFFCHAIN_BACKEND", "redis")
	t.Setenv("REDIS_URL", "")

	_, err := FromEnv()
	require.Error(t, err)
}
