package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures node level configuration.
type Server struct {
	Addr          string
	LogLevel      string
	JWTSigningKey string

	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Offchain     OffchainConfig
	DoH          DoHConfig
	Verification VerificationConfig
	Runtime      RuntimeConfig
	RateLimit    RateLimitConfig
}

// RateLimitConfig throttles HTTP callers. Zero disables the limiter.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DatabaseConfig selects the PostgreSQL verification store. An empty URL keeps
// the in-memory store.
type DatabaseConfig struct {
	URL             string
	Driver          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the Redis client used by the off-chain index.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the chain event sink. No brokers disables it.
type KafkaConfig struct {
	Brokers     []string
	EventsTopic string
}

// SQL drivers.
const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

// Off-chain storage backends.
const (
	OffchainMemory = "memory"
	OffchainRedis  = "redis"
	OffchainBolt   = "bolt"
)

// OffchainConfig selects where off-chain indexing data lives.
type OffchainConfig struct {
	Backend  string
	BoltPath string
}

// DoHConfig configures the DNS-over-HTTPS resolver used by the DNS strategy.
type DoHConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// VerificationConfig holds the verification module constants.
type VerificationConfig struct {
	RegistrationFee       uint64
	MaxRequestsPerContext int
}

// RuntimeConfig configures block production and the local worker identity.
type RuntimeConfig struct {
	BlockTime       time.Duration
	WorkerKeySeed   string
	GenesisBalances map[string]uint64
	UnsignedPool    int
}

// Defaults.
const (
	DefaultAddr                  = ":8080"
	DefaultDoHEndpoint           = "https://dns.google/resolve"
	DefaultDoHTimeout            = 2 * time.Second
	DefaultRegistrationFee       = 10
	DefaultMaxRequestsPerContext = 16
	DefaultBlockTime             = 6 * time.Second
	DefaultEventsTopic           = "verification-events"
	DefaultUnsignedPool          = 256
	DefaultRateLimitRequests     = 120
	DefaultRateLimitWindow       = time.Minute
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:          getEnv("NODE_ADDR", DefaultAddr),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		JWTSigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Driver:          getEnv("DATABASE_DRIVER", DriverPQ),
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(os.Getenv("KAFKA_BROKERS")),
			EventsTopic: getEnv("KAFKA_EVENTS_TOPIC", DefaultEventsTopic),
		},
		Offchain: OffchainConfig{
			Backend:  getEnv("OFFCHAIN_BACKEND", OffchainMemory),
			BoltPath: getEnv("OFFCHAIN_BOLT_PATH", "offchain.db"),
		},
		DoH: DoHConfig{
			Endpoint: getEnv("DOH_ENDPOINT", DefaultDoHEndpoint),
		},
		Runtime: RuntimeConfig{
			WorkerKeySeed: os.Getenv("WORKER_KEY_SEED"),
			UnsignedPool:  DefaultUnsignedPool,
		},
	}

	var err error
	if cfg.Redis.PoolSize, err = getInt("REDIS_POOL_SIZE", cfg.Redis.PoolSize); err != nil {
		return Server{}, err
	}
	if cfg.DoH.Timeout, err = getDuration("DOH_TIMEOUT", DefaultDoHTimeout); err != nil {
		return Server{}, err
	}
	if cfg.Runtime.BlockTime, err = getDuration("BLOCK_TIME", DefaultBlockTime); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit.Requests, err = getInt("RATE_LIMIT_REQUESTS", DefaultRateLimitRequests); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit.Window, err = getDuration("RATE_LIMIT_WINDOW", DefaultRateLimitWindow); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit.Window <= 0 {
		return Server{}, fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	fee, err := getInt("REGISTRATION_FEE", DefaultRegistrationFee)
	if err != nil {
		return Server{}, err
	}
	if fee < 0 {
		return Server{}, fmt.Errorf("REGISTRATION_FEE must not be negative")
	}
	cfg.Verification.RegistrationFee = uint64(fee)
	if cfg.Verification.MaxRequestsPerContext, err = getInt("MAX_REQUESTS_PER_CONTEXT", DefaultMaxRequestsPerContext); err != nil {
		return Server{}, err
	}
	if cfg.Verification.MaxRequestsPerContext <= 0 {
		return Server{}, fmt.Errorf("MAX_REQUESTS_PER_CONTEXT must be positive")
	}
	if cfg.Runtime.GenesisBalances, err = parseBalances(os.Getenv("GENESIS_BALANCES")); err != nil {
		return Server{}, err
	}

	if cfg.Database.Driver != DriverPQ && cfg.Database.Driver != DriverPGX {
		return Server{}, fmt.Errorf("unknown DATABASE_DRIVER %q", cfg.Database.Driver)
	}

	switch cfg.Offchain.Backend {
	case OffchainMemory, OffchainBolt:
	case OffchainRedis:
		if cfg.Redis.URL == "" {
			return Server{}, fmt.Errorf("OFFCHAIN_BACKEND=redis requires REDIS_URL")
		}
	default:
		return Server{}, fmt.Errorf("unknown OFFCHAIN_BACKEND %q", cfg.Offchain.Backend)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseBalances reads "0xaccount=amount,0xaccount=amount".
func parseBalances(v string) (map[string]uint64, error) {
	out := make(map[string]uint64)
	for _, entry := range splitList(v) {
		account, amount, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("parse GENESIS_BALANCES: entry %q is not account=amount", entry)
		}
		n, err := strconv.ParseUint(strings.TrimSpace(amount), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse GENESIS_BALANCES: %w", err)
		}
		out[strings.TrimSpace(account)] = n
	}
	return out, nil
}
