package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"anagolay/internal/balances"
	jwttoken "anagolay/internal/jwt_token"
	"anagolay/internal/platform/config"
	"anagolay/internal/platform/httpserver"
	"anagolay/internal/platform/kafka"
	"anagolay/internal/platform/logger"
	"anagolay/internal/platform/metrics"
	"anagolay/internal/platform/postgres"
	"anagolay/internal/platform/redis"
	"anagolay/internal/ratelimit"
	"anagolay/internal/runtime"
	"anagolay/internal/statements"
	statementshandler "anagolay/internal/statements/handler"
	verificationhandler "anagolay/internal/verification/handler"
	verificationmetrics "anagolay/internal/verification/metrics"
	"anagolay/internal/verification/models"
	"anagolay/internal/verification/offchain"
	"anagolay/internal/verification/service"
	"anagolay/internal/verification/store"
	"anagolay/internal/verification/strategy"
	"anagolay/internal/verification/strategy/dns"
	"anagolay/internal/workerauth"
	"anagolay/pkg/domain"
	"anagolay/pkg/platform/events/publisher"
	eventstore "anagolay/pkg/platform/events/store/memory"
)

const (
	jwtIssuer       = "anagolay-node"
	jwtAudience     = "anagolay"
	shutdownTimeout = 10 * time.Second
	eventBuffer     = 1024
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("node stopped with error", "error", err)
		os.Exit(1)
	}
}

// issueToken prints a bearer token for an account: node token <account> [ttl].
func issueToken(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: node token <account> [ttl]")
	}
	account, err := domain.ParseAccountID(args[0])
	if err != nil {
		return err
	}
	ttl := time.Hour
	if len(args) > 1 {
		if ttl, err = time.ParseDuration(args[1]); err != nil {
			return fmt.Errorf("parse ttl: %w", err)
		}
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	token, err := jwttoken.NewJWTService(cfg.JWTSigningKey, jwtIssuer, jwtAudience).GenerateAccessToken(account, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	nodeMetrics := metrics.New()
	verificationMetrics := verificationmetrics.New()

	// Events
	var pubOpts []publisher.Option
	pubOpts = append(pubOpts, publisher.WithLogger(log), publisher.WithAsyncBuffer(eventBuffer))
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := kafka.NewSink(ctx, cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, kafka.WithLogger(log))
		if err != nil {
			return err
		}
		defer sink.Close(context.Background())
		pubOpts = append(pubOpts, publisher.WithSink(sink))
	}
	events := publisher.NewPublisher(eventstore.NewInMemoryStore(), pubOpts...)
	defer events.Close()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	// Ledger
	genesis, err := parseGenesis(cfg.Runtime.GenesisBalances)
	if err != nil {
		return err
	}
	ledger, err := openLedger(ctx, db, genesis, log)
	if err != nil {
		return err
	}

	// Off-chain index
	index, closeIndex, err := openIndex(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeIndex()

	// Worker identity
	workerKey, err := workerauth.KeyFromSeed(cfg.Runtime.WorkerKeySeed)
	if err != nil {
		return err
	}
	signer := workerauth.NewSigner(workerKey)
	authority := workerauth.NewAuthority(signer.PublicKey())
	log.Info("worker key loaded", "worker_id", workerauth.WorkerID(signer.PublicKey()))

	strategies := strategy.NewRegistry(dns.New(
		dns.WithEndpoint(cfg.DoH.Endpoint),
		dns.WithTimeout(cfg.DoH.Timeout),
		dns.WithLogger(log),
	))

	statementsSvc := statements.NewService(
		statements.WithLogger(log),
		statements.WithPublisher(events),
	)

	verificationStore, svcOpts := openStore(db)
	svcOpts = append(svcOpts,
		service.WithLogger(log),
		service.WithMetrics(verificationMetrics),
		service.WithPublisher(events),
	)
	verificationSvc, err := service.NewService(
		verificationStore,
		strategies,
		ledger,
		statementsSvc,
		offchain.NewIndexer(index),
		authority,
		service.Config{
			RegistrationFee:       domain.Balance(cfg.Verification.RegistrationFee),
			MaxRequestsPerContext: cfg.Verification.MaxRequestsPerContext,
		},
		svcOpts...,
	)
	if err != nil {
		return err
	}
	statementsSvc.SetVerifications(verificationSvc)
	tracked, err := verificationSvc.RestoreTracking(ctx)
	if err != nil {
		return err
	}
	if tracked > 0 {
		log.Info("verification contexts restored", "contexts", tracked)
	}

	// The worker submits back into the runtime it is driven by.
	var rt *runtime.Runtime
	worker := offchain.NewWorker(index, strategies, signer,
		submitterFunc(func(ctx context.Context, s models.StatusSubmission) error {
			return rt.SubmitUnsigned(ctx, s)
		}),
		offchain.WithLogger(log),
		offchain.WithMetrics(verificationMetrics),
	)
	rtOpts := []runtime.Option{
		runtime.WithLogger(log),
		runtime.WithMetrics(nodeMetrics),
		runtime.WithPublisher(events),
		runtime.WithStatements(statementsSvc),
		runtime.WithWorker(worker),
		runtime.WithPoolSize(cfg.Runtime.UnsignedPool),
	}
	if chain := chainState(db, index); chain != nil {
		rtOpts = append(rtOpts, runtime.WithChainState(chain))
	}
	rt = runtime.New(verificationSvc, authority, rtOpts...)
	if err := rt.Resume(ctx); err != nil {
		return err
	}

	jwtValidator := jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.JWTSigningKey, jwtIssuer, jwtAudience))
	router := chi.NewRouter()
	var limiter *ratelimit.Window
	if cfg.RateLimit.Requests > 0 {
		limiter = ratelimit.NewWindow(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		router.Use(ratelimit.Middleware(limiter, log))
	}
	registerNodeRoutes(router, rt, ledger, events)
	verificationhandler.New(rt, log, jwtValidator).Register(router)
	statementshandler.New(rt, statementsSvc, log, jwtValidator).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.Run(gctx, cfg.Runtime.BlockTime)
	})
	g.Go(func() error {
		return rt.RunWorker(gctx)
	})
	if limiter != nil {
		g.Go(func() error {
			sweepLimiter(gctx, limiter, cfg.RateLimit.Window)
			return nil
		})
	}
	g.Go(func() error {
		log.Info("starting node", "addr", cfg.Addr, "block_time", cfg.Runtime.BlockTime.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down node")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func sweepLimiter(ctx context.Context, limiter *ratelimit.Window, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}

type submitterFunc func(ctx context.Context, s models.StatusSubmission) error

func (f submitterFunc) SubmitUnsigned(ctx context.Context, s models.StatusSubmission) error {
	return f(ctx, s)
}

func parseGenesis(raw map[string]uint64) (map[domain.AccountID]domain.Balance, error) {
	out := make(map[domain.AccountID]domain.Balance, len(raw))
	for account, amount := range raw {
		who, err := domain.ParseAccountID(account)
		if err != nil {
			return nil, fmt.Errorf("genesis account %q: %w", account, err)
		}
		out[who] = domain.Balance(amount)
	}
	return out, nil
}

// openDatabase returns nil when no database is configured.
func openDatabase(ctx context.Context, cfg config.Server) (*sql.DB, error) {
	if cfg.Database.URL == "" {
		return nil, nil
	}
	return postgres.Open(ctx, cfg.Database)
}

type nodeLedger interface {
	service.Currency
	balanceReader
}

// openLedger keeps balances in the database whenever requests are kept there,
// so reserved fees and stored requests cannot drift apart across restarts.
func openLedger(ctx context.Context, db *sql.DB, genesis map[domain.AccountID]domain.Balance, log *slog.Logger) (nodeLedger, error) {
	if db == nil {
		return balances.NewInMemoryLedger(genesis)
	}
	return balances.NewPostgresLedger(ctx, db, genesis, log)
}

func openStore(db *sql.DB) (service.Store, []service.Option) {
	if db == nil {
		mem := store.NewInMemoryStore()
		return mem, []service.Option{service.WithTx(service.NewInMemoryTx(mem))}
	}
	return store.NewPostgres(db), []service.Option{service.WithTx(newVerificationPostgresTx(db))}
}

// chainState picks where the best block is kept: the database when there is
// one, else a durable off-chain index.
func chainState(db *sql.DB, index offchain.IndexStore) runtime.ChainState {
	if db != nil {
		return postgres.NewChainState(db)
	}
	if cs, ok := index.(runtime.ChainState); ok {
		return cs
	}
	return nil
}

func openIndex(ctx context.Context, cfg config.Server) (offchain.IndexStore, func(), error) {
	switch cfg.Offchain.Backend {
	case config.OffchainRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return offchain.NewRedisIndex(client.Client), func() { _ = client.Close() }, nil
	case config.OffchainBolt:
		idx, err := offchain.OpenBoltIndex(cfg.Offchain.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return idx, func() { _ = idx.Close() }, nil
	default:
		return offchain.NewMemoryIndex(), func() {}, nil
	}
}
