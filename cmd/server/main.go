package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"bioanchor/internal/audit"
	"bioanchor/internal/biometric/extractor"
	"bioanchor/internal/biometric/matcher"
	biometricmetrics "bioanchor/internal/biometric/metrics"
	biometricservice "bioanchor/internal/biometric/service"
	biometricstore "bioanchor/internal/biometric/store"
	"bioanchor/internal/domain"
	fraudmetrics "bioanchor/internal/fraud/metrics"
	fraudservice "bioanchor/internal/fraud/service"
	fraudstore "bioanchor/internal/fraud/store"
	identitymetrics "bioanchor/internal/identity/metrics"
	identityservice "bioanchor/internal/identity/service"
	identitystore "bioanchor/internal/identity/store"
	"bioanchor/internal/ledger"
	"bioanchor/internal/ledger/ethereum"
	"bioanchor/internal/platform/config"
	"bioanchor/internal/platform/httpserver"
	"bioanchor/internal/platform/logger"
	"bioanchor/internal/platform/postgres"
	"bioanchor/internal/platform/redisclient"
	httptransport "bioanchor/internal/transport/http"
	"bioanchor/pkg/jwttoken"
)

// main wires dependencies and owns the server lifecycle. Business logic lives
// in the internal service packages.
func main() {
	configPath := flag.String("config", "", "optional YAML config file; environment overrides it")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(cfg.Env)
	log.Info("configuration loaded", "summary", cfg.LogSummary())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Storage: Postgres when configured, in-memory otherwise. The biometric
	// store additionally prefers Redis so multiple instances share bindings.
	var db *sql.DB
	if cfg.PostgresURL != "" {
		db, err = postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.Error("schema setup failed", "error", err)
			os.Exit(1)
		}
	}

	var records identityservice.RecordStore = identitystore.NewInMemory()
	var reports fraudstore.ReportStore = fraudstore.NewInMemory()
	if db != nil {
		records = identitystore.NewPostgres(db)
		reports = fraudstore.NewPostgres(db)
	}

	memBio := biometricstore.NewInMemory()
	var templates biometricstore.TemplateStore = memBio
	var bindings biometricstore.BindingStore = memBio
	switch {
	case cfg.RedisURL != "":
		rdb, err := redisclient.New(ctx, cfg.RedisURL)
		if err != nil {
			log.Error("redis unavailable", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		redisStore := biometricstore.NewRedis(rdb.Client)
		templates, bindings = redisStore, redisStore
	case db != nil:
		pgStore := biometricstore.NewPostgres(db)
		templates, bindings = pgStore, pgStore
	}

	// Audit trail: Kafka when brokers are configured, in-memory otherwise.
	var sink audit.Sink = audit.NewMemory()
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := audit.NewKafka(cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			log.Error("kafka unavailable", "error", err)
			os.Exit(1)
		}
		defer kafka.Close()
		if err := kafka.EnsureTopic(ctx, 3); err != nil {
			log.Error("audit topic setup failed", "error", err)
			os.Exit(1)
		}
		sink = kafka
	}
	auditor := audit.NewPublisher(sink)

	// Anchor ledger: the registry contract when an RPC endpoint is
	// configured, in-memory otherwise so local development needs no chain.
	var anchors ledger.AnchorLedger = ledger.NewMemory()
	if cfg.LedgerRPCURL != "" {
		client, err := ethereum.Dial(ctx, ethereum.Config{
			RPCURL:          cfg.LedgerRPCURL,
			ContractAddress: cfg.LedgerContractAddress,
			PrivateKeyHex:   cfg.LedgerPrivateKey,
			ChainID:         cfg.LedgerChainID,
			ConfirmTimeout:  cfg.AnchorConfirmTimeout,
		})
		if err != nil {
			log.Error("anchor ledger unavailable", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		anchors = client
	} else {
		log.Warn("no ledger RPC configured, anchoring to in-memory ledger")
	}

	match := matcher.New(extractor.NewReference(), templates, matcher.Config{
		FaceThreshold:        cfg.FaceThreshold,
		FingerprintThreshold: cfg.FingerprintThreshold,
	})

	identity := identityservice.New(records, anchors,
		identityservice.WithLogger(log),
		identityservice.WithAuditPublisher(auditor),
		identityservice.WithMetrics(identitymetrics.New()),
	)
	biometric := biometricservice.New(match, bindings, anchors,
		biometricservice.WithLogger(log),
		biometricservice.WithAuditPublisher(auditor),
		biometricservice.WithMetrics(biometricmetrics.New()),
	)
	fraud := fraudservice.New(reports, anchors,
		fraudservice.Config{AnchorThresholds: map[domain.FraudType]float64{
			domain.FraudTypeIdentity: cfg.FraudAnchorThreshold,
			domain.FraudTypeDeepfake: cfg.FraudAnchorThreshold,
		}},
		fraudservice.WithLogger(log),
		fraudservice.WithAuditPublisher(auditor),
		fraudservice.WithMetrics(fraudmetrics.New()),
	)

	router := httptransport.NewRouter(httptransport.Deps{
		Identity:  identity,
		Biometric: biometric,
		Fraud:     fraud,
		Tokens:    jwttoken.New(cfg.JWTSigningKey, cfg.JWTIssuer),
		Logger:    log,
	})
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting bioanchor", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
