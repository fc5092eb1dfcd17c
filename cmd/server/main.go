package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/rentora/payments/internal/api"
	"github.com/rentora/payments/internal/authorization"
	"github.com/rentora/payments/internal/commission"
	"github.com/rentora/payments/internal/config"
	"github.com/rentora/payments/internal/domain"
	"github.com/rentora/payments/internal/notify"
	"github.com/rentora/payments/internal/provider"
	"github.com/rentora/payments/internal/repository"
	"github.com/rentora/payments/internal/scheduler"
	"github.com/rentora/payments/internal/settlement"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	seed := flag.Bool("seed", false, "seed demo jobs and payees when the database is empty")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("initializing database", "path", cfg.Database.Path)
	db, err := repository.InitDB(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to init db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Repositories.
	payments := repository.NewPaymentRepo(db)
	jobs := repository.NewJobRepo(db)
	payees := repository.NewPayeeRepo(db)

	// Provider adapters.
	adapters := provider.Registry{
		domain.MethodCardGateway: provider.NewCardGateway(
			cfg.Providers.Card.BaseURL, cfg.Providers.Card.APIKey,
			provider.WithTimeout(cfg.Providers.Card.Timeout.Std())),
		domain.MethodWalletGateway: provider.NewWalletGateway(
			cfg.Providers.Wallet.BaseURL, cfg.Providers.Wallet.APIKey,
			provider.WithTimeout(cfg.Providers.Wallet.Timeout.Std())),
		domain.MethodBankRedirect: provider.NewBankRedirectGateway(
			cfg.Providers.BankRedirect.BaseURL, cfg.Providers.BankRedirect.APIKey,
			provider.WithTimeout(cfg.Providers.BankRedirect.Timeout.Std())),
		domain.MethodVoucherGateway: provider.NewVoucherGateway(
			cfg.Providers.Voucher.BaseURL, cfg.Providers.Voucher.APIKey,
			provider.WithTimeout(cfg.Providers.Voucher.Timeout.Std())),
	}

	// Commission engine.
	flatCfg, err := cfg.FlatConfig()
	if err != nil {
		logger.Error("invalid commission config", "error", err)
		os.Exit(1)
	}
	engine, err := commission.NewEngine(flatCfg, cfg.TieredConfig())
	if err != nil {
		logger.Error("invalid commission config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Notification sink.
	policy := cfg.RetryPolicy()
	var sink notify.Notifier
	switch cfg.Notifier.Kind {
	case "sqs":
		sink, err = notify.NewSQSNotifier(ctx, cfg.Notifier.QueueURL)
		if err != nil {
			logger.Error("failed to init sqs notifier", "error", err)
			os.Exit(1)
		}
	default:
		sink = notify.NewLogNotifier(logger)
	}
	notifier := notify.NewRetryingNotifier(sink, policy, logger)

	// Coordinators.
	authSvc := authorization.NewService(payments, jobs, adapters, cfg.CallTimeout.Std(), logger)
	settleSvc := settlement.NewService(payments, jobs, payees, adapters, engine, notifier,
		cfg.CallTimeout.Std(), logger)

	if *seed {
		if err := seedDemoData(jobs, payees); err != nil {
			logger.Warn("seeding demo data failed", "error", err)
		}
	}

	// Settlement retry scheduler.
	sched := scheduler.New(payments, settleSvc, policy, cfg.Scheduler.Interval.Std(), logger)
	go sched.Run(ctx)

	router := api.NewRouter(authSvc, settleSvc, engine, payments, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("payment engine listening", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// seedDemoData inserts a small set of jobs and payees for local development.
// Inserts are best-effort: reruns against an already-seeded database fail on
// the primary keys and are reported, not fatal.
func seedDemoData(jobs *repository.JobRepo, payees *repository.PayeeRepo) error {
	now := time.Now().UTC()
	demoPayees := []domain.Payee{
		{ID: "agent-demo", Name: "Demo Field Agent", PayoutVerified: true},
		{ID: "provider-demo", Name: "Demo Service Provider", PayoutVerified: false},
		{ID: "contractor-demo", Name: "Demo Contractor", PayoutVerified: true},
	}
	for i := range demoPayees {
		if err := payees.Insert(&demoPayees[i]); err != nil {
			return err
		}
	}

	demoJobs := []domain.Job{
		{ID: uuid.NewString(), Type: domain.JobVisit, Status: domain.JobStatusCompleted,
			OwnerID: "owner-demo", PayeeID: "agent-demo", CreatedAt: now, CompletedAt: &now},
		{ID: uuid.NewString(), Type: domain.JobServiceJob, Status: domain.JobStatusInProgress,
			OwnerID: "requester-demo", PayeeID: "provider-demo", CreatedAt: now},
		{ID: uuid.NewString(), Type: domain.JobMaintenance, Status: domain.JobStatusCompleted,
			OwnerID: "owner-demo", BrokerID: "broker-demo", PayeeID: "contractor-demo",
			CreatedAt: now, CompletedAt: &now},
	}
	for i := range demoJobs {
		if err := jobs.Insert(&demoJobs[i]); err != nil {
			return err
		}
	}
	return nil
}
