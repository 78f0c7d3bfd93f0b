package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"homeledger/internal/config"
	"homeledger/internal/handler"
	"homeledger/internal/infrastructure/cache"
	"homeledger/internal/infrastructure/database"
	"homeledger/internal/infrastructure/lock"
	"homeledger/internal/infrastructure/mq"
	"homeledger/internal/job"
	"homeledger/internal/logger"
	"homeledger/internal/repository"
	"homeledger/internal/service"
	"homeledger/pkg/idgen"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	issueFor := flag.String("issue-token", "", "print a bearer token for this household id and exit")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "lifetime of a token printed by -issue-token")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *issueFor != "" {
		token, err := handler.IssueToken([]byte(cfg.Auth.JWTSecret), *issueFor, *tokenTTL)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	log := logger.New(cfg.Log)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *logrus.Logger) error {
	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return err
	}

	lockOpts := lock.Options{
		TTL:           cfg.Business.LockTTL,
		RetryInterval: cfg.Business.LockRetryInterval,
		MaxRetries:    cfg.Business.LockMaxRetries,
	}
	var locker lock.Locker
	if cfg.Redis.Enabled() {
		rdb, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, lockOpts, log)
		log.WithField("addr", rdb.Options().Addr).Info("using redis entity locks")
	} else {
		locker = lock.NewLocalLocker(lockOpts)
		log.Warn("redis not configured, entity locks are process local")
	}

	publisher, err := mq.New(cfg, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	dispatcher := job.NewAggregationDispatcher(db, cfg.MQ.RefreshTopic, cfg.Business.RefreshBuffer, log)

	interest, err := service.InterestPolicyByName(cfg.Billing.InterestPolicy)
	if err != nil {
		return err
	}

	// loan and card postings go through the ledger, which owns refresh events
	uow := repository.NewUnitOfWorkFactory(db, cfg.Business.TxTimeout)
	ledger := service.NewLedgerService(db, uow, locker, log, service.WithNotifier(dispatcher))
	loans := service.NewLoanService(db, uow, ledger, locker, log)
	cards := service.NewCreditCardService(db, uow, ledger, locker, log, service.WithInterestPolicy(interest))

	router := handler.SetupRouter(handler.NewHandler(ledger, loans, cards, log), cfg, log)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return dispatcher.Start(gctx) })

	sender := job.NewOutboxSender(db, publisher, cfg.Business.OutboxInterval,
		cfg.Business.OutboxBatchSize, cfg.Business.MaxRetryCount, log)
	g.Go(func() error { return sender.Start(gctx) })

	if cfg.Billing.Enabled {
		billing := job.NewBillingJob(cards, cfg.Billing.Schedule, log)
		g.Go(func() error { return billing.Start(gctx) })
	}

	g.Go(func() error {
		log.WithField("port", cfg.Server.Port).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
