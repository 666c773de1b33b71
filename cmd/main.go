package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/lvdashuaibi/ballotbot/config"
	"github.com/lvdashuaibi/ballotbot/internal/api/graph"
	"github.com/lvdashuaibi/ballotbot/internal/api/webhook"
	"github.com/lvdashuaibi/ballotbot/internal/ballot"
	"github.com/lvdashuaibi/ballotbot/internal/dispatch"
	intkafka "github.com/lvdashuaibi/ballotbot/internal/kafka"
	"github.com/lvdashuaibi/ballotbot/internal/lock"
	"github.com/lvdashuaibi/ballotbot/internal/logging"
	"github.com/lvdashuaibi/ballotbot/internal/metrics"
	"github.com/lvdashuaibi/ballotbot/internal/notify"
	"github.com/lvdashuaibi/ballotbot/internal/outbox"
	"github.com/lvdashuaibi/ballotbot/internal/repository"
	"github.com/lvdashuaibi/ballotbot/internal/selection"
)

const shutdownTimeout = 10 * time.Second

var configPath = flag.StringP("config", "c", "config/config.yaml", "path to the config file")

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if err := run(cfg); err != nil {
		logging.Logger.Errorw("ballotbot stopped", "error", err)
		logging.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()
	ms := metrics.NewMetricService()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	logging.Logger.Infow("ballot store ready", "store", cfg.Ballot.Store)

	tracker, closeTracker, err := openTracker(cfg, store)
	if err != nil {
		return err
	}
	defer closeTracker()

	gateLock, err := openLock(cfg)
	if err != nil {
		return err
	}
	defer gateLock.Close()
	logging.Logger.Infow("ballot gate ready", "gate", cfg.Ballot.Gate, "name", cfg.Ballot.GateName)

	engine := ballot.NewEngine(ballot.Options{
		Store:         store,
		Tracker:       tracker,
		Gate:          ballot.NewGate(gateLock, cfg.Ballot.GateName, cfg.Ballot.GateTimeout, ms).WithLease(cfg.Ballot.GateLease),
		Notifier:      notify.NewClient(cfg.Mattermost, cfg.Webhook.Token, notify.StaticDirectory(cfg.Ballot.Candidates)),
		Metrics:       ms,
		AdminUsername: cfg.Mattermost.AdminUsername,
	})

	stopEvents, err := startEvents(cfg, engine)
	if err != nil {
		return err
	}
	defer stopEvents()

	gql := graph.NewGraphQLServer(engine, cfg.Server.GraphQLPath)
	server := webhook.NewServer(cfg.Server, cfg.Webhook.Token, dispatch.NewDispatcher(engine, ms), ms, gql)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logging.Logger.Infow("shutting down", "signal", sig.String())
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Ballot.Store {
	case config.StoreMemory:
		return repository.NewMemoryStore(), nil
	case config.StoreSQLite:
		repo, err := repository.NewSQLiteRepository(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return withSchema(ctx, repo)
	case config.StoreMySQL:
		repo, err := repository.NewMySQLRepository(cfg.MySQL)
		if err != nil {
			return nil, err
		}
		return withSchema(ctx, repo)
	}
	return nil, fmt.Errorf("unknown ballot.store %q", cfg.Ballot.Store)
}

func withSchema(ctx context.Context, repo *repository.SQLRepository) (repository.Store, error) {
	if err := repo.CreateSchema(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

// openTracker keeps selections in the ballot store unless Redis is configured.
func openTracker(cfg *config.Config, store repository.Store) (*selection.Tracker, func(), error) {
	if cfg.Ballot.Selection != config.SelectionRedis {
		return selection.NewTracker(store), func() {}, nil
	}
	redisRepo, err := repository.NewRedisRepository(cfg.Redis, cfg.Ballot.SelectionTTL)
	if err != nil {
		return nil, nil, err
	}
	logging.Logger.Infow("selections stored in redis", "addr", cfg.Redis.DataAddress, "ttl", cfg.Ballot.SelectionTTL)
	return selection.NewTracker(redisRepo), func() { redisRepo.Close() }, nil
}

func openLock(cfg *config.Config) (lock.Lock, error) {
	switch cfg.Ballot.Gate {
	case config.GateLocal:
		return lock.NewLocalLock(), nil
	case config.GateEtcd:
		return lock.NewETCDLock(cfg.ETCD)
	case config.GateRedlock:
		return lock.NewRedLock(cfg.Redis)
	}
	return nil, fmt.Errorf("unknown ballot.gate %q", cfg.Ballot.Gate)
}

// startEvents wires the ballot event channel and its consumer, returning a
// stop function that drains it.
func startEvents(cfg *config.Config, engine *ballot.Engine) (func(), error) {
	if cfg.Ballot.Events == config.EventsKafka {
		producer, err := intkafka.NewProducer(cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("init kafka producer: %w", err)
		}
		consumer, err := intkafka.NewConsumer(cfg.Kafka, cfg.Ballot.ReportWorkers)
		if err != nil {
			producer.Close()
			return nil, fmt.Errorf("init kafka consumer: %w", err)
		}
		engine.SetPublisher(producer)
		consumer.Start(engine.HandleEvent)
		return func() {
			if err := consumer.Stop(); err != nil {
				logging.Logger.Warnw("stop kafka consumer", "error", err)
			}
			if err := producer.Close(); err != nil {
				logging.Logger.Warnw("close kafka producer", "error", err)
			}
		}, nil
	}

	queue := outbox.NewQueue(0, cfg.Ballot.ReportWorkers)
	engine.SetPublisher(queue)
	queue.Start(engine.HandleEvent)
	return queue.Stop, nil
}
