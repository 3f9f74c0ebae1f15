// Package app wires configuration into the long-lived dependencies shared by
// cmd/server and cmd/worker.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dashboard/internal/config"
	"github.com/ignite/campaign-dashboard/internal/domain"
	"github.com/ignite/campaign-dashboard/internal/duckdb"
	"github.com/ignite/campaign-dashboard/internal/pkg/distlock"
	"github.com/ignite/campaign-dashboard/internal/pkg/httpretry"
	"github.com/ignite/campaign-dashboard/internal/pkg/logger"
	"github.com/ignite/campaign-dashboard/internal/publisher"
	"github.com/ignite/campaign-dashboard/internal/repository/postgres"
	"github.com/ignite/campaign-dashboard/internal/service/job"
	"github.com/ignite/campaign-dashboard/internal/storage"
)

// ConfigureLogging applies the log section to the package logger.
func ConfigureLogging(cfg config.LogConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetRedactPII(cfg.ShouldRedact())
}

// OpenDatabase opens and pings the dashboard database.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// OpenRedis connects to url. It returns nil when url is empty or Redis is
// unreachable; job locks then fall back to Postgres advisory locks.
func OpenRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed: %v; falling back to PG advisory locks", err)
		client.Close()
		return nil
	}
	log.Printf("Redis connected (distributed locking enabled)")
	return client
}

// NewEngine builds the DuckDB engine from the cache section.
func NewEngine(cfg config.CacheConfig) *duckdb.Engine {
	return duckdb.NewEngine(duckdb.Options{
		PoolMax:  cfg.PoolMax,
		PoolTTL:  time.Duration(cfg.PoolTTLSeconds) * time.Second,
		QueryMax: cfg.QueryMax,
		QueryTTL: time.Duration(cfg.QueryTTLSeconds) * time.Second,
	})
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewSink builds the event sink for the configured publish mode. The
// returned closer releases the sink's connection.
func NewSink(cfg config.PublishConfig) (publisher.Sink, io.Closer, error) {
	breaker := publisher.NewBreaker(publisher.BreakerConfig{
		Name:             "publish-" + cfg.Mode,
		FailureThreshold: cfg.BreakerFailures,
		Timeout:          cfg.BreakerTimeout(),
	})

	switch cfg.Mode {
	case config.PublishHTTP, "":
		client := httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout()}, cfg.MaxRetries)
		return publisher.NewHTTPSink(cfg.URL, client, breaker), nopCloser{}, nil
	case config.PublishNATS:
		pub, err := publisher.NewNATSPublisher(NATSConfig(cfg))
		if err != nil {
			return nil, nil, err
		}
		return publisher.NewQueueSink(pub, cfg.Topic, breaker), pub, nil
	default:
		return nil, nil, fmt.Errorf("unknown publish mode %q", cfg.Mode)
	}
}

// NATSConfig maps the publish section onto publisher.NATSConfig.
func NATSConfig(cfg config.PublishConfig) publisher.NATSConfig {
	return publisher.NATSConfig{
		URL:             cfg.NATSURL,
		QueueGroup:      cfg.QueueGroup,
		SubscriberCount: cfg.DispatcherSubscribers,
	}
}

// JobConfig maps the jobs section onto job.Config.
func JobConfig(cfg config.JobsConfig) job.Config {
	statuses := make([]domain.JobStatus, 0, len(cfg.Statuses))
	for _, s := range cfg.Statuses {
		statuses = append(statuses, domain.JobStatus(s))
	}
	return job.Config{
		OutputBucket: cfg.OutputBucket,
		OutputPrefix: cfg.OutputPrefix,
		WriteOutput:  cfg.WriteOutput,
		WindowSize:   cfg.WindowSize,
		Statuses:     statuses,
	}
}

// NewJobService assembles the job service. rdb may be nil.
func NewJobService(cfg *config.Config, db *sql.DB, rdb *redis.Client, engine *duckdb.Engine, sink publisher.Sink) *job.Service {
	region := cfg.AWS.Region
	listers := func(ctx context.Context, creds domain.S3ProviderDetails) (job.Lister, error) {
		store, err := storage.NewS3StoreFromProvider(ctx, creds, region)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return job.NewService(
		postgres.NewJobRepo(db),
		engine,
		sink,
		JobConfig(cfg.Jobs),
		job.WithLocks(distlock.NewFactory(rdb, db, cfg.Jobs.LockTTL())),
		job.WithListerFactory(listers),
	)
}
