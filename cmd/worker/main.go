package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/ignite/campaign-dashboard/internal/app"
	"github.com/ignite/campaign-dashboard/internal/config"
	"github.com/ignite/campaign-dashboard/internal/publisher"
	"github.com/ignite/campaign-dashboard/internal/sms"
	"github.com/ignite/campaign-dashboard/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "process all SMS jobs once and exit")
	flag.Parse()

	log.Println("Starting SMS job worker...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	app.ConfigureLogging(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := app.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	redisClient := app.OpenRedis(ctx, cfg.Redis.URL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	engine := app.NewEngine(cfg.Cache)

	sink, sinkCloser, err := app.NewSink(cfg.Publish)
	if err != nil {
		log.Fatalf("Failed to create event sink: %v", err)
	}
	defer sinkCloser.Close()

	jobs := app.NewJobService(cfg, db, redisClient, engine, sink)
	scheduler := worker.NewSMSJobScheduler(jobs, cfg.Jobs.Schedule)

	if *once {
		scheduler.RunOnce(ctx)
		st := scheduler.Stats()
		log.Printf("Processed %d jobs (%d failed), published %d events", st.Jobs, st.Failed, st.Published)
		return
	}

	var router *message.Router
	if cfg.Publish.Mode == config.PublishNATS && cfg.Publish.DispatcherEnabled {
		router = startDispatcher(ctx, cfg)
	}

	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	scheduler.Stop()
	if router != nil {
		if err := router.Close(); err != nil {
			log.Printf("Dispatcher shutdown error: %v", err)
		}
	}
	cancel()
	log.Println("Worker stopped")
}

// startDispatcher consumes published events from NATS and sends them
// through Solapi.
func startDispatcher(ctx context.Context, cfg *config.Config) *message.Router {
	sub, err := publisher.NewNATSSubscriber(app.NATSConfig(cfg.Publish))
	if err != nil {
		log.Fatalf("Failed to create NATS subscriber: %v", err)
	}

	client := sms.NewClient(sms.Config{
		APIKey:    cfg.SMS.APIKey,
		APISecret: cfg.SMS.APISecret,
		BaseURL:   cfg.SMS.BaseURL,
	}, nil)
	router, err := sms.NewRouter(sms.RouterConfig{
		Topic:           cfg.Publish.Topic,
		RetryMaxRetries: cfg.Publish.MaxRetries,
	}, sub, sms.NewDispatcher(client), watermill.NewStdLogger(false, false))
	if err != nil {
		log.Fatalf("Failed to create dispatcher router: %v", err)
	}

	go func() {
		if err := router.Run(ctx); err != nil {
			log.Printf("Dispatcher stopped: %v", err)
		}
	}()
	log.Printf("SMS dispatcher consuming %s", cfg.Publish.Topic)
	return router
}
