package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/campaign-dashboard/internal/api"
	"github.com/ignite/campaign-dashboard/internal/app"
	"github.com/ignite/campaign-dashboard/internal/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	log.Println("Starting campaign dashboard API server...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	app.ConfigureLogging(cfg.Log)

	ctx := context.Background()

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
	log.Printf("Publishing events via %s", cfg.Publish.Mode)

	jobs := app.NewJobService(cfg, db, redisClient, engine, sink)

	handlers := api.NewHandlers(jobs, engine)
	health := api.NewHealthChecker(db, redisClient, engine)
	server := api.NewServer(cfg.Server, handlers, health)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	addr := cfg.Server.Addr()
	go func() {
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	engine.Invalidate()
	log.Println("Server stopped")
}
