package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"mediaflow/api"
	"mediaflow/config"
	"mediaflow/ffmpeg"
	"mediaflow/job"
	"mediaflow/normalize"
	"mediaflow/remote"
	"mediaflow/suggest"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// 1. Load configuration
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Media inspection is optional: without ffprobe, metadata stays unknown
	var inspector suggest.Inspector
	prober, err := ffmpeg.NewProber(cfg)
	if err != nil {
		log.Printf("Media metadata disabled: %v", err)
	} else {
		inspector = prober
	}

	// 3. Job registry backed by the remote job service
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client := remote.New(cfg)
	registry := job.NewRegistry(cfg, client, normalize.New(cfg.UploadURL), job.NewMetrics(reg))

	// 4. Set up router and server
	handler := api.NewHandler(cfg, registry, suggest.NewEngine(cfg, inspector), client)
	router := api.SetupRouter(handler, reg)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// 5. Start background services and HTTP server
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry.Start(ctx)

	go func() {
		log.Printf("Server starting on port %s, job service at %s", cfg.Port, cfg.BackendURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 6. Wait for interrupt signal for graceful shutdown
	<-ctx.Done()

	stop()
	log.Println("Shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Println("Server exiting")
}
