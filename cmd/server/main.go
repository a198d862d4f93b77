package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/Brownie44l1/cxr-api/internal/config"
	"github.com/Brownie44l1/cxr-api/internal/handlers"
	"github.com/Brownie44l1/cxr-api/internal/model"
	"github.com/Brownie44l1/cxr-api/internal/report"
	"github.com/Brownie44l1/cxr-api/internal/session"
)

const sessionTTL = 12 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	log.Printf("Loading model from: %s", cfg.ModelPath)

	handle := model.NewHandle(cfg.Paths(), model.Options{
		LibraryPath:    cfg.ORTLibraryPath,
		IntraOpThreads: cfg.IntraOpThreads,
	})
	classifier, err := handle.Get()
	if err != nil {
		log.Fatalf("Failed to initialize model: %v", err)
	}
	defer model.Shutdown()
	defer handle.Close()

	store := session.NewMemoryStore()
	handler := handlers.NewHandler(classifier, store, report.NewRenderer(), handlers.Options{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		ReportDir:      cfg.ReportDir,
		KeepReports:    cfg.KeepReports,
	})

	r := mux.NewRouter()
	r.Use(handlers.Logging, handlers.CORS)
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go expireSessions(ctx, store)

	go func() {
		log.Printf("Server starting on port %d", cfg.Port)
		log.Printf("Classes: %v", classifier.Catalog())
		log.Println("Endpoints:")
		log.Println("  GET  /                  - Dashboard")
		log.Println("  GET  /api/health        - Health check")
		log.Println("  GET  /api/classes       - Classes and thresholds")
		log.Println("  POST /api/predict       - Raw array prediction")
		log.Println("  POST /api/predict/image - Predict from image upload")
		log.Println("  POST /api/report        - PDF report from image upload")
		log.Printf("Upload test: curl -X POST -F \"image=@xray.png\" http://localhost:%d/api/predict/image", cfg.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

func expireSessions(ctx context.Context, store session.Store) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Expire(ctx, time.Now().Add(-sessionTTL))
			if err != nil {
				log.Printf("Session expiry failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Expired %d sessions", n)
			}
		}
	}
}
