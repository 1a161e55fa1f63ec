package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/proyeccion-moden/modengo/internal/config"
	"github.com/proyeccion-moden/modengo/internal/database"
	"github.com/proyeccion-moden/modengo/internal/handlers"
	"github.com/proyeccion-moden/modengo/internal/models"
	"github.com/proyeccion-moden/modengo/internal/pairing"
	"github.com/proyeccion-moden/modengo/internal/queue"
	"github.com/proyeccion-moden/modengo/internal/tracker"
	"github.com/proyeccion-moden/modengo/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize database (Detects Embedded vs External automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Auto-Migrate Schema
	log.Println("🚀 Synchronizing database schema...")
	err = db.AutoMigrate(
		&models.UserAuth{},
		&models.Project{},
		&models.Floor{},
		&models.Module{},
		&models.DrawingAsset{},
		&models.Desk{},
		&models.WorkItem{},
		&models.PlanningQueue{},
		&models.PlanningQueueEntry{},
		&models.PairingSession{},
		&models.StagedDeviceToken{},
	)
	if err != nil {
		log.Printf("⚠️ Migration warning: %v\n", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	// 4. Wire services
	tr := tracker.New(db.DB)
	workQueue := queue.NewWorkQueue(db.DB, tr)
	planning := queue.NewPlanning(db.DB)
	sessions := pairing.NewService(db.DB,
		time.Duration(cfg.Pairing.CodeTTLMinutes)*time.Minute, cfg.SetupKey)

	hub := websocket.NewHub()
	go hub.Run()

	router := handlers.NewRouter(db, cfg, workQueue, planning, tr, sessions, hub)

	// Background sweep of abandoned pairing sessions
	go func() {
		ticker := time.NewTicker(15 * time.Minute)
		for range ticker.C {
			purged, err := sessions.PurgeExpiredSessions()
			if err != nil {
				log.Printf("Pairing sweep error: %v", err)
			} else if purged > 0 {
				log.Printf("🧹 Purged %d expired pairing sessions", purged)
			}
		}
	}()

	// 5. Start server with graceful shutdown
	port := cfg.Port
	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("🚀 Server starting on port %s\n", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sig := <-shutdown
	log.Printf("\n⚠️  Received signal: %v. Shutting down gracefully...\n", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
