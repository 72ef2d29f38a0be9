package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"watchsync/api"
	"watchsync/config"
	"watchsync/handlers"
	"watchsync/internal/database"
	"watchsync/services/history"
	"watchsync/services/playback"
	"watchsync/services/trakt"
	"watchsync/store"

	"github.com/gorilla/mux"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("watchsync starting...")

	configPath := os.Getenv("WATCHSYNC_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("data", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	if settings.Trakt.ClientID == "" || settings.Trakt.ClientSecret == "" {
		log.Printf("Warning: trakt client credentials are not configured; connect will fail until they are set in %s", configPath)
	}

	// Open database and apply migrations
	db, err := database.Open(settings.Database.Path)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	// Credential store backend
	var creds store.Store
	switch settings.Storage.Backend {
	case "sqlite":
		creds = store.NewSQLiteStore(db)
	default:
		creds, err = store.NewDiskStore(nil, settings.Storage.Path)
		if err != nil {
			log.Fatalf("failed to open credential store: %v", err)
		}
	}

	tokens := trakt.NewTokenManager(trakt.Credentials{
		ClientID:     settings.Trakt.ClientID,
		ClientSecret: settings.Trakt.ClientSecret,
		APIURL:       settings.Trakt.APIURL,
		RedirectURI:  settings.Trakt.RedirectURI,
	}, creds, nil)

	// The only refresh point. Expired tokens are exchanged here or dropped.
	tokens.LoadOrRefresh(context.Background())
	if tokens.IsAuthenticated() {
		log.Printf("[main] tracking account connected")
	} else {
		log.Printf("[main] no tracking account connected")
	}

	client := trakt.NewClient(tokens, nil)

	historyService, err := history.NewService(db)
	if err != nil {
		log.Fatalf("failed to init history service: %v", err)
	}
	playbackService := playback.NewService(tokens, client, historyService)

	r := mux.NewRouter()
	api.Register(r,
		handlers.NewTraktHandler(tokens),
		handlers.NewPlaybackHandler(playbackService),
		handlers.NewHistoryHandler(historyService),
		creds,
	)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Final stop reports for any sessions still tracking playback.
	playbackService.Close(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
}
