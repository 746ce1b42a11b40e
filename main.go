package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RichardLi88/Waypoint/config"
	"github.com/RichardLi88/Waypoint/handlers"
	"github.com/RichardLi88/Waypoint/logging"
	"github.com/RichardLi88/Waypoint/services"
	"github.com/RichardLi88/Waypoint/store"
	"github.com/RichardLi88/Waypoint/utils"
	"golang.org/x/sync/errgroup"
)

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.MongoURI == "" {
		logging.Logger.Warn("Event ID: DB_IN_MEMORY, Description: MONGO_URI is not set, using the in-memory store. Data is lost on restart.")
		return store.NewMemoryStore(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := store.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB, cfg.StoreBreakerTimeout)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureIndexes(ctx); err != nil {
		_ = db.Close(context.Background())
		return nil, err
	}
	logging.Logger.Infof("Event ID: DB_CONNECTED, Description: Connected to MongoDB database %s", cfg.MongoDB)
	return db, nil
}

func main() {
	cfg := config.Load()
	logging.InitLogger(cfg.LogFile, cfg.LogLevel)
	logging.Logger.Info("Event ID: SERVICE_START, Description: Starting Waypoint...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg)
	if err != nil {
		logging.Logger.Fatalf("Event ID: DB_CONNECTION_FAILED, Description: %v", err)
	}
	defer func() {
		if err := db.Close(context.Background()); err != nil {
			logging.Logger.Errorf("Event ID: DB_CLOSE_FAILED, Description: %v", err)
		}
	}()

	cascade := services.NewCascade(db, cfg.CascadeRetryMaxElapsed)
	projects := services.NewProjectService(db)
	users := services.NewUserService(db, cascade)
	if cfg.PasswordBlacklistFile != "" {
		blackList, err := utils.LoadBlackList(cfg.PasswordBlacklistFile)
		if err != nil {
			logging.Logger.Fatalf("Event ID: BLACKLIST_LOAD_FAILED, Description: %v", err)
		}
		users.UsePasswordBlacklist(blackList)
		logging.Logger.Infof("Event ID: BLACKLIST_LOADED, Description: Loaded %d blacklisted passwords", len(blackList))
	}
	if err := users.Bootstrap(ctx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword); err != nil {
		logging.Logger.Fatalf("Event ID: BOOTSTRAP_FAILED, Description: %v", err)
	}

	router := handlers.NewRouter(handlers.Services{
		Auth: services.NewAuthService(db, services.TokenSettings{
			AccessSecret:  cfg.AccessSecret,
			RefreshSecret: cfg.RefreshSecret,
			AccessTTL:     cfg.AccessTTL,
			RefreshTTL:    cfg.RefreshTTL,
		}),
		Users:    users,
		Projects: projects,
		Tasks:    services.NewTaskService(db, projects, cascade),
		Sprints:  services.NewSprintService(db, projects, cascade),
		Health:   db.Ping,
	}, cfg.CORSOrigin)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Logger.Infof("Event ID: SERVER_START_INFO, Description: Server running on http://localhost%s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logging.Logger.Info("Event ID: SERVER_SHUTDOWN, Description: Shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logging.Logger.Errorf("Event ID: SERVER_FATAL_ERROR, Description: %v", err)
	}
}
