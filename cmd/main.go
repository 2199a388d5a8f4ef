package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kodibridge"
	"kodibridge/internal/catalog"
	"kodibridge/internal/device"
	"kodibridge/internal/handlers"
	"kodibridge/internal/logger"
	"kodibridge/internal/repository"
	"kodibridge/internal/repository/db"
	"kodibridge/internal/server"
	"kodibridge/internal/service"

	"github.com/spf13/viper"
)

func main() {
	// init logger
	log := logger.Get(logLevel())

	// load config.yml
	if err := loadConfig(); err != nil {
		log.Fatalw("error reading config", "err", err)
	}

	// open DB
	sqlDB, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(sqlDB)
	statusHub := handlers.NewStatusHub()
	manager := device.NewManager(
		catalog.New(),
		devicePolicy(),
		log,
		statusHub.Publish,
		eventSink(repos, log),
	)
	services := service.NewService(repos, manager, signingKey(log), log)
	apiHandler := handlers.NewHandler(services, statusHub, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// bring persisted devices back online
	if err := services.Registry.Restore(ctx); err != nil {
		log.Errorw("failed to restore devices", "err", err)
	}

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, manager, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

func logLevel() string {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		return lvl
	}
	return logger.InfoLevel
}

// signingKey reads the JWT signing key, preferring the environment over the
// config file so the key can stay out of version control.
func signingKey(log *logger.Logger) string {
	if key := os.Getenv("JWT_SIGNING_KEY"); key != "" {
		return key
	}
	key := viper.GetString("auth.signing_key")
	if key == "" {
		log.Fatalw("auth.signing_key missing; set it in configs/config.yml or JWT_SIGNING_KEY")
	}
	return key
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "kodibridge.db")
		dbPath = "kodibridge.db"
	}
	return db.InitDB(dbPath)
}

// devicePolicy builds the connection tuning from config, falling back to the
// defaults for any knob left unset.
func devicePolicy() device.Policy {
	p := device.DefaultPolicy()
	if d := viper.GetDuration("device.connect_timeout"); d > 0 {
		p.ConnectTimeout = d
	}
	if d := viper.GetDuration("device.call_timeout"); d > 0 {
		p.CallTimeout = d
	}
	if d := viper.GetDuration("device.backoff_min"); d > 0 {
		p.BackoffMin = d
	}
	if d := viper.GetDuration("device.backoff_max"); d > 0 {
		p.BackoffMax = d
	}
	if n := viper.GetInt("device.suspend_after"); n > 0 {
		p.SuspendAfter = n
	}
	if d := viper.GetDuration("device.poll_interval"); d > 0 {
		p.PollInterval = d
	}
	return p
}

// eventSink persists connection-state transitions as bridge events.
func eventSink(repos *repository.Repository, log *logger.Logger) device.EventSink {
	return func(deviceID, eventType, description string) {
		e := kodibridge.BridgeEvent{
			DeviceID:    deviceID,
			Type:        eventType,
			Description: description,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repos.EventRepo.Append(ctx, e); err != nil {
			log.Errorw("failed to record bridge event", "device", deviceID, "err", err)
		}
	}
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, manager *device.Manager, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines and device sessions
	cancel()
	manager.Close()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
