package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/linesmerrill/laundry-api/api/handlers"
	"github.com/linesmerrill/laundry-api/config"
	"github.com/linesmerrill/laundry-api/logging"
)

const shutdownTimeout = 20 * time.Second

func main() {
	conf, err := config.New()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.New(conf.Env)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	_ = zap.ReplaceGlobals(logger)

	a := handlers.App{Config: *conf}
	if err := a.Initialize(); err != nil { //initialize database and router
		zap.S().Fatalw("failed to initialize laundry-api", "error", err)
	}

	if err := a.Reaper.Start(); err != nil {
		zap.S().Fatalw("failed to start expiry reaper", "error", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%v", conf.Port),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		zap.S().Infow("laundry-api is up and running",
			"port", conf.Port,
			"url", conf.BaseURL,
			"verificationRequired", conf.VerificationRequired,
			"pendingStore", conf.PendingStore,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Errorw("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	zap.S().Info("shutting down laundry-api")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.S().Errorw("failed to shut down http server", "error", err)
	}
	a.Reaper.Stop()
	if err := a.Close(shutdownCtx); err != nil {
		zap.S().Errorw("failed to close connections", "error", err)
	}
}
