// The decisiond binary serves variant assignments from in-memory config
// snapshots kept fresh by polling the object store.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/variantflow/variantflow/internal/config"
	"github.com/variantflow/variantflow/internal/configstore"
	"github.com/variantflow/variantflow/internal/decision"
	"github.com/variantflow/variantflow/internal/objstore"
	"github.com/variantflow/variantflow/internal/telemetry"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "decisiond").Logger()

	cfg, err := config.LoadDecision()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	fetcher := objstore.NewHTTPFetcher(cfg.SnapshotBaseURL, cfg.FetchTimeout)
	configs := configstore.New(fetcher, cfg.PollInterval, cfg.Environments, log)

	pollCtx, stopPolling := context.WithCancel(context.Background())
	go configs.Run(pollCtx)

	telemetry.Init()
	srv := decision.NewServer(configs, log)

	httpSrv := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     srv.Router(),
		ReadTimeout: 3 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("decision server listening")
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopPolling()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Info().Msg("stopped")
}
