// The controlplane binary serves the experiment-editing API and publishes
// config snapshots.
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

	"github.com/variantflow/variantflow/internal/api"
	"github.com/variantflow/variantflow/internal/config"
	"github.com/variantflow/variantflow/internal/objstore"
	"github.com/variantflow/variantflow/internal/publisher"
	"github.com/variantflow/variantflow/internal/store"
	"github.com/variantflow/variantflow/internal/telemetry"
	"github.com/variantflow/variantflow/internal/webhook"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "controlplane").Logger()

	cfg, err := config.LoadControlPlane()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx := context.Background()
	st, err := store.NewStore(ctx, cfg.StoreType, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("store")
	}
	defer func() { _ = st.Close() }()

	writer, err := objstore.NewS3Writer(ctx, objstore.S3Config{
		Endpoint:  cfg.ObjstoreEndpoint,
		Bucket:    cfg.ObjstoreBucket,
		Region:    cfg.ObjstoreRegion,
		AccessKey: cfg.ObjstoreAccessKey,
		SecretKey: cfg.ObjstoreSecretKey,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("object store")
	}

	pub := publisher.New(st, writer, log)
	if len(cfg.WebhookURLs) > 0 {
		dispatcher := webhook.NewDispatcher(cfg.WebhookURLs, cfg.WebhookSecret, log)
		dispatcher.Start()
		defer func() { _ = dispatcher.Close() }()
		pub.WithNotifier(dispatcher)
	}

	telemetry.Init()
	srv := api.NewServer(st, pub, log)

	httpSrv := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     srv.Router(),
		ReadTimeout: 3 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("control plane listening")
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Info().Msg("stopped")
}
