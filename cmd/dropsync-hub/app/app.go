/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package app boots the dropsync hub.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/carverauto/dropsync/pkg/api"
	"github.com/carverauto/dropsync/pkg/audit"
	"github.com/carverauto/dropsync/pkg/auth"
	"github.com/carverauto/dropsync/pkg/config"
	"github.com/carverauto/dropsync/pkg/db"
	"github.com/carverauto/dropsync/pkg/hub"
	"github.com/carverauto/dropsync/pkg/lifecycle"
	"github.com/carverauto/dropsync/pkg/logger"
	"github.com/carverauto/dropsync/pkg/metrics"
	"github.com/carverauto/dropsync/pkg/models"
	"github.com/carverauto/dropsync/pkg/natsutil"
	"github.com/carverauto/dropsync/pkg/ratelimit"
	"github.com/carverauto/dropsync/pkg/version"
)

const serviceName = "dropsync-hub"

// Options contains runtime configuration derived from CLI flags.
type Options struct {
	ConfigPath string
}

// Run loads the configuration, wires the hub and serves until SIGINT or
// SIGTERM.
func Run(ctx context.Context, opts Options) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLogger, err := lifecycle.CreateComponentLogger(ctx, "config", logger.DefaultConfig())
	if err != nil {
		return err
	}

	var cfg models.HubConfig
	if err := config.NewConfig(bootLogger).LoadAndValidate(ctx, opts.ConfigPath, &cfg); err != nil {
		return err
	}

	mainLogger, err := lifecycle.CreateComponentLogger(ctx, "hub", cfg.Logging)
	if err != nil {
		return err
	}

	defer func() {
		if err := lifecycle.ShutdownLogger(); err != nil {
			mainLogger.Error().Err(err).Msg("Error shutting down telemetry")
		}
	}()

	if _, err := logger.InitializeTracing(ctx, logger.TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: version.GetVersion(),
		OTel:           &cfg.Logging.OTel,
	}); err != nil {
		return err
	}

	var meterProvider metric.MeterProvider

	if cfg.Metrics.Enabled {
		mp, err := logger.InitializeMetrics(ctx, logger.MetricsConfig{
			ServiceName:    serviceName,
			ServiceVersion: version.GetVersion(),
			OTel:           &cfg.Logging.OTel,
			ExportInterval: time.Duration(cfg.Metrics.ExportInterval),
		})

		switch {
		case errors.Is(err, logger.ErrOTelMetricsDisabled):
			mainLogger.Warn().Msg("metrics enabled but logging.otel is not; instruments are not exported")
		case err != nil:
			return err
		default:
			meterProvider = mp
		}
	}

	mainLogger.Info().Str("version", version.GetFullVersion()).Msg("starting dropsync hub")

	return serve(ctx, &cfg, meterProvider, mainLogger)
}

func serve(ctx context.Context, cfg *models.HubConfig, mp metric.MeterProvider, log logger.Logger) error {
	inst, err := metrics.New(mp)
	if err != nil {
		return err
	}
	defer func() { _ = inst.Close() }()

	store, err := db.Open(ctx, &cfg.Database, lifecycle.Component(log, "db"))
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing store")
		}
	}()

	legacy, err := openLegacyTable(ctx, cfg, store, lifecycle.Component(log, "legacy-tokens"))
	if err != nil {
		return err
	}

	recorderOpts := []audit.Option{audit.WithDropHook(inst.AuditMirrorDropped)}

	if cfg.Events.Enabled {
		nc, err := natsutil.Connect(cfg.NATS, lifecycle.Component(log, "nats"))
		if err != nil {
			return err
		}
		defer nc.Close()

		publisher, err := natsutil.CreateEventPublisher(ctx, nc, cfg.NATS.Domain, cfg.Events.StreamName,
			cfg.Events.SubjectPrefix)
		if err != nil {
			return err
		}

		recorderOpts = append(recorderOpts, audit.WithPublisher(publisher))
	}

	recorder := audit.NewRecorder(store, lifecycle.Component(log, "audit"), recorderOpts...)
	limiter := ratelimit.New(&cfg.RateLimit, lifecycle.Component(log, "ratelimit"))

	if err := inst.ObserveLimiterKeys(limiter.Keys); err != nil {
		return err
	}

	adminKey, err := buildAdminKey(cfg, log)
	if err != nil {
		return err
	}

	h := hub.New(cfg, hub.Deps{
		Store:    store,
		FS:       afero.NewOsFs(),
		Legacy:   legacy,
		Recorder: recorder,
		Limiter:  limiter,
		Metrics:  inst,
		Host:     metrics.NewHostSampler(cfg.Storage.UploadDir, lifecycle.Component(log, "host")),
	}, lifecycle.Component(log, "hub"))

	server := api.NewServer(h, cfg.Storage.MaxFileSize, lifecycle.Component(log, "api"),
		api.WithAdminKey(adminKey), api.WithCORS(cfg.CORS))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return server.Serve(gctx, cfg.ListenAddr) })
	g.Go(func() error { return limiter.Run(gctx) })
	g.Go(func() error { return recorder.Run(gctx) })
	g.Go(func() error { return legacy.Watch(gctx) })

	return g.Wait()
}

// openLegacyTable loads the legacy token file and seeds configured entries
// for devices that have no persistent record yet. Migrated or revoked
// devices are never seeded again.
func openLegacyTable(ctx context.Context, cfg *models.HubConfig, devices db.DeviceStore,
	log logger.Logger) (*auth.LegacyTable, error) {
	legacy, err := auth.NewLegacyTable(afero.NewOsFs(), cfg.Devices.LegacyTokenFile, log)
	if err != nil {
		return nil, err
	}

	seeds := make(map[string]string, len(cfg.Devices.SeedLegacyTokens))

	for id, token := range cfg.Devices.SeedLegacyTokens {
		_, err := devices.GetDevice(ctx, id)

		switch {
		case errors.Is(err, models.ErrDeviceNotFound):
			seeds[id] = token
		case err != nil:
			return nil, err
		}
	}

	seeded, err := legacy.SeedMissing(seeds)
	if err != nil {
		return nil, err
	}

	log.Info().Int("entries", legacy.Len()).Int("seeded", seeded).
		Int("skipped", len(cfg.Devices.SeedLegacyTokens)-len(seeds)).Msg("legacy token table loaded")

	return legacy, nil
}

func buildAdminKey(cfg *models.HubConfig, log logger.Logger) (*auth.AdminKey, error) {
	if cfg.AdminAPIKey == "" && cfg.AdminAPIKeyHash == "" {
		log.Warn().Msg("no admin API key configured; admin routes are unauthenticated")

		return nil, nil
	}

	return auth.NewAdminKey(cfg.AdminAPIKey, cfg.AdminAPIKeyHash)
}
