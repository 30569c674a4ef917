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

// Package api exposes the hub over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/trace"

	"github.com/carverauto/dropsync/pkg/auth"
	"github.com/carverauto/dropsync/pkg/hub"
	"github.com/carverauto/dropsync/pkg/logger"
	"github.com/carverauto/dropsync/pkg/models"
)

const (
	tracerName        = "dropsync/api"
	readHeaderTimeout = 10 * time.Second
	transferTimeout   = 5 * time.Minute
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 15 * time.Second
	multipartOverhead = 1 << 20
)

// Server routes HTTP requests onto the hub.
type Server struct {
	hub       *hub.Hub
	router    *mux.Router
	adminKey  *auth.AdminKey
	cors      models.CORSConfig
	maxUpload int64
	tracer    trace.Tracer
	logger    logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAdminKey protects the admin routes with key.
func WithAdminKey(key *auth.AdminKey) Option {
	return func(s *Server) { s.adminKey = key }
}

// WithCORS sets the allowed origins.
func WithCORS(cfg models.CORSConfig) Option {
	return func(s *Server) { s.cors = cfg }
}

// WithTracer overrides the tracer used for request spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// NewServer builds the router. maxUpload bounds a single uploaded file.
func NewServer(h *hub.Hub, maxUpload int64, log logger.Logger, opts ...Option) *Server {
	s := &Server{
		hub:       h,
		router:    mux.NewRouter(),
		cors:      models.CORSConfig{AllowedOrigins: []string{"*"}},
		maxUpload: maxUpload,
		tracer:    logger.GetTracer(tracerName),
		logger:    log,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.traceMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	device := v1.PathPrefix("/device").Subrouter()
	device.HandleFunc("/ping/{device_id}", s.handlePing).Methods(http.MethodGet)
	device.HandleFunc("/commands/{device_id}", s.handlePollCommand).Methods(http.MethodGet)
	device.HandleFunc("/commands/{device_id}/complete", s.handleCompleteCommand).Methods(http.MethodPost)
	device.HandleFunc("/commands/{device_id}/fail", s.handleFailCommand).Methods(http.MethodPost)
	device.HandleFunc("/messages/{device_id}", s.handlePostMessage).Methods(http.MethodPost)
	device.HandleFunc("/heartbeat/{device_id}", s.handleHeartbeat).Methods(http.MethodPost)
	device.HandleFunc("/status/{device_id}", s.handleDeviceStatus).Methods(http.MethodGet)

	files := v1.PathPrefix("/files").Subrouter()
	files.HandleFunc("/sync-packages/{device_id}", s.handleStagedPackages).Methods(http.MethodGet)
	files.HandleFunc("/sync-packages/{device_id}/{package_id}/download", s.handleDownloadPackage).
		Methods(http.MethodPost)
	files.HandleFunc("/sync-packages/{device_id}/{package_id}/files/{filename}", s.handleFetchPackageFile).
		Methods(http.MethodGet)
	files.HandleFunc("/upload/{device_id}", s.handleUpload).Methods(http.MethodPost)
	files.HandleFunc("/list/{device_id}", s.handleListFiles).Methods(http.MethodGet)
	files.HandleFunc("/files/{device_id}/{filename}", s.handleDeleteFile).Methods(http.MethodDelete)
	files.HandleFunc("/sync-history/{device_id}", s.handleSyncHistory).Methods(http.MethodGet)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(s.adminKeyMiddleware(s.adminKey))
	admin.HandleFunc("/devices", s.handleListDevices).Methods(http.MethodGet)
	admin.HandleFunc("/devices/register", s.handleRegisterDevice).Methods(http.MethodPost)
	admin.HandleFunc("/devices/{device_id}/rotate-token", s.handleRotateToken).Methods(http.MethodPost)
	admin.HandleFunc("/devices/{device_id}/revoke-token", s.handleRevokeDevice).Methods(http.MethodPost)
	admin.HandleFunc("/devices/{device_id}/command", s.handleSendCommand).Methods(http.MethodPost)
	admin.HandleFunc("/devices/{device_id}/commands", s.handleCommandHistory).Methods(http.MethodGet)
	admin.HandleFunc("/devices/{device_id}/messages", s.handleDeviceMessages).Methods(http.MethodGet)
	admin.HandleFunc("/messages", s.handleMessages).Methods(http.MethodGet)
	admin.HandleFunc("/sync-packages", s.handleCreatePackage).Methods(http.MethodPost)
	admin.HandleFunc("/sync-packages", s.handleListPackages).Methods(http.MethodGet)
	admin.HandleFunc("/sync-packages/{package_id}/files", s.handleAddPackageFile).Methods(http.MethodPost)
	admin.HandleFunc("/sync-packages/{package_id}/files", s.handlePackageFiles).Methods(http.MethodGet)
	admin.HandleFunc("/sync-packages/{package_id}/fail", s.handleFailPackage).Methods(http.MethodPost)
	admin.HandleFunc("/audit-events", s.handleAuditEvents).Methods(http.MethodGet)
	admin.HandleFunc("/system/stats", s.handleSystemStats).Methods(http.MethodGet)
}

// Handler returns the root handler. CORS wraps the router so that preflight
// requests are answered even for routes that do not accept OPTIONS.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.cors)(s.router)
}

// Serve listens on addr until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       transferTimeout,
		WriteTimeout:      transferTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info().Str("addr", addr).Msg("starting HTTP API")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info().Msg("shutting down HTTP API")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	return nil
}

func (s *Server) caller(r *http.Request, fields fieldSource) hub.Caller {
	return hub.Caller{
		DeviceID: mux.Vars(r)["device_id"],
		Token:    deviceToken(r, fields),
		RemoteIP: remoteIP(r),
	}
}

func (*Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
