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

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/carverauto/dropsync/pkg/logger"
)

// Duration is a time.Duration that decodes from "5m" style strings or nanoseconds.
type Duration time.Duration

// MarshalJSON renders the duration in its string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

const (
	defaultListenAddr      = ":8000"
	defaultUploadDir       = "./uploads"
	defaultMaxFileSize     = 50 * 1024 * 1024
	defaultPresenceTimeout = 5 * time.Minute
	defaultMaxCommandQueue = 100
	defaultRateLimitMax    = 100
	defaultRateLimitWindow = 60 * time.Second
	defaultPruneInterval   = 5 * time.Minute
	defaultMetricsInterval = 15 * time.Second

	// StorageDriverPostgres selects the pgx-backed store.
	StorageDriverPostgres = "postgres"
	// StorageDriverMemory selects the in-process store.
	StorageDriverMemory = "memory"
)

// DefaultAllowedExtensions is the upload allow-list used when none is configured.
var DefaultAllowedExtensions = []string{".txt", ".log", ".json", ".csv", ".bin", ".hex", ".jpg", ".png"}

var (
	errInvalidDuration        = errors.New("invalid duration")
	errListenAddrRequired     = errors.New("listen_addr is required")
	errUnknownStorageDriver   = errors.New("database.driver must be postgres or memory")
	errDatabaseHostRequired   = errors.New("database.host is required for the postgres driver")
	errDatabaseNameRequired   = errors.New("database.database is required for the postgres driver")
	errUploadDirRequired      = errors.New("storage.upload_dir is required")
	errMaxFileSizeInvalid     = errors.New("storage.max_file_size must be positive")
	errExtensionInvalid       = errors.New("storage.allowed_extensions entries must start with a dot")
	errPresenceTimeoutInvalid = errors.New("devices.presence_timeout must be positive")
	errMaxCommandQueueInvalid = errors.New("devices.max_command_queue must not be negative")
	errRateLimitInvalid       = errors.New("rate_limit.max_requests and rate_limit.window must be positive")
	errEventsRequireNATS      = errors.New("events.enabled requires a nats section")
	errAdminKeyAmbiguous      = errors.New("set only one of admin_api_key and admin_api_key_hash")
	errAdminKeyHashInvalid    = errors.New("admin_api_key_hash must be a bcrypt hash")
)

// DatabaseConfig selects and configures the persistent store.
type DatabaseConfig struct {
	Driver           string   `json:"driver"`
	Host             string   `json:"host,omitempty"`
	Port             int      `json:"port,omitempty"`
	Database         string   `json:"database,omitempty"`
	Username         string   `json:"username,omitempty"`
	Password         string   `json:"password,omitempty"`
	SSLMode          string   `json:"ssl_mode,omitempty"`
	ApplicationName  string   `json:"application_name,omitempty"`
	MaxConnections   int32    `json:"max_connections,omitempty"`
	MinConnections   int32    `json:"min_connections,omitempty"`
	MaxConnLifetime  Duration `json:"max_conn_lifetime,omitempty"`
	StatementTimeout Duration `json:"statement_timeout,omitempty"`
}

// StorageConfig controls the on-disk file areas.
type StorageConfig struct {
	UploadDir         string   `json:"upload_dir"`
	MaxFileSize       int64    `json:"max_file_size"`
	AllowedExtensions []string `json:"allowed_extensions"`
}

// Allowed reports whether filename carries an allow-listed extension.
func (c *StorageConfig) Allowed(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return false
	}

	for _, allowed := range c.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}

	return false
}

// DevicesConfig controls identity, presence and queueing.
type DevicesConfig struct {
	PresenceTimeout    Duration          `json:"presence_timeout"`
	MaxCommandQueue    *int              `json:"max_command_queue,omitempty"`
	DefaultDeviceType  string            `json:"default_device_type"`
	LegacyTokenFile    string            `json:"legacy_token_file,omitempty"`
	MirrorIssuedTokens *bool             `json:"mirror_issued_tokens,omitempty"`
	SeedLegacyTokens   map[string]string `json:"seed_legacy_tokens,omitempty"`
}

// QueueLimit returns the pending-command bound; 0 disables it.
func (c *DevicesConfig) QueueLimit() int {
	if c.MaxCommandQueue == nil {
		return defaultMaxCommandQueue
	}

	return *c.MaxCommandQueue
}

// MirrorTokens reports whether issued tokens are copied into the legacy table.
func (c *DevicesConfig) MirrorTokens() bool {
	return c.MirrorIssuedTokens == nil || *c.MirrorIssuedTokens
}

// RateLimitConfig configures the per-key sliding window.
type RateLimitConfig struct {
	Disabled      bool     `json:"disabled,omitempty"`
	MaxRequests   int      `json:"max_requests"`
	Window        Duration `json:"window"`
	PruneInterval Duration `json:"prune_interval"`
}

// MetricsConfig toggles the OTLP metrics pipeline. Exporter settings are
// shared with logging.otel.
type MetricsConfig struct {
	Enabled        bool     `json:"enabled"`
	ExportInterval Duration `json:"export_interval"`
}

// CORSConfig controls cross-origin access to the HTTP API.
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// HubConfig is the configuration of the dropsync hub process.
type HubConfig struct {
	ListenAddr      string          `json:"listen_addr"`
	AdminAPIKey     string          `json:"admin_api_key,omitempty"`
	AdminAPIKeyHash string          `json:"admin_api_key_hash,omitempty"`
	CORS            CORSConfig      `json:"cors"`
	Database        DatabaseConfig  `json:"database"`
	Storage         StorageConfig   `json:"storage"`
	Devices         DevicesConfig   `json:"devices"`
	RateLimit       RateLimitConfig `json:"rate_limit"`
	NATS            *NATSConfig     `json:"nats,omitempty"`
	Events          EventsConfig    `json:"events"`
	Metrics         MetricsConfig   `json:"metrics"`
	Logging         *logger.Config  `json:"logging,omitempty"`
}

// Validate applies defaults and checks ranges.
func (c *HubConfig) Validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if strings.TrimSpace(c.ListenAddr) == "" {
		return errListenAddrRequired
	}

	if c.AdminAPIKey != "" && c.AdminAPIKeyHash != "" {
		return errAdminKeyAmbiguous
	}

	if c.AdminAPIKeyHash != "" && !strings.HasPrefix(c.AdminAPIKeyHash, "$2") {
		return errAdminKeyHashInvalid
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if err := c.validateDevices(); err != nil {
		return err
	}

	if err := c.validateRateLimit(); err != nil {
		return err
	}

	if c.NATS != nil {
		if err := c.NATS.Validate(); err != nil {
			return err
		}
	}

	if c.Events.Enabled && c.NATS == nil {
		return errEventsRequireNATS
	}

	if err := c.Events.Validate(); err != nil {
		return err
	}

	if c.Metrics.ExportInterval <= 0 {
		c.Metrics.ExportInterval = Duration(defaultMetricsInterval)
	}

	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}

	return nil
}

func (c *HubConfig) validateDatabase() error {
	db := &c.Database

	if db.Driver == "" {
		db.Driver = StorageDriverMemory
	}

	switch db.Driver {
	case StorageDriverMemory:
		return nil
	case StorageDriverPostgres:
	default:
		return fmt.Errorf("%w: %q", errUnknownStorageDriver, db.Driver)
	}

	if db.Host == "" {
		return errDatabaseHostRequired
	}

	if db.Database == "" {
		return errDatabaseNameRequired
	}

	if db.Port == 0 {
		db.Port = 5432
	}

	if db.ApplicationName == "" {
		db.ApplicationName = "dropsync-hub"
	}

	return nil
}

func (c *HubConfig) validateStorage() error {
	st := &c.Storage

	if st.UploadDir == "" {
		st.UploadDir = defaultUploadDir
	}

	if strings.TrimSpace(st.UploadDir) == "" {
		return errUploadDirRequired
	}

	if st.MaxFileSize == 0 {
		st.MaxFileSize = defaultMaxFileSize
	}

	if st.MaxFileSize < 0 {
		return errMaxFileSizeInvalid
	}

	if len(st.AllowedExtensions) == 0 {
		st.AllowedExtensions = append([]string(nil), DefaultAllowedExtensions...)
	}

	for i, ext := range st.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if len(ext) < 2 || ext[0] != '.' {
			return fmt.Errorf("%w: %q", errExtensionInvalid, st.AllowedExtensions[i])
		}

		st.AllowedExtensions[i] = ext
	}

	return nil
}

func (c *HubConfig) validateDevices() error {
	dev := &c.Devices

	if dev.PresenceTimeout == 0 {
		dev.PresenceTimeout = Duration(defaultPresenceTimeout)
	}

	if dev.PresenceTimeout < 0 {
		return errPresenceTimeoutInvalid
	}

	if dev.MaxCommandQueue != nil && *dev.MaxCommandQueue < 0 {
		return errMaxCommandQueueInvalid
	}

	if dev.DefaultDeviceType == "" {
		dev.DefaultDeviceType = DefaultDeviceType
	}

	for deviceID := range dev.SeedLegacyTokens {
		if err := ValidateDeviceID(deviceID); err != nil {
			return fmt.Errorf("devices.seed_legacy_tokens: %w", err)
		}
	}

	return nil
}

func (c *HubConfig) validateRateLimit() error {
	rl := &c.RateLimit

	if rl.MaxRequests == 0 {
		rl.MaxRequests = defaultRateLimitMax
	}

	if rl.Window == 0 {
		rl.Window = Duration(defaultRateLimitWindow)
	}

	if rl.PruneInterval == 0 {
		rl.PruneInterval = Duration(defaultPruneInterval)
	}

	if rl.MaxRequests < 0 || rl.Window < 0 || rl.PruneInterval < 0 {
		return errRateLimitInvalid
	}

	return nil
}
