// Package config loads access control service configuration via Viper,
// following the same pattern as the teacher's own config package: a YAML
// file plus environment variable overrides under a service-specific
// prefix, with idempotent, concurrency-safe loading.
package config

import (
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/lattice-acs/acs/internal/logging"
	"github.com/spf13/viper"
)

// Environment variable and default path constants for configuration loading.
const (
	// EnvVarPrefix is the prefix for all service environment variables.
	// "buffer.capacity" becomes ACS_BUFFER_CAPACITY.
	EnvVarPrefix string = "ACS"

	ConfigPathEnv     string = "ACS_CONFIG_PATH"
	ConfigFileNameEnv string = "ACS_CONFIG_FILENAME"

	ConfigDefaultPath     string = "."
	ConfigDefaultFilename string = "acs-config"
)

// Configuration key constants for use with VConfig.
const (
	LogLevel string = "log.level"

	// BufferCapacity bounds the per-tenant command buffer (spec §4.4).
	BufferCapacity string = "buffer.capacity"

	// BufferHighWatermark / BufferLowWatermark are expressed as a
	// fraction (0..1) of BufferCapacity (spec §5 backpressure).
	BufferHighWatermark string = "buffer.highwatermark"
	BufferLowWatermark  string = "buffer.lowwatermark"

	// CommandDeadlineMs / QueryDeadlineMs are the default deadlines of spec §5.
	CommandDeadlineMs string = "deadlines.command_ms"
	QueryDeadlineMs   string = "deadlines.query_ms"

	// CacheEntitySlidingMs / CacheEntityAbsoluteMs and their permission
	// counterparts implement the TTL policy of spec §4.7.
	CacheEntitySlidingMs     string = "cache.entity.sliding_ms"
	CacheEntityAbsoluteMs    string = "cache.entity.absolute_ms"
	CachePermissionSlidingMs string = "cache.permission.sliding_ms"
	CachePermAbsoluteMs      string = "cache.permission.absolute_ms"

	// AuditRetentionDays controls PurgeOldAuditData's default horizon.
	AuditRetentionDays string = "audit.retention_days"

	// IdempotencyWindowSec is how long the RPC edge remembers a
	// correlationId for request de-duplication (spec §4.9).
	IdempotencyWindowSec string = "rpc.idempotency_window_sec"

	// TenantsFile points at the bootstrap descriptor the supervisor
	// reads to learn which tenants to start (SPEC_FULL.md supplement).
	TenantsFile string = "tenants.file"

	// DatabaseDriver selects "postgres" or "sqlite" for pkg/persistence.
	DatabaseDriver string = "database.driver"
	DatabaseDSN    string = "database.dsn"
)

var (
	once     sync.Once
	loadOnce sync.Once
	loadErr  error

	// VConfig is the global Viper instance for the service.
	VConfig *viper.Viper
	logger  = logging.GetLogger("config")
)

// Init sets up Viper with file/env wiring and defaults, idempotently.
func Init() {
	once.Do(doInitialize)
}

func getConfigPath() string {
	if p, ok := os.LookupEnv(ConfigPathEnv); ok {
		return p
	}
	return ConfigDefaultPath
}

func getConfigFileName() string {
	if n, ok := os.LookupEnv(ConfigFileNameEnv); ok {
		return n
	}
	return ConfigDefaultFilename
}

func doInitialize() {
	VConfig = viper.New()

	VConfig.AddConfigPath(getConfigPath())
	VConfig.SetConfigName(getConfigFileName())
	VConfig.SetConfigType("yaml")

	VConfig.SetEnvPrefix(EnvVarPrefix)
	VConfig.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	VConfig.AutomaticEnv()

	VConfig.SetDefault(LogLevel, ".:info")
	VConfig.SetDefault(BufferCapacity, 10000)
	VConfig.SetDefault(BufferHighWatermark, 0.8)
	VConfig.SetDefault(BufferLowWatermark, 0.5)
	VConfig.SetDefault(CommandDeadlineMs, 30000)
	VConfig.SetDefault(QueryDeadlineMs, 5000)
	VConfig.SetDefault(CacheEntitySlidingMs, 5*60*1000)
	VConfig.SetDefault(CacheEntityAbsoluteMs, 30*60*1000)
	VConfig.SetDefault(CachePermissionSlidingMs, 2*60*1000)
	VConfig.SetDefault(CachePermAbsoluteMs, 10*60*1000)
	VConfig.SetDefault(AuditRetentionDays, 365)
	VConfig.SetDefault(IdempotencyWindowSec, 300)
	VConfig.SetDefault(TenantsFile, "tenants.yaml")
	VConfig.SetDefault(DatabaseDriver, "sqlite")
	VConfig.SetDefault(DatabaseDSN, "file:acs.db?mode=memory&cache=shared")
}

// Load initializes configuration and reads the config file and
// environment overrides. Safe to call concurrently; only the first call
// does the work.
func Load() error {
	loadOnce.Do(func() {
		Init()

		if early := os.Getenv("ACS_LOG_LEVEL"); early != "" {
			if err := logging.UpdateLogLevels(early); err != nil {
				logger.SysErrorf("failed applying early log level %q: %+v", early, err)
				loadErr = err
				return
			}
		}

		err := VConfig.ReadInConfig()
		if err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				logger.SysWarnf("error reading config file; using defaults: %+v", err)
			}
		}

		if err := logging.UpdateLogLevels(VConfig.GetString(LogLevel)); err != nil {
			logger.SysErrorf("failed applying log level %q: %+v", VConfig.GetString(LogLevel), err)
			loadErr = err
		}
	})

	return loadErr
}

// ResetConfig reinitializes configuration. Test-only.
func ResetConfig() {
	VConfig = nil
	once = sync.Once{}
	loadOnce = sync.Once{}
	loadErr = nil
	Init()
	_ = Load()
}
