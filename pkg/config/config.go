package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/stager/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Staging configuration
	Staging StagingConfig

	// Droplet storage configuration
	Droplets DropletConfig

	// Staging result cache
	Cache CacheConfig

	// Task status store
	Tasks TaskStoreConfig

	// Retention janitor
	Janitor JanitorConfig

	// Spool directory watcher
	Spool SpoolConfig

	// Container plugin limits
	Containers ContainerConfig

	// Observability configuration
	Observability ObservabilityConfig

	// Deployment layout
	Deployment DeploymentConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Submissions allowed per client per minute; 0 disables throttling
	SubmitRateLimit int
	SubmitBurst     int
}

// Address is the API listen address
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// HealthAddress is the health and metrics listen address
func (s ServerConfig) HealthAddress() string {
	return net.JoinHostPort(s.Host, s.HealthPort)
}

// StagingConfig holds orchestrator and service settings
type StagingConfig struct {
	WorkspaceRoot    string
	RunTimeout       time.Duration
	MaxParallel      int
	QueueSize        int
	KeepWorkspaces   bool
	PluginDirs       []string
	AmbientDiscovery bool
}

// DropletConfig holds droplet store settings
type DropletConfig struct {
	StoreType     string // filesystem or s3
	Root          string
	S3Endpoint    string
	S3Region      string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
	S3PathStyle   bool
	PresignExpiry time.Duration
}

// CacheConfig holds staging cache settings
type CacheConfig struct {
	Enabled bool
	Size    int
	TTL     time.Duration
}

// TaskStoreConfig holds task store settings
type TaskStoreConfig struct {
	StoreType   string // memory, redis, postgres or sqlite
	RedisURL    string
	RedisPrefix string
	PostgresURL string
	SQLitePath  string
}

// JanitorConfig holds retention settings
type JanitorConfig struct {
	Enabled            bool
	Schedule           string
	TaskRetention      time.Duration
	WorkspaceRetention time.Duration
}

// SpoolConfig holds the spool watcher settings. An empty Dir disables it.
type SpoolConfig struct {
	Dir string
}

// ContainerConfig holds defaults for container-backed plugins
type ContainerConfig struct {
	Enabled     bool
	MemoryLimit int64
	CPULimit    float64
	Timeout     time.Duration
	PullTimeout time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// DeploymentConfig describes where a deployment lives on disk
type DeploymentConfig struct {
	Name        string
	User        string
	Group       string
	Home        string
	ConfigPath  string
	InfoFile    string
	Domain      string
	LogPath     string
	ProfileFile string
	IsMicro     bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	deployment := loadDeploymentConfig()
	cfg := &Config{
		Server:        loadServerConfig(),
		Staging:       loadStagingConfig(),
		Droplets:      loadDropletConfig(),
		Cache:         loadCacheConfig(),
		Tasks:         loadTaskStoreConfig(deployment),
		Janitor:       loadJanitorConfig(),
		Spool:         SpoolConfig{Dir: getEnv("STAGER_SPOOL_DIR", "")},
		Containers:    loadContainerConfig(),
		Observability: loadObservabilityConfig(),
		Deployment:    deployment,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("STAGER_HOST", DefaultHost),
		Port:            getEnv("STAGER_PORT", DefaultPort),
		ReadTimeout:     getEnvDuration("STAGER_READ_TIMEOUT", DefaultReadTimeout),
		WriteTimeout:    getEnvDuration("STAGER_WRITE_TIMEOUT", DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration("STAGER_IDLE_TIMEOUT", DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration("STAGER_SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
		HealthPort:      getEnv("STAGER_HEALTH_PORT", DefaultHealthPort),
		SubmitRateLimit: getEnvInt("STAGER_SUBMIT_RATE_LIMIT", DefaultSubmitRateLimit),
		SubmitBurst:     getEnvInt("STAGER_SUBMIT_BURST", DefaultSubmitBurst),
	}
}

func loadStagingConfig() StagingConfig {
	return StagingConfig{
		WorkspaceRoot:    getEnv("STAGER_WORKSPACE_ROOT", DefaultWorkspaceRoot),
		RunTimeout:       getEnvDuration("STAGER_RUN_TIMEOUT", DefaultRunTimeout),
		MaxParallel:      getEnvInt("STAGER_MAX_PARALLEL", DefaultMaxParallel),
		QueueSize:        getEnvInt("STAGER_QUEUE_SIZE", DefaultQueueSize),
		KeepWorkspaces:   getEnvBool("STAGER_KEEP_WORKSPACES", false),
		PluginDirs:       getEnvList("STAGER_PLUGIN_DIRS"),
		AmbientDiscovery: getEnvBool("STAGER_AMBIENT_DISCOVERY", true),
	}
}

func loadDropletConfig() DropletConfig {
	return DropletConfig{
		StoreType:     getEnv("STAGER_DROPLET_STORE", DefaultDropletStoreType),
		Root:          getEnv("STAGER_DROPLET_ROOT", DefaultDropletRoot),
		S3Endpoint:    getEnv("STAGER_S3_ENDPOINT", ""),
		S3Region:      getEnv("STAGER_S3_REGION", DefaultS3Region),
		S3Bucket:      getEnv("STAGER_S3_BUCKET", ""),
		S3AccessKey:   getEnv("STAGER_S3_ACCESS_KEY", ""),
		S3SecretKey:   getEnv("STAGER_S3_SECRET_KEY", ""),
		S3PathStyle:   getEnvBool("STAGER_S3_USE_PATH_STYLE", false),
		PresignExpiry: getEnvDuration("STAGER_S3_PRESIGN_EXPIRY", DefaultPresignExpiry),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: getEnvBool("STAGER_CACHE_ENABLED", true),
		Size:    getEnvInt("STAGER_CACHE_SIZE", DefaultCacheSize),
		TTL:     getEnvDuration("STAGER_CACHE_TTL", DefaultCacheTTL),
	}
}

// loadTaskStoreConfig picks sqlite as the default store for micro deployments
func loadTaskStoreConfig(d DeploymentConfig) TaskStoreConfig {
	defaultType := DefaultTaskStoreType
	defaultSQLite := DefaultSQLitePath
	if d.IsMicro {
		defaultType = "sqlite"
		defaultSQLite = filepath.Join(d.ConfigPath, DefaultSQLitePath)
	}

	return TaskStoreConfig{
		StoreType:   getEnv("STAGER_TASK_STORE", defaultType),
		RedisURL:    getEnv("STAGER_REDIS_URL", ""),
		RedisPrefix: getEnv("STAGER_REDIS_PREFIX", DefaultRedisPrefix),
		PostgresURL: getEnv("STAGER_POSTGRES_URL", ""),
		SQLitePath:  getEnv("STAGER_SQLITE_PATH", defaultSQLite),
	}
}

func loadJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Enabled:            getEnvBool("STAGER_JANITOR_ENABLED", true),
		Schedule:           getEnv("STAGER_JANITOR_SCHEDULE", DefaultJanitorSchedule),
		TaskRetention:      getEnvDuration("STAGER_TASK_RETENTION", DefaultTaskRetention),
		WorkspaceRetention: getEnvDuration("STAGER_WORKSPACE_RETENTION", DefaultWorkspaceRetention),
	}
}

func loadContainerConfig() ContainerConfig {
	return ContainerConfig{
		Enabled:     getEnvBool("STAGER_CONTAINERS_ENABLED", false),
		MemoryLimit: getEnvInt64("STAGER_CONTAINER_MEMORY_LIMIT", DefaultContainerMemoryLimit),
		CPULimit:    getEnvFloat("STAGER_CONTAINER_CPU_LIMIT", DefaultContainerCPULimit),
		Timeout:     getEnvDuration("STAGER_CONTAINER_TIMEOUT", DefaultContainerTimeout),
		PullTimeout: getEnvDuration("STAGER_IMAGE_PULL_TIMEOUT", DefaultImagePullTimeout),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("STAGER_LOG_LEVEL", DefaultLogLevel)),
		MetricsEnabled:     getEnvBool("STAGER_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("STAGER_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("STAGER_OTEL_ENDPOINT", DefaultOTelEndpoint),
		OTelServiceName:    getEnv("STAGER_OTEL_SERVICE_NAME", DefaultOTelServiceName),
		OTelServiceVersion: getEnv("STAGER_OTEL_SERVICE_VERSION", DefaultOTelServiceVersion),
		OTelInsecure:       getEnvBool("STAGER_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("STAGER_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// loadDeploymentConfig derives the deployment layout. Paths nest under the
// cloudfoundry home unless overridden individually.
func loadDeploymentConfig() DeploymentConfig {
	homeDir, _ := os.UserHomeDir()
	cfHome := getEnv("STAGER_CF_HOME", filepath.Join(homeDir, DefaultCloudFoundryDir))
	name := getEnv("STAGER_DEPLOYMENT_NAME", DefaultDeploymentName)

	home := getEnv("STAGER_DEPLOYMENT_HOME", filepath.Join(cfHome, DefaultDeploymentsDir, name))
	configPath := getEnv("STAGER_DEPLOYMENT_CONFIG_PATH", filepath.Join(home, "config"))

	return DeploymentConfig{
		Name:        name,
		User:        getEnv("STAGER_DEPLOYMENT_USER", os.Getenv("USER")),
		Group:       getEnv("STAGER_DEPLOYMENT_GROUP", DefaultDeploymentGroup),
		Home:        home,
		ConfigPath:  configPath,
		InfoFile:    getEnv("STAGER_DEPLOYMENT_INFO_FILE", filepath.Join(configPath, DefaultInfoFile)),
		Domain:      getEnv("STAGER_DEPLOYMENT_DOMAIN", DefaultDeploymentDomain),
		LogPath:     getEnv("STAGER_DEPLOYMENT_LOG_PATH", filepath.Join(home, "log")),
		ProfileFile: getEnv("STAGER_DEPLOYMENT_PROFILE", filepath.Join(homeDir, DefaultProfileFile)),
		IsMicro:     getEnvBool("STAGER_DEPLOYMENT_MICRO", false),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.SubmitRateLimit < 0 || c.Server.SubmitBurst < 0 {
		return fmt.Errorf("submit rate limit and burst must not be negative")
	}

	// Validate staging config
	if c.Staging.WorkspaceRoot == "" {
		return fmt.Errorf("workspace root is required")
	}
	if c.Staging.MaxParallel < 1 {
		return fmt.Errorf("max parallel must be at least 1, got %d", c.Staging.MaxParallel)
	}
	if c.Staging.RunTimeout <= 0 {
		return fmt.Errorf("run timeout must be positive")
	}

	// Validate droplet store
	switch c.Droplets.StoreType {
	case "filesystem":
		if c.Droplets.Root == "" {
			return fmt.Errorf("droplet root is required for filesystem droplet store")
		}
	case "s3":
		if c.Droplets.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 droplet store")
		}
	default:
		return fmt.Errorf("invalid droplet store type: %s (must be filesystem or s3)", c.Droplets.StoreType)
	}

	if c.Cache.Enabled && c.Cache.Size < 1 {
		return fmt.Errorf("cache size must be at least 1 when the cache is enabled")
	}

	// Validate task store
	switch c.Tasks.StoreType {
	case "memory":
	case "redis":
		if c.Tasks.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis task store")
		}
	case "postgres":
		if c.Tasks.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres task store")
		}
	case "sqlite":
		if c.Tasks.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite task store")
		}
	default:
		return fmt.Errorf("invalid task store type: %s (must be memory, redis, postgres, or sqlite)", c.Tasks.StoreType)
	}

	if c.Janitor.Enabled && c.Janitor.Schedule == "" {
		return fmt.Errorf("janitor schedule is required when the janitor is enabled")
	}

	if c.Deployment.Name == "" {
		return fmt.Errorf("deployment name is required")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a path-list-separated variable, dropping empty entries
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range filepath.SplitList(value) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
