package config

import (
	"time"
)

// Server defaults
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = "8080"
	DefaultHealthPort      = "9090"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultSubmitRateLimit is staging submissions per client per minute
	DefaultSubmitRateLimit = 120
	DefaultSubmitBurst     = 20
)

// Staging defaults
const (
	// DefaultWorkspaceRoot holds one directory per staging task
	DefaultWorkspaceRoot = "/var/vcap/data/stager/workspaces"

	// DefaultRunTimeout bounds a single RunPlugins call
	// Default: 10 minutes
	DefaultRunTimeout = 10 * time.Minute

	// DefaultMaxParallel is the number of concurrent staging tasks
	DefaultMaxParallel = 4

	// DefaultQueueSize is the number of submitted tasks that may wait for a worker
	DefaultQueueSize = 100
)

// Droplet defaults
const (
	DefaultDropletStoreType = "filesystem"
	DefaultDropletRoot      = "/var/vcap/data/stager/droplets"
	DefaultS3Region         = "us-east-1"
	DefaultPresignExpiry    = 15 * time.Minute
)

// Cache defaults
const (
	// DefaultCacheSize is the number of staging results kept
	DefaultCacheSize = 256

	// DefaultCacheTTL is how long a cached droplet is reused
	// Default: 1 hour
	DefaultCacheTTL = time.Hour
)

// Task store defaults
const (
	DefaultTaskStoreType = "memory"
	DefaultSQLitePath    = "stager.db"
	DefaultRedisPrefix   = "stager:tasks"
)

// Janitor defaults
const (
	// DefaultJanitorSchedule runs the janitor at minute 0 of every hour
	DefaultJanitorSchedule = "0 * * * *"

	// DefaultTaskRetention is how long finished task records are kept
	DefaultTaskRetention = 7 * 24 * time.Hour

	// DefaultWorkspaceRetention is the age after which abandoned workspaces are removed
	DefaultWorkspaceRetention = 6 * time.Hour
)

// Container plugin defaults
const (
	// DefaultContainerMemoryLimit is used when neither the manifest nor the app sets one
	// Default: 512MB
	DefaultContainerMemoryLimit = int64(512 * 1024 * 1024)

	// DefaultContainerCPULimit is the CPU quota for a plugin container
	// Default: 1.0 (1 CPU core)
	DefaultContainerCPULimit = 1.0

	// DefaultContainerTimeout bounds a single plugin container
	// Default: 5 minutes
	DefaultContainerTimeout = 5 * time.Minute

	// DefaultImagePullTimeout bounds an image pull
	DefaultImagePullTimeout = 5 * time.Minute
)

// Deployment layout defaults
const (
	DefaultDeploymentName   = "devbox"
	DefaultDeploymentGroup  = "vcap"
	DefaultDeploymentDomain = "vcap.me"
	DefaultDeploymentsDir   = ".deployments"
	DefaultInfoFile         = "deployment_info.json"
	DefaultProfileFile      = ".cloudfoundry_deployment_profile"
	DefaultCloudFoundryDir  = "cloudfoundry"
)

// Observability defaults
const (
	DefaultLogLevel           = "info"
	DefaultOTelEndpoint       = "localhost:4317"
	DefaultOTelServiceName    = "stager"
	DefaultOTelServiceVersion = "1.0.0"
)
