// Package config provides stager configuration from environment variables.
//
// # Overview
//
// LoadConfig reads every setting from STAGER_* environment variables, falls
// back to the constants in defaults.go and validates the result.
//
// # Configuration Structure
//
// Server settings:
//
//	STAGER_HOST="0.0.0.0"
//	STAGER_PORT="8080"
//	STAGER_HEALTH_PORT="9090"
//
// Staging settings:
//
//	STAGER_WORKSPACE_ROOT="/var/vcap/data/stager/workspaces"
//	STAGER_RUN_TIMEOUT="10m"
//	STAGER_MAX_PARALLEL="4"
//	STAGER_PLUGIN_DIRS="/etc/stager/plugins:/opt/stager/plugins"
//	STAGER_AMBIENT_DISCOVERY="true"
//
// Droplet settings:
//
//	STAGER_DROPLET_STORE="s3"  # filesystem, s3
//	STAGER_S3_BUCKET="droplets"
//	STAGER_S3_ENDPOINT="http://minio:9000"
//
// Task store settings:
//
//	STAGER_TASK_STORE="redis"  # memory, redis, postgres, sqlite
//	STAGER_REDIS_URL="redis://localhost:6379/0"
//	STAGER_POSTGRES_URL="postgres://localhost/stager?sslmode=disable"
//
// Deployment layout:
//
//	STAGER_CF_HOME="$HOME/cloudfoundry"
//	STAGER_DEPLOYMENT_NAME="devbox"
//	STAGER_DEPLOYMENT_MICRO="false"  # true defaults the task store to sqlite
//
// Observability settings:
//
//	STAGER_LOG_LEVEL="info"  # debug, info, warn, error
//	STAGER_METRICS_ENABLED="true"
//	STAGER_OTEL_ENABLED="true"
//	STAGER_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("workspaces under %s\n", cfg.Staging.WorkspaceRoot)
package config
