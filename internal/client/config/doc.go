// Package config loads runtime configuration for the TechTrack client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via -c or -config, or the
//     TECHTRACK_CONFIG environment variable.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string     REST API base url
//	-i int        online status check interval (seconds)
//	-hc string    health check: http or grpc
//	-g string     address:port of the gRPC health endpoint
//	-d string     local database file
//	-s int        background sync interval (seconds)
//	-p int        lineages synced in parallel
//	-city string  default city for new records
//	-l string     log file
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "3s" or integer nanoseconds:
//
//	{
//	  "api_base_url": "http://localhost:8000/api/v1",
//	  "online_check_interval": "3s",
//	  "health_check": "grpc",
//	  "grpc_health_addr": "127.0.0.1:50051",
//	  "database_path": "techtrack.db",
//	  "sync_interval": "30s",
//	  "request_timeout": "15s",
//	  "retry_base_delay": "1s",
//	  "retry_max_delay": "5m",
//	  "max_concurrent_lineages": 4,
//	  "city": "Almaty",
//	  "log_file": "techtrack.log",
//	  "log_level": "debug"
//	}
package config
