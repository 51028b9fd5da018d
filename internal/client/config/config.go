package config

import (
	"fmt"
	"time"
)

const (
	HealthCheckHTTP = "http"
	HealthCheckGRPC = "grpc"
)

// Config holds runtime settings for the TechTrack client.
//
// Units: all intervals and delays are time.Duration values.
type Config struct {
	// APIBaseURL is the REST root, e.g. http://localhost:8000/api/v1.
	APIBaseURL          string
	OnlineCheckInterval time.Duration
	// HealthCheck selects the connectivity probe: "http" (GET <base>/health)
	// or "grpc" (grpc.health.v1 at GRPCHealthAddr).
	HealthCheck    string
	GRPCHealthAddr string

	DatabasePath string

	SyncInterval          time.Duration
	RequestTimeout        time.Duration
	RetryBaseDelay        time.Duration
	RetryMaxDelay         time.Duration
	MaxConcurrentLineages int

	// City is the technician's default city.
	City string

	LogFile  string
	LogLevel string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "http://localhost:8000/api/v1"
	c.OnlineCheckInterval = 3 * time.Second
	c.HealthCheck = HealthCheckHTTP
	c.GRPCHealthAddr = "127.0.0.1:50051"
	c.DatabasePath = "techtrack.db"
	c.SyncInterval = 30 * time.Second
	c.RequestTimeout = 15 * time.Second
	c.RetryBaseDelay = time.Second
	c.RetryMaxDelay = 5 * time.Minute
	c.MaxConcurrentLineages = 4
	c.LogFile = "techtrack.log"
	c.LogLevel = "info"
}

// Validate reports settings the client cannot start with.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api base url is required")
	}
	if c.HealthCheck != HealthCheckHTTP && c.HealthCheck != HealthCheckGRPC {
		return fmt.Errorf("unknown health check %q, want %s or %s", c.HealthCheck, HealthCheckHTTP, HealthCheckGRPC)
	}
	if c.HealthCheck == HealthCheckGRPC && c.GRPCHealthAddr == "" {
		return fmt.Errorf("grpc health check needs an address")
	}
	if c.OnlineCheckInterval <= 0 || c.SyncInterval <= 0 {
		return fmt.Errorf("check and sync intervals must be positive")
	}
	if c.MaxConcurrentLineages < 1 {
		return fmt.Errorf("max concurrent lineages must be at least 1")
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("retry max delay %s is below base delay %s", c.RetryMaxDelay, c.RetryBaseDelay)
	}
	return nil
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones. It panics on unreadable or invalid settings.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}
