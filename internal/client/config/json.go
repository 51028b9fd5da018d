package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/techtrack/internal/flagx"
	"github.com/dmitrijs2005/techtrack/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "3s" or as integer nanoseconds. Keys missing from the file
// leave the current value untouched.
type JsonConfig struct {
	APIBaseURL            string         `json:"api_base_url"`
	OnlineCheckInterval   timex.Duration `json:"online_check_interval"`
	HealthCheck           string         `json:"health_check"`
	GRPCHealthAddr        string         `json:"grpc_health_addr"`
	DatabasePath          string         `json:"database_path"`
	SyncInterval          timex.Duration `json:"sync_interval"`
	RequestTimeout        timex.Duration `json:"request_timeout"`
	RetryBaseDelay        timex.Duration `json:"retry_base_delay"`
	RetryMaxDelay         timex.Duration `json:"retry_max_delay"`
	MaxConcurrentLineages int            `json:"max_concurrent_lineages"`
	City                  string         `json:"city"`
	LogFile               string         `json:"log_file"`
	LogLevel              string         `json:"log_level"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// The file path comes from -c/-config, or the TECHTRACK_CONFIG environment
// variable (flagx.ConfigPath). Without a path nothing is loaded.
// Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.APIBaseURL, jc.APIBaseURL)
	setString(&cfg.HealthCheck, jc.HealthCheck)
	setString(&cfg.GRPCHealthAddr, jc.GRPCHealthAddr)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.City, jc.City)
	setString(&cfg.LogFile, jc.LogFile)
	setString(&cfg.LogLevel, jc.LogLevel)

	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.SyncInterval, jc.SyncInterval)
	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	setDuration(&cfg.RetryBaseDelay, jc.RetryBaseDelay)
	setDuration(&cfg.RetryMaxDelay, jc.RetryMaxDelay)

	if jc.MaxConcurrentLineages != 0 {
		cfg.MaxConcurrentLineages = jc.MaxConcurrentLineages
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
