package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/techtrack/internal/flagx"
)

var knownFlags = []string{"-a", "-i", "-hc", "-g", "-d", "-s", "-p", "-city", "-l"}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     REST API base url
//	-i int        online check interval in seconds
//	-hc string    health check kind: http or grpc
//	-g string     host:port of the gRPC health endpoint
//	-d string     path of the local database
//	-s int        background sync interval in seconds
//	-p int        lineages synced in parallel
//	-city string  default city
//	-l string     log file
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "REST API base url")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.HealthCheck, "hc", cfg.HealthCheck, "health check: http or grpc")
	fs.StringVar(&cfg.GRPCHealthAddr, "g", cfg.GRPCHealthAddr, "address and port of the gRPC health endpoint")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database file")
	syncInterval := fs.Int("s", int(cfg.SyncInterval.Seconds()), "background sync interval (in seconds)")
	fs.IntVar(&cfg.MaxConcurrentLineages, "p", cfg.MaxConcurrentLineages, "lineages synced in parallel")
	fs.StringVar(&cfg.City, "city", cfg.City, "default city for new records")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
}
