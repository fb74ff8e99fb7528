// Package config loads process configuration from flags and environment
// variables, flags taking precedence.
package config

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all daemon configuration.
type Config struct {
	Interfaces  []string
	ControlAddr string
	DBPath      string
	DwellTime   time.Duration
	Debug       bool
	MockMode    bool
}

// Load parses command line flags and environment variables into a Config.
func Load() *Config {
	cfg := &Config{}

	ifaceStr := getEnv("NET80211_INTERFACE", "wlan0")
	cfg.ControlAddr = getEnv("NET80211_ADDR", ":8088")
	cfg.DBPath = getEnv("NET80211_DB", getDefaultDBPath())
	cfg.MockMode = getEnvBool("NET80211_MOCK", false)
	dwellMillis := int(getEnvFloat("NET80211_DWELL_MS", 100))

	flag.StringVar(&ifaceStr, "i", ifaceStr, "Monitor-mode interface(s), comma separated")
	flag.StringVar(&cfg.ControlAddr, "addr", cfg.ControlAddr, "Control surface HTTP/WebSocket address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the SQLite history database")
	flag.BoolVar(&cfg.MockMode, "mock", cfg.MockMode, "Run against a simulated driver instead of a real interface")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable verbose debug logging")
	flag.IntVar(&dwellMillis, "dwell", dwellMillis, "Scan per-channel dwell time in milliseconds")

	flag.Parse()

	cfg.Interfaces = parseInterfaces(ifaceStr)
	cfg.DwellTime = time.Duration(dwellMillis) * time.Millisecond

	return cfg
}

func parseInterfaces(s string) []string {
	var ifaces []string
	if s == "" {
		return ifaces
	}
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			ifaces = append(ifaces, trimmed)
		}
	}
	return ifaces
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getDefaultDBPath returns the default history database path under the
// user's home directory, creating the directory if needed.
func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("warning: could not get user home directory, using current dir: %v", err)
		return "net80211.db"
	}

	dir := filepath.Join(home, ".net80211")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("warning: could not create %s, using current dir: %v", dir, err)
		return "net80211.db"
	}

	return filepath.Join(dir, "station.db")
}
