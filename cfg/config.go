package cfg

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cespare/xxhash/v2"
	"github.com/denisbrodbeck/machineid"
	"github.com/gobwas/glob"
	"github.com/maxpert/topicmon/topic"
	"github.com/rs/zerolog/log"
)

// NotifierConfiguration selects the wakeup primitive behind the monitor
type NotifierConfiguration struct {
	Backend          string `toml:"backend"`           // "auto", "eventfd", "pipe" or "channel"
	ForceNonBlocking bool   `toml:"force_nonblocking"` // Poll before read; for tracing/sanitizer environments
}

// SignalsConfiguration controls which OS signals are relayed to topics
type SignalsConfiguration struct {
	Relay  bool     `toml:"relay"`
	Topics []string `toml:"topics"` // Topics whose signals are relayed; empty = all
}

// WatchConfiguration controls the daemon's generation watcher
type WatchConfiguration struct {
	Topics            []string `toml:"topics"` // Topics to log changes for; empty = all
	CollectIntervalMS int      `toml:"collect_interval_ms"`
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// AdminConfiguration for the HTTP admin endpoints
type AdminConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
	AllowPost   bool   `toml:"allow_post"` // Allow POST /topics/{topic}/post
	Secret      string `toml:"secret"`     // Pre-shared key; empty disables auth
}

// Configuration is the main configuration structure
type Configuration struct {
	InstanceID uint64 `toml:"instance_id"`

	Notifier   NotifierConfiguration   `toml:"notifier"`
	Signals    SignalsConfiguration    `toml:"signals"`
	Watch      WatchConfiguration      `toml:"watch"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	Admin      AdminConfiguration      `toml:"admin"`
}

// Command line flags
var (
	ConfigPathFlag  = flag.String("config", "topicmon.toml", "Path to configuration file")
	NotifierFlag    = flag.String("notifier", "", "Notifier backend (overrides config)")
	VerboseFlag     = flag.Bool("verbose", false, "Enable debug logging (overrides config)")
	AdminPortFlag   = flag.Int("admin-port", 0, "Admin HTTP port (overrides config)")
	InstanceIDFlag  = flag.Uint64("instance-id", 0, "Instance ID (overrides config, 0=auto)")
	NonBlockingFlag = flag.Bool("force-nonblocking", false, "Poll before reading the notifier pipe")
)

// Default configuration
var Config = &Configuration{
	InstanceID: 0, // Auto-generate

	Notifier: NotifierConfiguration{
		Backend:          "auto",
		ForceNonBlocking: false,
	},

	Signals: SignalsConfiguration{
		Relay:  true,
		Topics: []string{},
	},

	Watch: WatchConfiguration{
		Topics:            []string{},
		CollectIntervalMS: 5000,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
	},

	Admin: AdminConfiguration{
		Enabled:     true,
		BindAddress: "127.0.0.1",
		Port:        9190,
		AllowPost:   false,
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	// Load from file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *NotifierFlag != "" {
		Config.Notifier.Backend = *NotifierFlag
	}
	if *VerboseFlag {
		Config.Logging.Verbose = true
	}
	if *AdminPortFlag != 0 {
		Config.Admin.Port = *AdminPortFlag
	}
	if *InstanceIDFlag != 0 {
		Config.InstanceID = *InstanceIDFlag
	}
	if *NonBlockingFlag {
		Config.Notifier.ForceNonBlocking = true
	}

	// Auto-generate instance ID if not set
	if Config.InstanceID == 0 {
		var err error
		Config.InstanceID, err = generateInstanceID()
		if err != nil {
			return fmt.Errorf("failed to generate instance ID: %w", err)
		}
		log.Info().Uint64("instance_id", Config.InstanceID).Msg("Auto-generated instance ID")
	}

	return nil
}

// generateInstanceID derives a stable ID from the machine ID and process ID
func generateInstanceID() (uint64, error) {
	id, err := machineid.ProtectedID("topicmon")
	if err != nil {
		return 0, err
	}

	return xxhash.Sum64String(id + "/" + strconv.Itoa(os.Getpid())), nil
}

// IsAdminAuthEnabled returns true if admin requests must carry the secret
func IsAdminAuthEnabled() bool {
	return Config.Admin.Secret != ""
}

// GetAdminSecret returns the admin pre-shared key
func GetAdminSecret() string {
	return Config.Admin.Secret
}

// Validate checks configuration for errors
func Validate() error {
	switch Config.Notifier.Backend {
	case "auto", "eventfd", "pipe", "channel":
	case "":
		Config.Notifier.Backend = "auto"
	default:
		return fmt.Errorf("invalid notifier backend: %s", Config.Notifier.Backend)
	}

	if Config.Notifier.ForceNonBlocking {
		switch Config.Notifier.Backend {
		case "eventfd", "channel":
			return fmt.Errorf("force_nonblocking requires the pipe backend, got %s", Config.Notifier.Backend)
		}
	}

	if _, err := ParseTopics(Config.Signals.Topics); err != nil {
		return fmt.Errorf("invalid signals.topics: %w", err)
	}

	if _, err := ParseTopics(Config.Watch.Topics); err != nil {
		return fmt.Errorf("invalid watch.topics: %w", err)
	}

	if Config.Watch.CollectIntervalMS < 1 {
		return fmt.Errorf("watch collect interval must be >= 1ms")
	}

	if Config.Logging.Format != "console" && Config.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s", Config.Logging.Format)
	}

	if Config.Admin.Enabled && (Config.Admin.Port < 1 || Config.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
	}

	return nil
}

// ParseTopics resolves topic names or glob patterns (e.g. "sig*") into a set.
// An empty list means every topic. A pattern matching no topic is an error.
func ParseTopics(patterns []string) (topic.Set, error) {
	if len(patterns) == 0 {
		return topic.AllSet(), nil
	}

	var set topic.Set
	for _, pattern := range patterns {
		g, err := glob.Compile(strings.ToLower(strings.TrimSpace(pattern)))
		if err != nil {
			return 0, fmt.Errorf("invalid topic pattern %q: %w", pattern, err)
		}

		matched := false
		for _, t := range topic.All() {
			if g.Match(t.String()) {
				set |= topic.SetOf(t)
				matched = true
			}
		}
		if !matched {
			return 0, fmt.Errorf("topic pattern %q matches no topic", pattern)
		}
	}
	return set, nil
}
