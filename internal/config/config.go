// Package config loads the engine configuration from an optional YAML
// file with environment-variable overrides.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/ChenCXxx/townpass-microservice/internal/dedup"
	"github.com/ChenCXxx/townpass-microservice/internal/hazard"
	"github.com/ChenCXxx/townpass-microservice/internal/push"
	"github.com/ChenCXxx/townpass-microservice/internal/scan"
	"github.com/ChenCXxx/townpass-microservice/internal/watch"
)

// envPrefix namespaces environment overrides, e.g.
// PROXIMITY_HAZARD_BASE_URL overrides hazard.base_url.
const envPrefix = "PROXIMITY"

// Config is the full engine configuration.
type Config struct {
	Server struct {
		ListenAddr string `mapstructure:"listen_addr"`
	} `mapstructure:"server"`

	Hazard struct {
		BaseURL         string        `mapstructure:"base_url"`
		RequestTimeout  time.Duration `mapstructure:"request_timeout"`
		RefreshInterval time.Duration `mapstructure:"refresh_interval"`
		RadiusMeters    float64       `mapstructure:"radius_meters"`
	} `mapstructure:"hazard"`

	Push struct {
		BaseURL           string        `mapstructure:"base_url"`
		HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
		ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	} `mapstructure:"push"`

	Dedup struct {
		AnnounceWindow time.Duration `mapstructure:"announce_window"`
		VoiceCooldown  time.Duration `mapstructure:"voice_cooldown"`
	} `mapstructure:"dedup"`

	Scan struct {
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"scan"`

	Location struct {
		// Enabled stands in for the host's location-service switch in
		// the daemon deployment.
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"location"`

	Store struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"store"`
}

// Load reads config.yaml from the given directory (current directory
// when empty). A missing file is fine: defaults plus environment
// overrides apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path == "" {
		path = "."
	}
	v.AddConfigPath(path)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8090")

	v.SetDefault("hazard.base_url", "http://localhost:8000")
	v.SetDefault("hazard.request_timeout", hazard.DefaultRequestTimeout)
	v.SetDefault("hazard.refresh_interval", watch.DefaultRefreshInterval)
	v.SetDefault("hazard.radius_meters", float64(watch.DefaultRadiusMeters))

	v.SetDefault("push.base_url", "ws://localhost:8000")
	v.SetDefault("push.heartbeat_interval", push.DefaultHeartbeatInterval)
	v.SetDefault("push.reconnect_delay", push.DefaultReconnectDelay)

	v.SetDefault("dedup.announce_window", dedup.DefaultAnnounceWindow)
	v.SetDefault("dedup.voice_cooldown", dedup.DefaultVoiceCooldown)

	v.SetDefault("scan.interval", scan.DefaultInterval)

	v.SetDefault("location.enabled", true)

	v.SetDefault("store.dir", "./data")
}
