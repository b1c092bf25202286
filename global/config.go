package global

import (
	"os"
	"time"

	"PPulse/logger"

	"gopkg.in/yaml.v3"
)

// AppConfig is the process-wide configuration, loaded once from yaml at boot.
type AppConfig struct {
	NodeID int64 `yaml:"node_id"`
	Port   int   `yaml:"port"`

	// AdminToken guards the admin HTTP surface. Empty disables the check.
	AdminToken string `yaml:"admin_token"`

	Mongo struct {
		Uri         string `yaml:"uri"`
		Database    string `yaml:"database"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		MaxPoolSize int    `yaml:"max_pool_size"`
		MaxRetry    int    `yaml:"max_retry"`
	} `yaml:"mongo"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Nats struct {
		Servers []string `yaml:"servers"`
		Name    string   `yaml:"name"`
		Queue   string   `yaml:"queue"`
	} `yaml:"nats"`

	Push struct {
		CredentialsFile string `yaml:"credentials_file"`
		ProjectID       string `yaml:"project_id"`
	} `yaml:"push"`

	OSS struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
	} `yaml:"oss"`

	// Per-action admission limits, sliding window.
	RateLimits map[string]RateLimit `yaml:"rate_limits"`

	Presence struct {
		HeartbeatMinutes int `yaml:"heartbeat_minutes"` // coarse mirror refresh
		TTLSeconds       int `yaml:"ttl_seconds"`       // ephemeral record backstop
	} `yaml:"presence"`

	Fanout struct {
		Workers   int `yaml:"workers"`
		QueueSize int `yaml:"queue_size"`
	} `yaml:"fanout"`

	StoreTimeoutSeconds int `yaml:"store_timeout_seconds"`
}

type RateLimit struct {
	Limit    int `yaml:"limit"`
	WindowMS int `yaml:"window_ms"`
}

var Config AppConfig

const defaultConfigPath = "config/app.yaml"

// Init loads the yaml config, CONFIG_PATH overrides the default location.
func Init() error {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, &Config); err != nil {
		return err
	}
	Config.applyDefaults()
	logger.Infof("config loaded from %s", path)
	return nil
}

func (c *AppConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8090
	}
	if c.Mongo.MaxPoolSize == 0 {
		c.Mongo.MaxPoolSize = 20
	}
	if c.Mongo.MaxRetry == 0 {
		c.Mongo.MaxRetry = 3
	}
	if c.Presence.HeartbeatMinutes == 0 {
		c.Presence.HeartbeatMinutes = 20
	}
	if c.Presence.TTLSeconds == 0 {
		c.Presence.TTLSeconds = 300
	}
	if c.Fanout.Workers == 0 {
		c.Fanout.Workers = 8
	}
	if c.Fanout.QueueSize == 0 {
		c.Fanout.QueueSize = 1024
	}
	if c.StoreTimeoutSeconds == 0 {
		c.StoreTimeoutSeconds = 5
	}
	if c.RateLimits == nil {
		c.RateLimits = map[string]RateLimit{}
	}
	for _, k := range []string{"message", "call", "friend_request"} {
		if _, ok := c.RateLimits[k]; !ok {
			c.RateLimits[k] = defaultRateLimit(k)
		}
	}
}

func defaultRateLimit(action string) RateLimit {
	switch action {
	case "call":
		return RateLimit{Limit: 5, WindowMS: int(time.Minute / time.Millisecond)}
	case "friend_request":
		return RateLimit{Limit: 20, WindowMS: int(time.Hour / time.Millisecond)}
	default:
		return RateLimit{Limit: 60, WindowMS: int(time.Minute / time.Millisecond)}
	}
}

// StoreTimeout bounds every external store call.
func StoreTimeout() time.Duration {
	if Config.StoreTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(Config.StoreTimeoutSeconds) * time.Second
}
