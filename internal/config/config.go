package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Admin    AdminConfig    `yaml:"admin"`
	Node     NodeConfig     `yaml:"node"`
	Cron     CronConfig     `yaml:"cron"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Email    string `yaml:"email"`
}

// NodeConfig identifies this panel instance. Cron jobs carry a node_id and
// the API filters on it; execution is always local to this process.
type NodeConfig struct {
	ID string `yaml:"id"`
}

type CronConfig struct {
	// TickInterval is how often the scheduler scans for due jobs. Finer
	// granularity trades CPU for firing precision.
	TickInterval time.Duration `yaml:"tick_interval"`
	// DefaultTimeout applies to jobs created without an explicit timeout.
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	// MaxConcurrent bounds simultaneous executions. Zero means unlimited.
	MaxConcurrent int `yaml:"max_concurrent"`
	// OutputLimit caps captured stdout/stderr per run, in bytes.
	OutputLimit int `yaml:"output_limit"`
	// LogDefaultLimit and LogMaxLimit bound the logs listing endpoint.
	LogDefaultLimit int `yaml:"log_default_limit"`
	LogMaxLimit     int `yaml:"log_max_limit"`
	// DrainTimeout bounds how long shutdown waits for in-flight runs.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

var AppConfig *Config

func Load(path string) (*Config, error) {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "local"
	}

	config := &Config{
		Server: ServerConfig{
			Port: 8989,
			Host: "0.0.0.0",
		},
		Database: DatabaseConfig{
			Path: "./data/vpanel.db",
		},
		JWT: JWTConfig{
			Secret: "change-this-secret-in-production",
			Expiry: 24 * time.Hour,
		},
		Admin: AdminConfig{
			Username: "admin",
			Password: "admin123",
			Email:    "admin@localhost",
		},
		Node: NodeConfig{
			ID: hostname,
		},
		Cron: CronConfig{
			TickInterval:    5 * time.Second,
			DefaultTimeout:  time.Hour,
			MaxConcurrent:   0,
			OutputLimit:     64 * 1024,
			LogDefaultLimit: 50,
			LogMaxLimit:     500,
			DrainTimeout:    30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(config)
			AppConfig = config
			return config, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	applyEnv(config)
	AppConfig = config
	return config, nil
}

func applyEnv(config *Config) {
	if port := os.Getenv("VPANEL_PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil {
			config.Server.Port = p
		}
	}
	if secret := os.Getenv("VPANEL_JWT_SECRET"); secret != "" {
		config.JWT.Secret = secret
	}
	if node := os.Getenv("VPANEL_NODE_ID"); node != "" {
		config.Node.ID = node
	}
	if path := os.Getenv("VPANEL_DB_PATH"); path != "" {
		config.Database.Path = path
	}
}
