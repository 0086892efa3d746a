package config

import (
	"encoding/json"
	"os"
)

type Config struct {
	Bot       BotConfig       `json:"bot"`
	Database  DatabaseConfig  `json:"database"`
	Detection DetectionConfig `json:"detection"`
	Restore   RestoreConfig   `json:"restore"`
	Network   NetworkConfig   `json:"network"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

type BotConfig struct {
	Token    string `json:"token"`
	ClientID string `json:"client_id"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type DetectionConfig struct {
	QueueSize       int `json:"queue_size"`
	AuditCacheTTLMs int `json:"audit_cache_ttl_ms"`
}

type RestoreConfig struct {
	MaxRetries    int `json:"max_retries"`
	BackoffMs     int `json:"backoff_ms"`
	ItemTimeoutMs int `json:"item_timeout_ms"`
}

type NetworkConfig struct {
	HTTPPoolSize int    `json:"http_pool_size"`
	APIBaseURL   string `json:"api_base_url"`
	ListenAddr   string `json:"listen_addr"`
}

type RuntimeConfig struct {
	DetectorCPU int    `json:"detector_cpu"`
	LogPath     string `json:"log_path"`
	LogLevel    string `json:"log_level"`
}

var GlobalConfig *Config

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	GlobalConfig = &cfg
	return &cfg, nil
}

func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		cfg = DefaultConfig()
		applyEnv(cfg)
		GlobalConfig = cfg
	}
	return cfg
}

func applyEnv(cfg *Config) {
	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		cfg.Bot.Token = token
	}
	if clientID := os.Getenv("CLIENT_ID"); clientID != "" {
		cfg.Bot.ClientID = clientID
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
}

func DefaultConfig() *Config {
	return &Config{
		Bot: BotConfig{},
		Database: DatabaseConfig{
			Path: "nukeguard.db",
		},
		Detection: DetectionConfig{
			QueueSize:       1024,
			AuditCacheTTLMs: 5000,
		},
		Restore: RestoreConfig{
			MaxRetries:    3,
			BackoffMs:     250,
			ItemTimeoutMs: 5000,
		},
		Network: NetworkConfig{
			HTTPPoolSize: 4,
			APIBaseURL:   "https://discord.com/api/v10",
			ListenAddr:   ":8090",
		},
		Runtime: RuntimeConfig{
			DetectorCPU: -1,
			LogPath:     "nukeguard.log",
			LogLevel:    "info",
		},
	}
}

func Get() *Config {
	if GlobalConfig == nil {
		return DefaultConfig()
	}
	return GlobalConfig
}
