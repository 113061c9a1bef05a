package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPath 为指定配置文件路径的环境变量。
const EnvPath = "WALLETLINK_CONFIG"

// Config 描述了 walletd 在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	Networks NetworksConfig `json:"networks" yaml:"networks"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Relay    RelayConfig    `json:"relay" yaml:"relay"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// ServerConfig 控制 API 服务的监听地址与访问令牌。
type ServerConfig struct {
	Address string `json:"address" yaml:"address"`
	// Token 非空时，所有 /api 请求需携带 Bearer 令牌。
	Token string `json:"token" yaml:"token"`
}

// ProviderConfig 描述钱包 Provider 的探测方式。
type ProviderConfig struct {
	// Driver 取值 rpc、simulated 或 none。
	Driver                string          `json:"driver" yaml:"driver"`
	Endpoint              string          `json:"endpoint" yaml:"endpoint"`
	PollIntervalSeconds   int             `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	DialTimeoutSeconds    int             `json:"dial_timeout_seconds" yaml:"dial_timeout_seconds"`
	RequestTimeoutSeconds int             `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	Simulated             SimulatedConfig `json:"simulated" yaml:"simulated"`
}

// SimulatedConfig 为内置模拟钱包的初始状态。
type SimulatedConfig struct {
	Accounts    []string `json:"accounts" yaml:"accounts"`
	ChainID     uint64   `json:"chain_id" yaml:"chain_id"`
	KnownChains []uint64 `json:"known_chains" yaml:"known_chains"`
	Authorized  bool     `json:"authorized" yaml:"authorized"`
}

// NetworksConfig 指向额外的网络描述文件。
type NetworksConfig struct {
	File string `json:"file" yaml:"file"`
}

// JournalConfig 描述操作流水的存储后端。
type JournalConfig struct {
	Driver                 string `json:"driver" yaml:"driver"`
	DSN                    string `json:"dsn" yaml:"dsn"`
	Capacity               int    `json:"capacity" yaml:"capacity"`
	MaxOpenConns           int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds"`
}

// RelayConfig 描述会话快照的转发目标。
type RelayConfig struct {
	Driver   string         `json:"driver" yaml:"driver"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// RedisConfig 为 Redis 转发配置。
type RedisConfig struct {
	Address    string `json:"address" yaml:"address"`
	Username   string `json:"username" yaml:"username"`
	Password   string `json:"password" yaml:"password"`
	DB         int    `json:"db" yaml:"db"`
	Prefix     string `json:"prefix" yaml:"prefix"`
	TTLSeconds int    `json:"ttl_seconds" yaml:"ttl_seconds"`
}

// RabbitMQConfig 为 RabbitMQ 转发配置。
type RabbitMQConfig struct {
	URL   string `json:"url" yaml:"url"`
	Queue string `json:"queue" yaml:"queue"`
}

// LogConfig 控制日志输出。
type LogConfig struct {
	Level   string      `json:"level" yaml:"level"`
	Format  string      `json:"format" yaml:"format"`
	Outputs []string    `json:"outputs" yaml:"outputs"`
	Audit   AuditConfig `json:"audit" yaml:"audit"`
}

// AuditConfig 控制审计日志。
type AuditConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// Default 返回仅包含默认值的配置，baseDir 用于解析相对路径。
func Default(baseDir string) *Config {
	cfg := &Config{}
	cfg.applyDefaults(baseDir)
	return cfg
}

// ResolvePath 返回显式指定的路径，未指定时读取环境变量。
func ResolvePath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	return os.Getenv(EnvPath)
}

// Load 负责解析指定路径的配置文件，按扩展名选择 YAML 或 JSON。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &cfg)
	default:
		err = json.Unmarshal(content, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查驱动取值是否合法。
func (c *Config) Validate() error {
	switch c.Provider.Driver {
	case "rpc", "simulated", "none":
	default:
		return fmt.Errorf("不支持的 provider 驱动: %s", c.Provider.Driver)
	}
	switch c.Journal.Driver {
	case "memory":
	case "mysql":
		if strings.TrimSpace(c.Journal.DSN) == "" {
			return errors.New("journal 使用 mysql 时必须配置 dsn")
		}
	default:
		return fmt.Errorf("不支持的 journal 驱动: %s", c.Journal.Driver)
	}
	switch c.Relay.Driver {
	case "none":
	case "redis":
		if strings.TrimSpace(c.Relay.Redis.Address) == "" {
			return errors.New("relay 使用 redis 时必须配置 address")
		}
	case "rabbitmq":
		if strings.TrimSpace(c.Relay.RabbitMQ.URL) == "" {
			return errors.New("relay 使用 rabbitmq 时必须配置 url")
		}
	default:
		return fmt.Errorf("不支持的 relay 驱动: %s", c.Relay.Driver)
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8645"
	}

	c.Provider.Driver = strings.ToLower(strings.TrimSpace(c.Provider.Driver))
	if c.Provider.Driver == "" {
		c.Provider.Driver = "rpc"
	}
	if c.Provider.Endpoint == "" && c.Provider.Driver == "rpc" {
		c.Provider.Endpoint = "ws://127.0.0.1:1248"
	}
	if c.Provider.PollIntervalSeconds <= 0 {
		c.Provider.PollIntervalSeconds = 2
	}
	if c.Provider.DialTimeoutSeconds <= 0 {
		c.Provider.DialTimeoutSeconds = 5
	}

	if c.Networks.File != "" && !filepath.IsAbs(c.Networks.File) {
		c.Networks.File = filepath.Join(baseDir, c.Networks.File)
	}

	c.Journal.Driver = strings.ToLower(strings.TrimSpace(c.Journal.Driver))
	if c.Journal.Driver == "" {
		c.Journal.Driver = "memory"
	}
	if c.Journal.Capacity <= 0 {
		c.Journal.Capacity = 512
	}
	if c.Journal.MaxOpenConns <= 0 {
		c.Journal.MaxOpenConns = 10
	}
	if c.Journal.MaxIdleConns <= 0 {
		c.Journal.MaxIdleConns = 5
	}
	if c.Journal.ConnMaxLifetimeSeconds <= 0 {
		c.Journal.ConnMaxLifetimeSeconds = 300
	}

	c.Relay.Driver = strings.ToLower(strings.TrimSpace(c.Relay.Driver))
	if c.Relay.Driver == "" {
		c.Relay.Driver = "none"
	}
	if c.Relay.Redis.Prefix == "" {
		c.Relay.Redis.Prefix = "walletlink:session"
	}
	if c.Relay.Redis.TTLSeconds <= 0 {
		c.Relay.Redis.TTLSeconds = 3600
	}
	if c.Relay.RabbitMQ.Queue == "" {
		c.Relay.RabbitMQ.Queue = "walletlink.session"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Audit.Enabled {
		if c.Log.Audit.Path == "" {
			c.Log.Audit.Path = filepath.Join(baseDir, "logs", "audit.log")
		} else if !filepath.IsAbs(c.Log.Audit.Path) {
			c.Log.Audit.Path = filepath.Join(baseDir, c.Log.Audit.Path)
		}
	}
}
