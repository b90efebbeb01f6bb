package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lorawan-server/lrwphy/pkg/lorawan"
)

// Config represents the application configuration
type Config struct {
	Log      LogConfig      `yaml:"log"`
	API      APIConfig      `yaml:"api"`
	JWT      JWTConfig      `yaml:"jwt"`
	Users    []UserConfig   `yaml:"users"`
	Database DatabaseConfig `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Integration IntegrationConfig `yaml:"integration"`
	Decoder     DecoderConfig     `yaml:"decoder"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
}

// APIConfig represents API configuration
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret         string        `yaml:"secret"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
}

// UserConfig is an API account; PasswordHash is a bcrypt hash
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	IsAdmin      bool   `yaml:"is_admin"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	UplinkSubject     string        `yaml:"uplink_subject"`
	ResultPrefix      string        `yaml:"result_prefix"`
}

// GatewayConfig is the Semtech UDP listener. An empty UDPBind disables it.
type GatewayConfig struct {
	UDPBind string `yaml:"udp_bind"`
}

// IntegrationConfig represents result forwarding configuration
type IntegrationConfig struct {
	HTTP HTTPIntegrationConfig `yaml:"http"`
	MQTT MQTTIntegrationConfig `yaml:"mqtt"`
}

// HTTPIntegrationConfig posts every decode result to Endpoint
type HTTPIntegrationConfig struct {
	Enabled  bool              `yaml:"enabled"`
	Endpoint string            `yaml:"endpoint"`
	Headers  map[string]string `yaml:"headers"`
	Timeout  time.Duration     `yaml:"timeout"`
}

// MQTTIntegrationConfig publishes every decode result to a broker.
// TopicPattern supports {gateway_id}, {dev_addr} and {m_type}.
type MQTTIntegrationConfig struct {
	Enabled      bool   `yaml:"enabled"`
	BrokerURL    string `yaml:"broker_url"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	ClientID     string `yaml:"client_id"`
	TopicPattern string `yaml:"topic_pattern"`
	QoS          byte   `yaml:"qos"`
	TLS          bool   `yaml:"tls"`
}

// DecoderConfig holds the default key material and decode behaviour
type DecoderConfig struct {
	NwkSKey     string `yaml:"nwkskey"`
	AppSKey     string `yaml:"appskey"`
	AppKey      string `yaml:"appkey"`
	FCntHigh    uint16 `yaml:"fcnt_high"`
	RequireKeys bool   `yaml:"require_keys"`
	CodecScript string `yaml:"codec_script"`
	Verbose     bool   `yaml:"verbose"`
	Persist     bool   `yaml:"persist"`
}

// Keys parses the configured default keys. Empty strings give nil keys.
func (c DecoderConfig) Keys() (nwkSKey, appSKey, appKey *lorawan.AES128Key, err error) {
	if nwkSKey, err = parseKey("nwkskey", c.NwkSKey); err != nil {
		return nil, nil, nil, err
	}
	if appSKey, err = parseKey("appskey", c.AppSKey); err != nil {
		return nil, nil, nil, err
	}
	if appKey, err = parseKey("appkey", c.AppKey); err != nil {
		return nil, nil, nil, err
	}
	return nwkSKey, appSKey, appKey, nil
}

func parseKey(name, s string) (*lorawan.AES128Key, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	key, err := lorawan.ParseAES128Key(s)
	if err != nil {
		return nil, fmt.Errorf("decoder.%s: %w", name, err)
	}
	return &key, nil
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a configuration with defaults and environment overrides applied
func Default() *Config {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	cfg.applyEnvOverrides()
	cfg.setDefaults()
	return cfg
}

// Load loads configuration from file. An empty filename yields Default().
func Load(filename string) (*Config, error) {
	if filename == "" {
		cfg := Default()
		return cfg, cfg.validate()
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Config{Metrics: MetricsConfig{Enabled: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply environment overrides
	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	// 默认密钥
	if key := os.Getenv("LRW_NWKSKEY"); key != "" {
		c.Decoder.NwkSKey = key
	}
	if key := os.Getenv("LRW_APPSKEY"); key != "" {
		c.Decoder.AppSKey = key
	}
	if key := os.Getenv("LRW_APPKEY"); key != "" {
		c.Decoder.AppKey = key
	}
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.API.Port == 0 {
		c.API.Port = 8090
	}
	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = 24 * time.Hour
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 2
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 10
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}
	if c.NATS.UplinkSubject == "" {
		c.NATS.UplinkSubject = "gateway.*.rx"
	}
	if c.NATS.ResultPrefix == "" {
		c.NATS.ResultPrefix = "decoder"
	}
	if c.Integration.HTTP.Timeout == 0 {
		c.Integration.HTTP.Timeout = 30 * time.Second
	}
	if c.Integration.MQTT.ClientID == "" {
		c.Integration.MQTT.ClientID = "lrwphy"
	}
	if c.Integration.MQTT.TopicPattern == "" {
		c.Integration.MQTT.TopicPattern = "lrwphy/{gateway_id}/{dev_addr}/frame"
	}
}

func (c *Config) validate() error {
	if _, _, _, err := c.Decoder.Keys(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}
	if c.Integration.HTTP.Enabled && c.Integration.HTTP.Endpoint == "" {
		return fmt.Errorf("integration.http: endpoint is required")
	}
	if c.Integration.MQTT.Enabled && c.Integration.MQTT.BrokerURL == "" {
		return fmt.Errorf("integration.mqtt: broker_url is required")
	}
	if c.Integration.MQTT.QoS > 2 {
		return fmt.Errorf("integration.mqtt: invalid qos %d", c.Integration.MQTT.QoS)
	}
	for i, u := range c.Users {
		if u.Username == "" || u.PasswordHash == "" {
			return fmt.Errorf("users[%d]: username and password_hash are required", i)
		}
	}
	return nil
}

// PrintConfigSummary 打印配置摘要
func (c *Config) PrintConfigSummary(w io.Writer) {
	fmt.Fprintf(w, "=== LoRaWAN PHY Decoder Configuration ===\n")
	fmt.Fprintf(w, "Log: level=%s format=%s\n", c.Log.Level, c.Log.Format)
	fmt.Fprintf(w, "API: %s (auth %s, %d users)\n", c.API.Addr(), onOff(c.JWT.Secret != ""), len(c.Users))
	fmt.Fprintf(w, "Database: %s\n", configured(c.Database.DSN))
	fmt.Fprintf(w, "NATS: %s (uplink %s, results %s.<gatewayID>.frame)\n",
		configured(c.NATS.URL), c.NATS.UplinkSubject, c.NATS.ResultPrefix)
	if c.Gateway.UDPBind != "" {
		fmt.Fprintf(w, "Gateway UDP: %s\n", c.Gateway.UDPBind)
	}
	fmt.Fprintf(w, "Integrations: http %s, mqtt %s\n",
		onOff(c.Integration.HTTP.Enabled), onOff(c.Integration.MQTT.Enabled))
	fmt.Fprintf(w, "Keys: NwkSKey=%s AppSKey=%s AppKey=%s\n",
		configured(c.Decoder.NwkSKey), configured(c.Decoder.AppSKey), configured(c.Decoder.AppKey))
	fmt.Fprintf(w, "FCnt high: %d\n", c.Decoder.FCntHigh)
	if c.Decoder.CodecScript != "" {
		fmt.Fprintf(w, "Codec: %s\n", c.Decoder.CodecScript)
	}
	fmt.Fprintf(w, "Metrics: %s\n", onOff(c.Metrics.Enabled))
	fmt.Fprintf(w, "==========================================\n")
}

func configured(s string) string {
	if s == "" {
		return "not set"
	}
	return "set"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
