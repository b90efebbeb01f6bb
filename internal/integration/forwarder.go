package integration

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/lorawan-server/lrwphy/internal/config"
	"github.com/lorawan-server/lrwphy/internal/models"
)

// mqttTimeout bounds connect and publish
const mqttTimeout = 10 * time.Second

// HTTPForwarder 转发解码结果到 HTTP
type HTTPForwarder struct {
	cfg        config.HTTPIntegrationConfig
	httpClient *http.Client
}

// NewHTTPForwarder creates the HTTP integration
func NewHTTPForwarder(cfg config.HTTPIntegrationConfig) *HTTPForwarder {
	return &HTTPForwarder{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Forward posts msg as JSON to the endpoint
func (f *HTTPForwarder) Forward(ctx context.Context, msg *models.DecodeResultMessage) error {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal forward data: %w", err)
	}

	// 创建请求
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.Endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	// 设置 headers
	req.Header.Set("Content-Type", "application/json")
	for k, v := range f.cfg.Headers {
		req.Header.Set(k, v)
	}

	// 发送请求
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("forward to %s: %w", f.cfg.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("forward to %s: status %d", f.cfg.Endpoint, resp.StatusCode)
	}

	log.Debug().
		Str("gateway", msg.GatewayID).
		Str("endpoint", f.cfg.Endpoint).
		Msg("解码结果已转发到 HTTP")
	return nil
}

// MQTTForwarder 转发解码结果到 MQTT
type MQTTForwarder struct {
	cfg    config.MQTTIntegrationConfig
	client mqtt.Client
}

// NewMQTTForwarder connects to the broker
func NewMQTTForwarder(cfg config.MQTTIntegrationConfig) (*MQTTForwarder, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(mqttTimeout)
	opts.SetKeepAlive(30 * time.Second)

	// 连接处理
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Str("broker", cfg.BrokerURL).Msg("MQTT client connected")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Error().Err(err).Str("broker", cfg.BrokerURL).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.BrokerURL, err)
	}

	return &MQTTForwarder{cfg: cfg, client: client}, nil
}

// Topic fills the topic pattern for msg
func Topic(pattern string, msg *models.DecodeResultMessage) string {
	devAddr := msg.DevAddr
	if devAddr == "" {
		devAddr = "none"
	}
	mType := msg.MType
	if mType == "" {
		mType = "unknown"
	}
	return strings.NewReplacer(
		"{gateway_id}", msg.GatewayID,
		"{dev_addr}", devAddr,
		"{m_type}", mType,
	).Replace(pattern)
}

// Forward publishes msg on the topic for its gateway and device
func (f *MQTTForwarder) Forward(ctx context.Context, msg *models.DecodeResultMessage) error {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal mqtt data: %w", err)
	}

	topic := Topic(f.cfg.TopicPattern, msg)

	// 发布消息
	token := f.client.Publish(topic, f.cfg.QoS, false, jsonData)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("mqtt publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", topic, err)
	}

	log.Debug().
		Str("gateway", msg.GatewayID).
		Str("topic", topic).
		Msg("解码结果已转发到 MQTT")
	return nil
}

// Close disconnects from the broker
func (f *MQTTForwarder) Close() {
	if f.client.IsConnected() {
		f.client.Disconnect(250)
	}
	log.Info().Str("broker", f.cfg.BrokerURL).Msg("MQTT client disconnected")
}
