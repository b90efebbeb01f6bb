package integration

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorawan-server/lrwphy/internal/config"
	"github.com/lorawan-server/lrwphy/internal/models"
)

func testMessage() *models.DecodeResultMessage {
	return &models.DecodeResultMessage{
		GatewayID: "aa555a0000000101",
		MType:     "UnconfirmedDataUp",
		DevAddr:   "0152d2c1",
		Frame:     json.RawMessage(`{"mic":"fe226a9e"}`),
		Timestamp: 1700000000,
	}
}

func TestHTTPForwarder(t *testing.T) {
	var got models.DecodeResultMessage
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Token")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	f := NewHTTPForwarder(config.HTTPIntegrationConfig{
		Endpoint: srv.URL,
		Headers:  map[string]string{"X-Token": "abc"},
		Timeout:  time.Second,
	})
	require.NoError(t, f.Forward(context.Background(), testMessage()))
	assert.Equal(t, "abc", header)
	assert.Equal(t, "0152d2c1", got.DevAddr)
	assert.JSONEq(t, `{"mic":"fe226a9e"}`, string(got.Frame))
}

func TestHTTPForwarderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewHTTPForwarder(config.HTTPIntegrationConfig{Endpoint: srv.URL, Timeout: time.Second})
	assert.ErrorContains(t, f.Forward(context.Background(), testMessage()), "status 502")
}

func TestTopic(t *testing.T) {
	pattern := "lrwphy/{gateway_id}/{dev_addr}/{m_type}"
	assert.Equal(t, "lrwphy/aa555a0000000101/0152d2c1/UnconfirmedDataUp", Topic(pattern, testMessage()))
	assert.Equal(t, "lrwphy/gw/none/unknown", Topic(pattern, &models.DecodeResultMessage{GatewayID: "gw"}))
}

type fakeToken struct {
	mqtt.Token
	err error
}

func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

type fakeClient struct {
	mqtt.Client
	topic   string
	qos     byte
	payload []byte
	err     error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topic, c.qos = topic, qos
	c.payload = payload.([]byte)
	return &fakeToken{err: c.err}
}

func TestMQTTForwarder(t *testing.T) {
	client := &fakeClient{}
	f := &MQTTForwarder{
		cfg:    config.MQTTIntegrationConfig{TopicPattern: "up/{dev_addr}", QoS: 1},
		client: client,
	}

	require.NoError(t, f.Forward(context.Background(), testMessage()))
	assert.Equal(t, "up/0152d2c1", client.topic)
	assert.Equal(t, byte(1), client.qos)

	var got models.DecodeResultMessage
	require.NoError(t, json.Unmarshal(client.payload, &got))
	assert.Equal(t, "aa555a0000000101", got.GatewayID)

	client.err = errors.New("not connected")
	assert.ErrorContains(t, f.Forward(context.Background(), testMessage()), "not connected")
}
