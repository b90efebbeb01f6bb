package server

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorawan-server/lrwphy/internal/config"
	"github.com/lorawan-server/lrwphy/internal/decoder"
	"github.com/lorawan-server/lrwphy/internal/metrics"
	"github.com/lorawan-server/lrwphy/internal/models"
)

type recordingForwarder struct {
	msgs []*models.DecodeResultMessage
	err  error
}

func (f *recordingForwarder) Forward(ctx context.Context, msg *models.DecodeResultMessage) error {
	f.msgs = append(f.msgs, msg)
	return f.err
}

func gatewayMessage(t *testing.T, gatewayID, phyHex string) []byte {
	t.Helper()
	phy, err := hex.DecodeString(phyHex)
	require.NoError(t, err)

	b, err := json.Marshal(models.GatewayRXMessage{
		GatewayID: gatewayID,
		RXPK: models.RXPK{
			Freq: 868.1,
			RSSI: -57,
			LSNR: 9.5,
			Data: base64.StdEncoding.EncodeToString(phy),
		},
		Timestamp: 1700000000,
	})
	require.NoError(t, err)
	return b
}

func newProcessor(t *testing.T, forwarders ...Forwarder) *Processor {
	t.Helper()
	svc, err := decoder.NewService(config.DecoderConfig{}, nil, nil)
	require.NoError(t, err)
	return NewProcessor(svc, "", forwarders...)
}

func TestHandleMessage(t *testing.T) {
	fwd := &recordingForwarder{err: errors.New("integration down")}
	p := newProcessor(t, fwd)
	before := testutil.ToFloat64(metrics.NATSMessage("decoded"))

	subject, out, err := p.HandleMessage(context.Background(), gatewayMessage(t, "0102030405060708", "40C1D25201A5050003070703120864FE226A9E"))
	require.NoError(t, err)
	assert.Equal(t, "decoder.0102030405060708.frame", subject)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.NATSMessage("decoded")))

	var msg models.DecodeResultMessage
	require.NoError(t, json.Unmarshal(out, &msg))
	assert.Equal(t, "0102030405060708", msg.GatewayID)
	assert.Equal(t, 868.1, msg.Frequency)
	assert.Equal(t, -57, msg.RSSI)
	assert.Empty(t, msg.ErrorKind)
	assert.Equal(t, "UnconfirmedDataUp", msg.MType)
	assert.Equal(t, "0152d2c1", msg.DevAddr)

	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Frame, &frame))
	assert.Equal(t, "fe226a9e", frame["mic"])

	// a failing forwarder does not fail the message
	require.Len(t, fwd.msgs, 1)
	assert.Equal(t, "0102030405060708", fwd.msgs[0].GatewayID)
}

func TestHandleMessageDecodeErrors(t *testing.T) {
	p := NewProcessor(nil, "sniffer")
	svc, err := decoder.NewService(config.DecoderConfig{}, nil, nil)
	require.NoError(t, err)
	p.service = svc

	subject, out, err := p.HandleMessage(context.Background(), gatewayMessage(t, "aa", "40010203"))
	require.NoError(t, err)
	assert.Equal(t, "sniffer.aa.frame", subject)

	var msg models.DecodeResultMessage
	require.NoError(t, json.Unmarshal(out, &msg))
	assert.Equal(t, "truncated_frame", msg.ErrorKind)
	assert.Empty(t, msg.Frame)

	_, out, err = p.HandleMessage(context.Background(), gatewayMessage(t, "aa", "e0aabb01020304"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(out, &msg))
	assert.Equal(t, "unsupported_frame_type", msg.ErrorKind)
	assert.NotEmpty(t, msg.Frame)
}

func TestHandleMessageInvalid(t *testing.T) {
	p := newProcessor(t)
	before := testutil.ToFloat64(metrics.NATSMessage("invalid"))

	_, _, err := p.HandleMessage(context.Background(), []byte("{"))
	assert.Error(t, err)

	_, _, err = p.HandleMessage(context.Background(), []byte(`{"rxpk":{"data":"QAE="}}`))
	assert.ErrorContains(t, err, "gatewayID")

	_, _, err = p.HandleMessage(context.Background(), []byte(`{"gatewayID":"aa","rxpk":{"data":"!!"}}`))
	assert.ErrorContains(t, err, "rxpk data")

	_, _, err = p.HandleMessage(context.Background(), []byte(`{"gatewayID":"aa","rxpk":{}}`))
	assert.Error(t, err)

	assert.Equal(t, before+4, testutil.ToFloat64(metrics.NATSMessage("invalid")))
}
