package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lorawan-server/lrwphy/internal/decoder"
	"github.com/lorawan-server/lrwphy/internal/metrics"
	"github.com/lorawan-server/lrwphy/internal/models"
	"github.com/lorawan-server/lrwphy/pkg/lorawan"
)

// Forwarder receives every decode result, e.g. an HTTP or MQTT integration
type Forwarder interface {
	Forward(ctx context.Context, msg *models.DecodeResultMessage) error
}

// Processor turns gateway uplink messages into decode results
type Processor struct {
	service    *decoder.Service
	prefix     string
	forwarders []Forwarder
}

// NewProcessor creates a processor publishing results under prefix
func NewProcessor(service *decoder.Service, prefix string, forwarders ...Forwarder) *Processor {
	if prefix == "" {
		prefix = "decoder"
	}
	return &Processor{
		service:    service,
		prefix:     prefix,
		forwarders: forwarders,
	}
}

// ResultSubject returns the subject a gateway's results are published on
func (p *Processor) ResultSubject(gatewayID string) string {
	return fmt.Sprintf("%s.%s.frame", p.prefix, gatewayID)
}

// HandleMessage decodes one JSON gateway message and returns the result
// subject and the encoded result. Frames that fail to decode still produce
// a result carrying the error kind.
func (p *Processor) HandleMessage(ctx context.Context, data []byte) (string, []byte, error) {
	var rx models.GatewayRXMessage
	if err := json.Unmarshal(data, &rx); err != nil {
		metrics.NATSMessage("invalid").Inc()
		return "", nil, fmt.Errorf("unmarshal gateway message: %w", err)
	}
	if rx.GatewayID == "" {
		metrics.NATSMessage("invalid").Inc()
		return "", nil, fmt.Errorf("gateway message without gatewayID")
	}

	msg, err := p.Process(ctx, &rx)
	if err != nil {
		return "", nil, err
	}

	out, err := json.Marshal(msg)
	if err != nil {
		return "", nil, fmt.Errorf("marshal decode result: %w", err)
	}
	return p.ResultSubject(rx.GatewayID), out, nil
}

// Process decodes the PHYPayload of rx and hands the result to the forwarders
func (p *Processor) Process(ctx context.Context, rx *models.GatewayRXMessage) (*models.DecodeResultMessage, error) {
	phy, err := rx.RXPK.PHYPayload()
	if err != nil {
		metrics.NATSMessage("invalid").Inc()
		return nil, fmt.Errorf("rxpk data: %w", err)
	}

	msg := &models.DecodeResultMessage{
		GatewayID: rx.GatewayID,
		Frequency: rx.RXPK.Freq,
		RSSI:      rx.RXPK.RSSI,
		LSNR:      rx.RXPK.LSNR,
		Timestamp: time.Now().Unix(),
	}

	res, decErr := p.service.Decode(ctx, decoder.Request{
		PHYPayload: phy,
		Source:     "gateway",
		GatewayID:  rx.GatewayID,
	})
	if decErr != nil {
		msg.ErrorKind = lorawan.ErrorKind(decErr)
		msg.Error = decErr.Error()
	}

	switch {
	case res == nil:
		metrics.NATSMessage("error").Inc()
	case decErr != nil:
		metrics.NATSMessage("partial").Inc()
	default:
		metrics.NATSMessage("decoded").Inc()
	}

	if res != nil {
		frame, err := json.Marshal(res.Frame)
		if err != nil {
			return nil, fmt.Errorf("marshal frame: %w", err)
		}
		msg.Frame = frame
		msg.Object = res.Object
		msg.MType = res.Frame.MHDR.MType.String()
		if m := res.Frame.MACPayload; m != nil {
			msg.DevAddr = m.FHDR.DevAddr.String()
		}
	}

	for _, f := range p.forwarders {
		if err := f.Forward(ctx, msg); err != nil {
			log.Error().Err(err).Str("gateway", rx.GatewayID).Msg("转发解码结果失败")
		}
	}

	return msg, nil
}
