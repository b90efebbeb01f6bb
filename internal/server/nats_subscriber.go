package server

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/lorawan-server/lrwphy/internal/config"
)

// NATSSubscriber NATS subscriber
type NATSSubscriber struct {
	nc        *nats.Conn
	processor *Processor
	cfg       config.NATSConfig
	subs      []*nats.Subscription
}

// NewNATSSubscriber creates NATS subscriber
func NewNATSSubscriber(nc *nats.Conn, processor *Processor, cfg config.NATSConfig) *NATSSubscriber {
	return &NATSSubscriber{
		nc:        nc,
		processor: processor,
		cfg:       cfg,
		subs:      make([]*nats.Subscription, 0),
	}
}

// Start starts subscriptions and blocks until ctx is done
func (s *NATSSubscriber) Start(ctx context.Context) error {
	// Gateway uplinks from the bridge
	sub, err := s.nc.Subscribe(s.cfg.UplinkSubject, func(msg *nats.Msg) {
		s.handleGatewayUplink(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe gateway uplink: %w", err)
	}
	s.subs = append(s.subs, sub)

	log.Info().
		Str("subject", s.cfg.UplinkSubject).
		Int("subscriptions", len(s.subs)).
		Msg("NATS subscriber started")

	<-ctx.Done()

	// Unsubscribe
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}

	return ctx.Err()
}

// handleGatewayUplink decodes the uplink and publishes the result
func (s *NATSSubscriber) handleGatewayUplink(ctx context.Context, msg *nats.Msg) {
	log.Debug().
		Str("subject", msg.Subject).
		Int("size", len(msg.Data)).
		Msg("收到网关上行")

	subject, out, err := s.processor.HandleMessage(ctx, msg.Data)
	if err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("处理网关上行失败")
		return
	}

	if err := s.nc.Publish(subject, out); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("发布解码结果失败")
		return
	}

	log.Debug().
		Str("subject", subject).
		Int("size", len(out)).
		Msg("解码结果已发布")
}
