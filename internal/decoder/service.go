// Package decoder wraps the PHYPayload decoder with configured keys, the
// application codec, metrics and the decode log.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lorawan-server/lrwphy/internal/codec"
	"github.com/lorawan-server/lrwphy/internal/config"
	"github.com/lorawan-server/lrwphy/internal/metrics"
	"github.com/lorawan-server/lrwphy/internal/models"
	"github.com/lorawan-server/lrwphy/internal/storage"
	"github.com/lorawan-server/lrwphy/pkg/lorawan"
)

// ErrNoInput is returned when a request carries neither hex nor bytes
var ErrNoInput = errors.New("no frame given")

// Request is one decode request. Empty keys fall back to the configured ones.
type Request struct {
	Hex        string  `json:"hex,omitempty"`
	PHYPayload []byte  `json:"phyPayload,omitempty"`
	NwkSKey    string  `json:"nwkSKey,omitempty"`
	AppSKey    string  `json:"appSKey,omitempty"`
	AppKey     string  `json:"appKey,omitempty"`
	FCntHigh   *uint16 `json:"fCntHigh,omitempty"`

	Source    string `json:"-"`
	GatewayID string `json:"-"`
}

// Result is the outcome of a decode. Frame is nil only when nothing could be decoded.
type Result struct {
	ID          uuid.UUID              `json:"id"`
	Frame       *lorawan.Frame         `json:"frame,omitempty"`
	Object      map[string]interface{} `json:"object,omitempty"`
	ObjectError string                 `json:"objectError,omitempty"`
	ErrorKind   string                 `json:"errorKind,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// EncryptRequest exposes the FRMPayload cipher. DevAddr and FCnt are 4 byte hex strings.
type EncryptRequest struct {
	Key       string `json:"key"`
	DevAddr   string `json:"devAddr"`
	FCnt      string `json:"fCnt"`
	Direction string `json:"direction"`
	BigEndian bool   `json:"bigEndian"`
	Payload   string `json:"payload"`
}

// Service decodes frames
type Service struct {
	defaults lorawan.DecodeOptions
	codec    *codec.Codec
	store    storage.Store
	persist  bool
}

// NewService creates a decoder service. store and c may be nil.
func NewService(cfg config.DecoderConfig, store storage.Store, c *codec.Codec) (*Service, error) {
	nwkSKey, appSKey, appKey, err := cfg.Keys()
	if err != nil {
		return nil, err
	}

	return &Service{
		defaults: lorawan.DecodeOptions{
			NwkSKey:     nwkSKey,
			AppSKey:     appSKey,
			AppKey:      appKey,
			FCntHigh:    cfg.FCntHigh,
			RequireKeys: cfg.RequireKeys,
		},
		codec:   c,
		store:   store,
		persist: cfg.Persist && store != nil,
	}, nil
}

// Store returns the decode log, nil when not configured
func (s *Service) Store() storage.Store {
	return s.store
}

func (s *Service) options(req Request) (lorawan.DecodeOptions, error) {
	opts := s.defaults
	for _, k := range []struct {
		name string
		in   string
		out  **lorawan.AES128Key
	}{
		{"nwkSKey", req.NwkSKey, &opts.NwkSKey},
		{"appSKey", req.AppSKey, &opts.AppSKey},
		{"appKey", req.AppKey, &opts.AppKey},
	} {
		if k.in == "" {
			continue
		}
		key, err := lorawan.ParseAES128Key(k.in)
		if err != nil {
			return opts, fmt.Errorf("%s: %w", k.name, err)
		}
		*k.out = &key
	}
	if req.FCntHigh != nil {
		opts.FCntHigh = *req.FCntHigh
	}
	return opts, nil
}

// Decode decodes one frame.
//
// A non-nil Result is returned whenever a frame was at least partially
// decoded, together with the first decode error.
func (s *Service) Decode(ctx context.Context, req Request) (*Result, error) {
	data := req.PHYPayload
	if req.Hex != "" {
		b, err := lorawan.ParseHex(req.Hex)
		if err != nil {
			metrics.DecodeError(lorawan.ErrorKind(err)).Inc()
			return nil, err
		}
		data = b
	}
	if len(data) == 0 && req.Hex == "" {
		return nil, ErrNoInput
	}

	opts, err := s.options(req)
	if err != nil {
		metrics.DecodeError(lorawan.ErrorKind(err)).Inc()
		return nil, err
	}

	start := time.Now()
	frame, decErr := lorawan.Decode(data, opts)
	metrics.DecodeDuration().Observe(time.Since(start).Seconds())

	if decErr != nil {
		metrics.DecodeError(lorawan.ErrorKind(decErr)).Inc()
	}
	if frame == nil {
		log.Debug().Err(decErr).Int("size", len(data)).Msg("帧解码失败")
		return nil, decErr
	}

	res := &Result{ID: uuid.New(), Frame: frame}
	if decErr != nil {
		res.ErrorKind = lorawan.ErrorKind(decErr)
		res.Error = decErr.Error()
	}

	metrics.FrameDecoded(frame.MHDR.MType.String()).Inc()
	if m := frame.MACPayload; m != nil {
		for _, c := range m.FHDR.FOptsCommands {
			metrics.MACCommand(c.Name).Inc()
		}
		for _, c := range m.MACCommands {
			metrics.MACCommand(c.Name).Inc()
		}
		s.applyCodec(res, m)
	}

	logger := log.Debug().
		Str("source", req.Source).
		Str("mType", frame.MHDR.MType.String()).
		Str("direction", frame.Direction.String())
	if m := frame.MACPayload; m != nil {
		logger = logger.Str("devAddr", m.FHDR.DevAddr.String()).Uint32("fCnt", m.FCnt32)
		if m.FPort != nil {
			logger = logger.Uint8("fPort", *m.FPort)
		}
	}
	logger.Err(decErr).Msg("帧解码完成")

	if s.persist {
		if err := s.save(ctx, req, data, res); err != nil {
			log.Error().Err(err).Str("id", res.ID.String()).Msg("保存解码记录失败")
		}
	}

	return res, decErr
}

func (s *Service) applyCodec(res *Result, m *lorawan.MACPayload) {
	if s.codec == nil || m.FPort == nil || *m.FPort == 0 || m.TestPayload || !m.Decrypted {
		return
	}

	obj, err := s.codec.Decode(*m.FPort, m.FRMPayload)
	if err != nil {
		res.ObjectError = err.Error()
		log.Warn().Err(err).Uint8("fPort", *m.FPort).Msg("应用层解码失败")
		return
	}
	res.Object = obj
}

func (s *Service) save(ctx context.Context, req Request, data []byte, res *Result) error {
	frame := res.Frame
	report, err := models.ToVariables(frame)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	rec := &models.DecodedFrame{
		ID:         res.ID,
		Source:     req.Source,
		GatewayID:  req.GatewayID,
		PHYPayload: data,
		MType:      frame.MHDR.MType.String(),
		Direction:  frame.Direction.String(),
		Object:     res.Object,
		Report:     report,
		ErrorKind:  res.ErrorKind,
		Error:      res.Error,
	}
	if m := frame.MACPayload; m != nil {
		devAddr := m.FHDR.DevAddr.String()
		fCnt := m.FCnt32
		rec.DevAddr = &devAddr
		rec.FCnt = &fCnt
		rec.FPort = m.FPort
		rec.FRMPayload = m.FRMPayload
		rec.Decrypted = m.Decrypted
	}

	return s.store.SaveDecodedFrame(ctx, rec)
}

// Encrypt runs the FRMPayload cipher over req.Payload. The operation is its own inverse.
func (s *Service) Encrypt(ctx context.Context, req EncryptRequest) ([]byte, error) {
	key, err := lorawan.ParseAES128Key(req.Key)
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}

	dir, err := lorawan.ParseDirection(req.Direction)
	if err != nil {
		return nil, err
	}

	p := lorawan.CipherParams{Direction: dir, BigEndian: req.BigEndian}
	if err := parseField("devAddr", req.DevAddr, p.DevAddr[:]); err != nil {
		return nil, err
	}
	if err := parseField("fCnt", req.FCnt, p.FCnt[:]); err != nil {
		return nil, err
	}

	payload, err := lorawan.ParseHex(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}

	return lorawan.EncryptFRMPayload(&key, p, payload)
}

func parseField(name, s string, out []byte) error {
	b, err := lorawan.ParseHex(s)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if len(b) != len(out) {
		return fmt.Errorf("%s: %w: must be %d bytes, got %d", name, lorawan.ErrInvalidLength, len(out), len(b))
	}
	copy(out, b)
	return nil
}
