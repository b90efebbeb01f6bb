package gateway

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lorawan-server/lrwphy/internal/models"
)

// Semtech UDP 协议常量
const (
	ProtocolVersion = 2

	// 消息类型
	PushData = 0x00
	PushAck  = 0x01
	PullData = 0x02
	PullResp = 0x03
	PullAck  = 0x04
	TxAck    = 0x05
)

// gatewayTimeout 网关离线判定时间
const gatewayTimeout = 5 * time.Minute

var (
	ErrPacketTooShort     = errors.New("gateway: packet too short")
	ErrUnsupportedVersion = errors.New("gateway: unsupported protocol version")
	ErrUnknownPacketType  = errors.New("gateway: unknown packet type")
)

// RXHandler receives every rxpk of a PUSH_DATA packet
type RXHandler func(ctx context.Context, msg *models.GatewayRXMessage)

// Packet is a parsed packet forwarder datagram
type Packet struct {
	Token     uint16
	Type      byte
	GatewayID string

	// RX holds the rxpk objects of a PUSH_DATA packet
	RX []*models.GatewayRXMessage
}

// Ack returns the acknowledgement to send back, nil when none is due
func (p *Packet) Ack() []byte {
	var t byte
	switch p.Type {
	case PushData:
		t = PushAck
	case PullData:
		t = PullAck
	default:
		return nil
	}

	ack := make([]byte, 4)
	ack[0] = ProtocolVersion
	binary.BigEndian.PutUint16(ack[1:3], p.Token)
	ack[3] = t
	return ack
}

// ParsePacket parses one Semtech UDP datagram
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < 4 {
		return nil, ErrPacketTooShort
	}

	// 检查协议版本
	if data[0] != ProtocolVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[0])
	}

	p := &Packet{
		Token: binary.BigEndian.Uint16(data[1:3]),
		Type:  data[3],
	}

	switch p.Type {
	case PushData, PullData, TxAck:
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownPacketType, p.Type)
	}

	// 解析网关 MAC
	if len(data) < 12 {
		return nil, ErrPacketTooShort
	}
	p.GatewayID = fmt.Sprintf("%016x", data[4:12])

	if p.Type != PushData || len(data) == 12 {
		return p, nil
	}

	var payload struct {
		RXPK []models.RXPK `json:"rxpk"`
	}
	if err := json.Unmarshal(data[12:], &payload); err != nil {
		return p, fmt.Errorf("解析 PUSH_DATA JSON 失败: %w", err)
	}

	now := time.Now().Unix()
	for _, rxpk := range payload.RXPK {
		p.RX = append(p.RX, &models.GatewayRXMessage{
			GatewayID: p.GatewayID,
			RXPK:      rxpk,
			Context:   rxContext(p.GatewayID, rxpk.Tmst),
			Timestamp: now,
		})
	}

	return p, nil
}

// rxContext 与网关桥接的 context 字段格式一致
func rxContext(gatewayID string, tmst uint64) string {
	b, _ := json.Marshal(map[string]interface{}{
		"gateway_id": gatewayID,
		"tmst":       float64(tmst),
	})
	return base64.StdEncoding.EncodeToString(b)
}

// UDPPacketForwarder 处理 Semtech UDP 协议
type UDPPacketForwarder struct {
	conn     *net.UDPConn
	handler  RXHandler
	gateways map[string]*GatewayInfo
	mu       sync.RWMutex
}

// GatewayInfo 网关信息
type GatewayInfo struct {
	GatewayID string
	PushAddr  *net.UDPAddr // PUSH_DATA 地址（上行）
	PullAddr  *net.UDPAddr // PULL_DATA 地址（下行）
	LastSeen  time.Time
	RXCount   uint64
}

// NewUDPPacketForwarder 创建 UDP 包转发器
func NewUDPPacketForwarder(bindAddr string, handler RXHandler) (*UDPPacketForwarder, error) {
	addr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	return &UDPPacketForwarder{
		conn:     conn,
		handler:  handler,
		gateways: make(map[string]*GatewayInfo),
	}, nil
}

// LocalAddr returns the bound address
func (u *UDPPacketForwarder) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// Gateways returns a snapshot of the known gateways
func (u *UDPPacketForwarder) Gateways() []GatewayInfo {
	u.mu.RLock()
	defer u.mu.RUnlock()

	out := make([]GatewayInfo, 0, len(u.gateways))
	for _, gw := range u.gateways {
		out = append(out, *gw)
	}
	return out
}

// Start 启动 UDP 服务器，ctx 结束时关闭连接
func (u *UDPPacketForwarder) Start(ctx context.Context) error {
	log.Info().Str("addr", u.conn.LocalAddr().String()).Msg("UDP 监听启动")

	// 启动网关清理
	go u.cleanupGateways(ctx)

	go func() {
		<-ctx.Done()
		u.conn.Close()
	}()

	// 处理上行 UDP 包
	buf := make([]byte, 65507)
	for {
		n, addr, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("读取 UDP 包错误")
			continue
		}

		data := append([]byte(nil), buf[:n]...)
		go u.handlePacket(ctx, data, addr)
	}
}

// handlePacket 处理接收到的包
func (u *UDPPacketForwarder) handlePacket(ctx context.Context, data []byte, addr *net.UDPAddr) {
	p, err := ParsePacket(data)
	if p == nil {
		log.Warn().Err(err).Str("addr", addr.String()).Msg("无法解析的 UDP 包")
		return
	}

	if ack := p.Ack(); ack != nil {
		if _, werr := u.conn.WriteToUDP(ack, addr); werr != nil {
			log.Error().Err(werr).Str("addr", addr.String()).Msg("发送 ACK 失败")
		}
	}

	u.touch(p, addr)

	if err != nil {
		log.Error().Err(err).Str("gateway", p.GatewayID).Msg("PUSH_DATA 处理失败")
		return
	}

	switch p.Type {
	case PushData:
		log.Debug().
			Str("gateway", p.GatewayID).
			Int("rxpk", len(p.RX)).
			Msg("收到 PUSH_DATA")
		for _, rx := range p.RX {
			log.Info().
				Str("gateway", p.GatewayID).
				Float64("freq", rx.RXPK.Freq).
				Int("rssi", rx.RXPK.RSSI).
				Float64("snr", rx.RXPK.LSNR).
				Int("size", rx.RXPK.Size).
				Msg("收到上行数据")
			if u.handler != nil {
				u.handler(ctx, rx)
			}
		}
	case PullData:
		log.Debug().Str("gateway", p.GatewayID).Str("pullAddr", addr.String()).Msg("收到 PULL_DATA")
	case TxAck:
		log.Debug().Str("gateway", p.GatewayID).Uint16("token", p.Token).Msg("收到 TX_ACK")
	}
}

// touch 更新网关信息
func (u *UDPPacketForwarder) touch(p *Packet, addr *net.UDPAddr) {
	u.mu.Lock()
	defer u.mu.Unlock()

	gw, exists := u.gateways[p.GatewayID]
	if !exists {
		gw = &GatewayInfo{GatewayID: p.GatewayID}
		u.gateways[p.GatewayID] = gw
		log.Info().Str("gateway", p.GatewayID).Msg("发现新网关")
	}
	switch p.Type {
	case PushData:
		gw.PushAddr = addr
		gw.RXCount += uint64(len(p.RX))
	case PullData:
		gw.PullAddr = addr
	}
	gw.LastSeen = time.Now()
}

// cleanupGateways 清理离线网关
func (u *UDPPacketForwarder) cleanupGateways(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.expire(time.Now())
		}
	}
}

func (u *UDPPacketForwarder) expire(now time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for id, gw := range u.gateways {
		if now.Sub(gw.LastSeen) > gatewayTimeout {
			delete(u.gateways, id)
			log.Info().Str("gateway", id).Msg("网关离线，清理缓存")
		}
	}
}
