package lorawan

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// CID is a MAC command identifier
type CID byte

// String returns the identifier as hex
func (c CID) String() string {
	return fmt.Sprintf("%02x", byte(c))
}

// MAC command identifiers. Requests and answers share a CID and are told
// apart by direction.
const (
	ResetInd            CID = 0x01
	ResetConf           CID = 0x01
	LinkCheckReq        CID = 0x02
	LinkCheckAns        CID = 0x02
	LinkADRReq          CID = 0x03
	LinkADRAns          CID = 0x03
	DutyCycleReq        CID = 0x04
	DutyCycleAns        CID = 0x04
	RXParamSetupReq     CID = 0x05
	RXParamSetupAns     CID = 0x05
	DevStatusReq        CID = 0x06
	DevStatusAns        CID = 0x06
	NewChannelReq       CID = 0x07
	NewChannelAns       CID = 0x07
	RXTimingSetupReq    CID = 0x08
	RXTimingSetupAns    CID = 0x08
	TXParamSetupReq     CID = 0x09
	TXParamSetupAns     CID = 0x09
	DlChannelReq        CID = 0x0A
	DlChannelAns        CID = 0x0A
	RekeyInd            CID = 0x0B
	RekeyConf           CID = 0x0B
	ADRParamSetupReq    CID = 0x0C
	ADRParamSetupAns    CID = 0x0C
	DeviceTimeReq       CID = 0x0D
	DeviceTimeAns       CID = 0x0D
	ForceRejoinReq      CID = 0x0E
	RejoinParamSetupReq CID = 0x0F
	RejoinParamSetupAns CID = 0x0F
	PingSlotInfoReq     CID = 0x10
	PingSlotInfoAns     CID = 0x10
	PingSlotChannelReq  CID = 0x11
	PingSlotChannelAns  CID = 0x11
	BeaconTimingReq     CID = 0x12
	BeaconTimingAns     CID = 0x12
	BeaconFreqReq       CID = 0x13
	BeaconFreqAns       CID = 0x13
	DeviceModeInd       CID = 0x20
	DeviceModeConf      CID = 0x20
)

// MACCommand represents a decoded MAC command
type MACCommand struct {
	CID       CID       `json:"cid"`
	Direction Direction `json:"direction"`
	Name      string    `json:"name"`
	Raw       HexBytes  `json:"raw,omitempty"`

	// Payload is one of the *Payload types below, nil for empty bodies
	Payload interface{} `json:"payload,omitempty"`
}

type macCommandInfo struct {
	name   string
	size   int
	decode func(b []byte) interface{}
}

// macCommandRegistry is read-only after package init
var macCommandRegistry = map[Direction]map[CID]macCommandInfo{
	Uplink: {
		ResetInd:            {"ResetInd", 1, decodeVersion},
		LinkCheckReq:        {"LinkCheckReq", 0, nil},
		LinkADRAns:          {"LinkADRAns", 1, decodeLinkADRAns},
		DutyCycleAns:        {"DutyCycleAns", 0, nil},
		RXParamSetupAns:     {"RXParamSetupAns", 1, decodeRXParamSetupAns},
		DevStatusAns:        {"DevStatusAns", 2, decodeDevStatusAns},
		NewChannelAns:       {"NewChannelAns", 1, decodeNewChannelAns},
		RXTimingSetupAns:    {"RXTimingSetupAns", 0, nil},
		TXParamSetupAns:     {"TXParamSetupAns", 0, nil},
		DlChannelAns:        {"DlChannelAns", 1, decodeDlChannelAns},
		RekeyInd:            {"RekeyInd", 1, decodeVersion},
		ADRParamSetupAns:    {"ADRParamSetupAns", 0, nil},
		DeviceTimeReq:       {"DeviceTimeReq", 0, nil},
		RejoinParamSetupAns: {"RejoinParamSetupAns", 1, decodeRejoinParamSetupAns},
		PingSlotInfoReq:     {"PingSlotInfoReq", 1, decodePingSlotInfoReq},
		PingSlotChannelAns:  {"PingSlotChannelAns", 1, decodePingSlotChannelAns},
		BeaconTimingReq:     {"BeaconTimingReq", 0, nil},
		BeaconFreqAns:       {"BeaconFreqAns", 1, decodeBeaconFreqAns},
		DeviceModeInd:       {"DeviceModeInd", 1, decodeDeviceMode},
	},
	Downlink: {
		ResetConf:           {"ResetConf", 1, decodeVersion},
		LinkCheckAns:        {"LinkCheckAns", 2, decodeLinkCheckAns},
		LinkADRReq:          {"LinkADRReq", 4, decodeLinkADRReq},
		DutyCycleReq:        {"DutyCycleReq", 1, decodeDutyCycleReq},
		RXParamSetupReq:     {"RXParamSetupReq", 4, decodeRXParamSetupReq},
		DevStatusReq:        {"DevStatusReq", 0, nil},
		NewChannelReq:       {"NewChannelReq", 5, decodeNewChannelReq},
		RXTimingSetupReq:    {"RXTimingSetupReq", 1, decodeRXTimingSetupReq},
		TXParamSetupReq:     {"TXParamSetupReq", 1, decodeTXParamSetupReq},
		DlChannelReq:        {"DlChannelReq", 4, decodeDlChannelReq},
		RekeyConf:           {"RekeyConf", 1, decodeVersion},
		ADRParamSetupReq:    {"ADRParamSetupReq", 1, decodeADRParamSetupReq},
		DeviceTimeAns:       {"DeviceTimeAns", 5, decodeDeviceTimeAns},
		ForceRejoinReq:      {"ForceRejoinReq", 2, decodeForceRejoinReq},
		RejoinParamSetupReq: {"RejoinParamSetupReq", 1, decodeRejoinParamSetupReq},
		PingSlotInfoAns:     {"PingSlotInfoAns", 0, nil},
		PingSlotChannelReq:  {"PingSlotChannelReq", 4, decodePingSlotChannelReq},
		BeaconTimingAns:     {"BeaconTimingAns", 3, decodeBeaconTimingAns},
		BeaconFreqReq:       {"BeaconFreqReq", 3, decodeBeaconFreqReq},
		DeviceModeConf:      {"DeviceModeConf", 1, decodeDeviceMode},
	},
}

// LookupMACCommand returns the name and body size of a command
func LookupMACCommand(dir Direction, cid CID) (name string, size int, ok bool) {
	info, ok := macCommandRegistry[dir][cid]
	return info.name, info.size, ok
}

// MACCommandCIDs returns the known identifiers for a direction in ascending order
func MACCommandCIDs(dir Direction) []CID {
	out := make([]CID, 0, len(macCommandRegistry[dir]))
	for cid := range macCommandRegistry[dir] {
		out = append(out, cid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DecodeMACCommands decodes a MAC command stream left to right.
// On error the commands decoded before the failing one are returned.
func DecodeMACCommands(dir Direction, data []byte) ([]MACCommand, error) {
	table, ok := macCommandRegistry[dir]
	if !ok {
		return nil, fmt.Errorf("%w: MAC commands need uplink or downlink, got %s", ErrInvalidDirection, dir)
	}

	var commands []MACCommand
	for pos := 0; pos < len(data); {
		cid := CID(data[pos])
		info, ok := table[cid]
		if !ok {
			return commands, &UnrecognizedCommandError{CID: cid, Direction: dir, Offset: pos}
		}

		body := data[pos+1:]
		if len(body) < info.size {
			return commands, &TruncatedCommandError{CID: cid, Name: info.name, Offset: pos, Want: info.size, Have: len(body)}
		}
		body = body[:info.size]

		cmd := MACCommand{
			CID:       cid,
			Direction: dir,
			Name:      info.name,
		}
		if info.size > 0 {
			cmd.Raw = append(HexBytes(nil), body...)
		}
		if info.decode != nil {
			cmd.Payload = info.decode(body)
		}
		commands = append(commands, cmd)
		pos += 1 + info.size
	}

	return commands, nil
}

// EncodeMACCommands encodes MAC commands to bytes from their raw bodies
func EncodeMACCommands(commands []MACCommand) []byte {
	var data []byte
	for _, cmd := range commands {
		data = append(data, byte(cmd.CID))
		data = append(data, cmd.Raw...)
	}
	return data
}

// frequency decodes a 24-bit little-endian value in units of 100 Hz
func frequency(b []byte) uint32 {
	return (uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16) * 100
}

func bit(b byte, n uint) bool {
	return b&(1<<n) != 0
}

// VersionPayload is the body of ResetInd, ResetConf, RekeyInd and RekeyConf
type VersionPayload struct {
	// Minor is 1 for LoRaWAN x.1, other values are RFU
	Minor uint8 `json:"minor"`
}

func decodeVersion(b []byte) interface{} {
	return &VersionPayload{Minor: b[0] & 0x0F}
}

// LinkCheckAnsPayload is the body of LinkCheckAns
type LinkCheckAnsPayload struct {
	// Margin is the demodulation margin in dB of the last LinkCheckReq
	Margin uint8 `json:"margin"`
	GwCnt  uint8 `json:"gwCnt"`
}

func decodeLinkCheckAns(b []byte) interface{} {
	return &LinkCheckAnsPayload{Margin: b[0], GwCnt: b[1]}
}

// LinkADRReqPayload is the body of LinkADRReq
type LinkADRReqPayload struct {
	DataRate   uint8  `json:"dataRate"`
	TXPower    uint8  `json:"txPower"`
	ChMask     uint16 `json:"chMask"`
	ChMaskCntl uint8  `json:"chMaskCntl"`
	NbTrans    uint8  `json:"nbTrans"`
}

// EnabledChannels returns the channel indexes set in ChMask
func (p LinkADRReqPayload) EnabledChannels() []int {
	var out []int
	for i := 0; i < 16; i++ {
		if p.ChMask&(1<<uint(i)) != 0 {
			out = append(out, i)
		}
	}
	return out
}

func decodeLinkADRReq(b []byte) interface{} {
	return &LinkADRReqPayload{
		DataRate:   b[0] >> 4,
		TXPower:    b[0] & 0x0F,
		ChMask:     binary.LittleEndian.Uint16(b[1:3]),
		ChMaskCntl: (b[3] >> 4) & 0x07,
		NbTrans:    b[3] & 0x0F,
	}
}

// LinkADRAnsPayload is the body of LinkADRAns
type LinkADRAnsPayload struct {
	PowerACK       bool `json:"powerACK"`
	DataRateACK    bool `json:"dataRateACK"`
	ChannelMaskACK bool `json:"channelMaskACK"`
}

func decodeLinkADRAns(b []byte) interface{} {
	return &LinkADRAnsPayload{
		PowerACK:       bit(b[0], 2),
		DataRateACK:    bit(b[0], 1),
		ChannelMaskACK: bit(b[0], 0),
	}
}

// DutyCycleReqPayload is the body of DutyCycleReq
type DutyCycleReqPayload struct {
	MaxDCycle uint8 `json:"maxDCycle"`
}

// AggregatedDutyCycle returns 1/2^MaxDCycle
func (p DutyCycleReqPayload) AggregatedDutyCycle() float64 {
	return 1 / float64(uint32(1)<<p.MaxDCycle)
}

func decodeDutyCycleReq(b []byte) interface{} {
	return &DutyCycleReqPayload{MaxDCycle: b[0] & 0x0F}
}

// RXParamSetupReqPayload is the body of RXParamSetupReq
type RXParamSetupReqPayload struct {
	RX1DROffset uint8 `json:"rx1DROffset"`
	RX2DataRate uint8 `json:"rx2DataRate"`
	// Frequency of RX2 in Hz
	Frequency uint32 `json:"frequency"`
}

func decodeRXParamSetupReq(b []byte) interface{} {
	return &RXParamSetupReqPayload{
		RX1DROffset: (b[0] >> 4) & 0x07,
		RX2DataRate: b[0] & 0x0F,
		Frequency:   frequency(b[1:4]),
	}
}

// RXParamSetupAnsPayload is the body of RXParamSetupAns
type RXParamSetupAnsPayload struct {
	RX1DROffsetACK bool `json:"rx1DROffsetACK"`
	RX2DataRateACK bool `json:"rx2DataRateACK"`
	ChannelACK     bool `json:"channelACK"`
}

func decodeRXParamSetupAns(b []byte) interface{} {
	return &RXParamSetupAnsPayload{
		RX1DROffsetACK: bit(b[0], 2),
		RX2DataRateACK: bit(b[0], 1),
		ChannelACK:     bit(b[0], 0),
	}
}

// DevStatusAnsPayload is the body of DevStatusAns
type DevStatusAnsPayload struct {
	// Battery is 0 on external power, 1..254 for the level, 255 when unknown
	Battery uint8 `json:"battery"`
	// Margin is the SNR of the last DevStatusReq, -32..31 dB
	Margin int8 `json:"margin"`
}

func decodeDevStatusAns(b []byte) interface{} {
	margin := int8(b[1] & 0x3F)
	if margin&0x20 != 0 {
		margin -= 0x40
	}
	return &DevStatusAnsPayload{Battery: b[0], Margin: margin}
}

// NewChannelReqPayload is the body of NewChannelReq
type NewChannelReqPayload struct {
	ChIndex uint8 `json:"chIndex"`
	// Freq in Hz, 0 disables the channel
	Freq  uint32 `json:"freq"`
	MaxDR uint8  `json:"maxDR"`
	MinDR uint8  `json:"minDR"`
}

func decodeNewChannelReq(b []byte) interface{} {
	return &NewChannelReqPayload{
		ChIndex: b[0],
		Freq:    frequency(b[1:4]),
		MaxDR:   b[4] >> 4,
		MinDR:   b[4] & 0x0F,
	}
}

// NewChannelAnsPayload is the body of NewChannelAns
type NewChannelAnsPayload struct {
	DataRateRangeOK    bool `json:"dataRateRangeOK"`
	ChannelFrequencyOK bool `json:"channelFrequencyOK"`
}

func decodeNewChannelAns(b []byte) interface{} {
	return &NewChannelAnsPayload{
		DataRateRangeOK:    bit(b[0], 1),
		ChannelFrequencyOK: bit(b[0], 0),
	}
}

// RXTimingSetupReqPayload is the body of RXTimingSetupReq
type RXTimingSetupReqPayload struct {
	Delay uint8 `json:"delay"`
}

// Seconds returns the RX1 delay, 0 means 1 second
func (p RXTimingSetupReqPayload) Seconds() int {
	if p.Delay == 0 {
		return 1
	}
	return int(p.Delay)
}

func decodeRXTimingSetupReq(b []byte) interface{} {
	return &RXTimingSetupReqPayload{Delay: b[0] & 0x0F}
}

// maxEIRPTable maps the MaxEIRP index to dBm
var maxEIRPTable = [16]int{8, 10, 12, 13, 14, 16, 18, 20, 21, 24, 26, 27, 29, 30, 33, 36}

// TXParamSetupReqPayload is the body of TXParamSetupReq
type TXParamSetupReqPayload struct {
	DownlinkDwellTime400ms bool  `json:"downlinkDwellTime400ms"`
	UplinkDwellTime400ms   bool  `json:"uplinkDwellTime400ms"`
	MaxEIRP                uint8 `json:"maxEIRP"`
}

// MaxEIRPdBm returns the EIRP limit the MaxEIRP index encodes
func (p TXParamSetupReqPayload) MaxEIRPdBm() int {
	return maxEIRPTable[p.MaxEIRP&0x0F]
}

func decodeTXParamSetupReq(b []byte) interface{} {
	return &TXParamSetupReqPayload{
		DownlinkDwellTime400ms: bit(b[0], 5),
		UplinkDwellTime400ms:   bit(b[0], 4),
		MaxEIRP:                b[0] & 0x0F,
	}
}

// DlChannelReqPayload is the body of DlChannelReq
type DlChannelReqPayload struct {
	ChIndex uint8  `json:"chIndex"`
	Freq    uint32 `json:"freq"`
}

func decodeDlChannelReq(b []byte) interface{} {
	return &DlChannelReqPayload{ChIndex: b[0], Freq: frequency(b[1:4])}
}

// DlChannelAnsPayload is the body of DlChannelAns
type DlChannelAnsPayload struct {
	UplinkFrequencyExists bool `json:"uplinkFrequencyExists"`
	ChannelFrequencyOK    bool `json:"channelFrequencyOK"`
}

func decodeDlChannelAns(b []byte) interface{} {
	return &DlChannelAnsPayload{
		UplinkFrequencyExists: bit(b[0], 1),
		ChannelFrequencyOK:    bit(b[0], 0),
	}
}

// ADRParamSetupReqPayload is the body of ADRParamSetupReq
type ADRParamSetupReqPayload struct {
	LimitExp uint8 `json:"limitExp"`
	DelayExp uint8 `json:"delayExp"`
}

func decodeADRParamSetupReq(b []byte) interface{} {
	return &ADRParamSetupReqPayload{LimitExp: b[0] >> 4, DelayExp: b[0] & 0x0F}
}

// DeviceTimeAnsPayload is the body of DeviceTimeAns
type DeviceTimeAnsPayload struct {
	// GPSSeconds since the GPS epoch
	GPSSeconds uint32 `json:"gpsSeconds"`
	// Fraction in 1/256 s steps
	Fraction uint8 `json:"fraction"`
}

func decodeDeviceTimeAns(b []byte) interface{} {
	return &DeviceTimeAnsPayload{
		GPSSeconds: binary.LittleEndian.Uint32(b[0:4]),
		Fraction:   b[4],
	}
}

// ForceRejoinReqPayload is the body of ForceRejoinReq
type ForceRejoinReqPayload struct {
	Period     uint8 `json:"period"`
	MaxRetries uint8 `json:"maxRetries"`
	RejoinType uint8 `json:"rejoinType"`
	DR         uint8 `json:"dr"`
}

func decodeForceRejoinReq(b []byte) interface{} {
	v := binary.LittleEndian.Uint16(b)
	return &ForceRejoinReqPayload{
		Period:     uint8(v>>11) & 0x07,
		MaxRetries: uint8(v>>8) & 0x07,
		RejoinType: uint8(v>>4) & 0x07,
		DR:         uint8(v) & 0x0F,
	}
}

// RejoinParamSetupReqPayload is the body of RejoinParamSetupReq
type RejoinParamSetupReqPayload struct {
	MaxTimeN  uint8 `json:"maxTimeN"`
	MaxCountN uint8 `json:"maxCountN"`
}

func decodeRejoinParamSetupReq(b []byte) interface{} {
	return &RejoinParamSetupReqPayload{MaxTimeN: b[0] >> 4, MaxCountN: b[0] & 0x0F}
}

// RejoinParamSetupAnsPayload is the body of RejoinParamSetupAns
type RejoinParamSetupAnsPayload struct {
	TimeOK bool `json:"timeOK"`
}

func decodeRejoinParamSetupAns(b []byte) interface{} {
	return &RejoinParamSetupAnsPayload{TimeOK: bit(b[0], 0)}
}

// PingSlotInfoReqPayload is the body of PingSlotInfoReq
type PingSlotInfoReqPayload struct {
	// Periodicity n gives a ping every 2^n seconds
	Periodicity uint8 `json:"periodicity"`
}

func decodePingSlotInfoReq(b []byte) interface{} {
	return &PingSlotInfoReqPayload{Periodicity: b[0] & 0x07}
}

// PingSlotChannelReqPayload is the body of PingSlotChannelReq
type PingSlotChannelReqPayload struct {
	Frequency uint32 `json:"frequency"`
	DR        uint8  `json:"dr"`
}

func decodePingSlotChannelReq(b []byte) interface{} {
	return &PingSlotChannelReqPayload{Frequency: frequency(b[0:3]), DR: b[3] & 0x0F}
}

// PingSlotChannelAnsPayload is the body of PingSlotChannelAns
type PingSlotChannelAnsPayload struct {
	DataRateOK         bool `json:"dataRateOK"`
	ChannelFrequencyOK bool `json:"channelFrequencyOK"`
}

func decodePingSlotChannelAns(b []byte) interface{} {
	return &PingSlotChannelAnsPayload{
		DataRateOK:         bit(b[0], 1),
		ChannelFrequencyOK: bit(b[0], 0),
	}
}

// BeaconTimingAnsPayload is the body of BeaconTimingAns
type BeaconTimingAnsPayload struct {
	// Delay to the next beacon in 30 ms steps
	Delay   uint16 `json:"delay"`
	Channel uint8  `json:"channel"`
}

func decodeBeaconTimingAns(b []byte) interface{} {
	return &BeaconTimingAnsPayload{Delay: binary.LittleEndian.Uint16(b[0:2]), Channel: b[2]}
}

// BeaconFreqReqPayload is the body of BeaconFreqReq
type BeaconFreqReqPayload struct {
	Frequency uint32 `json:"frequency"`
}

func decodeBeaconFreqReq(b []byte) interface{} {
	return &BeaconFreqReqPayload{Frequency: frequency(b)}
}

// BeaconFreqAnsPayload is the body of BeaconFreqAns
type BeaconFreqAnsPayload struct {
	BeaconFrequencyOK bool `json:"beaconFrequencyOK"`
}

func decodeBeaconFreqAns(b []byte) interface{} {
	return &BeaconFreqAnsPayload{BeaconFrequencyOK: bit(b[0], 0)}
}

// DeviceModePayload is the body of DeviceModeInd and DeviceModeConf
type DeviceModePayload struct {
	Class uint8 `json:"class"`
}

// ClassName returns "A", "C" or "RFU"
func (p DeviceModePayload) ClassName() string {
	switch p.Class {
	case 0x00:
		return "A"
	case 0x02:
		return "C"
	default:
		return "RFU"
	}
}

func decodeDeviceMode(b []byte) interface{} {
	return &DeviceModePayload{Class: b[0]}
}
