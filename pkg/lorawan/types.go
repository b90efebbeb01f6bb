package lorawan

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// HexBytes is a byte slice that marshals as a hex string
type HexBytes []byte

// String returns hex string representation
func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}

// MarshalText implements encoding.TextMarshaler
func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (b *HexBytes) UnmarshalText(text []byte) error {
	data, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*b = data
	return nil
}

// EUI64 represents an 8-byte Extended Unique Identifier in display order
type EUI64 [8]byte

// String returns hex string representation
func (e EUI64) String() string {
	return hex.EncodeToString(e[:])
}

// MarshalJSON implements json.Marshaler
func (e EUI64) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// DevAddr represents a 4-byte device address in display order (MSB first)
type DevAddr [4]byte

// String returns hex string representation
func (d DevAddr) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalJSON implements json.Marshaler
func (d DevAddr) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// ParseDevAddr parses a device address written MSB first
func ParseDevAddr(s string) (DevAddr, error) {
	var d DevAddr
	b, err := ParseHex(s)
	if err != nil {
		return d, err
	}
	if len(b) != len(d) {
		return d, fmt.Errorf("%w: device address must be 4 bytes, got %d", ErrMalformedHex, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// AES128Key represents a 128-bit AES key
type AES128Key [16]byte

// String returns hex string representation
func (k AES128Key) String() string {
	return hex.EncodeToString(k[:])
}

// ParseAES128Key parses a 16-byte key from hex text
func ParseAES128Key(s string) (AES128Key, error) {
	var k AES128Key
	b, err := ParseHex(s)
	if err != nil {
		return k, err
	}
	if len(b) != len(k) {
		return k, fmt.Errorf("%w: key must be 16 bytes, got %d", ErrMalformedHex, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// KeyKind names the key a decryption step needs
type KeyKind string

const (
	KeyUnspecified        KeyKind = ""
	NetworkSessionKey     KeyKind = "NwkSKey"
	ApplicationSessionKey KeyKind = "AppSKey"
	ApplicationKey        KeyKind = "AppKey"
)

// MType represents the message type
type MType byte

const (
	JoinRequest MType = iota
	JoinAccept
	UnconfirmedDataUp
	UnconfirmedDataDown
	ConfirmedDataUp
	ConfirmedDataDown
	RFU
	Proprietary
)

var mtypeNames = [...]string{
	"JoinRequest",
	"JoinAccept",
	"UnconfirmedDataUp",
	"UnconfirmedDataDown",
	"ConfirmedDataUp",
	"ConfirmedDataDown",
	"RFU",
	"Proprietary",
}

// String returns the message type name
func (m MType) String() string {
	if int(m) < len(mtypeNames) {
		return mtypeNames[m]
	}
	return fmt.Sprintf("MType(%d)", byte(m))
}

// MarshalText implements encoding.TextMarshaler
func (m MType) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Direction returns the link direction implied by the message type
func (m MType) Direction() Direction {
	switch m {
	case UnconfirmedDataUp, ConfirmedDataUp:
		return Uplink
	case JoinAccept, UnconfirmedDataDown, ConfirmedDataDown:
		return Downlink
	default:
		return DirectionNone
	}
}

// IsDataFrame reports whether the message type carries a MACPayload
func (m MType) IsDataFrame() bool {
	switch m {
	case UnconfirmedDataUp, UnconfirmedDataDown, ConfirmedDataUp, ConfirmedDataDown:
		return true
	}
	return false
}

// Major represents the LoRaWAN major version
type Major byte

const (
	LoRaWANR1 Major = 0
)

// String returns the major version name
func (m Major) String() string {
	if m == LoRaWANR1 {
		return "LoRaWAN R1"
	}
	return fmt.Sprintf("RFU(%d)", byte(m))
}

// MarshalText implements encoding.TextMarshaler
func (m Major) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Direction is the link direction of a frame or MAC command
type Direction uint8

const (
	DirectionNone Direction = iota
	Uplink
	Downlink
)

// String returns "up", "down" or "none"
func (d Direction) String() string {
	switch d {
	case Uplink:
		return "up"
	case Downlink:
		return "down"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ParseDirection parses "up"/"uplink"/"0" and "down"/"downlink"/"1"
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "uplink", "0":
		return Uplink, nil
	case "down", "downlink", "1":
		return Downlink, nil
	}
	return DirectionNone, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// MHDR represents the MAC header
type MHDR struct {
	MType MType `json:"mType"`
	RFU   uint8 `json:"rfu"`
	Major Major `json:"major"`
}

// FCtrl represents the frame control byte
type FCtrl struct {
	ADR       bool  `json:"adr"`
	ADRACKReq bool  `json:"adrAckReq"`
	ACK       bool  `json:"ack"`
	ClassB    bool  `json:"classB"`
	FPending  bool  `json:"fPending"`
	RFU       bool  `json:"rfu"`
	FOptsLen  uint8 `json:"fOptsLen"`
}

// FHDR represents the frame header
type FHDR struct {
	DevAddr DevAddr  `json:"devAddr"`
	FCtrl   FCtrl    `json:"fCtrl"`
	FCnt    uint16   `json:"fCnt"`
	FOpts   HexBytes `json:"fOpts,omitempty"`

	// FOptsCommands are the MAC commands decoded from FOpts
	FOptsCommands []MACCommand `json:"fOptsCommands,omitempty"`
}

// MACPayload represents a decoded data frame payload.
// FRMPayload holds plaintext when Decrypted is set, otherwise the bytes as received.
type MACPayload struct {
	FHDR FHDR `json:"fhdr"`

	// FCnt32 is the counter used by the cipher (FCntHigh<<16 | FCnt)
	FCnt32      uint32       `json:"fCnt32"`
	FPort       *uint8       `json:"fPort,omitempty"`
	FRMPayload  HexBytes     `json:"frmPayload,omitempty"`
	Decrypted   bool         `json:"decrypted"`
	TestPayload bool         `json:"testPayload,omitempty"`
	MACCommands []MACCommand `json:"macCommands,omitempty"`
}

// JoinRequestPayload represents join request
type JoinRequestPayload struct {
	AppEUI   EUI64  `json:"appEUI"`
	DevEUI   EUI64  `json:"devEUI"`
	DevNonce uint16 `json:"devNonce"`
}

// JoinAcceptPayload represents join accept
type JoinAcceptPayload struct {
	AppNonce   HexBytes   `json:"appNonce"`
	NetID      HexBytes   `json:"netID"`
	DevAddr    DevAddr    `json:"devAddr"`
	DLSettings DLSettings `json:"dlSettings"`
	RxDelay    uint8      `json:"rxDelay"`
	CFList     *CFList    `json:"cfList,omitempty"`
	Decrypted  bool       `json:"decrypted"`
}

// RxDelaySeconds returns the RX1 delay; 0 means 1 second
func (j JoinAcceptPayload) RxDelaySeconds() int {
	if d := int(j.RxDelay & 0x0F); d > 0 {
		return d
	}
	return 1
}

// DLSettings represents downlink settings
type DLSettings struct {
	OptNeg      bool  `json:"optNeg"`
	RX1DROffset uint8 `json:"rx1DROffset"`
	RX2DataRate uint8 `json:"rx2DataRate"`
}

// CFList represents the optional channel frequency list of a join accept
type CFList struct {
	// Frequencies holds channels 3..7 in Hz
	Frequencies [5]uint32 `json:"frequencies"`
	Type        uint8     `json:"type"`
	Raw         HexBytes  `json:"raw"`
}
