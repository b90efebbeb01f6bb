package models

import (
	"time"

	"github.com/google/uuid"
)

// DecodedFrame is one entry of the decode log
type DecodedFrame struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Source     string    `json:"source" db:"source"`
	GatewayID  string    `json:"gatewayID,omitempty" db:"gateway_id"`
	PHYPayload []byte    `json:"phyPayload" db:"phy_payload"`

	// Header summary
	MType     string  `json:"mType" db:"m_type"`
	Direction string  `json:"direction" db:"direction"`
	DevAddr   *string `json:"devAddr,omitempty" db:"dev_addr"`
	FCnt      *uint32 `json:"fCnt,omitempty" db:"f_cnt"`
	FPort     *uint8  `json:"fPort,omitempty" db:"f_port"`

	// Decrypted data
	FRMPayload []byte    `json:"frmPayload,omitempty" db:"frm_payload"`
	Decrypted  bool      `json:"decrypted" db:"decrypted"`
	Object     Variables `json:"object,omitempty" db:"object"`

	// Full report as JSON
	Report Variables `json:"report" db:"report"`

	ErrorKind string `json:"errorKind,omitempty" db:"error_kind"`
	Error     string `json:"error,omitempty" db:"error"`

	ReceivedAt time.Time `json:"receivedAt" db:"received_at"`
}

// DecodedFrameFilter narrows ListDecodedFrames
type DecodedFrameFilter struct {
	DevAddr string
	MType   string
}
