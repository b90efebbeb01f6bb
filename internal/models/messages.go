package models

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// GatewayRXMessage is published by the gateway bridge on gateway.<id>.rx
type GatewayRXMessage struct {
	GatewayID string `json:"gatewayID"`
	RXPK      RXPK   `json:"rxpk"`
	Context   string `json:"context,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// RXPK is the packet forwarder rxpk object
type RXPK struct {
	Time string  `json:"time,omitempty"`
	Tmst uint64  `json:"tmst,omitempty"`
	Freq float64 `json:"freq,omitempty"`
	Chan int     `json:"chan,omitempty"`
	RFCh int     `json:"rfch,omitempty"`
	Stat int     `json:"stat,omitempty"`
	Modu string  `json:"modu,omitempty"`
	DatR string  `json:"datr,omitempty"`
	CodR string  `json:"codr,omitempty"`
	RSSI int     `json:"rssi,omitempty"`
	LSNR float64 `json:"lsnr,omitempty"`
	Size int     `json:"size,omitempty"`
	Data string  `json:"data"`
}

// PHYPayload returns the base64 decoded rxpk data
func (r RXPK) PHYPayload() ([]byte, error) {
	if r.Data == "" {
		return nil, errors.New("rxpk without data")
	}
	return base64.StdEncoding.DecodeString(r.Data)
}

// DecodeResultMessage is published on <prefix>.<gatewayID>.frame
type DecodeResultMessage struct {
	GatewayID string          `json:"gatewayID"`
	MType     string          `json:"mType,omitempty"`
	DevAddr   string          `json:"devAddr,omitempty"`
	Frequency float64         `json:"freq,omitempty"`
	RSSI      int             `json:"rssi,omitempty"`
	LSNR      float64         `json:"lsnr,omitempty"`
	Frame     json.RawMessage `json:"frame,omitempty"`
	Object    Variables       `json:"object,omitempty"`
	ErrorKind string          `json:"errorKind,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp int64           `json:"timestamp"`
}
