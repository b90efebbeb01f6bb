package lorawan

import (
	"encoding/binary"
	"fmt"
)

// fhdrMinLen is DevAddr(4) + FCtrl(1) + FCnt(2)
const fhdrMinLen = 7

// decodeFCtrl decodes the frame control byte; bits 6 and 4 depend on direction
func decodeFCtrl(b byte, dir Direction) FCtrl {
	fctrl := FCtrl{
		ADR:      b&0x80 != 0,
		ACK:      b&0x20 != 0,
		FOptsLen: b & 0x0F,
	}
	if dir == Uplink {
		fctrl.ADRACKReq = b&0x40 != 0
		fctrl.ClassB = b&0x10 != 0
	} else {
		fctrl.RFU = b&0x40 != 0
		fctrl.FPending = b&0x10 != 0
	}
	return fctrl
}

// decodeMACPayload decodes FHDR, FPort and the raw FRMPayload.
//
// On a FOpts command error the returned payload is complete and the error
// is returned alongside it. Structural errors return what was decoded so far.
func decodeMACPayload(data []byte, dir Direction, fCntHigh uint16) (*MACPayload, error) {
	if len(data) < fhdrMinLen {
		return nil, fmt.Errorf("%w: MACPayload is %d bytes, need at least %d", ErrTruncatedFrame, len(data), fhdrMinLen)
	}

	m := &MACPayload{}
	pos := 0

	// DevAddr (4 bytes, little endian)
	copy(m.FHDR.DevAddr[:], reverse(data[pos:pos+4]))
	pos += 4

	// FCtrl (1 byte)
	m.FHDR.FCtrl = decodeFCtrl(data[pos], dir)
	pos++

	// FCnt (2 bytes)
	m.FHDR.FCnt = binary.LittleEndian.Uint16(data[pos : pos+2])
	m.FCnt32 = uint32(fCntHigh)<<16 | uint32(m.FHDR.FCnt)
	pos += 2

	// FOpts (variable length)
	fOptsLen := int(m.FHDR.FCtrl.FOptsLen)
	if pos+fOptsLen > len(data) {
		return m, fmt.Errorf("%w: FOptsLen %d but only %d bytes left", ErrTruncatedFrame, fOptsLen, len(data)-pos)
	}

	var cmdErr error
	if fOptsLen > 0 {
		m.FHDR.FOpts = append(HexBytes(nil), data[pos:pos+fOptsLen]...)
		m.FHDR.FOptsCommands, cmdErr = DecodeMACCommands(dir, m.FHDR.FOpts)
		if cmdErr != nil {
			cmdErr = fmt.Errorf("FOpts: %w", cmdErr)
		}
		pos += fOptsLen
	}

	// FPort and FRMPayload (optional)
	if pos < len(data) {
		fPort := data[pos]
		m.FPort = &fPort
		pos++

		if fPort == 0 && fOptsLen > 0 {
			m.FRMPayload = append(HexBytes(nil), data[pos:]...)
			return m, fmt.Errorf("%w: FOptsLen %d with FPort 0", ErrConflictingCommandPlacement, fOptsLen)
		}

		if pos < len(data) {
			m.FRMPayload = append(HexBytes(nil), data[pos:]...)
		}
	}

	return m, cmdErr
}
