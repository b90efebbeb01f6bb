package lorawan

import (
	"encoding/binary"
	"fmt"
)

const (
	mhdrLen = 1
	micLen  = 4

	joinRequestLen      = 18
	joinAcceptLen       = 12
	joinAcceptCFListLen = 28
)

// TestPort is the FPort reserved for test payloads. Bodies on it are
// returned as received.
const TestPort = 224

// DecodeOptions carries the optional key material of a decode.
// A nil key leaves the matching payload as received.
type DecodeOptions struct {
	NwkSKey *AES128Key
	AppSKey *AES128Key
	AppKey  *AES128Key

	// FCntHigh is the upper 16 bits of the frame counter
	FCntHigh uint16

	// RequireKeys turns an absent session key into a MissingKeyError
	RequireKeys bool
}

// Frame is the decode report of one PHYPayload.
// The MIC is extracted as received and never verified.
type Frame struct {
	MHDR      MHDR      `json:"mhdr"`
	Direction Direction `json:"direction"`
	Body      HexBytes  `json:"body"`
	MIC       HexBytes  `json:"mic"`

	JoinRequest *JoinRequestPayload `json:"joinRequest,omitempty"`
	JoinAccept  *JoinAcceptPayload  `json:"joinAccept,omitempty"`
	MACPayload  *MACPayload         `json:"macPayload,omitempty"`
}

// decodeMHDR splits the MAC header byte
func decodeMHDR(b byte) MHDR {
	return MHDR{
		MType: MType((b >> 5) & 0x07),
		RFU:   (b >> 2) & 0x07,
		Major: Major(b & 0x03),
	}
}

// Decode decodes a PHYPayload.
//
// On failure the returned frame holds the fields decoded before the failing
// step; it is nil only when the input is shorter than MHDR plus MIC.
func Decode(data []byte, opts DecodeOptions) (*Frame, error) {
	if len(data) < mhdrLen+micLen {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrTruncatedFrame, len(data), mhdrLen+micLen)
	}

	f := &Frame{
		MHDR: decodeMHDR(data[0]),
		Body: append(HexBytes(nil), data[mhdrLen:len(data)-micLen]...),
		MIC:  append(HexBytes(nil), data[len(data)-micLen:]...),
	}
	f.Direction = f.MHDR.MType.Direction()

	switch mType := f.MHDR.MType; {
	case mType == JoinRequest:
		return f, f.decodeJoinRequest()
	case mType == JoinAccept:
		return f, f.decodeJoinAccept(opts.AppKey)
	case mType.IsDataFrame():
		return f, f.decodeData(opts)
	default:
		return f, fmt.Errorf("%w: %s", ErrUnsupportedFrameType, mType)
	}
}

func (f *Frame) decodeJoinRequest() error {
	if len(f.Body) != joinRequestLen {
		return fmt.Errorf("%w: join request body is %d bytes, expected %d", ErrInvalidLength, len(f.Body), joinRequestLen)
	}

	jr := &JoinRequestPayload{}
	copy(jr.AppEUI[:], reverse(f.Body[0:8]))
	copy(jr.DevEUI[:], reverse(f.Body[8:16]))
	jr.DevNonce = binary.LittleEndian.Uint16(f.Body[16:18])
	f.JoinRequest = jr

	return nil
}

func (f *Frame) decodeJoinAccept(appKey *AES128Key) error {
	if len(f.Body) != joinAcceptLen && len(f.Body) != joinAcceptCFListLen {
		return fmt.Errorf("%w: join accept body is %d bytes, expected %d or %d",
			ErrInvalidLength, len(f.Body), joinAcceptLen, joinAcceptCFListLen)
	}

	body := f.Body
	decrypted := false
	if appKey != nil {
		// The MIC is encrypted together with the body
		plain, err := DecryptJoinAccept(appKey, append(append([]byte(nil), f.Body...), f.MIC...))
		if err != nil {
			return err
		}
		body = plain[:len(plain)-micLen]
		f.MIC = append(HexBytes(nil), plain[len(plain)-micLen:]...)
		decrypted = true
	}

	ja := &JoinAcceptPayload{
		AppNonce:  reverse(body[0:3]),
		NetID:     reverse(body[3:6]),
		RxDelay:   body[11],
		Decrypted: decrypted,
		DLSettings: DLSettings{
			OptNeg:      body[10]&0x80 != 0,
			RX1DROffset: (body[10] >> 4) & 0x07,
			RX2DataRate: body[10] & 0x0F,
		},
	}
	copy(ja.DevAddr[:], reverse(body[6:10]))

	if len(body) == joinAcceptCFListLen {
		cf := &CFList{
			Raw:  append(HexBytes(nil), body[12:28]...),
			Type: body[27],
		}
		for i := range cf.Frequencies {
			cf.Frequencies[i] = frequency(body[12+3*i : 15+3*i])
		}
		ja.CFList = cf
	}
	f.JoinAccept = ja

	return nil
}

func (f *Frame) decodeData(opts DecodeOptions) error {
	m, err := decodeMACPayload(f.Body, f.Direction, opts.FCntHigh)
	f.MACPayload = m
	if m == nil {
		return err
	}
	if err != nil && !isCommandError(err) {
		return err
	}
	cmdErr := err

	if m.FPort == nil || len(m.FRMPayload) == 0 {
		return cmdErr
	}

	fPort := *m.FPort
	if fPort == TestPort {
		m.TestPayload = true
		return cmdErr
	}

	key, kind := opts.AppSKey, ApplicationSessionKey
	if fPort == 0 {
		key, kind = opts.NwkSKey, NetworkSessionKey
	}
	if key == nil {
		if opts.RequireKeys {
			return firstError(cmdErr, &MissingKeyError{Kind: kind})
		}
		return cmdErr
	}

	plain, err := EncryptFRMPayload(key, NewCipherParams(f.Direction, m.FHDR.DevAddr, m.FCnt32), m.FRMPayload)
	if err != nil {
		return err
	}
	m.FRMPayload = plain
	m.Decrypted = true

	if fPort == 0 {
		m.MACCommands, err = DecodeMACCommands(f.Direction, plain)
		if err != nil {
			return firstError(cmdErr, fmt.Errorf("FRMPayload: %w", err))
		}
	}

	return cmdErr
}

// isCommandError reports errors that stop a command stream but not the frame
func isCommandError(err error) bool {
	switch ErrorKind(err) {
	case "unrecognized_command", "truncated_command":
		return true
	}
	return false
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
