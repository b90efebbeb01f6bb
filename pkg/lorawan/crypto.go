package lorawan

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
)

// CipherParams are the inputs of the FRMPayload keystream besides the key.
//
// DevAddr and FCnt are copied into the A block as given when BigEndian is
// false (wire order), and reversed when BigEndian is true (the bytes were
// written most significant first).
type CipherParams struct {
	Direction Direction
	DevAddr   [4]byte
	FCnt      [4]byte
	BigEndian bool
}

// NewCipherParams builds params from a display-order address and a full counter
func NewCipherParams(dir Direction, devAddr DevAddr, fCnt uint32) CipherParams {
	p := CipherParams{
		Direction: dir,
		DevAddr:   devAddr,
		BigEndian: true,
	}
	binary.BigEndian.PutUint32(p.FCnt[:], fCnt)
	return p
}

// newBlockCipher builds the AES-128 block cipher for a key
var newBlockCipher = func(key AES128Key) (cipher.Block, error) {
	return aes.NewCipher(key[:])
}

// encryptBlock encrypts one 16-byte block in ECB mode
func encryptBlock(c cipher.Block, block [16]byte) [16]byte {
	var out [16]byte
	c.Encrypt(out[:], block[:])
	return out
}

// EncryptFRMPayload encrypts/decrypts FRM payload.
// The operation is its own inverse.
func EncryptFRMPayload(key *AES128Key, p CipherParams, payload []byte) ([]byte, error) {
	if key == nil {
		return nil, &MissingKeyError{}
	}
	if p.Direction != Uplink && p.Direction != Downlink {
		return nil, fmt.Errorf("%w: cipher needs uplink or downlink, got %s", ErrInvalidDirection, p.Direction)
	}

	// Build A block
	var a [16]byte
	a[0] = 0x01
	if p.Direction == Downlink {
		a[5] = 0x01
	}
	devAddr, fCnt := p.DevAddr[:], p.FCnt[:]
	if p.BigEndian {
		devAddr, fCnt = reverse(devAddr), reverse(fCnt)
	}
	copy(a[6:10], devAddr)
	copy(a[10:14], fCnt)

	c, err := newBlockCipher(*key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(payload))
	for i := 0; i*16 < len(payload); i++ {
		a[15] = byte(i + 1)
		s := encryptBlock(c, a)
		chunk := payload[i*16:]
		if len(chunk) > 16 {
			chunk = chunk[:16]
		}
		for j := range chunk {
			out[i*16+j] = chunk[j] ^ s[j]
		}
	}

	return out, nil
}
