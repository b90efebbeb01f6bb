package lorawan

import (
	"crypto/aes"
	"fmt"
)

// DecryptJoinAccept decrypts a join accept body including its trailing MIC.
// The network encrypts with an AES decrypt operation, so decrypting is an
// AES encrypt per block.
func DecryptJoinAccept(key *AES128Key, encrypted []byte) ([]byte, error) {
	if key == nil {
		return nil, &MissingKeyError{Kind: ApplicationKey}
	}
	if len(encrypted) == 0 || len(encrypted)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: join accept ciphertext is %d bytes", ErrInvalidLength, len(encrypted))
	}

	c, err := newBlockCipher(*key)
	if err != nil {
		return nil, err
	}

	decrypted := make([]byte, len(encrypted))
	for i := 0; i < len(encrypted); i += aes.BlockSize {
		var block [16]byte
		copy(block[:], encrypted[i:i+aes.BlockSize])
		plain := encryptBlock(c, block)
		copy(decrypted[i:], plain[:])
	}

	return decrypted, nil
}

// DeriveSessionKeys10 derives NwkSKey and AppSKey according to LoRaWAN 1.0.x.
// appNonce, netID and devNonce are given in wire order.
func DeriveSessionKeys10(appKey AES128Key, appNonce [3]byte, netID [3]byte, devNonce [2]byte) (nwkSKey, appSKey AES128Key, err error) {
	c, err := newBlockCipher(appKey)
	if err != nil {
		return
	}

	var msg [16]byte
	copy(msg[1:4], appNonce[:])
	copy(msg[4:7], netID[:])
	copy(msg[7:9], devNonce[:])

	// NwkSKey = aes128_encrypt(AppKey, 0x01 | AppNonce | NetID | DevNonce | pad16)
	msg[0] = 0x01
	nwkSKey = encryptBlock(c, msg)

	// AppSKey = aes128_encrypt(AppKey, 0x02 | AppNonce | NetID | DevNonce | pad16)
	msg[0] = 0x02
	appSKey = encryptBlock(c, msg)
	return
}
