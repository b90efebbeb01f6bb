package lorawan

import (
	"encoding/json"
	"testing"

	brocaar "github.com/brocaar/lorawan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.thethings.network/lorawan-stack/v3/pkg/crypto"
	"go.thethings.network/lorawan-stack/v3/pkg/types"
)

func TestDecodeRegressionFrames(t *testing.T) {
	t.Run("unconfirmed up without FOpts", func(t *testing.T) {
		require := require.New(t)

		f, err := Decode(mustHex(t, "402105810080160102a6bf4432169ea0784416868d9420dd244619443e"), DecodeOptions{})
		require.NoError(err)
		require.Equal(UnconfirmedDataUp, f.MHDR.MType)
		require.Equal(LoRaWANR1, f.MHDR.Major)
		require.Equal(Uplink, f.Direction)
		require.Equal("4619443e", f.MIC.String())

		m := f.MACPayload
		require.NotNil(m)
		require.Equal(DevAddr{0x00, 0x81, 0x05, 0x21}, m.FHDR.DevAddr)
		require.Equal(FCtrl{ADR: true}, m.FHDR.FCtrl)
		require.Equal(uint16(278), m.FHDR.FCnt)
		require.Equal(uint32(278), m.FCnt32)
		require.Empty(m.FHDR.FOptsCommands)
		require.NotNil(m.FPort)
		require.Equal(uint8(2), *m.FPort)
		require.Equal("a6bf4432169ea0784416868d9420dd24", m.FRMPayload.String())
		require.False(m.Decrypted)
	})

	t.Run("unconfirmed up with FOpts", func(t *testing.T) {
		require := require.New(t)

		f, err := Decode(mustHex(t, "40C1D25201A5050003070703120864FE226A9E"), DecodeOptions{})
		require.NoError(err)
		require.Equal(UnconfirmedDataUp, f.MHDR.MType)

		m := f.MACPayload
		require.Equal(DevAddr{0x01, 0x52, 0xd2, 0xc1}, m.FHDR.DevAddr)
		require.Equal(FCtrl{ADR: true, ACK: true, FOptsLen: 5}, m.FHDR.FCtrl)
		require.Equal(uint16(5), m.FHDR.FCnt)
		require.Equal("0307070312", m.FHDR.FOpts.String())

		cmds := m.FHDR.FOptsCommands
		require.Len(cmds, 3)
		require.Equal("LinkADRAns", cmds[0].Name)
		require.Equal(&LinkADRAnsPayload{PowerACK: true, DataRateACK: true, ChannelMaskACK: true}, cmds[0].Payload)
		require.Equal("NewChannelAns", cmds[1].Name)
		require.Equal(&NewChannelAnsPayload{DataRateRangeOK: true, ChannelFrequencyOK: true}, cmds[1].Payload)
		require.Equal("BeaconTimingReq", cmds[2].Name)
		require.Nil(cmds[2].Payload)

		require.Equal(uint8(8), *m.FPort)
		require.Equal("64", m.FRMPayload.String())
		require.Equal("fe226a9e", f.MIC.String())
	})
}

func TestDecodeUplinkBuiltWithBrocaar(t *testing.T) {
	require := require.New(t)

	appSKey := brocaar.AES128Key{0x2b, 0x7e, 0x15, 0x16, 0x28, 0xae, 0xd2, 0xa6, 0xab, 0xf7, 0x15, 0x88, 0x09, 0xcf, 0x4f, 0x3c}
	fPort := uint8(10)
	data := []byte("hello from a class A device")

	phy := brocaar.PHYPayload{
		MHDR: brocaar.MHDR{MType: brocaar.ConfirmedDataUp, Major: brocaar.LoRaWANR1},
		MACPayload: &brocaar.MACPayload{
			FHDR: brocaar.FHDR{
				DevAddr: brocaar.DevAddr{0x01, 0x02, 0x03, 0x04},
				FCtrl:   brocaar.FCtrl{ADR: true, ADRACKReq: true},
				FCnt:    0x00012345,
				FOpts:   []brocaar.Payload{&brocaar.MACCommand{CID: brocaar.LinkCheckReq}},
			},
			FPort:      &fPort,
			FRMPayload: []brocaar.Payload{&brocaar.DataPayload{Bytes: data}},
		},
		MIC: brocaar.MIC{0x01, 0x02, 0x03, 0x04},
	}
	require.NoError(phy.EncryptFRMPayload(appSKey))
	b, err := phy.MarshalBinary()
	require.NoError(err)

	key := AES128Key(appSKey)
	f, err := Decode(b, DecodeOptions{AppSKey: &key, FCntHigh: 0x0001})
	require.NoError(err)
	require.Equal(ConfirmedDataUp, f.MHDR.MType)
	require.Equal(Uplink, f.Direction)
	require.Equal("01020304", f.MIC.String())

	m := f.MACPayload
	require.Equal(DevAddr{0x01, 0x02, 0x03, 0x04}, m.FHDR.DevAddr)
	require.Equal(FCtrl{ADR: true, ADRACKReq: true, FOptsLen: 1}, m.FHDR.FCtrl)
	require.Equal(uint16(0x2345), m.FHDR.FCnt)
	require.Equal(uint32(0x00012345), m.FCnt32)
	require.Len(m.FHDR.FOptsCommands, 1)
	require.Equal("LinkCheckReq", m.FHDR.FOptsCommands[0].Name)
	require.Equal(uint8(10), *m.FPort)
	require.True(m.Decrypted)
	require.Equal(data, []byte(m.FRMPayload))

	// a wrong counter high half yields different bytes
	f, err = Decode(b, DecodeOptions{AppSKey: &key})
	require.NoError(err)
	require.NotEqual(data, []byte(f.MACPayload.FRMPayload))
}

func TestDecodeDownlinkMACCommandsBuiltWithBrocaar(t *testing.T) {
	require := require.New(t)

	nwkSKey := brocaar.AES128Key{0xab, 0x89, 0xef, 0xcd, 0x23, 0x01, 0x67, 0x45, 0x54, 0x76, 0x10, 0x32, 0xdc, 0xfe, 0x98, 0xba}
	fPort := uint8(0)

	phy := brocaar.PHYPayload{
		MHDR: brocaar.MHDR{MType: brocaar.UnconfirmedDataDown, Major: brocaar.LoRaWANR1},
		MACPayload: &brocaar.MACPayload{
			FHDR: brocaar.FHDR{
				DevAddr: brocaar.DevAddr{0x26, 0x01, 0x1f, 0x2a},
				FCtrl:   brocaar.FCtrl{ACK: true, FPending: true},
				FCnt:    42,
			},
			FPort: &fPort,
			FRMPayload: []brocaar.Payload{
				&brocaar.MACCommand{CID: brocaar.DevStatusReq},
				&brocaar.MACCommand{
					CID: brocaar.LinkADRReq,
					Payload: &brocaar.LinkADRReqPayload{
						DataRate:   5,
						TXPower:    2,
						ChMask:     brocaar.ChMask{true, true, true},
						Redundancy: brocaar.Redundancy{NbRep: 1},
					},
				},
			},
		},
	}
	require.NoError(phy.EncryptFRMPayload(nwkSKey))
	b, err := phy.MarshalBinary()
	require.NoError(err)

	key := AES128Key(nwkSKey)
	f, err := Decode(b, DecodeOptions{NwkSKey: &key})
	require.NoError(err)
	require.Equal(Downlink, f.Direction)

	m := f.MACPayload
	require.Equal(FCtrl{ACK: true, FPending: true}, m.FHDR.FCtrl)
	require.Equal(uint8(0), *m.FPort)
	require.True(m.Decrypted)
	require.Len(m.MACCommands, 2)
	require.Equal("DevStatusReq", m.MACCommands[0].Name)
	require.Equal("LinkADRReq", m.MACCommands[1].Name)
	require.Equal(&LinkADRReqPayload{DataRate: 5, TXPower: 2, ChMask: 0x0007, NbTrans: 1}, m.MACCommands[1].Payload)

	// the application key is never used for port 0
	f, err = Decode(b, DecodeOptions{AppSKey: &key})
	require.NoError(err)
	require.False(f.MACPayload.Decrypted)
	require.Empty(f.MACPayload.MACCommands)
}

func TestDecodeMissingKeys(t *testing.T) {
	require := require.New(t)

	frame := mustHex(t, "402105810080160102a6bf4432169ea0784416868d9420dd244619443e")

	f, err := Decode(frame, DecodeOptions{RequireKeys: true})
	var missing *MissingKeyError
	require.ErrorAs(err, &missing)
	require.Equal(ApplicationSessionKey, missing.Kind)
	require.NotNil(f)
	require.Equal(DevAddr{0x00, 0x81, 0x05, 0x21}, f.MACPayload.FHDR.DevAddr)
	require.False(f.MACPayload.Decrypted)
}

func TestDecodeTestPort(t *testing.T) {
	require := require.New(t)

	key := mustKey(t, "2b7e151628aed2a6abf7158809cf4f3c")
	f, err := Decode(mustHex(t, "4004030201000100e0aabbcc01020304"), DecodeOptions{AppSKey: key, NwkSKey: key})
	require.NoError(err)

	m := f.MACPayload
	require.Equal(uint8(TestPort), *m.FPort)
	require.True(m.TestPayload)
	require.False(m.Decrypted)
	require.Equal("aabbcc", m.FRMPayload.String())
}

func TestDecodeConflictingCommandPlacement(t *testing.T) {
	require := require.New(t)

	// FOptsLen 1 (LinkCheckReq) and FPort 0
	f, err := Decode(mustHex(t, "40"+"04030201"+"01"+"0100"+"02"+"00"+"aabb"+"01020304"), DecodeOptions{})
	require.ErrorIs(err, ErrConflictingCommandPlacement)
	require.NotNil(f.MACPayload)
	require.Equal(DevAddr{0x01, 0x02, 0x03, 0x04}, f.MACPayload.FHDR.DevAddr)
	require.Len(f.MACPayload.FHDR.FOptsCommands, 1)
	require.Equal("aabb", f.MACPayload.FRMPayload.String())
	require.Equal("conflicting_command_placement", ErrorKind(err))
}

func TestDecodeUnrecognizedFOptsKeepsFrame(t *testing.T) {
	require := require.New(t)

	key := mustKey(t, "2b7e151628aed2a6abf7158809cf4f3c")
	plain := []byte{0xde, 0xad, 0xbe, 0xef}
	enc, err := EncryptFRMPayload(key, NewCipherParams(Uplink, DevAddr{0x01, 0x02, 0x03, 0x04}, 1), plain)
	require.NoError(err)

	frame := mustHex(t, "40"+"04030201"+"02"+"0100"+"0280"+"01")
	frame = append(frame, enc...)
	frame = append(frame, 0x01, 0x02, 0x03, 0x04)

	f, err := Decode(frame, DecodeOptions{AppSKey: key})
	var unrecognized *UnrecognizedCommandError
	require.ErrorAs(err, &unrecognized)
	require.Equal(CID(0x80), unrecognized.CID)

	m := f.MACPayload
	require.Len(m.FHDR.FOptsCommands, 1)
	require.Equal("LinkCheckReq", m.FHDR.FOptsCommands[0].Name)
	require.True(m.Decrypted)
	require.Equal(plain, []byte(m.FRMPayload))
}

func TestDecodeStructuralErrors(t *testing.T) {
	t.Run("shorter than MHDR and MIC", func(t *testing.T) {
		f, err := Decode(mustHex(t, "40010203"), DecodeOptions{})
		require.ErrorIs(t, err, ErrTruncatedFrame)
		require.Nil(t, f)
	})

	t.Run("FHDR truncated", func(t *testing.T) {
		f, err := Decode(mustHex(t, "4001020304050607"), DecodeOptions{})
		require.ErrorIs(t, err, ErrTruncatedFrame)
		require.NotNil(t, f)
		require.Equal(t, UnconfirmedDataUp, f.MHDR.MType)
		require.Nil(t, f.MACPayload)
	})

	t.Run("FOpts past end", func(t *testing.T) {
		f, err := Decode(mustHex(t, "400403020105010002"+"01020304"), DecodeOptions{})
		require.ErrorIs(t, err, ErrTruncatedFrame)
		require.Equal(t, DevAddr{0x01, 0x02, 0x03, 0x04}, f.MACPayload.FHDR.DevAddr)
		require.Equal(t, uint8(5), f.MACPayload.FHDR.FCtrl.FOptsLen)
	})

	for _, mhdr := range []string{"c0", "e0"} {
		t.Run("unsupported "+mhdr, func(t *testing.T) {
			f, err := Decode(mustHex(t, mhdr+"aabb01020304"), DecodeOptions{})
			require.ErrorIs(t, err, ErrUnsupportedFrameType)
			require.Equal(t, "aabb", f.Body.String())
			require.Equal(t, "01020304", f.MIC.String())
			require.Equal(t, DirectionNone, f.Direction)
			require.False(t, f.MHDR.MType.IsDataFrame())
		})
	}
}

func TestDecodeMHDRFields(t *testing.T) {
	require := require.New(t)

	// ConfirmedDataDown, RFU bits set, major 1
	f, err := Decode(mustHex(t, "bd0403020100010001020304"), DecodeOptions{})
	require.NoError(err)
	require.Equal(MHDR{MType: ConfirmedDataDown, RFU: 7, Major: 1}, f.MHDR)
	require.Equal(Downlink, f.Direction)
	require.Nil(f.MACPayload.FPort)
	require.Empty(f.MACPayload.FRMPayload)

	// port without payload
	f, err = Decode(mustHex(t, "6004030201000100"+"05"+"01020304"), DecodeOptions{})
	require.NoError(err)
	require.Equal(uint8(5), *f.MACPayload.FPort)
	require.Empty(f.MACPayload.FRMPayload)
}

func TestDecodeJoinRequest(t *testing.T) {
	require := require.New(t)

	f, err := Decode(mustHex(t, "00"+"0807060504030201"+"1817161514131211"+"3412"+"aabbccdd"), DecodeOptions{})
	require.NoError(err)
	require.Equal(JoinRequest, f.MHDR.MType)
	require.Equal(DirectionNone, f.Direction)
	require.Equal("0102030405060708", f.JoinRequest.AppEUI.String())
	require.Equal("1112131415161718", f.JoinRequest.DevEUI.String())
	require.Equal(uint16(0x1234), f.JoinRequest.DevNonce)
	require.Equal("aabbccdd", f.MIC.String())

	_, err = Decode(mustHex(t, "00"+"0807060504030201"+"aabbccdd"), DecodeOptions{})
	require.ErrorIs(err, ErrInvalidLength)
}

const joinAcceptPlain = "030201" + "130000" + "2a1f0126" + "23" + "01"
const cfList = "184f84" + "e85684" + "b85e84" + "886684" + "586e84" + "00"

func TestDecodeJoinAcceptPlain(t *testing.T) {
	require := require.New(t)

	f, err := Decode(mustHex(t, "20"+joinAcceptPlain+"11223344"), DecodeOptions{})
	require.NoError(err)
	require.Equal(JoinAccept, f.MHDR.MType)
	require.Equal(Downlink, f.Direction)

	ja := f.JoinAccept
	require.False(ja.Decrypted)
	require.Equal("010203", ja.AppNonce.String())
	require.Equal("000013", ja.NetID.String())
	require.Equal(DevAddr{0x26, 0x01, 0x1f, 0x2a}, ja.DevAddr)
	require.Equal(DLSettings{RX1DROffset: 2, RX2DataRate: 3}, ja.DLSettings)
	require.Equal(1, ja.RxDelaySeconds())
	require.Nil(ja.CFList)
}

func TestDecodeJoinAcceptEncrypted(t *testing.T) {
	require := require.New(t)

	appKey := mustKey(t, "000102030405060708090a0b0c0d0e0f")
	plain := mustHex(t, joinAcceptPlain+cfList+"11223344")
	enc, err := crypto.EncryptJoinAccept(types.AES128Key(*appKey), plain)
	require.NoError(err)

	frame := append([]byte{0x20}, enc...)
	f, err := Decode(frame, DecodeOptions{AppKey: appKey})
	require.NoError(err)

	ja := f.JoinAccept
	require.True(ja.Decrypted)
	require.Equal("010203", ja.AppNonce.String())
	require.Equal(DevAddr{0x26, 0x01, 0x1f, 0x2a}, ja.DevAddr)
	require.Equal("11223344", f.MIC.String())
	require.NotNil(ja.CFList)
	require.Equal([5]uint32{867100000, 867300000, 867500000, 867700000, 867900000}, ja.CFList.Frequencies)
	require.Equal(uint8(0), ja.CFList.Type)

	_, err = Decode(mustHex(t, "20"+joinAcceptPlain+"0000"+"11223344"), DecodeOptions{})
	require.ErrorIs(err, ErrInvalidLength)
}

func TestFrameJSON(t *testing.T) {
	f, err := Decode(mustHex(t, "40C1D25201A5050003070703120864FE226A9E"), DecodeOptions{})
	require.NoError(t, err)

	b, err := json.Marshal(f)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, "up", out["direction"])
	assert.Equal(t, "fe226a9e", out["mic"])

	mhdr := out["mhdr"].(map[string]interface{})
	assert.Equal(t, "UnconfirmedDataUp", mhdr["mType"])

	mac := out["macPayload"].(map[string]interface{})
	fhdr := mac["fhdr"].(map[string]interface{})
	assert.Equal(t, "0152d2c1", fhdr["devAddr"])
	assert.Equal(t, "0307070312", fhdr["fOpts"])
}
