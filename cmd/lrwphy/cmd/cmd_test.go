package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorawan-server/lrwphy/internal/config"
	"github.com/lorawan-server/lrwphy/internal/decoder"
	"github.com/lorawan-server/lrwphy/pkg/crypto"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer

	cmd := newRootCmd("1.2.3")
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	err := cmd.Execute()
	return out.String(), err
}

func TestDecodeCommand(t *testing.T) {
	out, err := run(t, "", "decode", "40C1D25201A5050003070703120864FE226A9E")
	require.NoError(t, err)
	assert.Contains(t, out, "=== PHYPayload ===")
	assert.Contains(t, out, "LinkADRAns")
	assert.Contains(t, out, "## MIC          : xfe226a9e")
	assert.NotContains(t, out, "ERROR")
}

func TestDecodeCommandStdinAndSeparators(t *testing.T) {
	out, err := run(t, "40:C1:D2:52:01:A5:05:00:03:07:07:03:12:08:64:FE:22:6A:9E\n", "decode")
	require.NoError(t, err)
	assert.Contains(t, out, "BeaconTimingReq")

	out, err = run(t, "", "decode", "40.c1.d2.52.01.a5.5.0.3.7.7.3.12.8.64.fe.22.6a.9e")
	require.NoError(t, err)
	assert.Contains(t, out, "NewChannelAns")
}

func TestDecodeCommandDecrypts(t *testing.T) {
	// "0002" encrypted downlink on port 1 for DevAddr 0000baad, FCnt 3
	frame := "60" + "adba0000" + "00" + "0300" + "01" + "7986" + "01020304"
	out, err := run(t, "", "decode", "--json", "--appskey", "2b7e151628aed2a6abf7158809cf4f3c", frame)
	require.NoError(t, err)

	var res struct {
		Frame struct {
			Direction  string `json:"direction"`
			MACPayload struct {
				Decrypted  bool   `json:"decrypted"`
				FRMPayload string `json:"frmPayload"`
			} `json:"macPayload"`
		} `json:"frame"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "down", res.Frame.Direction)
	assert.True(t, res.Frame.MACPayload.Decrypted)
	assert.Equal(t, "0002", res.Frame.MACPayload.FRMPayload)
}

func TestDecodeCommandErrors(t *testing.T) {
	out, err := run(t, "", "decode", "4001")
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, out, "ERROR [truncated_frame]")

	out, err = run(t, "", "decode", "--json", "zz")
	assert.ErrorIs(t, err, errReported)
	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "malformed_hex", body["errorKind"])

	// partial frames print the report and the error
	out, err = run(t, "", "decode", "e0aabb01020304")
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, out, "=== PHYPayload ===")
	assert.Contains(t, out, "ERROR [unsupported_frame_type]")

	_, err = run(t, "", "decode")
	assert.ErrorIs(t, err, decoder.ErrNoInput)
}

func TestEncryptCommand(t *testing.T) {
	out, err := run(t, "", "encrypt",
		"--key", "2b7e151628aed2a6abf7158809cf4f3c",
		"--devaddr", "0000baad", "--fcnt", "00000003", "--dir", "down", "7986")
	require.NoError(t, err)
	assert.Equal(t, "0002\n", out)

	out, err = run(t, "", "encrypt",
		"--key", "2b7e151628aed2a6abf7158809cf4f3c",
		"--devaddr", "adba0000", "--fcnt", "03000000", "--dir", "down", "--big-endian=false", "0002")
	require.NoError(t, err)
	assert.Equal(t, "7986\n", out)

	_, err = run(t, "", "encrypt", "--key", "00", "--devaddr", "0000baad", "--fcnt", "00000003", "00")
	assert.Error(t, err)

	_, err = run(t, "", "encrypt", "7986")
	assert.ErrorContains(t, err, "required flag")
}

func TestJoinKeysCommand(t *testing.T) {
	out, err := run(t, "", "join-keys",
		"--appkey", "2b7e151628aed2a6abf7158809cf4f3c",
		"--appnonce", "010203", "--netid", "130000", "--devnonce", "aabb")
	require.NoError(t, err)
	assert.Contains(t, out, "NwkSKey: ")
	assert.Contains(t, out, "AppSKey: ")

	// the same join given most significant byte first
	be, err := run(t, "", "join-keys",
		"--appkey", "2b7e151628aed2a6abf7158809cf4f3c",
		"--appnonce", "030201", "--netid", "000013", "--devnonce", "bbaa", "--big-endian")
	require.NoError(t, err)
	assert.Equal(t, out, be)

	_, err = run(t, "", "join-keys",
		"--appkey", "2b7e151628aed2a6abf7158809cf4f3c",
		"--appnonce", "0102", "--netid", "130000", "--devnonce", "aabb")
	assert.ErrorContains(t, err, "appnonce")
}

func TestSelftest(t *testing.T) {
	out, err := run(t, "", "selftest")
	require.NoError(t, err)
	assert.NotContains(t, out, "FAIL")
	assert.Equal(t, len(selftestFrames)+len(selftestCipher), strings.Count(out, "ok   "))
}

func TestSelftestReportsFailures(t *testing.T) {
	svc, err := decoder.NewService(config.DecoderConfig{}, nil, nil)
	require.NoError(t, err)

	tc := selftestFrames[1]
	tc.fCnt = 6
	assert.ErrorContains(t, checkFrame(context.Background(), svc, tc), "fCnt 5, want 6")
}

func TestHashPasswordCommand(t *testing.T) {
	out, err := run(t, "", "hash-password", "secret")
	require.NoError(t, err)
	assert.True(t, crypto.VerifyPassword("secret", strings.TrimSpace(out)))

	out, err = run(t, "other\n", "hash-password")
	require.NoError(t, err)
	assert.True(t, crypto.VerifyPassword("other", strings.TrimSpace(out)))

	_, err = run(t, "", "hash-password")
	assert.Error(t, err)
}

func TestVersionAndShowConfig(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", out)

	out, err = run(t, "", "serve", "--show-config")
	require.NoError(t, err)
	assert.Contains(t, out, "=== LoRaWAN PHY Decoder Configuration ===")
}
