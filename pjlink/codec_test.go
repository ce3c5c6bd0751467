package pjlink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFrameShape(t *testing.T) {
	cases := []struct {
		body, value string
	}{
		{bodyPower, "1"},
		{bodyAVMute, "31"},
		{bodyInput, "12"},
		{bodyLamp, queryValue},
	}
	for _, tc := range cases {
		wire, err := buildFrame(tc.body, tc.value)
		require.NoError(t, err)
		assert.True(t, len(wire) < maxFrame)
		assert.Equal(t, byte('%'), wire[0])
		assert.Equal(t, byte('1'), wire[1])
		assert.Equal(t, byte('\r'), wire[len(wire)-1])
		assert.Equal(t, 1, countByte(wire, ' '))
	}
}

func countByte(b []byte, c byte) int {
	n := 0
	for _, x := range b {
		if x == c {
			n++
		}
	}
	return n
}

func TestBuildFrameTooLong(t *testing.T) {
	long := make([]byte, maxFrame)
	for i := range long {
		long[i] = 'x'
	}
	_, err := buildFrame(bodyPower, string(long))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCommandBodyRoundTrip(t *testing.T) {
	wire, err := buildFrame(bodyInput, "12")
	require.NoError(t, err)
	assert.Equal(t, "INPT 12", commandBody(wire))
}

func TestResponsePayload(t *testing.T) {
	payload, ok := responsePayload([]byte("%1POWR=OK\r"))
	require.True(t, ok)
	assert.Equal(t, "OK", payload)

	_, ok = responsePayload([]byte("garbage"))
	assert.False(t, ok)
}

func TestResponseCodeClassification(t *testing.T) {
	cases := []struct {
		resp []byte
		want ResponseCode
	}{
		{nil, Invalid},
		{[]byte("%1POWR=OK\r"), Ok},
		{[]byte("%1POWR=ERR1\r"), SupportError},
		{[]byte("%1POWR=ERR2\r"), ParameterError},
		{[]byte("%1POWR=ERR3\r"), TimeError},
		{[]byte("%1POWR=ERR4\r"), ProjectorError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, responseCode(tc.resp), "resp=%q", tc.resp)
	}
}

func TestDecodePowerStatus(t *testing.T) {
	assert.Equal(t, PowerOff, decodePowerStatus([]byte("%1POWR=0\r")))
	assert.Equal(t, PowerOn, decodePowerStatus([]byte("%1POWR=1\r")))
	assert.Equal(t, PowerCooling, decodePowerStatus([]byte("%1POWR=2\r")))
	assert.Equal(t, PowerWarmingUp, decodePowerStatus([]byte("%1POWR=3\r")))
	assert.Equal(t, PowerTimeError, decodePowerStatus([]byte("%1POWR=ERR3\r")))
}

func TestDecodeAVMuteStatus(t *testing.T) {
	assert.Equal(t, AVMuteOff, decodeAVMuteStatus([]byte("%1AVMT=30\r")))
	assert.Equal(t, AVMuteOn, decodeAVMuteStatus([]byte("%1AVMT=31\r")))
	assert.Equal(t, AVMuteOff, decodeAVMuteStatus([]byte("%1AVMT=10\r")))
	assert.Equal(t, AVMuteOff, decodeAVMuteStatus([]byte("%1AVMT=21\r")))
}

func TestDecodeErrorStatus(t *testing.T) {
	es := decodeErrorStatus([]byte("%1ERST=020100\r"))
	assert.Equal(t, uint16(1<<BitCover), es.Warnings)
	assert.Equal(t, uint16(1<<BitLamp), es.Errors)
	assert.Equal(t, "Cover", es.WarningsString())
	assert.Equal(t, "Lamp", es.ErrorsString())
}

func TestDecodeLampHours(t *testing.T) {
	hours, ok := decodeLampHours([]byte("%1LAMP=8933 1\r"))
	require.True(t, ok)
	assert.Equal(t, 8933, hours)
}

func TestBuildInputValue(t *testing.T) {
	v, err := buildInputValue(InputRGB, 2)
	require.NoError(t, err)
	assert.Equal(t, "12", v)

	v, err = buildInputValue(InputNetwork, 9)
	require.NoError(t, err)
	assert.Equal(t, "59", v)

	_, err = buildInputValue(InputRGB, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = buildInputValue(InputRGB, 10)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
