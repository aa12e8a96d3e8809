package codec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte("hello, shmipc")
	frame := Encode(7, 42, payload)

	h, out, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), h.Type)
	assert.EqualValues(t, 42, h.CorrelationID)
	if diff := cmp.Diff(payload, out); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	frame := Encode(1, 1, []byte("x"))
	frame[0] ^= 0xFF

	_, _, err := Decode(frame)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	frame := Encode(1, 1, []byte("x"))
	var h Header
	var err error
	h, err = DecodeHeader(frame[:HeaderSize])
	require.NoError(t, err)
	h.Version = 99
	EncodeHeader(frame, h)

	_, _, err = Decode(frame)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodeRejectsCorruptedPayload(t *testing.T) {
	frame := Encode(1, 1, []byte("hello"))
	frame[HeaderSize] ^= 0xFF

	_, _, err := Decode(frame)
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestEmptyPayloadRoundTrips(t *testing.T) {
	frame := Encode(2, 0, nil)
	h, out, err := Decode(frame)
	require.NoError(t, err)
	assert.EqualValues(t, 0, h.Length)
	assert.Empty(t, out)
}

func TestMaxMessageSizeIsHalfCapacity(t *testing.T) {
	assert.EqualValues(t, 1024, MaxMessageSize(2048))
}
