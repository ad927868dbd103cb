package link

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSerialize(t *testing.T, f *Frame) []byte {
	t.Helper()
	data, err := f.Serialize()
	require.NoError(t, err)
	return data
}

func TestDecoderControlAndFrames(t *testing.T) {
	d := NewDecoder(DefaultByteTimeout)
	now := time.Unix(0, 0)

	stream := []byte{ACK}
	stream = append(stream, mustSerialize(t, NewResponse(CmdSendData, []byte{1}))...)
	stream = append(stream, CAN, NAK)

	units := d.Feed(now, stream)
	require.Len(t, units, 4)
	assert.True(t, units[0].IsControl())
	assert.Equal(t, ACK, units[0].Control)
	require.NotNil(t, units[1].Frame)
	assert.Equal(t, CmdSendData, units[1].Frame.Command)
	assert.Equal(t, CAN, units[2].Control)
	assert.Equal(t, NAK, units[3].Control)
	assert.Zero(t, d.Pending())
}

func TestDecoderSplitFrame(t *testing.T) {
	d := NewDecoder(DefaultByteTimeout)
	now := time.Unix(0, 0)
	raw := mustSerialize(t, NewRequest(CmdApplicationCommandHandler, []byte{0, 0, 5, 2, 0x20, 0x03}))

	assert.Empty(t, d.Feed(now, raw[:3]))
	assert.Equal(t, 3, d.Pending())

	units := d.Feed(now.Add(10*time.Millisecond), raw[3:])
	require.Len(t, units, 1)
	require.NotNil(t, units[0].Frame)
	assert.Equal(t, []byte{0, 0, 5, 2, 0x20, 0x03}, units[0].Frame.Data)
}

func TestDecoderByteTimeout(t *testing.T) {
	d := NewDecoder(DefaultByteTimeout)
	now := time.Unix(0, 0)
	raw := mustSerialize(t, NewResponse(CmdSendData, []byte{1}))

	d.Feed(now, raw[:2])
	units := d.Feed(now.Add(2*time.Second), raw)
	require.Len(t, units, 1)
	assert.NotNil(t, units[0].Frame)
	assert.Equal(t, uint64(2), d.Dropped())
}

func TestDecoderChecksumError(t *testing.T) {
	d := NewDecoder(0)
	raw := mustSerialize(t, NewResponse(CmdSendData, []byte{1}))
	raw[len(raw)-1] ^= 0xFF

	units := d.Feed(time.Unix(0, 0), append(raw, ACK))
	require.Len(t, units, 2)
	assert.ErrorIs(t, units[0].Err, ErrInvalidChecksum)
	assert.False(t, units[0].IsControl())
	assert.Equal(t, ACK, units[1].Control)
}

func TestDecoderSkipsNoise(t *testing.T) {
	d := NewDecoder(0)
	raw := mustSerialize(t, NewResponse(CmdSendData, []byte{0}))

	units := d.Feed(time.Unix(0, 0), append([]byte{0x55, 0xAA}, raw...))
	require.Len(t, units, 1)
	assert.NotNil(t, units[0].Frame)
	assert.Equal(t, uint64(2), d.Dropped())

	d.Feed(time.Unix(0, 0), []byte{SOF})
	d.Reset()
	assert.Zero(t, d.Pending())
}
