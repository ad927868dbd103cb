package trace

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rec := NewCBORRecorder(&buf)
	require.NotEmpty(t, rec.RunID())

	ts := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
	rec.Record(Event{Timestamp: ts, Direction: DirectionTx, Source: 1, Destination: 2, Scheme: 7, Payload: []byte{0x98, 0x40}})
	rec.Record(Event{Timestamp: ts, Direction: DirectionTxDone, Source: 1, Destination: 2, Status: 1, Ticks: 12})

	dec := NewDecoder(&buf)
	first, err := dec.Next()
	require.NoError(t, err)
	assert.True(t, ts.Equal(first.Timestamp))
	assert.Equal(t, rec.RunID(), first.RunID)
	assert.Equal(t, DirectionTx, first.Direction)
	assert.Equal(t, []byte{0x98, 0x40}, first.Payload)

	second, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), second.Status)
	assert.Equal(t, uint16(12), second.Ticks)

	_, err = dec.Next()
	assert.Equal(t, io.EOF, err)
}

func TestFileRecorderClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.cbor")
	rec, err := NewFileRecorder(path)
	require.NoError(t, err)

	rec.Record(Event{Timestamp: time.Now(), Direction: DirectionRx, Source: 5, Destination: 1})
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	// ignored after close
	rec.Record(Event{Timestamp: time.Now(), Direction: DirectionRx})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := NewDecoder(f)
	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, uint16(5), ev.Source)
	_, err = dec.Next()
	assert.Equal(t, io.EOF, err)
}

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "RX", DirectionRx.String())
	assert.Equal(t, "UNKNOWN", Direction(9).String())
}
