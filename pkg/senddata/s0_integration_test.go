package senddata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/zgw-go/pkg/cmdclass"
	"avaneesh/zgw-go/pkg/s0"
	"avaneesh/zgw-go/pkg/types"
)

type peerLink struct {
	frames [][]byte
}

func (p *peerLink) SendData(_ types.Params, data []byte, _ types.SendCallback) bool {
	p.frames = append(p.frames, append([]byte(nil), data...))
	return true
}

func TestSubmitThroughS0(t *testing.T) {
	h := newHarness(t)
	h.caps.masks[1] = types.NodeFlagS0
	h.caps.masks[2] = types.NodeFlagS0

	key := [16]byte{0xC0, 0xFF, 0xEE}
	gw, err := s0.NewTransport(s0.DefaultConfig(), h.sched, nil, h.layer, nil)
	require.NoError(t, err)
	gw.SetNetworkKey(key)
	h.layer.SetS0(gw)

	link := &peerLink{}
	peer, err := s0.NewTransport(s0.DefaultConfig(), h.sched, nil, link, nil)
	require.NoError(t, err)
	peer.SetNetworkKey(key)

	var rec recorder
	payload := []byte("HelloWorld!")
	require.NotZero(t, h.layer.Submit(h.params(2), payload, rec.cb))
	h.sched.Drain()

	nonceGet := h.radio.last(t)
	assert.Equal(t, []byte{cmdclass.Security, cmdclass.SecurityNonceGet}, nonceGet.data)
	h.radio.complete(t, types.TransmitOK, 2)
	h.sched.Drain()
	assert.Empty(t, rec.calls)

	_, err = peer.HandleFrame(types.Params{Source: 1, Destination: 2, Scheme: types.SchemeNone}, nonceGet.data)
	require.NoError(t, err)
	require.Len(t, link.frames, 1)

	_, err = gw.HandleFrame(types.Params{Source: 2, Destination: 1, Scheme: types.SchemeNone}, link.frames[0])
	require.NoError(t, err)
	h.sched.Drain()

	enc := h.radio.last(t)
	require.Len(t, enc.data, len(payload)+s0.FrameOverhead)
	h.radio.complete(t, types.TransmitOK, 3)
	h.sched.Drain()

	require.Len(t, rec.calls, 1)
	assert.Equal(t, types.TransmitOK, rec.calls[0].status)
	require.NotNil(t, rec.calls[0].report)
	assert.Equal(t, uint16(3), rec.calls[0].report.TransmitTicks)
	assert.True(t, h.layer.IsIdle())

	msg, err := peer.HandleFrame(types.Params{Source: 1, Destination: 2, Scheme: types.SchemeNone}, enc.data)
	require.NoError(t, err)
	assert.Equal(t, payload, msg)
}

func TestAbortActiveS0Session(t *testing.T) {
	h := newHarness(t)
	h.caps.masks[1] = types.NodeFlagS0
	h.caps.masks[2] = types.NodeFlagS0

	gw, err := s0.NewTransport(s0.DefaultConfig(), h.sched, nil, h.layer, nil)
	require.NoError(t, err)
	gw.SetNetworkKey([16]byte{1})
	h.layer.SetS0(gw)

	var rec recorder
	handle := h.layer.Submit(h.params(2), basicSet, rec.cb)
	h.sched.Drain()
	h.radio.complete(t, types.TransmitOK, 1)
	h.sched.Drain()
	assert.Equal(t, s0.TxNonceGetSent, gw.TxSessionState(1, 2))

	// waiting for a nonce report, nothing on the radio
	h.layer.Abort(handle)
	h.sched.Drain()
	require.Len(t, rec.calls, 1)
	assert.Equal(t, types.TransmitFail, rec.calls[0].status)
	assert.Equal(t, s0.TxIdle, gw.TxSessionState(1, 2))
	assert.True(t, h.layer.IsIdle())
}

func TestSubmitWithoutSourceUsesLocalNode(t *testing.T) {
	h := newHarness(t)
	h.caps.masks[1] = types.NodeFlagS0
	h.caps.masks[2] = types.NodeFlagS0

	key := [16]byte{0x5A}
	gw, err := s0.NewTransport(s0.DefaultConfig(), h.sched, nil, h.layer, nil)
	require.NoError(t, err)
	gw.SetNetworkKey(key)
	h.layer.SetS0(gw)

	link := &peerLink{}
	peer, err := s0.NewTransport(s0.DefaultConfig(), h.sched, nil, link, nil)
	require.NoError(t, err)
	peer.SetNetworkKey(key)

	p := h.params(2)
	p.Source = 0

	var rec recorder
	require.NotZero(t, h.layer.Submit(p, basicSet, rec.cb))
	h.sched.Drain()
	assert.False(t, h.radio.last(t).bridge)
	h.radio.complete(t, types.TransmitOK, 1)
	h.sched.Drain()
	assert.Equal(t, s0.TxNonceGetSent, gw.TxSessionState(1, 2))

	_, err = peer.HandleFrame(types.Params{Source: 1, Destination: 2, Scheme: types.SchemeNone}, h.radio.last(t).data)
	require.NoError(t, err)
	_, err = gw.HandleFrame(types.Params{Source: 2, Destination: 1, Scheme: types.SchemeNone}, link.frames[0])
	require.NoError(t, err)
	h.sched.Drain()

	enc := h.radio.last(t)
	h.radio.complete(t, types.TransmitOK, 1)
	h.sched.Drain()
	require.Len(t, rec.calls, 1)
	assert.Equal(t, types.TransmitOK, rec.calls[0].status)

	msg, err := peer.HandleFrame(types.Params{Source: 1, Destination: 2, Scheme: types.SchemeNone}, enc.data)
	require.NoError(t, err)
	assert.Equal(t, basicSet, msg)
}
