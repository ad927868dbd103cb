package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemeMaskHighest(t *testing.T) {
	tests := []struct {
		name string
		mask SchemeMask
		want Scheme
	}{
		{"empty", 0, SchemeNone},
		{"known bad only", NodeFlagKnownBad, SchemeNone},
		{"s0", NodeFlagS0, SchemeS0},
		{"s0 and unauth", NodeFlagS0 | NodeFlagS2Unauthenticated, SchemeS2Unauthenticated},
		{"all", NodeFlagsSecure, SchemeS2Access},
		{"auth and s0", NodeFlagS2Authenticated | NodeFlagS0, SchemeS2Authenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.mask.Highest())
		})
	}
}

func TestSchemePriority(t *testing.T) {
	assert.True(t, SchemeS2Access.AtLeast(SchemeS2Authenticated))
	assert.True(t, SchemeS2Authenticated.AtLeast(SchemeS2Unauthenticated))
	assert.True(t, SchemeS2Unauthenticated.AtLeast(SchemeS0))
	assert.True(t, SchemeS0.AtLeast(SchemeNone))
	assert.False(t, SchemeS0.AtLeast(SchemeS2Unauthenticated))
	assert.True(t, SchemeUDP.AtLeast(SchemeS2Access))
}

func TestNodeIDLongRange(t *testing.T) {
	assert.False(t, NodeID(232).IsLongRange())
	assert.True(t, NodeID(256).IsLongRange())
	assert.True(t, NodeID(4000).IsLongRange())
	assert.False(t, NodeID(4001).IsLongRange())
	assert.False(t, NodeID(240).IsValid())
}

func TestTxStatusReport(t *testing.T) {
	r := &TxStatusReport{TransmitTicks: 0x0102, Repeaters: 2, AckRSSI: -60, RouteTries: 3}
	raw := r.Serialize()
	require.Len(t, raw, TxStatusReportSize)
	assert.Equal(t, []byte{0x01, 0x02, 0x02}, raw[0:3])

	parsed, err := ParseTxStatusReport(raw)
	require.NoError(t, err)
	assert.Equal(t, r, parsed)

	_, err = ParseTxStatusReport(raw[:5])
	assert.Error(t, err)
}

func TestTransmitStatusString(t *testing.T) {
	assert.Equal(t, "NoAck", TransmitNoAck.String())
	assert.Equal(t, "Status(0x42)", TransmitStatus(0x42).String())
	assert.True(t, TransmitOK.OK())
}

func TestParamsReply(t *testing.T) {
	rx := Params{
		Source:      5,
		Destination: 1,
		SrcEndpoint: 2,
		DstEndpoint: 0,
		RxStatus:    RxStatusLowPower,
		Scheme:      SchemeS0,
	}
	reply := rx.Reply()

	assert.Equal(t, NodeID(1), reply.Source)
	assert.Equal(t, NodeID(5), reply.Destination)
	assert.Equal(t, uint8(0), reply.SrcEndpoint)
	assert.Equal(t, uint8(2), reply.DstEndpoint)
	assert.True(t, reply.TxOptions.Has(TxOptionLowPower|TxOptionAck|TxOptionExplore|TxOptionAutoRoute))
	assert.Equal(t, SchemeNone, reply.Scheme)

	rx.RxStatus = 0
	assert.False(t, rx.Reply().TxOptions.Has(TxOptionLowPower))
}
