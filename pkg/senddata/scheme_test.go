package senddata

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"avaneesh/zgw-go/pkg/cmdclass"
	"avaneesh/zgw-go/pkg/types"
)

func TestSelectScheme(t *testing.T) {
	const local, dst types.NodeID = 1, 2

	tests := []struct {
		name      string
		local     types.SchemeMask
		dst       types.SchemeMask
		crc16     bool
		requested types.Scheme
		data      []byte
		want      types.Scheme
		ok        bool
	}{
		{"auto picks highest common", types.NodeFlagS0 | types.NodeFlagS2Authenticated, types.NodeFlagS0 | types.NodeFlagS2Authenticated | types.NodeFlagS2Access, false, types.SchemeAuto, basicSet, types.SchemeS2Authenticated, true},
		{"auto s0 only", types.NodeFlagsSecure, types.NodeFlagS0, false, types.SchemeAuto, basicSet, types.SchemeS0, true},
		{"auto nothing common", types.NodeFlagS0, types.NodeFlagS2Access, false, types.SchemeAuto, basicSet, types.SchemeNone, true},
		{"auto falls back to crc16", types.NodeFlagS0, 0, true, types.SchemeAuto, basicSet, types.SchemeCRC16, true},
		{"known bad destination", types.NodeFlagS0, types.NodeFlagS0 | types.NodeFlagKnownBad, true, types.SchemeAuto, basicSet, types.SchemeNone, true},
		{"known bad local", types.NodeFlagS0 | types.NodeFlagKnownBad, types.NodeFlagS0, false, types.SchemeS0, basicSet, types.SchemeNone, true},
		{"known bad keeps requested crc16", 0, types.NodeFlagKnownBad, true, types.SchemeCRC16, basicSet, types.SchemeCRC16, true},
		{"known bad crc16 with security", types.NodeFlagS0, types.NodeFlagS0 | types.NodeFlagKnownBad, true, types.SchemeCRC16, basicSet, types.SchemeNone, true},
		{"short frame", types.NodeFlagS0, types.NodeFlagS0, false, types.SchemeAuto, []byte{cmdclass.NoOperation}, types.SchemeNone, true},
		{"explicit s0 supported", types.NodeFlagS0, types.NodeFlagS0, false, types.SchemeS0, basicSet, types.SchemeS0, true},
		{"explicit s2 access not held locally", types.NodeFlagS0, types.NodeFlagS2Access, false, types.SchemeS2Access, basicSet, types.SchemeS2Access, false},
		{"explicit s2 unauth unsupported", types.NodeFlagsSecure, types.NodeFlagS0, false, types.SchemeS2Unauthenticated, basicSet, types.SchemeS2Unauthenticated, false},
		{"explicit none", types.NodeFlagsSecure, types.NodeFlagsSecure, false, types.SchemeNone, basicSet, types.SchemeNone, true},
		{"explicit crc16", 0, 0, false, types.SchemeCRC16, basicSet, types.SchemeCRC16, true},
		{"unknown scheme", types.NodeFlagsSecure, types.NodeFlagsSecure, false, types.SchemeUDP, basicSet, types.SchemeUDP, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.caps.masks[local] = tt.local
			h.caps.masks[dst] = tt.dst
			if tt.crc16 {
				h.caps.classes[dst] = []uint8{cmdclass.CRC16Encap}
			}

			p := h.params(dst)
			p.Scheme = tt.requested
			got, ok := h.layer.selectScheme(p, tt.data)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
