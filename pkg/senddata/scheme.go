package senddata

import (
	"avaneesh/zgw-go/pkg/cmdclass"
	"avaneesh/zgw-go/pkg/types"
)

// selectScheme picks the encapsulation for a frame to p.Destination. The
// second result is false when p names an explicit scheme the destination
// does not share with us; the requested scheme is returned unchanged and
// must not be sent.
func (l *Layer) selectScheme(p types.Params, data []byte) (types.Scheme, bool) {
	dstMask := l.caps.SchemeMask(p.Destination)
	srcMask := l.caps.SchemeMask(l.caps.LocalNodeID())
	crc16 := l.caps.SupportsCommandClass(p.Destination, cmdclass.CRC16Encap)

	if len(data) < 2 || dstMask.KnownBad() || srcMask.KnownBad() {
		if p.Scheme == types.SchemeCRC16 && crc16 && dstMask.Highest() == types.SchemeNone {
			l.logger.Debug("SendData: node %d is known bad or frame is short, using CRC16", p.Destination)
			return types.SchemeCRC16, true
		}
		l.logger.Debug("SendData: node %d is known bad or frame is short, no scheme", p.Destination)
		return types.SchemeNone, true
	}

	common := dstMask & srcMask

	switch p.Scheme {
	case types.SchemeAuto:
		s := common.Highest()
		if s == types.SchemeNone && crc16 {
			return types.SchemeCRC16, true
		}
		return s, true
	case types.SchemeNone, types.SchemeCRC16:
		return p.Scheme, true
	case types.SchemeS2Access, types.SchemeS2Authenticated, types.SchemeS2Unauthenticated, types.SchemeS0:
		if common.Supports(p.Scheme) {
			return p.Scheme, true
		}
	}

	l.logger.Warn("SendData: scheme %s not supported by destination %d", p.Scheme, p.Destination)
	return p.Scheme, false
}
