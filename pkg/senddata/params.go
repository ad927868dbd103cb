package senddata

import (
	"avaneesh/zgw-go/pkg/types"
)

// DefaultParams returns params for a plain transmission from the local
// node to dst with automatic scheme selection
func (l *Layer) DefaultParams(dst types.NodeID) types.Params {
	return types.Params{
		Source:      l.caps.LocalNodeID(),
		Destination: dst,
		TxOptions:   types.TxOptionAck | types.TxOptionAutoRoute | types.TxOptionExplore,
		Scheme:      types.SchemeAuto,
	}
}

// MakeReplyParams builds params answering a frame received with rx. The
// reply keeps the scheme the frame arrived with, checked against what the
// receiving node itself holds.
func (l *Layer) MakeReplyParams(rx types.Params) types.Params {
	reply := rx.Reply()
	reply.Scheme, _ = l.selectScheme(rx, replyFrame)
	return reply
}

// replies are classified as a regular two byte command
var replyFrame = []byte{0, 0}
