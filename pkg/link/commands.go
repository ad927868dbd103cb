package link

import (
	"encoding/binary"
	"fmt"

	"avaneesh/zgw-go/pkg/types"
)

const (
	sendDataOverhead       = 5  // dst(2) len opts funcID
	sendDataBridgeOverhead = 11 // src(2) dst(2) len opts route(4) funcID
	nodeIDSize             = 2
)

// FuncID derives the callback id for a transmission number. Zero is
// reserved for "no callback".
func FuncID(txnr uint8) uint8 {
	return 1 + (txnr & 0xF7)
}

func putNodeID(b []byte, id types.NodeID) {
	binary.BigEndian.PutUint16(b, uint16(id))
}

func nodeID(b []byte) types.NodeID {
	return types.NodeID(binary.BigEndian.Uint16(b))
}

// SendDataRequest asks the radio to transmit a frame to one node
type SendDataRequest struct {
	Destination types.NodeID
	Data        []byte
	TxOptions   types.TxOptions
	FuncID      uint8
}

// Frame encodes the request
func (r *SendDataRequest) Frame() (*Frame, error) {
	if len(r.Data) > MaxDataSize-sendDataOverhead {
		return nil, ErrFrameTooLong
	}
	buf := make([]byte, 0, len(r.Data)+sendDataOverhead)
	buf = append(buf, 0, 0)
	putNodeID(buf, r.Destination)
	buf = append(buf, byte(len(r.Data)))
	buf = append(buf, r.Data...)
	buf = append(buf, byte(r.TxOptions), r.FuncID)
	return NewRequest(CmdSendData, buf), nil
}

// ParseSendDataRequest decodes a SendData request frame
func ParseSendDataRequest(f *Frame) (*SendDataRequest, error) {
	d := f.Data
	if len(d) < sendDataOverhead {
		return nil, fmt.Errorf("%w: send data request of %d bytes", ErrMalformed, len(d))
	}
	n := int(d[nodeIDSize])
	if len(d) != sendDataOverhead+n {
		return nil, fmt.Errorf("%w: send data length %d in %d bytes", ErrMalformed, n, len(d))
	}
	body := d[nodeIDSize+1:]
	return &SendDataRequest{
		Destination: nodeID(d),
		Data:        append([]byte(nil), body[:n]...),
		TxOptions:   types.TxOptions(body[n]),
		FuncID:      body[n+1],
	}, nil
}

// SendDataBridgeRequest asks the radio to transmit on behalf of a virtual node
type SendDataBridgeRequest struct {
	Source      types.NodeID
	Destination types.NodeID
	Data        []byte
	TxOptions   types.TxOptions
	FuncID      uint8
}

// Frame encodes the request. The route field is always zero.
func (r *SendDataBridgeRequest) Frame() (*Frame, error) {
	if len(r.Data) > MaxDataSize-sendDataBridgeOverhead {
		return nil, ErrFrameTooLong
	}
	buf := make([]byte, 2*nodeIDSize, len(r.Data)+sendDataBridgeOverhead)
	putNodeID(buf[0:], r.Source)
	putNodeID(buf[nodeIDSize:], r.Destination)
	buf = append(buf, byte(len(r.Data)))
	buf = append(buf, r.Data...)
	buf = append(buf, byte(r.TxOptions), 0, 0, 0, 0, r.FuncID)
	return NewRequest(CmdSendDataBridge, buf), nil
}

// ParseSendDataBridgeRequest decodes a SendDataBridge request frame
func ParseSendDataBridgeRequest(f *Frame) (*SendDataBridgeRequest, error) {
	d := f.Data
	if len(d) < sendDataBridgeOverhead {
		return nil, fmt.Errorf("%w: bridge request of %d bytes", ErrMalformed, len(d))
	}
	n := int(d[2*nodeIDSize])
	if len(d) != sendDataBridgeOverhead+n {
		return nil, fmt.Errorf("%w: bridge length %d in %d bytes", ErrMalformed, n, len(d))
	}
	body := d[2*nodeIDSize+1:]
	return &SendDataBridgeRequest{
		Source:      nodeID(d),
		Destination: nodeID(d[nodeIDSize:]),
		Data:        append([]byte(nil), body[:n]...),
		TxOptions:   types.TxOptions(body[n]),
		FuncID:      body[n+5],
	}, nil
}

// NewSendDataAbort creates the abort request. It has no response.
func NewSendDataAbort() *Frame {
	return NewRequest(CmdSendDataAbort, nil)
}

// ParseResponse decodes the single return value byte of a response frame
func ParseResponse(f *Frame) (bool, error) {
	if f.Type != TypeResponse || len(f.Data) < 1 {
		return false, fmt.Errorf("%w: %s is not a response", ErrMalformed, f)
	}
	return f.Data[0] != 0, nil
}

// SendDataCallback is the completion reported for a transmission
type SendDataCallback struct {
	FuncID uint8
	Status types.TransmitStatus
	Report *types.TxStatusReport // nil when the radio sent no report
}

// Frame encodes the callback for the given send command
func (c *SendDataCallback) Frame(cmd Command) *Frame {
	buf := []byte{c.FuncID, byte(c.Status)}
	if c.Report != nil {
		buf = append(buf, c.Report.Serialize()...)
	}
	return NewRequest(cmd, buf)
}

// ParseSendDataCallback decodes a SendData or SendDataBridge callback
func ParseSendDataCallback(f *Frame) (*SendDataCallback, error) {
	if f.Type != TypeRequest || len(f.Data) < 2 {
		return nil, fmt.Errorf("%w: send data callback of %d bytes", ErrMalformed, len(f.Data))
	}
	cb := &SendDataCallback{
		FuncID: f.Data[0],
		Status: types.TransmitStatus(f.Data[1]),
	}
	if len(f.Data) >= 2+types.TxStatusReportSize {
		report, err := types.ParseTxStatusReport(f.Data[2:])
		if err != nil {
			return nil, err
		}
		cb.Report = report
	}
	return cb, nil
}

// ApplicationCommand is a frame the radio received from the mesh
type ApplicationCommand struct {
	RxStatus    types.RxStatus
	Source      types.NodeID
	Destination types.NodeID // Set only by the bridge handler
	Payload     []byte
	RSSI        int8
}

// Frame encodes the command as the plain or the bridge handler request
func (a *ApplicationCommand) Frame(bridge bool) *Frame {
	if bridge {
		buf := make([]byte, 1+2*nodeIDSize, 2*nodeIDSize+len(a.Payload)+3)
		buf[0] = byte(a.RxStatus)
		putNodeID(buf[1:], a.Destination)
		putNodeID(buf[1+nodeIDSize:], a.Source)
		buf = append(buf, byte(len(a.Payload)))
		buf = append(buf, a.Payload...)
		buf = append(buf, 0, byte(a.RSSI))
		return NewRequest(CmdApplicationCommandHandlerBridge, buf)
	}
	buf := make([]byte, 1+nodeIDSize, nodeIDSize+len(a.Payload)+3)
	buf[0] = byte(a.RxStatus)
	putNodeID(buf[1:], a.Source)
	buf = append(buf, byte(len(a.Payload)))
	buf = append(buf, a.Payload...)
	buf = append(buf, byte(a.RSSI))
	return NewRequest(CmdApplicationCommandHandler, buf)
}

// ParseApplicationCommand decodes an application command handler request
func ParseApplicationCommand(f *Frame) (*ApplicationCommand, error) {
	d := f.Data
	if len(d) < 2+nodeIDSize {
		return nil, fmt.Errorf("%w: application command of %d bytes", ErrMalformed, len(d))
	}
	n := int(d[1+nodeIDSize])
	start := 2 + nodeIDSize
	if len(d) < start+n {
		return nil, fmt.Errorf("%w: command length %d in %d bytes", ErrMalformed, n, len(d))
	}
	a := &ApplicationCommand{
		RxStatus: types.RxStatus(d[0]),
		Source:   nodeID(d[1:]),
		Payload:  append([]byte(nil), d[start:start+n]...),
	}
	if len(d) > start+n {
		a.RSSI = int8(d[start+n])
	}
	return a, nil
}

// ParseApplicationCommandBridge decodes a bridge handler request, which also
// names the virtual node the frame was addressed to
func ParseApplicationCommandBridge(f *Frame) (*ApplicationCommand, error) {
	d := f.Data
	if len(d) < 2+2*nodeIDSize {
		return nil, fmt.Errorf("%w: bridge command of %d bytes", ErrMalformed, len(d))
	}
	n := int(d[1+2*nodeIDSize])
	start := 2 + 2*nodeIDSize
	if len(d) < start+n {
		return nil, fmt.Errorf("%w: command length %d in %d bytes", ErrMalformed, n, len(d))
	}
	a := &ApplicationCommand{
		RxStatus:    types.RxStatus(d[0]),
		Destination: nodeID(d[1:]),
		Source:      nodeID(d[1+nodeIDSize:]),
		Payload:     append([]byte(nil), d[start:start+n]...),
	}
	// Multicast mask length precedes the RSSI byte
	if i := start + n; len(d) > i {
		if r := i + 1 + int(d[i]); len(d) > r {
			a.RSSI = int8(d[r])
		}
	}
	return a, nil
}
