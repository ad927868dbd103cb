// Package encap builds and strips the non-secure encapsulations applied on
// the way to the radio: multi channel addressing and CRC16 integrity.
package encap

import (
	"errors"

	"avaneesh/zgw-go/pkg/cmdclass"
)

var (
	ErrTooShort    = errors.New("encap: frame too short")
	ErrNotEncap    = errors.New("encap: not an encapsulated frame")
	ErrCRCMismatch = errors.New("encap: crc16 mismatch")
)

// CRC16Overhead is the number of bytes added by WrapCRC16
const CRC16Overhead = 4

// WrapMultiChannel prefixes data with a multi channel encapsulation header
// when either endpoint is non-zero. Otherwise a copy of data is returned.
func WrapMultiChannel(srcEP, dstEP uint8, data []byte) []byte {
	if srcEP == 0 && dstEP == 0 {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}
	out := make([]byte, 0, len(data)+cmdclass.MultiChannelHeaderSize)
	out = append(out, cmdclass.MultiChannel, cmdclass.MultiChannelCmdEncap, srcEP, dstEP)
	return append(out, data...)
}

// UnwrapMultiChannel strips a multi channel header and returns the endpoints
func UnwrapMultiChannel(frame []byte) (srcEP, dstEP uint8, payload []byte, err error) {
	if len(frame) < 2 || frame[0] != cmdclass.MultiChannel || frame[1] != cmdclass.MultiChannelCmdEncap {
		return 0, 0, nil, ErrNotEncap
	}
	if len(frame) < cmdclass.MultiChannelHeaderSize {
		return 0, 0, nil, ErrTooShort
	}
	return frame[2], frame[3], frame[cmdclass.MultiChannelHeaderSize:], nil
}

// WrapCRC16 encapsulates data as 0x56 0x01 data crc_hi crc_lo. The CRC
// covers the two header bytes and the data.
func WrapCRC16(data []byte) []byte {
	out := make([]byte, 0, len(data)+CRC16Overhead)
	out = append(out, cmdclass.CRC16Encap, cmdclass.CRC16CmdEncap)
	out = append(out, data...)
	crc := CalculateCRC16(out)
	return append(out, byte(crc>>8), byte(crc))
}

// UnwrapCRC16 verifies and strips a CRC16 encapsulation
func UnwrapCRC16(frame []byte) ([]byte, error) {
	if len(frame) < 2 || frame[0] != cmdclass.CRC16Encap || frame[1] != cmdclass.CRC16CmdEncap {
		return nil, ErrNotEncap
	}
	if len(frame) < CRC16Overhead {
		return nil, ErrTooShort
	}
	if !VerifyCRC16(frame) {
		return nil, ErrCRCMismatch
	}
	return frame[2 : len(frame)-2], nil
}

// ShouldWrapCRC16 reports whether a frame may be CRC16 encapsulated: it has
// to fit a single radio frame and must not already carry an encapsulation
func ShouldWrapCRC16(data []byte, maxSingleFrame int) bool {
	if len(data) == 0 || len(data) >= maxSingleFrame {
		return false
	}
	return !cmdclass.IsEncapsulated(data[0])
}
