package s0

import (
	"crypto/subtle"

	"avaneesh/zgw-go/pkg/cmdclass"
	"avaneesh/zgw-go/pkg/types"
)

// Encapsulated frame layout:
//
//	[0x98][sh][sender IV 8][encrypted flags+payload][nonce id][MAC 8]
const (
	FrameOverhead  = 20
	IVHalfSize     = 8
	MACSize        = 8
	MinFrameSize   = FrameOverhead
	ivOffset       = 2
	payloadOffset  = ivOffset + IVHalfSize
	authHeaderSize = 4
)

// authData builds the MAC input: security header, source, destination and
// payload length, followed by the encrypted payload
func authData(sh byte, src, dst types.NodeID, encrypted []byte) []byte {
	out := make([]byte, 0, authHeaderSize+len(encrypted))
	out = append(out, sh, byte(src), byte(dst), byte(len(encrypted)))
	return append(out, encrypted...)
}

// seal encrypts plain (flags byte included) and returns the wire frame.
// iv holds the sender half in [0:8] and the receiver nonce in [8:16].
func seal(p Primitives, authKey, encKey, iv [16]byte, sh byte, src, dst types.NodeID, plain []byte) []byte {
	encrypted := ofb(p, encKey, iv, plain)
	mac := cbcMAC(p, authKey, iv, authData(sh, src, dst, encrypted))

	frame := make([]byte, 0, len(plain)+FrameOverhead-1)
	frame = append(frame, cmdclass.Security, sh)
	frame = append(frame, iv[:IVHalfSize]...)
	frame = append(frame, encrypted...)
	frame = append(frame, iv[IVHalfSize])
	return append(frame, mac[:]...)
}

// open verifies the MAC of a wire frame and returns the decrypted flags and
// payload. receiverNonce completes the IV.
func open(p Primitives, authKey, encKey [16]byte, receiverNonce Nonce, src, dst types.NodeID, frame []byte) ([]byte, error) {
	n := len(frame)
	var iv [16]byte
	copy(iv[:IVHalfSize], frame[ivOffset:payloadOffset])
	copy(iv[IVHalfSize:], receiverNonce[:])

	encrypted := frame[payloadOffset : n-MACSize-1]
	mac := cbcMAC(p, authKey, iv, authData(frame[1], src, dst, encrypted))
	if subtle.ConstantTimeCompare(mac[:], frame[n-MACSize:]) != 1 {
		return nil, ErrAuthFailed
	}
	return ofb(p, encKey, iv, encrypted), nil
}

// nonceID returns the receiver nonce identifier carried by a wire frame
func nonceID(frame []byte) byte {
	return frame[len(frame)-MACSize-1]
}

// fragmentFlags builds the flags byte that precedes the payload
func fragmentFlags(seq uint8, secondPass, moreToSend bool) byte {
	switch {
	case secondPass:
		return cmdclass.SecurityFlagSequenced | cmdclass.SecurityFlagSecondFrame | (seq & cmdclass.SecuritySequenceMask)
	case moreToSend:
		return cmdclass.SecurityFlagSequenced | (seq & cmdclass.SecuritySequenceMask)
	default:
		return 0
	}
}
