package s0

import (
	"bytes"

	"avaneesh/zgw-go/pkg/cmdclass"
)

var (
	authKeyPattern = bytes.Repeat([]byte{0x55}, 16)
	encKeyPattern  = bytes.Repeat([]byte{0xAA}, 16)
)

// KeySet holds the keys derived from one network key, plus the pair derived
// from the all-zero key used to deliver the network key itself
type KeySet struct {
	Auth     [16]byte
	Enc      [16]byte
	AuthZero [16]byte
	EncZero  [16]byte

	zeroNetworkKey bool
}

// DeriveKeySet derives the authentication and encryption keys for netKey
func DeriveKeySet(p Primitives, netKey [16]byte) KeySet {
	var authIn, encIn, zero [16]byte
	copy(authIn[:], authKeyPattern)
	copy(encIn[:], encKeyPattern)

	return KeySet{
		Auth:           p.EncryptBlock(netKey, authIn),
		Enc:            p.EncryptBlock(netKey, encIn),
		AuthZero:       p.EncryptBlock(zero, authIn),
		EncZero:        p.EncryptBlock(zero, encIn),
		zeroNetworkKey: netKey == zero,
	}
}

// forPayload selects the key pair for an outgoing payload. A network key set
// command travels under the all-zero key.
func (k *KeySet) forPayload(data []byte) (auth, enc [16]byte) {
	if len(data) >= 2 && data[0] == cmdclass.Security && data[1] == cmdclass.SecurityNetworkKeySet {
		return k.AuthZero, k.EncZero
	}
	return k.Auth, k.Enc
}
