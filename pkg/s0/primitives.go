package s0

import (
	"crypto/aes"
	"crypto/rand"
	"fmt"
	"io"
)

// Primitives are the cryptographic building blocks S0 needs. The radio
// module can provide them in hardware; SoftwarePrimitives uses the Go
// crypto packages.
type Primitives interface {
	// EncryptBlock encrypts one 16-byte block with AES-128 under key
	EncryptBlock(key, in [16]byte) [16]byte

	// Random8 returns 8 bytes from a cryptographically secure source
	Random8() ([8]byte, error)
}

// SoftwarePrimitives implements Primitives with crypto/aes
type SoftwarePrimitives struct {
	// Rand is the random source, crypto/rand.Reader when nil
	Rand io.Reader
}

// NewSoftwarePrimitives returns primitives backed by crypto/aes and crypto/rand
func NewSoftwarePrimitives() *SoftwarePrimitives {
	return &SoftwarePrimitives{Rand: rand.Reader}
}

// EncryptBlock implements Primitives.EncryptBlock
func (p *SoftwarePrimitives) EncryptBlock(key, in [16]byte) [16]byte {
	var out [16]byte
	block, err := aes.NewCipher(key[:])
	if err != nil {
		// a 16-byte key is always valid
		panic(fmt.Sprintf("s0: aes: %v", err))
	}
	block.Encrypt(out[:], in[:])
	return out
}

// Random8 implements Primitives.Random8
func (p *SoftwarePrimitives) Random8() ([8]byte, error) {
	var out [8]byte
	r := p.Rand
	if r == nil {
		r = rand.Reader
	}
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return out, fmt.Errorf("%w: %v", ErrRandom, err)
	}
	return out, nil
}

// ofb encrypts or decrypts data in output feedback mode. The IV is
// re-encrypted before every 16-byte block.
func ofb(p Primitives, key, iv [16]byte, data []byte) []byte {
	out := make([]byte, len(data))
	stream := iv
	for i := range data {
		if i&0xF == 0 {
			stream = p.EncryptBlock(key, stream)
		}
		out[i] = data[i] ^ stream[i&0xF]
	}
	return out
}

// cbcMAC computes the S0 authentication tag. The IV is encrypted to seed
// the chain and a final pass pads a trailing partial block with zeros.
func cbcMAC(p Primitives, key, iv [16]byte, data []byte) [MACSize]byte {
	mac := p.EncryptBlock(key, iv)
	for i := range data {
		mac[i&0xF] ^= data[i]
		if i&0xF == 0xF {
			mac = p.EncryptBlock(key, mac)
		}
	}
	if len(data)&0xF != 0 {
		mac = p.EncryptBlock(key, mac)
	}
	var tag [MACSize]byte
	copy(tag[:], mac[:MACSize])
	return tag
}
