package link

// Checksum computes the serial API frame checksum: 0xFF XOR every byte from
// the length byte up to the last payload byte.
func Checksum(data []byte) byte {
	sum := byte(0xFF)
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// VerifyChecksum checks a span that runs from the length byte through the
// trailing checksum byte
func VerifyChecksum(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	n := len(data) - 1
	return Checksum(data[:n]) == data[n]
}
