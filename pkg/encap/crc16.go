package encap

// CRC-16 used by the CRC16 encapsulation command class.
// Polynomial 0x1021, MSB first, initial value 0x1D0F, no final XOR.

const (
	CRC16Poly uint16 = 0x1021
	CRC16Init uint16 = 0x1D0F
)

var crcTable [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ CRC16Poly
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

// UpdateCRC16 continues a CRC over data
func UpdateCRC16(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = (crc << 8) ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}

// CalculateCRC16 calculates the CRC over data starting from CRC16Init
func CalculateCRC16(data []byte) uint16 {
	return UpdateCRC16(CRC16Init, data)
}

// VerifyCRC16 verifies data that ends with a big-endian CRC
func VerifyCRC16(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	received := uint16(data[len(data)-2])<<8 | uint16(data[len(data)-1])
	return CalculateCRC16(data[:len(data)-2]) == received
}
