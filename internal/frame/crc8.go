package frame

// CRC-8 parameters shared with the collector.
const (
	// CRC8Polynomial is x^8 + x^2 + x + 1
	CRC8Polynomial = 0x07

	// CRC8InitialValue is the register value before the first byte
	CRC8InitialValue = 0x00

	crc8HighBit = 0x80
)

// CRC8 computes the CRC-8 of data (poly 0x07, init 0x00, no reflection, no
// final XOR). CRC8([]byte("123456789")) == 0xF4.
func CRC8(data []byte) byte {
	crc := byte(CRC8InitialValue)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&crc8HighBit != 0 {
				crc = (crc << 1) ^ CRC8Polynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
