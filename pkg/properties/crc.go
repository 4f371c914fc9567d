package properties

// CRC16 computes the CRC-16/AUG-CCITT checksum (polynomial 0x1021, initial
// value 0x1d0f, no final xor) that System B keeps in a table's memory
// control block.
func CRC16(data []byte) uint16 {
	crc := uint16(0x1d0f)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
