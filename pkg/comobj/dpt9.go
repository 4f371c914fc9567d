package comobj

// InvalidDPT9 is the DPT 9 encoding of an invalid value.
const InvalidDPT9 uint16 = 0x7fff

// FloatToDPT9 encodes a value given in hundredths (2150 is 21.50) as a
// KNX 2-byte float.
func FloatToDPT9(value int) uint16 {
	if value < -2048<<15 || value > 2047<<15 {
		return InvalidDPT9
	}
	exp := 0
	for value < -2048 || value > 2047 {
		value >>= 1
		exp++
	}
	var sign uint16
	if value < 0 {
		sign = 0x8000
	}
	return sign | uint16(exp)<<11 | uint16(value)&0x07ff
}

// DPT9ToFloat decodes a KNX 2-byte float into hundredths.
func DPT9ToFloat(v uint16) (int, bool) {
	if v == InvalidDPT9 {
		return 0, false
	}
	mant := int(v & 0x07ff)
	if v&0x8000 != 0 {
		mant -= 2048
	}
	exp := int(v>>11) & 0x0f
	return mant << exp, true
}
