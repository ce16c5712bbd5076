package nmea2000

import "encoding/binary"

// Parameter group payloads are little-endian with fixed field offsets.
// Senders fill fields they cannot measure with a not-available pattern:
// all ones for unsigned fields, the maximum positive value for signed
// ones. The readers below translate both that pattern and a field lying
// beyond a truncated payload into a nil value.

func scaledU16(data []byte, off int, factor float64) *float64 {
	if off+2 > len(data) {
		return nil
	}
	v := binary.LittleEndian.Uint16(data[off:])
	if v == 0xFFFF {
		return nil
	}
	f := float64(v) * factor
	return &f
}

func scaledS16(data []byte, off int, factor float64) *float64 {
	if off+2 > len(data) {
		return nil
	}
	v := int16(binary.LittleEndian.Uint16(data[off:]))
	if v == 0x7FFF {
		return nil
	}
	f := float64(v) * factor
	return &f
}

func scaledU24(data []byte, off int, factor float64) *float64 {
	if off+3 > len(data) {
		return nil
	}
	v := uint32(data[off]) | uint32(data[off+1])<<8 | uint32(data[off+2])<<16
	if v == 0xFFFFFF {
		return nil
	}
	f := float64(v) * factor
	return &f
}

func scaledU32(data []byte, off int, factor float64) *float64 {
	if off+4 > len(data) {
		return nil
	}
	v := binary.LittleEndian.Uint32(data[off:])
	if v == 0xFFFFFFFF {
		return nil
	}
	f := float64(v) * factor
	return &f
}

func scaledS32(data []byte, off int, factor float64) *float64 {
	if off+4 > len(data) {
		return nil
	}
	v := int32(binary.LittleEndian.Uint32(data[off:]))
	if v == 0x7FFFFFFF {
		return nil
	}
	f := float64(v) * factor
	return &f
}

// instanceByte reads a device instance, defaulting to instance zero when
// the sender marks it not available.
func instanceByte(data []byte, off int) uint8 {
	if off >= len(data) || data[off] == 0xFF {
		return 0
	}
	return data[off]
}

// rawByte reads a byte with no not-available translation, for packed bit
// fields whose reserved bits are set to ones.
func rawByte(data []byte, off int) (byte, bool) {
	if off >= len(data) {
		return 0, false
	}
	return data[off], true
}
