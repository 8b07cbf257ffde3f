package dpage

import "encoding/binary"

// Int64Codec is the default KeyCodec: fixed 8-byte big-endian keys,
// ordered the way the teacher's own int64-keyed hash table compared
// keys.
type Int64Codec struct{}

// Size returns the encoded width of an int64 key.
func (Int64Codec) Size() int { return 8 }

// Encode writes key as 8 big-endian bytes so byte comparison and
// integer comparison agree over the encoded form.
func (Int64Codec) Encode(key int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(key)^signBit)
	return buf
}

// Decode reverses Encode.
func (Int64Codec) Decode(data []byte) int64 {
	return int64(binary.BigEndian.Uint64(data) ^ signBit)
}

// Compare orders two int64 keys numerically.
func (Int64Codec) Compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// signBit flips the sign bit so big-endian byte order matches signed
// integer order (only relevant for consumers that sort raw bytes).
const signBit = uint64(1) << 63
