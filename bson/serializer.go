package bson

import (
	"encoding/binary"
	"math"
)

// Document is a finalized, prefix-length-framed BSON byte sequence.
type Document []byte

// Serializer builds a Document by appending typed, named elements in
// order. The zero value is not usable; use NewSerializer.
type Serializer struct {
	buf []byte
}

// NewSerializer returns a builder primed with the 4-byte size placeholder
// every BSON document starts with.
func NewSerializer() *Serializer {
	return &Serializer{buf: []byte{0, 0, 0, 0}}
}

func (s *Serializer) appendKey(tag byte, key string) {
	s.buf = append(s.buf, tag)
	s.buf = append(s.buf, key...)
	s.buf = append(s.buf, 0x00)
}

// AppendDouble appends an IEEE-754 little-endian double element.
func (s *Serializer) AppendDouble(key string, v float64) *Serializer {
	s.appendKey(TypeDouble, key)
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
	s.buf = append(s.buf, tmp[:]...)
	return s
}

// AppendString appends a length-prefixed, null-terminated UTF-8 string
// element. The length prefix includes the trailing NUL.
func (s *Serializer) AppendString(key, v string) *Serializer {
	s.appendKey(TypeString, key)
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(v)+1))
	s.buf = append(s.buf, tmp[:]...)
	s.buf = append(s.buf, v...)
	s.buf = append(s.buf, 0x00)
	return s
}

// AppendInt32 appends a little-endian two's-complement int32 element.
func (s *Serializer) AppendInt32(key string, v int32) *Serializer {
	s.appendKey(TypeInt32, key)
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	s.buf = append(s.buf, tmp[:]...)
	return s
}

// AppendInt64 appends a little-endian two's-complement int64 element.
func (s *Serializer) AppendInt64(key string, v int64) *Serializer {
	s.appendKey(TypeInt64, key)
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	s.buf = append(s.buf, tmp[:]...)
	return s
}

// AppendBoolean appends a single-byte 0/1 boolean element.
func (s *Serializer) AppendBoolean(key string, v bool) *Serializer {
	s.appendKey(TypeBoolean, key)
	if v {
		s.buf = append(s.buf, 0x01)
	} else {
		s.buf = append(s.buf, 0x00)
	}
	return s
}

// AppendDateTime appends an int64 milliseconds-since-epoch datetime
// element.
func (s *Serializer) AppendDateTime(key string, msSinceEpoch int64) *Serializer {
	s.appendKey(TypeDateTime, key)
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(msSinceEpoch))
	s.buf = append(s.buf, tmp[:]...)
	return s
}

// AppendBinary appends a length-prefixed binary element: int32 length,
// subtype byte, then the raw bytes.
func (s *Serializer) AppendBinary(key string, subtype byte, data []byte) *Serializer {
	s.appendKey(TypeBinary, key)
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(data)))
	s.buf = append(s.buf, tmp[:]...)
	s.buf = append(s.buf, subtype)
	s.buf = append(s.buf, data...)
	return s
}

// AppendDocument embeds the bytes of an already-finalized document
// verbatim under key.
func (s *Serializer) AppendDocument(key string, doc Document) *Serializer {
	s.appendKey(TypeDocument, key)
	s.buf = append(s.buf, doc...)
	return s
}

// AppendArray embeds a document whose keys are ascending decimal indices
// under key, tagged as a BSON array rather than a document.
func (s *Serializer) AppendArray(key string, arr Document) *Serializer {
	s.appendKey(TypeArray, key)
	s.buf = append(s.buf, arr...)
	return s
}

// Finish appends the terminating NUL, back-patches the size prefix, and
// returns the finalized document as a fresh copy — callers may keep
// appending to s afterward (e.g. to reuse a half-built envelope) without
// aliasing the returned bytes.
func (s *Serializer) Finish() Document {
	tmp := append(append([]byte(nil), s.buf...), 0x00)
	binary.LittleEndian.PutUint32(tmp[0:4], uint32(len(tmp)))
	return Document(tmp)
}

// buildIndexedDocument serializes values as a document whose keys are
// "0", "1", "2", … in ascending order, used for every array type below.
func buildIndexedDocument(n int, appendAt func(s *Serializer, key string, i int)) Document {
	s := NewSerializer()
	for i := 0; i < n; i++ {
		appendAt(s, itoa(i), i)
	}
	return s.Finish()
}

// itoa avoids pulling in strconv for a single-purpose decimal formatter;
// indices are always small non-negative integers.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

// DoubleArray builds a BSON array document of doubles.
func DoubleArray(values []float64) Document {
	return buildIndexedDocument(len(values), func(s *Serializer, key string, i int) {
		s.AppendDouble(key, values[i])
	})
}

// StringArray builds a BSON array document of strings.
func StringArray(values []string) Document {
	return buildIndexedDocument(len(values), func(s *Serializer, key string, i int) {
		s.AppendString(key, values[i])
	})
}

// Int32Array builds a BSON array document of int32s.
func Int32Array(values []int32) Document {
	return buildIndexedDocument(len(values), func(s *Serializer, key string, i int) {
		s.AppendInt32(key, values[i])
	})
}

// Int64Array builds a BSON array document of int64s.
func Int64Array(values []int64) Document {
	return buildIndexedDocument(len(values), func(s *Serializer, key string, i int) {
		s.AppendInt64(key, values[i])
	})
}

// BooleanArray builds a BSON array document of booleans.
func BooleanArray(values []bool) Document {
	return buildIndexedDocument(len(values), func(s *Serializer, key string, i int) {
		s.AppendBoolean(key, values[i])
	})
}

// DateTimeArray builds a BSON array document of datetimes.
func DateTimeArray(values []int64) Document {
	return buildIndexedDocument(len(values), func(s *Serializer, key string, i int) {
		s.AppendDateTime(key, values[i])
	})
}

// BinaryArray builds a BSON array document of binary blobs.
func BinaryArray(values [][]byte) Document {
	return buildIndexedDocument(len(values), func(s *Serializer, key string, i int) {
		s.AppendBinary(key, BinarySubtypeGeneric, values[i])
	})
}
