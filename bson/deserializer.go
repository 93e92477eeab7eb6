package bson

import (
	"encoding/binary"
	"errors"
	"math"
)

// Errors returned while walking a Document. These map onto the
// deserialization_failed / not_found error kinds at the session-engine
// layer; this package never panics on malformed input.
var (
	ErrTruncated     = errors.New("bson: truncated document")
	ErrUnknownType   = errors.New("bson: unknown element type")
	ErrKeyNotFound   = errors.New("bson: key not found")
	ErrWrongType     = errors.New("bson: value has a different type")
	ErrMissingNull   = errors.New("bson: document missing terminating null byte")
	ErrInvalidLength = errors.New("bson: declared length does not fit in buffer")
)

// Element is a single decoded, still-encoded document entry: a key, its
// type tag, and the raw value bytes (no copy, no allocation).
type Element struct {
	Key   string
	Type  byte
	Value []byte
}

// valueSize returns the number of bytes the value occupies given its type
// tag and the bytes starting at the value (used to advance past an
// element without interpreting it). ok is false for an unrecognized tag
// or when the declared value length doesn't fit in rest.
func valueSize(tag byte, rest []byte) (size int, ok bool) {
	switch tag {
	case TypeDouble:
		size = 8
	case TypeBoolean:
		size = 1
	case TypeDateTime, TypeInt64:
		size = 8
	case TypeInt32:
		size = 4
	case TypeString:
		if len(rest) < 4 {
			return 0, false
		}
		size = 4 + int(binary.LittleEndian.Uint32(rest[:4]))
	case TypeDocument, TypeArray:
		if len(rest) < 4 {
			return 0, false
		}
		size = int(binary.LittleEndian.Uint32(rest[:4]))
	case TypeBinary:
		if len(rest) < 4 {
			return 0, false
		}
		size = 4 + 1 + int(binary.LittleEndian.Uint32(rest[:4]))
	default:
		return 0, false
	}
	if size < 0 || size > len(rest) {
		return 0, false
	}
	return size, true
}

// declaredSize reads the 4-byte little-endian length prefix.
func declaredSize(d Document) (int, bool) {
	if len(d) < 4 {
		return 0, false
	}
	return int(binary.LittleEndian.Uint32(d[:4])), true
}

// list returns the element-list bytes of the document: everything after
// the 4-byte size prefix and before the terminating NUL, along with its
// length.
func list(d Document) (elems []byte, listSize int, ok bool) {
	size, ok := declaredSize(d)
	if !ok || size < 5 || size > len(d) {
		return nil, 0, false
	}
	return d[4 : size-1], size - 5, true
}

// firstElement parses the element at the start of b, the document's
// element-list bytes. found is false on an empty list (list_size == 0);
// ok is false on a malformed element.
func firstElement(b []byte) (elem Element, rest []byte, found, ok bool) {
	if len(b) == 0 {
		return Element{}, nil, false, true
	}
	tag := b[0]
	keyEnd := -1
	for i := 1; i < len(b); i++ {
		if b[i] == 0x00 {
			keyEnd = i
			break
		}
	}
	if keyEnd < 0 {
		return Element{}, nil, false, false
	}
	key := string(b[1:keyEnd])
	valueStart := keyEnd + 1
	size, ok := valueSize(tag, b[valueStart:])
	if !ok {
		return Element{}, nil, false, false
	}
	valueEnd := valueStart + size
	if valueEnd > len(b) {
		return Element{}, nil, false, false
	}
	elem = Element{Key: key, Type: tag, Value: b[valueStart:valueEnd]}
	return elem, b[valueEnd:], true, true
}

// FirstElement returns the first element of the document, if any.
func (d Document) FirstElement() (elem Element, rest []byte, found bool, err error) {
	b, _, ok := list(d)
	if !ok {
		return Element{}, nil, false, ErrInvalidLength
	}
	elem, rest, found, ok = firstElement(b)
	if !ok {
		return Element{}, nil, false, ErrUnknownType
	}
	return elem, rest, found, nil
}

// NextElement advances past the element most recently returned by
// FirstElement/NextElement, given the remaining list bytes rest. It never
// reads past the document's declared boundary: the sole stopping
// condition is an empty rest slice, never a pointer-arithmetic guess.
func NextElement(rest []byte) (elem Element, next []byte, found bool, err error) {
	elem, next, found, ok := firstElement(rest)
	if !ok {
		return Element{}, nil, false, ErrUnknownType
	}
	return elem, next, found, nil
}

// Elements decodes every element of the document in order.
func (d Document) Elements() ([]Element, error) {
	b, _, ok := list(d)
	if !ok {
		return nil, ErrInvalidLength
	}
	var out []Element
	for {
		elem, rest, found, ok := firstElement(b)
		if !ok {
			return nil, ErrUnknownType
		}
		if !found {
			return out, nil
		}
		out = append(out, elem)
		b = rest
	}
}

// Lookup linearly scans the document for key, comparing the full key —
// deliberately never a prefix or min-length match.
func (d Document) Lookup(key string) (Element, bool) {
	b, _, ok := list(d)
	if !ok {
		return Element{}, false
	}
	for {
		elem, rest, found, ok := firstElement(b)
		if !ok || !found {
			return Element{}, false
		}
		if elem.Key == key {
			return elem, true
		}
		b = rest
	}
}

// CheckValidity is the document's validity predicate: it never panics,
// and does not recursively validate nested documents the way a full
// BSON Validate would — only the envelope.
func (d Document) CheckValidity() bool {
	size, ok := declaredSize(d)
	if !ok || size < 5 || size > len(d) {
		return false
	}
	if d[size-1] != 0x00 {
		return false
	}
	if size == 5 {
		return true
	}
	if size < 8 {
		return false
	}
	return recognizedTypes[d[4]]
}

// Double returns the element's value interpreted as a float64.
func (e Element) Double() (float64, bool) {
	if e.Type != TypeDouble || len(e.Value) != 8 {
		return 0, false
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(e.Value)), true
}

// StringValue returns the element's value interpreted as a string,
// excluding the trailing NUL.
func (e Element) StringValue() (string, bool) {
	if e.Type != TypeString || len(e.Value) < 5 {
		return "", false
	}
	n := int(binary.LittleEndian.Uint32(e.Value[:4]))
	if n < 1 || 4+n != len(e.Value) || e.Value[len(e.Value)-1] != 0x00 {
		return "", false
	}
	return string(e.Value[4 : 4+n-1]), true
}

// Int32 returns the element's value interpreted as an int32.
func (e Element) Int32() (int32, bool) {
	if e.Type != TypeInt32 || len(e.Value) != 4 {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(e.Value)), true
}

// Int64 returns the element's value interpreted as an int64.
func (e Element) Int64() (int64, bool) {
	if e.Type != TypeInt64 || len(e.Value) != 8 {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(e.Value)), true
}

// Boolean returns the element's value interpreted as a bool.
func (e Element) Boolean() (bool, bool) {
	if e.Type != TypeBoolean || len(e.Value) != 1 {
		return false, false
	}
	return e.Value[0] != 0x00, true
}

// DateTime returns the element's value interpreted as milliseconds since
// the epoch.
func (e Element) DateTime() (int64, bool) {
	if e.Type != TypeDateTime || len(e.Value) != 8 {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(e.Value)), true
}

// Binary returns the element's subtype and payload.
func (e Element) Binary() (subtype byte, data []byte, ok bool) {
	if e.Type != TypeBinary || len(e.Value) < 5 {
		return 0, nil, false
	}
	n := int(binary.LittleEndian.Uint32(e.Value[:4]))
	if 5+n != len(e.Value) {
		return 0, nil, false
	}
	return e.Value[4], e.Value[5 : 5+n], true
}

// SubDocument returns the element's value as an embedded Document.
func (e Element) SubDocument() (Document, bool) {
	if e.Type != TypeDocument && e.Type != TypeArray {
		return nil, false
	}
	return Document(e.Value), true
}
