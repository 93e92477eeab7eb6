// Package bson implements the small, MongoDB-wire-compatible BSON subset
// used to frame Astarte datastream and property payloads.
//
// The shape of the API — a growable length-prefixed buffer with
// AppendXElement builders, and an Element/Value pair for reading without
// allocating — follows go.mongodb.org/mongo-driver's x/bsonx/bsoncore
// package. The wire semantics are narrower than full BSON: every
// published element is wrapped in a one-field document, optionally with a
// "t" timestamp field, and CheckValidity checks the envelope rather than
// walking every element recursively.
package bson

// Element type tags, as laid out on the wire. Values match the BSON
// specification; only the subset actually used by Astarte payloads is
// implemented.
const (
	TypeDouble   byte = 0x01
	TypeString   byte = 0x02
	TypeDocument byte = 0x03
	TypeArray    byte = 0x04
	TypeBinary   byte = 0x05
	TypeBoolean  byte = 0x08
	TypeDateTime byte = 0x09
	TypeInt32    byte = 0x10
	TypeInt64    byte = 0x12
)

// BinarySubtypeGeneric is the only binary subtype this package produces.
const BinarySubtypeGeneric byte = 0x00

// recognizedTypes is the set of tags a valid document's first element may
// carry; anything else fails CheckValidity.
var recognizedTypes = map[byte]bool{
	TypeDouble:   true,
	TypeString:   true,
	TypeDocument: true,
	TypeArray:    true,
	TypeBinary:   true,
	TypeBoolean:  true,
	TypeDateTime: true,
	TypeInt32:    true,
	TypeInt64:    true,
}
