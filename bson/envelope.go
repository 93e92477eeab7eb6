package bson

import "fmt"

// WrapValue serializes v as the single-field envelope every Astarte
// publish uses — {"v": value} — with an optional "t" datetime field when
// tsMillis is non-nil. v must be one of the Go types below, or a slice of
// one of the scalar types; any other type, including map[string]any, is
// rejected with an error. Object aggregates go through WrapAggregate.
func WrapValue(v any, tsMillis *int64) (Document, error) {
	s := NewSerializer()
	if err := appendValue(s, "v", v); err != nil {
		return nil, err
	}
	if tsMillis != nil {
		s.AppendDateTime("t", *tsMillis)
	}
	return s.Finish(), nil
}

// WrapAggregate serializes an object-aggregate interface's mapping set as
// a sub-document embedded under "v".
func WrapAggregate(fields map[string]any, tsMillis *int64) (Document, error) {
	sub := NewSerializer()
	for k, v := range fields {
		if err := appendValue(sub, k, v); err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
	}
	doc := sub.Finish()

	s := NewSerializer()
	s.AppendDocument("v", doc)
	if tsMillis != nil {
		s.AppendDateTime("t", *tsMillis)
	}
	return s.Finish(), nil
}

func appendValue(s *Serializer, key string, v any) error {
	switch val := v.(type) {
	case float64:
		s.AppendDouble(key, val)
	case int32:
		s.AppendInt32(key, val)
	case int64:
		s.AppendInt64(key, val)
	case int:
		s.AppendInt64(key, int64(val))
	case bool:
		s.AppendBoolean(key, val)
	case string:
		s.AppendString(key, val)
	case []byte:
		s.AppendBinary(key, BinarySubtypeGeneric, val)
	case []float64:
		s.AppendArray(key, DoubleArray(val))
	case []int32:
		s.AppendArray(key, Int32Array(val))
	case []int64:
		s.AppendArray(key, Int64Array(val))
	case []bool:
		s.AppendArray(key, BooleanArray(val))
	case []string:
		s.AppendArray(key, StringArray(val))
	case [][]byte:
		s.AppendArray(key, BinaryArray(val))
	default:
		return fmt.Errorf("bson: unsupported value type %T", v)
	}
	return nil
}

// ExtractV looks up the "v" element of a published envelope.
func ExtractV(doc Document) (Element, bool) {
	return doc.Lookup("v")
}

// ExtractT looks up the optional "t" timestamp element of a published
// envelope.
func ExtractT(doc Document) (int64, bool) {
	elem, ok := doc.Lookup("t")
	if !ok {
		return 0, false
	}
	return elem.DateTime()
}

// Native converts an Element back into the corresponding Go value, for
// delivering inbound data to application callbacks.
func (e Element) Native() (any, bool) {
	switch e.Type {
	case TypeDouble:
		return e.Double()
	case TypeString:
		return e.StringValue()
	case TypeInt32:
		return e.Int32()
	case TypeInt64:
		return e.Int64()
	case TypeBoolean:
		return e.Boolean()
	case TypeDateTime:
		return e.DateTime()
	case TypeBinary:
		_, data, ok := e.Binary()
		return data, ok
	case TypeDocument, TypeArray:
		return e.SubDocument()
	default:
		return nil, false
	}
}
