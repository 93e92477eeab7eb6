package bson

import (
	"encoding/binary"
	"testing"
)

func TestRoundTripScalars(t *testing.T) {
	ts := int64(1234567890)
	cases := []any{
		float64(3.14),
		int32(42),
		int64(-9001),
		true,
		"hello astarte",
		[]byte{0x01, 0x02, 0x03},
	}
	for _, v := range cases {
		doc := wrapAndCheckEnvelope(t, v, &ts)
		elem, ok := ExtractV(doc)
		if !ok {
			t.Fatalf("lookup v failed for %v", v)
		}
		got, ok := elem.Native()
		if !ok {
			t.Fatalf("Native() failed for %v", v)
		}
		assertScalarEqual(t, v, got)

		gotTs, ok := ExtractT(doc)
		if !ok || gotTs != ts {
			t.Fatalf("timestamp round-trip failed: ok=%v got=%d want=%d", ok, gotTs, ts)
		}
	}
}

func TestRoundTripArrays(t *testing.T) {
	doc := wrapAndCheckEnvelope(t, []int32{1, 2, 3}, nil)
	elem, ok := ExtractV(doc)
	if !ok {
		t.Fatalf("lookup v failed")
	}
	sub, ok := elem.SubDocument()
	if !ok {
		t.Fatalf("v is not a sub-document")
	}
	elems, err := sub.Elements()
	if err != nil {
		t.Fatalf("Elements: %v", err)
	}
	want := []int32{1, 2, 3}
	if len(elems) != len(want) {
		t.Fatalf("got %d elements, want %d", len(elems), len(want))
	}
	for i, w := range want {
		got, ok := elems[i].Int32()
		if !ok || got != w {
			t.Fatalf("elem %d = %d, want %d", i, got, w)
		}
	}
}

func wrapAndCheckEnvelope(t *testing.T, v any, ts *int64) Document {
	t.Helper()
	doc, err := WrapValue(v, ts)
	if err != nil {
		t.Fatalf("WrapValue(%v): %v", v, err)
	}
	if len(doc) < 4 {
		t.Fatalf("doc too short")
	}
	if binary.LittleEndian.Uint32(doc[:4]) != uint32(len(doc)) {
		t.Fatalf("length prefix mismatch for %v: got %d, doc len %d",
			v, binary.LittleEndian.Uint32(doc[:4]), len(doc))
	}
	if doc[len(doc)-1] != 0x00 {
		t.Fatalf("doc not NUL-terminated for %v", v)
	}
	return doc
}

func assertScalarEqual(t *testing.T, want, got any) {
	t.Helper()
	if wb, ok := want.([]byte); ok {
		gb, ok := got.([]byte)
		if !ok || len(gb) != len(wb) {
			t.Fatalf("want %v got %v", want, got)
		}
		for i := range wb {
			if wb[i] != gb[i] {
				t.Fatalf("want %v got %v", want, got)
			}
		}
		return
	}
	if want != got {
		t.Fatalf("want %v (%T) got %v (%T)", want, want, got, got)
	}
}

func TestArrayElements(t *testing.T) {
	arr := Int32Array([]int32{7, 8, 9})
	elems, err := Document(arr).Elements()
	if err != nil {
		t.Fatalf("Elements: %v", err)
	}
	if len(elems) != 3 {
		t.Fatalf("want 3 elements, got %d", len(elems))
	}
	for i, want := range []int32{7, 8, 9} {
		if elems[i].Key != itoa(i) {
			t.Errorf("elem %d key = %q, want %q", i, elems[i].Key, itoa(i))
		}
		got, ok := elems[i].Int32()
		if !ok || got != want {
			t.Errorf("elem %d = %d, want %d", i, got, want)
		}
	}
}

func TestCheckValidity(t *testing.T) {
	cases := []struct {
		name string
		doc  Document
		want bool
	}{
		{"empty document", Document{0x05, 0x00, 0x00, 0x00, 0x00}, true},
		{"too short", Document{0x01, 0x00}, false},
		{"truncated", Document{0x10, 0x00, 0x00, 0x00, 0x00}, false},
		{"bad terminator", func() Document {
			d := append(Document(nil), mixedDocFixture()...)
			d[len(d)-1] = 0x01
			return d
		}(), false},
		{"unrecognized first tag", func() Document {
			d := append(Document(nil), mixedDocFixture()...)
			d[4] = 0xFF
			return d
		}(), false},
		{"mixed-type fixture", mixedDocFixture(), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.doc.CheckValidity(); got != c.want {
				t.Errorf("CheckValidity() = %v, want %v", got, c.want)
			}
		})
	}
}

func mixedDocFixture() Document {
	s := NewSerializer()
	s.AppendBoolean("v", true)
	s.AppendDateTime("t", 1700000000000)
	return s.Finish()
}

func TestLookupMissingKey(t *testing.T) {
	doc := mixedDocFixture()
	if _, ok := doc.Lookup("nope"); ok {
		t.Fatalf("expected lookup miss")
	}
}

func TestNextElementNeverOverrunsBoundary(t *testing.T) {
	doc := mixedDocFixture()
	elem, rest, found, err := doc.FirstElement()
	if err != nil || !found {
		t.Fatalf("FirstElement: elem=%v found=%v err=%v", elem, found, err)
	}
	count := 1
	for {
		next, r2, found, err := NextElement(rest)
		if err != nil {
			t.Fatalf("NextElement: %v", err)
		}
		if !found {
			break
		}
		count++
		rest = r2
		_ = next
		if count > 10 {
			t.Fatalf("NextElement looped past document boundary")
		}
	}
	if count != 2 {
		t.Fatalf("expected 2 elements (v, t), got %d", count)
	}
}

func TestAggregateWrap(t *testing.T) {
	doc, err := WrapAggregate(map[string]any{"x": int32(1), "y": "s"}, nil)
	if err != nil {
		t.Fatalf("WrapAggregate: %v", err)
	}
	v, ok := ExtractV(doc)
	if !ok {
		t.Fatalf("missing v")
	}
	sub, ok := v.SubDocument()
	if !ok {
		t.Fatalf("v is not a sub-document")
	}
	if _, ok := sub.Lookup("x"); !ok {
		t.Fatalf("missing x field")
	}
	if _, ok := sub.Lookup("y"); !ok {
		t.Fatalf("missing y field")
	}
}
