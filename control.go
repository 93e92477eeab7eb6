package astarte

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"
)

// encodePurgePayload builds the purge message wire framing: a
// big-endian uint32 uncompressed length, followed by the zlib-compressed
// semicolon-separated list of entries. Entries are sorted so the wire
// payload is deterministic across runs with the same producerSet.
func encodePurgePayload(entries []string) ([]byte, error) {
	sorted := append([]string(nil), entries...)
	sort.Strings(sorted)
	plain := strings.Join(sorted, ";")

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	if _, err := w.Write([]byte(plain)); err != nil {
		return nil, fmt.Errorf("astarte: compress purge payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("astarte: compress purge payload: %w", err)
	}

	out := make([]byte, 4+compressed.Len())
	binary.BigEndian.PutUint32(out[:4], uint32(len(plain)))
	copy(out[4:], compressed.Bytes())
	return out, nil
}

// decodePurgePayload reverses encodePurgePayload, splitting the
// decompressed text on ";" and dropping any empty entry produced by an
// entirely empty payload.
func decodePurgePayload(payload []byte) ([]string, error) {
	if len(payload) < 4 {
		return nil, newErr("decodePurgePayload", KindDeserializationFailed, fmt.Errorf("payload too short"))
	}
	uncompressedSize := binary.BigEndian.Uint32(payload[:4])

	r, err := zlib.NewReader(bytes.NewReader(payload[4:]))
	if err != nil {
		return nil, newErr("decodePurgePayload", KindDeserializationFailed, err)
	}
	defer r.Close()

	plain := make([]byte, 0, uncompressedSize)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		plain = append(plain, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, newErr("decodePurgePayload", KindDeserializationFailed, err)
		}
	}

	if len(plain) == 0 {
		return nil, nil
	}
	return strings.Split(string(plain), ";"), nil
}
