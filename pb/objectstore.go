package pb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers for the object-store blob, per the C9 contract.
const (
	fieldBlobBody    = 1
	fieldBlobHeaders = 2
)

// Blob is the protobuf-wrapped payload written to the object store when a
// response body is offloaded. Headers are plain string->string, per
// SPEC_FULL.md open-question decision 2 (the source's lossy
// prost_wkt_types::Value round-trip is not reproduced here).
type Blob struct {
	Body    []byte
	Headers map[string]string
}

// EncodeBlob serialises b as length-delimited protobuf wire bytes.
func EncodeBlob(b *Blob) []byte {
	var out []byte
	out = protowire.AppendTag(out, fieldBlobBody, protowire.BytesType)
	out = protowire.AppendBytes(out, b.Body)
	for k, v := range b.Headers {
		var entry []byte
		entry = appendStringField(entry, fieldMapKey, k)
		entry = appendStringField(entry, fieldMapValue, v)
		out = protowire.AppendTag(out, fieldBlobHeaders, protowire.BytesType)
		out = protowire.AppendBytes(out, entry)
	}
	return out
}

// DecodeBlob parses the wire format produced by EncodeBlob.
func DecodeBlob(data []byte) (*Blob, error) {
	b := &Blob{Headers: map[string]string{}}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("pb: consume blob tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		if typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("pb: skip blob field: %w", protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, fmt.Errorf("pb: consume blob bytes: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldBlobBody:
			b.Body = append([]byte(nil), v...)
		case fieldBlobHeaders:
			k, val, err := decodeMapEntry(v)
			if err != nil {
				return nil, err
			}
			b.Headers[k] = val
		}
	}
	return b, nil
}
