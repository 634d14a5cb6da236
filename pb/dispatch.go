// Package pb hand-authors the two wire messages this system puts on a
// broker or object store — the dispatch-queue envelope and the
// object-store blob — directly on top of google.golang.org/protobuf's
// low-level wire encoder, without a .proto file or generated code.
// Field numbers are fixed and new fields must only ever be appended,
// per the forward-compatibility contract in the external interfaces.
package pb

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers for DispatchMessage, stable across versions.
const (
	fieldApplicationID     = 1
	fieldRequestAttemptID  = 2
	fieldEventID           = 3
	fieldEventReceivedAt   = 4
	fieldSubscriptionID    = 5
	fieldCreatedAt         = 6
	fieldRetryCount        = 7
	fieldHTTPMethod        = 8
	fieldHTTPURL           = 9
	fieldHTTPHeaders       = 10
	fieldEventTypeName     = 11
	fieldPayload           = 12
	fieldPayloadContentType = 13
	fieldSecret            = 14
)

// header map entry submessage field numbers (mirrors protobuf's map<K,V> wire encoding).
const (
	fieldMapKey   = 1
	fieldMapValue = 2
)

// timestamp submessage field numbers, matching google.protobuf.Timestamp.
const (
	fieldTimestampSeconds = 1
	fieldTimestampNanos   = 2
)

// DispatchMessage is the C7 queue envelope: everything a worker needs to
// execute one delivery attempt without a further database round trip for
// the attempt's static shape.
type DispatchMessage struct {
	ApplicationID      string
	RequestAttemptID   string
	EventID            string
	EventReceivedAt    *time.Time // optional, absent means "unknown"
	SubscriptionID     string
	CreatedAt          time.Time
	RetryCount         uint32
	HTTPMethod         string
	HTTPURL            string
	HTTPHeaders        map[string]string
	EventTypeName      string
	Payload            []byte
	PayloadContentType string
	Secret             string
}

// EncodeDispatchMessage serialises m as length-delimited protobuf wire
// bytes. Unknown future fields are simply new field numbers appended
// after 14; decoders must skip fields they don't recognise.
func EncodeDispatchMessage(m *DispatchMessage) []byte {
	var b []byte
	b = appendStringField(b, fieldApplicationID, m.ApplicationID)
	b = appendStringField(b, fieldRequestAttemptID, m.RequestAttemptID)
	b = appendStringField(b, fieldEventID, m.EventID)
	if m.EventReceivedAt != nil {
		b = appendTimestampField(b, fieldEventReceivedAt, *m.EventReceivedAt)
	}
	b = appendStringField(b, fieldSubscriptionID, m.SubscriptionID)
	b = appendTimestampField(b, fieldCreatedAt, m.CreatedAt)
	b = protowire.AppendTag(b, fieldRetryCount, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.RetryCount))
	b = appendStringField(b, fieldHTTPMethod, m.HTTPMethod)
	b = appendStringField(b, fieldHTTPURL, m.HTTPURL)
	for k, v := range m.HTTPHeaders {
		var entry []byte
		entry = appendStringField(entry, fieldMapKey, k)
		entry = appendStringField(entry, fieldMapValue, v)
		b = protowire.AppendTag(b, fieldHTTPHeaders, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	b = appendStringField(b, fieldEventTypeName, m.EventTypeName)
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Payload)
	b = appendStringField(b, fieldPayloadContentType, m.PayloadContentType)
	b = appendStringField(b, fieldSecret, m.Secret)
	return b
}

// DecodeDispatchMessage parses the wire format produced by
// EncodeDispatchMessage. Absent application_id decodes as "" (callers
// treat that as nil per the external-interfaces contract); absent
// event_received_at leaves EventReceivedAt nil.
func DecodeDispatchMessage(data []byte) (*DispatchMessage, error) {
	m := &DispatchMessage{HTTPHeaders: map[string]string{}}

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("pb: consume tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("pb: consume varint: %w", protowire.ParseError(n))
			}
			data = data[n:]
			if num == fieldRetryCount {
				m.RetryCount = uint32(v)
			}

		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("pb: consume bytes: %w", protowire.ParseError(n))
			}
			data = data[n:]

			switch num {
			case fieldApplicationID:
				m.ApplicationID = string(v)
			case fieldRequestAttemptID:
				m.RequestAttemptID = string(v)
			case fieldEventID:
				m.EventID = string(v)
			case fieldEventReceivedAt:
				t, err := decodeTimestamp(v)
				if err != nil {
					return nil, err
				}
				m.EventReceivedAt = &t
			case fieldSubscriptionID:
				m.SubscriptionID = string(v)
			case fieldCreatedAt:
				t, err := decodeTimestamp(v)
				if err != nil {
					return nil, err
				}
				m.CreatedAt = t
			case fieldHTTPMethod:
				m.HTTPMethod = string(v)
			case fieldHTTPURL:
				m.HTTPURL = string(v)
			case fieldHTTPHeaders:
				k, val, err := decodeMapEntry(v)
				if err != nil {
					return nil, err
				}
				m.HTTPHeaders[k] = val
			case fieldEventTypeName:
				m.EventTypeName = string(v)
			case fieldPayload:
				m.Payload = append([]byte(nil), v...)
			case fieldPayloadContentType:
				m.PayloadContentType = string(v)
			case fieldSecret:
				m.Secret = string(v)
			default:
				// unknown field, already consumed: forward-compatible skip
			}

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("pb: skip unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	return m, nil
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendTimestampField(b []byte, num protowire.Number, t time.Time) []byte {
	var ts []byte
	ts = protowire.AppendTag(ts, fieldTimestampSeconds, protowire.VarintType)
	ts = protowire.AppendVarint(ts, uint64(t.Unix()))
	if n := t.Nanosecond(); n != 0 {
		ts = protowire.AppendTag(ts, fieldTimestampNanos, protowire.VarintType)
		ts = protowire.AppendVarint(ts, uint64(n))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, ts)
}

func decodeTimestamp(data []byte) (time.Time, error) {
	var seconds int64
	var nanos int32
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return time.Time{}, fmt.Errorf("pb: consume timestamp tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		if typ != protowire.VarintType {
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return time.Time{}, fmt.Errorf("pb: skip timestamp field: %w", protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return time.Time{}, fmt.Errorf("pb: consume timestamp varint: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch num {
		case fieldTimestampSeconds:
			seconds = int64(v)
		case fieldTimestampNanos:
			nanos = int32(v)
		}
	}
	return time.Unix(seconds, int64(nanos)).UTC(), nil
}

func decodeMapEntry(data []byte) (key, value string, err error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", "", fmt.Errorf("pb: consume map entry tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		if typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return "", "", fmt.Errorf("pb: skip map entry field: %w", protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return "", "", fmt.Errorf("pb: consume map entry value: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch num {
		case fieldMapKey:
			key = string(v)
		case fieldMapValue:
			value = string(v)
		}
	}
	return key, value, nil
}
