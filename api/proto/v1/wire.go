package statev1

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// field is the undecoded remainder of a message positioned at a field value.
// Each accessor consumes the value and advances the walker.
type field struct {
	buf *[]byte
}

func (f field) varint(typ protowire.Type) (uint64, error) {
	if typ != protowire.VarintType {
		return 0, fmt.Errorf("%w: got %d, want varint", ErrWireType, typ)
	}
	v, n := protowire.ConsumeVarint(*f.buf)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*f.buf = (*f.buf)[n:]
	return v, nil
}

func (f field) bytes(typ protowire.Type) ([]byte, error) {
	if typ != protowire.BytesType {
		return nil, fmt.Errorf("%w: got %d, want bytes", ErrWireType, typ)
	}
	v, n := protowire.ConsumeBytes(*f.buf)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	*f.buf = (*f.buf)[n:]
	return v, nil
}

func (f field) skip(num protowire.Number, typ protowire.Type) error {
	n := protowire.ConsumeFieldValue(num, typ, *f.buf)
	if n < 0 {
		return protowire.ParseError(n)
	}
	*f.buf = (*f.buf)[n:]
	return nil
}

// walk calls fn for every field in b. fn must consume the field value
// through exactly one accessor.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if err := fn(num, typ, field{buf: &b}); err != nil {
			return err
		}
	}
	return nil
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	return appendInt64(b, num, int64(v))
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}
