// Package wire implements the binary encoding shared by serialized programs,
// shapes, target descriptions and executables.
//
// The encoding is the protobuf wire format, hand-encoded on top of
// google.golang.org/protobuf/encoding/protowire: fields are numbered, unknown
// fields are skipped on decode, and zero values are omitted on encode. That
// keeps payloads stable across releases and readable by standard protobuf
// tooling, without a code-generation step.
package wire

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"google.golang.org/protobuf/encoding/protowire"
)

// Number identifies a field within a message.
type Number = protowire.Number

// AppendVarintField appends a varint field. Zero values are omitted.
func AppendVarintField(b []byte, num Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// AppendFixed64Field appends a fixed 64-bit field. Zero values are omitted.
func AppendFixed64Field(b []byte, num Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, v)
}

// AppendStringField appends a string field. Empty strings are omitted.
func AppendStringField(b []byte, num Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// AppendBytesField appends a bytes field. Empty slices are omitted.
func AppendBytesField(b []byte, num Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// AppendMessageField appends an embedded message field. Unlike the scalar
// helpers it is never omitted: callers only invoke it for fields that are
// semantically present, and an empty embedded message can be meaningful.
func AppendMessageField(b []byte, num Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// AppendPackedField appends a packed repeated integer field. Empty slices are
// omitted. Values must be non-negative, they are encoded as plain varints.
func AppendPackedField[T constraints.Integer](b []byte, num Number, vs []T) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// Decoder iterates over the fields of an encoded message.
//
// Next advances to the next field and consumes its value, so fields with
// numbers the caller does not recognize are skipped for free. The typed
// accessors return the current field's value and record an error on the
// decoder when the wire type does not match; decoding stops at the first
// error, which the caller retrieves with Err after the loop.
type Decoder struct {
	buf  []byte
	num  Number
	typ  protowire.Type
	uval uint64
	bval []byte
	err  error
}

// NewDecoder returns a Decoder over data. The decoder keeps a reference to
// data, it does not copy it.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{buf: data}
}

// Next advances to the next field. It returns false when the message is
// exhausted or a decoding error occurred.
func (d *Decoder) Next() bool {
	if d.err != nil || len(d.buf) == 0 {
		return false
	}
	num, typ, n := protowire.ConsumeTag(d.buf)
	if n < 0 {
		d.err = errors.Wrap(protowire.ParseError(n), "wire: invalid field tag")
		return false
	}
	d.buf = d.buf[n:]
	d.num, d.typ = num, typ
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(d.buf)
		if n < 0 {
			d.err = errors.Wrapf(protowire.ParseError(n), "wire: field %d: invalid varint", num)
			return false
		}
		d.uval, d.buf = v, d.buf[n:]
	case protowire.Fixed64Type:
		v, n := protowire.ConsumeFixed64(d.buf)
		if n < 0 {
			d.err = errors.Wrapf(protowire.ParseError(n), "wire: field %d: invalid fixed64", num)
			return false
		}
		d.uval, d.buf = v, d.buf[n:]
	case protowire.Fixed32Type:
		v, n := protowire.ConsumeFixed32(d.buf)
		if n < 0 {
			d.err = errors.Wrapf(protowire.ParseError(n), "wire: field %d: invalid fixed32", num)
			return false
		}
		d.uval, d.buf = uint64(v), d.buf[n:]
	case protowire.BytesType:
		v, n := protowire.ConsumeBytes(d.buf)
		if n < 0 {
			d.err = errors.Wrapf(protowire.ParseError(n), "wire: field %d: invalid length-delimited value", num)
			return false
		}
		d.bval, d.buf = v, d.buf[n:]
	default:
		d.err = errors.Errorf("wire: field %d: unsupported wire type %d", num, typ)
		return false
	}
	return true
}

// FieldNum returns the number of the current field.
func (d *Decoder) FieldNum() Number { return d.num }

// Err returns the first error encountered while decoding, or nil.
func (d *Decoder) Err() error { return d.err }

func (d *Decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = errors.Errorf("wire: field %d: "+format, append([]any{d.num}, args...)...)
	}
}

// Varint returns the current field as a varint.
func (d *Decoder) Varint() uint64 {
	if d.typ != protowire.VarintType {
		d.fail("expected varint, got wire type %d", d.typ)
		return 0
	}
	return d.uval
}

// Fixed64 returns the current field as a fixed 64-bit value.
func (d *Decoder) Fixed64() uint64 {
	if d.typ != protowire.Fixed64Type {
		d.fail("expected fixed64, got wire type %d", d.typ)
		return 0
	}
	return d.uval
}

// Int returns the current varint field as an int.
func (d *Decoder) Int() int {
	v := d.Varint()
	if v > math.MaxInt64 {
		d.fail("value %d overflows int", v)
		return 0
	}
	return int(v)
}

// Int32 returns the current varint field as an int32.
func (d *Decoder) Int32() int32 {
	v := d.Varint()
	if v > math.MaxInt32 {
		d.fail("value %d overflows int32", v)
		return 0
	}
	return int32(v)
}

// Bool returns the current varint field as a bool.
func (d *Decoder) Bool() bool {
	return d.Varint() != 0
}

// String returns the current length-delimited field as a string.
func (d *Decoder) String() string {
	if d.typ != protowire.BytesType {
		d.fail("expected length-delimited value, got wire type %d", d.typ)
		return ""
	}
	return string(d.bval)
}

// Bytes returns a copy of the current length-delimited field, safe to retain.
func (d *Decoder) Bytes() []byte {
	if d.typ != protowire.BytesType {
		d.fail("expected length-delimited value, got wire type %d", d.typ)
		return nil
	}
	out := make([]byte, len(d.bval))
	copy(out, d.bval)
	return out
}

// Message returns the current embedded message as a view into the input
// buffer, valid until the input buffer is released. Use it to feed a nested
// Decoder without copying.
func (d *Decoder) Message() []byte {
	if d.typ != protowire.BytesType {
		d.fail("expected embedded message, got wire type %d", d.typ)
		return nil
	}
	return d.bval
}

// PackedInts returns the current packed repeated field as ints. A single
// unpacked varint element is also accepted, as protobuf parsers must.
func (d *Decoder) PackedInts() []int {
	return packedInts(d, func(v uint64) (int, bool) {
		return int(v), v <= math.MaxInt64
	})
}

// PackedInt32s returns the current packed repeated field as int32s.
func (d *Decoder) PackedInt32s() []int32 {
	return packedInts(d, func(v uint64) (int32, bool) {
		return int32(v), v <= math.MaxInt32
	})
}

func packedInts[T constraints.Integer](d *Decoder, convert func(uint64) (T, bool)) []T {
	if d.typ == protowire.VarintType {
		v, ok := convert(d.uval)
		if !ok {
			d.fail("packed value %d out of range", d.uval)
			return nil
		}
		return []T{v}
	}
	if d.typ != protowire.BytesType {
		d.fail("expected packed repeated field, got wire type %d", d.typ)
		return nil
	}
	var out []T
	buf := d.bval
	for len(buf) > 0 {
		v, n := protowire.ConsumeVarint(buf)
		if n < 0 {
			d.fail("invalid packed varint")
			return nil
		}
		buf = buf[n:]
		e, ok := convert(v)
		if !ok {
			d.fail("packed value %d out of range", v)
			return nil
		}
		out = append(out, e)
	}
	return out
}
