package xrpl

import (
	"fmt"
)

// Serialized type codes of the XRPL binary format
const (
	typeUInt16    = 1
	typeUInt32    = 2
	typeUInt64    = 3
	typeHash128   = 4
	typeHash256   = 5
	typeAmount    = 6
	typeBlob      = 7
	typeAccountID = 8
	typeSTObject  = 14
	typeSTArray   = 15
	typeUInt8     = 16
	typeHash160   = 17
	typePathSet   = 18
	typeVector256 = 19
	typeUInt96    = 20
	typeHash192   = 21
	typeUInt384   = 22
	typeUInt512   = 23
	typeIssue     = 24
	typeCurrency  = 26
)

const (
	fieldEndOfObject = 1
	fieldEndOfArray  = 1

	pathEnd           = 0x00
	pathBoundary      = 0xFF
	pathStepAccount   = 0x01
	pathStepCurrency  = 0x10
	pathStepIssuer    = 0x20
	amountIssuedFlag  = 0x80
	amountMPTFlag     = 0x20
	amountNativeSize  = 8
	amountIssuedSize  = 48
	amountMPTSize     = 33
	currencyCodeSize  = 20
	accountIDWireSize = 20
)

var fixedSizes = map[int]int{
	typeUInt16:   2,
	typeUInt32:   4,
	typeUInt64:   8,
	typeHash128:  16,
	typeHash256:  32,
	typeUInt8:    1,
	typeHash160:  20,
	typeUInt96:   12,
	typeHash192:  24,
	typeUInt384:  48,
	typeUInt512:  64,
	typeCurrency: 20,
}

var variableLength = map[int]bool{
	typeBlob:      true,
	typeAccountID: true,
	typeVector256: true,
}

// FieldID names a serialized field by type and field code
type FieldID struct {
	Type  int
	Field int
}

var (
	fieldSigningPubKey = FieldID{Type: typeBlob, Field: 3}
	fieldTxnSignature  = FieldID{Type: typeBlob, Field: 4}
	fieldAccount       = FieldID{Type: typeAccountID, Field: 1}
)

// field is one top-level field of a serialized object
type field struct {
	ID    FieldID
	Start int    // offset of the field header
	End   int    // offset after the value
	Value []byte // value without header or length prefix
}

// decoder walks the binary serialization of a transaction
type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) remaining() int { return len(d.buf) - d.pos }

func (d *decoder) next(n int) ([]byte, error) {
	if n < 0 || d.remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d", ErrTruncated, n, d.pos)
	}
	out := d.buf[d.pos : d.pos+n]
	d.pos += n
	return out, nil
}

func (d *decoder) readByte() (int, error) {
	b, err := d.next(1)
	if err != nil {
		return 0, err
	}
	return int(b[0]), nil
}

// readFieldID decodes the one to three byte field header
func (d *decoder) readFieldID() (FieldID, error) {
	first, err := d.readByte()
	if err != nil {
		return FieldID{}, err
	}
	id := FieldID{Type: first >> 4, Field: first & 0x0F}
	if id.Type == 0 {
		if id.Type, err = d.readByte(); err != nil {
			return FieldID{}, err
		}
	}
	if id.Field == 0 {
		if id.Field, err = d.readByte(); err != nil {
			return FieldID{}, err
		}
	}
	return id, nil
}

// readLength decodes a variable length prefix
func (d *decoder) readLength() (int, error) {
	b1, err := d.readByte()
	if err != nil {
		return 0, err
	}
	switch {
	case b1 <= 192:
		return b1, nil
	case b1 <= 240:
		b2, err := d.readByte()
		if err != nil {
			return 0, err
		}
		return 193 + (b1-193)*256 + b2, nil
	case b1 <= 254:
		rest, err := d.next(2)
		if err != nil {
			return 0, err
		}
		return 12481 + (b1-241)*65536 + int(rest[0])*256 + int(rest[1]), nil
	default:
		return 0, fmt.Errorf("%w: invalid length prefix %#x", ErrTruncated, b1)
	}
}

// readValue consumes the value of a field of type t and returns its payload
func (d *decoder) readValue(t int) ([]byte, error) {
	if n, ok := fixedSizes[t]; ok {
		return d.next(n)
	}
	if variableLength[t] {
		n, err := d.readLength()
		if err != nil {
			return nil, err
		}
		return d.next(n)
	}

	start := d.pos
	switch t {
	case typeAmount:
		if d.remaining() < 1 {
			return nil, ErrTruncated
		}
		lead := d.buf[d.pos]
		switch {
		case lead&amountIssuedFlag != 0:
			return d.next(amountIssuedSize)
		case lead&amountMPTFlag != 0:
			return d.next(amountMPTSize)
		default:
			return d.next(amountNativeSize)
		}
	case typeIssue:
		currency, err := d.next(currencyCodeSize)
		if err != nil {
			return nil, err
		}
		if !isZero(currency) {
			if _, err := d.next(accountIDWireSize); err != nil {
				return nil, err
			}
		}
	case typeSTObject:
		if err := d.skipObject(); err != nil {
			return nil, err
		}
	case typeSTArray:
		if err := d.skipArray(); err != nil {
			return nil, err
		}
	case typePathSet:
		if err := d.skipPathSet(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedField, t)
	}
	return d.buf[start:d.pos], nil
}

func (d *decoder) skipObject() error {
	for {
		id, err := d.readFieldID()
		if err != nil {
			return err
		}
		if id.Type == typeSTObject && id.Field == fieldEndOfObject {
			return nil
		}
		if _, err := d.readValue(id.Type); err != nil {
			return err
		}
	}
}

func (d *decoder) skipArray() error {
	for {
		id, err := d.readFieldID()
		if err != nil {
			return err
		}
		if id.Type == typeSTArray && id.Field == fieldEndOfArray {
			return nil
		}
		if id.Type != typeSTObject {
			return fmt.Errorf("%w: array element of type %d", ErrUnsupportedField, id.Type)
		}
		if err := d.skipObject(); err != nil {
			return err
		}
	}
}

func (d *decoder) skipPathSet() error {
	for {
		kind, err := d.readByte()
		if err != nil {
			return err
		}
		switch kind {
		case pathEnd:
			return nil
		case pathBoundary:
			continue
		}
		size := 0
		if kind&pathStepAccount != 0 {
			size += accountIDWireSize
		}
		if kind&pathStepCurrency != 0 {
			size += currencyCodeSize
		}
		if kind&pathStepIssuer != 0 {
			size += accountIDWireSize
		}
		if _, err := d.next(size); err != nil {
			return err
		}
	}
}

// decodeFields splits a serialized object into its top-level fields
func decodeFields(blob []byte) ([]field, error) {
	d := &decoder{buf: blob}
	var fields []field
	for d.remaining() > 0 {
		start := d.pos
		id, err := d.readFieldID()
		if err != nil {
			return nil, err
		}
		value, err := d.readValue(id.Type)
		if err != nil {
			return nil, fmt.Errorf("field %d/%d: %w", id.Type, id.Field, err)
		}
		fields = append(fields, field{ID: id, Start: start, End: d.pos, Value: value})
	}
	return fields, nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
