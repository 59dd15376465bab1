// Package cqltype translates between the Go-native values used by the
// store package's Params/Rows and the raw column bytes the wire codec
// reads and writes. It is the one place in the tree that understands CQL's
// fixed-width and textual encodings; store, bind and the root package only
// ever see "type name + Go value".
package cqltype

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"net"

	"github.com/datastax/go-cassandra-native-protocol/datatype"
	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/google/uuid"
	"gopkg.in/inf.v0"
)

// Name is a lowercase CQL type name, as it appears in prime JSON and in
// message.ColumnMetadata construction.
type Name string

const (
	Varchar   Name = "varchar"
	Ascii     Name = "ascii"
	Text      Name = "text"
	Bigint    Name = "bigint"
	Int       Name = "int"
	Boolean   Name = "boolean"
	Uuid      Name = "uuid"
	Blob      Name = "blob"
	Decimal   Name = "decimal"
	Inet      Name = "inet"
	Timestamp Name = "timestamp"
)

// DataType resolves name to the datastax datatype.DataType used to build
// message.ColumnMetadata for a Rows response.
func DataType(name Name) (datatype.DataType, error) {
	switch name {
	case Varchar, "":
		return datatype.Varchar, nil
	case Ascii:
		return datatype.Ascii, nil
	case Text:
		return datatype.Varchar, nil
	case Bigint:
		return datatype.Bigint, nil
	case Int:
		return datatype.Int, nil
	case Boolean:
		return datatype.Boolean, nil
	case Uuid:
		return datatype.Uuid, nil
	case Blob:
		return datatype.Blob, nil
	case Decimal:
		return datatype.Decimal, nil
	case Inet:
		return datatype.Inet, nil
	case Timestamp:
		return datatype.Timestamp, nil
	default:
		return nil, fmt.Errorf("cqltype: unknown type %q", name)
	}
}

// Encode converts a Go-native value v, declared as type name, into the raw
// column bytes the wire codec expects as a message.Row entry. A nil v
// encodes as a CQL null (nil Column).
func Encode(name Name, v interface{}) (message.Column, error) {
	if v == nil {
		return nil, nil
	}
	switch name {
	case Varchar, Ascii, Text, "":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("cqltype: %s value must be a string, got %T", name, v)
		}
		return message.Column(s), nil
	case Bigint:
		n, err := asInt64(v)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(n))
		return buf, nil
	case Int:
		n, err := asInt64(v)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(int32(n)))
		return buf, nil
	case Boolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("cqltype: boolean value must be a bool, got %T", v)
		}
		if b {
			return message.Column{1}, nil
		}
		return message.Column{0}, nil
	case Uuid:
		u, err := asUUID(v)
		if err != nil {
			return nil, err
		}
		return message.Column(u[:]), nil
	case Blob:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("cqltype: blob value must be []byte, got %T", v)
		}
		return message.Column(b), nil
	case Decimal:
		d, err := asDecimal(v)
		if err != nil {
			return nil, err
		}
		return encodeDecimal(d), nil
	case Inet:
		ip, err := asIP(v)
		if err != nil {
			return nil, err
		}
		if v4 := ip.To4(); v4 != nil {
			return message.Column(v4), nil
		}
		return message.Column(ip.To16()), nil
	default:
		return nil, fmt.Errorf("cqltype: unknown type %q", name)
	}
}

// Decode converts raw column bytes col, declared as type name, back into a
// Go-native value comparable against a store.Param.Value. A nil col decodes
// as nil; an empty non-nil col is decoded per name like any other value.
func Decode(name Name, col message.Column) (interface{}, error) {
	if col == nil {
		return nil, nil
	}
	switch name {
	case Varchar, Ascii, Text, "":
		return string(col), nil
	case Bigint:
		if len(col) != 8 {
			return nil, fmt.Errorf("cqltype: bigint column must be 8 bytes, got %d", len(col))
		}
		return int64(binary.BigEndian.Uint64(col)), nil
	case Int:
		if len(col) != 4 {
			return nil, fmt.Errorf("cqltype: int column must be 4 bytes, got %d", len(col))
		}
		return int64(int32(binary.BigEndian.Uint32(col))), nil
	case Boolean:
		if len(col) != 1 {
			return nil, fmt.Errorf("cqltype: boolean column must be 1 byte, got %d", len(col))
		}
		return col[0] != 0, nil
	case Uuid:
		u, err := uuid.FromBytes(col)
		if err != nil {
			return nil, fmt.Errorf("cqltype: invalid uuid column: %w", err)
		}
		return u.String(), nil
	case Blob:
		out := make([]byte, len(col))
		copy(out, col)
		return out, nil
	case Decimal:
		return decodeDecimal(col), nil
	case Inet:
		out := make(net.IP, len(col))
		copy(out, col)
		return out.String(), nil
	default:
		return nil, fmt.Errorf("cqltype: unknown type %q", name)
	}
}

// ColumnMetadata builds the message.ColumnMetadata describing one column of
// a Rows response.
func ColumnMetadata(keyspace, table, name string, typ Name) (*message.ColumnMetadata, error) {
	dt, err := DataType(typ)
	if err != nil {
		return nil, err
	}
	return &message.ColumnMetadata{Keyspace: keyspace, Table: table, Name: name, Type: dt}, nil
}

func asInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("cqltype: expected an integer value, got %T", v)
	}
}

func asUUID(v interface{}) (uuid.UUID, error) {
	switch u := v.(type) {
	case uuid.UUID:
		return u, nil
	case string:
		return uuid.Parse(u)
	case [16]byte:
		return uuid.UUID(u), nil
	default:
		return uuid.UUID{}, fmt.Errorf("cqltype: expected a uuid string, got %T", v)
	}
}

func asIP(v interface{}) (net.IP, error) {
	switch ip := v.(type) {
	case net.IP:
		return ip, nil
	case string:
		parsed := net.ParseIP(ip)
		if parsed == nil {
			return nil, fmt.Errorf("cqltype: invalid inet value %q", ip)
		}
		return parsed, nil
	default:
		return nil, fmt.Errorf("cqltype: expected an ip string, got %T", v)
	}
}

func asDecimal(v interface{}) (*inf.Dec, error) {
	switch d := v.(type) {
	case *inf.Dec:
		return d, nil
	case string:
		dec := new(inf.Dec)
		if _, ok := dec.SetString(d); !ok {
			return nil, fmt.Errorf("cqltype: invalid decimal value %q", d)
		}
		return dec, nil
	default:
		return nil, fmt.Errorf("cqltype: expected a decimal string, got %T", v)
	}
}

// encodeDecimal writes a CQL decimal as a 4-byte big-endian scale followed
// by the two's-complement big-endian unscaled value, matching the wire
// format the native protocol expects.
func encodeDecimal(d *inf.Dec) message.Column {
	scale := make([]byte, 4)
	binary.BigEndian.PutUint32(scale, uint32(d.Scale()))
	unscaled := d.UnscaledBig().Bytes()
	if d.UnscaledBig().Sign() < 0 {
		// big.Int.Bytes() drops the sign; re-derive two's complement for a
		// negative unscaled value.
		unscaled = twosComplement(d.UnscaledBig())
	} else if len(unscaled) > 0 && unscaled[0]&0x80 != 0 {
		// A positive value whose top bit is set needs a leading zero byte
		// so it is not read back as negative.
		unscaled = append([]byte{0}, unscaled...)
	}
	return append(scale, unscaled...)
}

func decodeDecimal(col message.Column) *inf.Dec {
	if len(col) < 4 {
		return inf.NewDec(0, 0)
	}
	scale := inf.Scale(int32(binary.BigEndian.Uint32(col[:4])))
	unscaled := new(big.Int).SetBytes(col[4:])
	if len(col) > 4 && col[4]&0x80 != 0 {
		// The high bit is the two's-complement sign: subtract 2^(8*len).
		unscaled.Sub(unscaled, new(big.Int).Lsh(big.NewInt(1), uint(8*(len(col)-4))))
	}
	return new(inf.Dec).SetUnscaled(unscaled).SetScale(scale)
}

func twosComplement(n *big.Int) []byte {
	abs := new(big.Int).Abs(n)
	bitLen := abs.BitLen() + 1 // make room for the sign bit
	byteLen := (bitLen + 7) / 8
	mod := new(big.Int).Lsh(big.NewInt(1), uint(byteLen*8))
	twos := new(big.Int).Add(mod, n)
	buf := make([]byte, byteLen)
	twos.FillBytes(buf)
	return buf
}
