package clarity

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/holiman/uint256"
)

// Constructors for building values by hand, mostly for fixtures and fakes.

func UintValue(u uint64) Value {
	v := Value{Type: TypeUint}
	v.Uint.SetUint64(u)
	return v
}

func AmountValue(u uint256.Int) Value {
	return Value{Type: TypeUint, Uint: u}
}

func StringValue(s string) Value { return Value{Type: TypeStringASCII, Text: s} }

func BoolValue(b bool) Value {
	if b {
		return Value{Type: TypeTrue}
	}
	return Value{Type: TypeFalse}
}

func PrincipalValue(p string) Value {
	if strings.Contains(p, ".") {
		return Value{Type: TypeContractPrincipal, Text: p}
	}
	return Value{Type: TypeStandardPrincipal, Text: p}
}

func SomeValue(inner Value) Value { return Value{Type: TypeSome, Inner: &inner} }

func NoneValue() Value { return Value{Type: TypeNone} }

func OkValue(inner Value) Value { return Value{Type: TypeResponseOk, Inner: &inner} }

func ErrValue(inner Value) Value { return Value{Type: TypeResponseErr, Inner: &inner} }

func TupleValue(fields map[string]Value) Value { return Value{Type: TypeTuple, Fields: fields} }

func ListValue(items ...Value) Value { return Value{Type: TypeList, Items: items} }

// EncodeHex serializes v and returns 0x-prefixed hex.
func EncodeHex(v Value) (string, error) {
	b, err := Encode(v)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(b), nil
}

// Encode serializes v in the consensus wire format. Tuple keys are written in
// sorted order, as the ledger does.
func Encode(v Value) ([]byte, error) {
	var out []byte
	if err := encodeInto(&out, v); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeInto(out *[]byte, v Value) error {
	*out = append(*out, byte(v.Type))
	switch v.Type {
	case TypeInt:
		var b [16]byte
		if v.Int != nil {
			n := v.Int
			if n.Sign() < 0 {
				return fmt.Errorf("clarity: encoding negative int is not supported")
			}
			n.FillBytes(b[:])
		}
		*out = append(*out, b[:]...)
	case TypeUint:
		if v.Uint.BitLen() > 128 {
			return fmt.Errorf("clarity: uint %s exceeds u128", v.Uint.Dec())
		}
		b := v.Uint.Bytes32()
		*out = append(*out, b[16:]...)
	case TypeBuffer:
		*out = appendLength(*out, len(v.Bytes))
		*out = append(*out, v.Bytes...)
	case TypeTrue, TypeFalse, TypeNone:
	case TypeStandardPrincipal, TypeContractPrincipal:
		addr, name, _ := strings.Cut(v.Text, ".")
		version, hash, err := DecodeAddress(addr)
		if err != nil {
			return err
		}
		*out = append(*out, version)
		*out = append(*out, hash...)
		if v.Type == TypeContractPrincipal {
			*out = append(*out, byte(len(name)))
			*out = append(*out, name...)
		}
	case TypeResponseOk, TypeResponseErr, TypeSome:
		if v.Inner == nil {
			return fmt.Errorf("clarity: %s without inner value", v.Type)
		}
		return encodeInto(out, *v.Inner)
	case TypeList:
		*out = appendLength(*out, len(v.Items))
		for _, item := range v.Items {
			if err := encodeInto(out, item); err != nil {
				return err
			}
		}
	case TypeTuple:
		keys := make([]string, 0, len(v.Fields))
		for k := range v.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		*out = appendLength(*out, len(keys))
		for _, k := range keys {
			*out = append(*out, byte(len(k)))
			*out = append(*out, k...)
			if err := encodeInto(out, v.Fields[k]); err != nil {
				return err
			}
		}
	case TypeStringASCII, TypeStringUTF8:
		*out = appendLength(*out, len(v.Text))
		*out = append(*out, v.Text...)
	default:
		return fmt.Errorf("clarity: cannot encode type 0x%02x", byte(v.Type))
	}
	return nil
}

func appendLength(out []byte, n int) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	return append(out, b[:]...)
}
