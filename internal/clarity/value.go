// Package clarity decodes the self-describing Clarity value encoding used by
// the Stacks ledger for read-only call results and contract print events.
//
// Decoding produces a typed Value tree. Callers rarely walk the tree directly;
// UnwrapOptional and FlattenTuple reduce the common shapes (optional records,
// event tuples) to a flat Record with typed, defaulting accessors.
package clarity

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/holiman/uint256"
)

// Type is the wire prefix that tags every serialized Clarity value.
type Type byte

const (
	TypeInt               Type = 0x00
	TypeUint              Type = 0x01
	TypeBuffer            Type = 0x02
	TypeTrue              Type = 0x03
	TypeFalse             Type = 0x04
	TypeStandardPrincipal Type = 0x05
	TypeContractPrincipal Type = 0x06
	TypeResponseOk        Type = 0x07
	TypeResponseErr       Type = 0x08
	TypeNone              Type = 0x09
	TypeSome              Type = 0x0a
	TypeList              Type = 0x0b
	TypeTuple             Type = 0x0c
	TypeStringASCII       Type = 0x0d
	TypeStringUTF8        Type = 0x0e
)

func (t Type) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeUint:
		return "uint"
	case TypeBuffer:
		return "buff"
	case TypeTrue, TypeFalse:
		return "bool"
	case TypeStandardPrincipal, TypeContractPrincipal:
		return "principal"
	case TypeResponseOk, TypeResponseErr:
		return "response"
	case TypeNone, TypeSome:
		return "optional"
	case TypeList:
		return "list"
	case TypeTuple:
		return "tuple"
	case TypeStringASCII:
		return "string-ascii"
	case TypeStringUTF8:
		return "string-utf8"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// Value is one decoded Clarity value. Only the payload field matching Type is
// populated.
type Value struct {
	Type Type

	Int    *big.Int    // TypeInt
	Uint   uint256.Int // TypeUint
	Text   string      // principals and strings
	Bytes  []byte      // TypeBuffer
	Inner  *Value      // TypeSome, TypeResponseOk, TypeResponseErr
	Items  []Value     // TypeList
	Fields map[string]Value
}

// Bool reports the value of a boolean. Non-boolean values are false.
func (v Value) Bool() bool { return v.Type == TypeTrue }

// IsNone reports whether v is the absent optional.
func (v Value) IsNone() bool { return v.Type == TypeNone }

// String renders v in a repr close to Clarity's own, for logs and debugging.
func (v Value) String() string {
	switch v.Type {
	case TypeInt:
		if v.Int == nil {
			return "0"
		}
		return v.Int.String()
	case TypeUint:
		return "u" + v.Uint.Dec()
	case TypeBuffer:
		return "0x" + hex.EncodeToString(v.Bytes)
	case TypeTrue:
		return "true"
	case TypeFalse:
		return "false"
	case TypeStandardPrincipal, TypeContractPrincipal:
		return "'" + v.Text
	case TypeResponseOk:
		return "(ok " + v.Inner.String() + ")"
	case TypeResponseErr:
		return "(err " + v.Inner.String() + ")"
	case TypeNone:
		return "none"
	case TypeSome:
		return "(some " + v.Inner.String() + ")"
	case TypeList:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			parts[i] = item.String()
		}
		return "(list " + strings.Join(parts, " ") + ")"
	case TypeTuple:
		keys := make([]string, 0, len(v.Fields))
		for k := range v.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = "(" + k + " " + v.Fields[k].String() + ")"
		}
		return "(tuple " + strings.Join(parts, " ") + ")"
	case TypeStringASCII:
		return fmt.Sprintf("%q", v.Text)
	case TypeStringUTF8:
		return "u" + fmt.Sprintf("%q", v.Text)
	default:
		return v.Type.String()
	}
}

// UnwrapOptional returns nil when v is absent (nil or none), the inner value
// when v is some, and v itself for anything else so already-unwrapped input
// passes through.
func UnwrapOptional(v *Value) *Value {
	if v == nil {
		return nil
	}
	switch v.Type {
	case TypeNone:
		return nil
	case TypeSome:
		return v.Inner
	default:
		return v
	}
}

// UnwrapResponse returns the inner value of an ok response and nil for an err
// response. Non-response values pass through unchanged.
func UnwrapResponse(v *Value) *Value {
	if v == nil {
		return nil
	}
	switch v.Type {
	case TypeResponseOk:
		return v.Inner
	case TypeResponseErr:
		return nil
	default:
		return v
	}
}

// Unwrap peels any mix of ok-response and some wrappers until a concrete value
// or an absence is reached.
func Unwrap(v *Value) *Value {
	for v != nil {
		switch v.Type {
		case TypeSome, TypeResponseOk:
			v = v.Inner
		case TypeNone, TypeResponseErr:
			return nil
		default:
			return v
		}
	}
	return nil
}
