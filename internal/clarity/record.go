package clarity

import (
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// Record is a flattened tuple: field name to field value. Ledger payloads are
// loosely shaped, so every accessor takes or implies a default and never
// fails; a missing or mistyped field reads as its default.
type Record map[string]Value

// FlattenTuple returns the fields of a tuple, looking through one some or ok
// wrapper. Anything else, including nil, yields an empty Record.
func FlattenTuple(v *Value) Record {
	if v == nil {
		return Record{}
	}
	if v.Type == TypeSome || v.Type == TypeResponseOk {
		v = v.Inner
	}
	if v == nil || v.Type != TypeTuple || v.Fields == nil {
		return Record{}
	}
	out := make(Record, len(v.Fields))
	for k, f := range v.Fields {
		out[k] = f
	}
	return out
}

// field looks up name, seeing through one some wrapper. none reads as absent.
func (r Record) field(name string) (Value, bool) {
	v, ok := r[name]
	if !ok {
		return Value{}, false
	}
	switch v.Type {
	case TypeNone:
		return Value{}, false
	case TypeSome:
		if v.Inner == nil {
			return Value{}, false
		}
		return *v.Inner, true
	}
	return v, true
}

// Has reports whether name is present and not none.
func (r Record) Has(name string) bool {
	_, ok := r.field(name)
	return ok
}

// Value returns the raw field, unwrapped from some.
func (r Record) Value(name string) (Value, bool) {
	return r.field(name)
}

// Uint64 reads a numeric field. Decimal strings are accepted; values that are
// absent, negative, non-numeric or wider than 64 bits read as def.
func (r Record) Uint64(name string, def uint64) uint64 {
	v, ok := r.field(name)
	if !ok {
		return def
	}
	switch v.Type {
	case TypeUint:
		if v.Uint.IsUint64() {
			return v.Uint.Uint64()
		}
	case TypeInt:
		if v.Int != nil && v.Int.Sign() >= 0 && v.Int.IsUint64() {
			return v.Int.Uint64()
		}
	case TypeStringASCII, TypeStringUTF8:
		if n, err := strconv.ParseUint(strings.TrimPrefix(v.Text, "u"), 10, 64); err == nil {
			return n
		}
	}
	return def
}

// Amount reads a wide unsigned field, defaulting to zero.
func (r Record) Amount(name string) uint256.Int {
	return r.AmountOr(name, uint256.Int{})
}

// AmountOr reads a wide unsigned field, returning def when the field is
// absent or unreadable.
func (r Record) AmountOr(name string, def uint256.Int) uint256.Int {
	v, ok := r.field(name)
	if !ok {
		return def
	}
	switch v.Type {
	case TypeUint:
		return v.Uint
	case TypeInt:
		if v.Int != nil && v.Int.Sign() >= 0 {
			if n, overflow := uint256.FromBig(v.Int); !overflow {
				return *n
			}
		}
	case TypeStringASCII, TypeStringUTF8:
		if n, err := uint256.FromDecimal(strings.TrimPrefix(v.Text, "u")); err == nil {
			return *n
		}
	}
	return def
}

// Text reads a field as text. Strings and principals read verbatim; numbers
// and booleans are rendered in decimal and true/false.
func (r Record) Text(name, def string) string {
	v, ok := r.field(name)
	if !ok {
		return def
	}
	switch v.Type {
	case TypeStringASCII, TypeStringUTF8, TypeStandardPrincipal, TypeContractPrincipal:
		return v.Text
	case TypeUint:
		return v.Uint.Dec()
	case TypeInt:
		if v.Int != nil {
			return v.Int.String()
		}
	case TypeTrue:
		return "true"
	case TypeFalse:
		return "false"
	}
	return def
}

// Principal reads a principal field. Text fields that look like an address are
// accepted, since some contracts print principals as strings.
func (r Record) Principal(name string) (string, bool) {
	v, ok := r.field(name)
	if !ok {
		return "", false
	}
	switch v.Type {
	case TypeStandardPrincipal, TypeContractPrincipal:
		return v.Text, v.Text != ""
	case TypeStringASCII, TypeStringUTF8:
		if strings.HasPrefix(v.Text, "S") && len(v.Text) > 2 {
			return v.Text, true
		}
	}
	return "", false
}

// Bool reads a boolean field. The strings "true" and "false" are accepted;
// anything else is false.
func (r Record) Bool(name string) bool {
	v, ok := r.field(name)
	if !ok {
		return false
	}
	switch v.Type {
	case TypeTrue:
		return true
	case TypeStringASCII, TypeStringUTF8:
		return v.Text == "true"
	}
	return false
}
