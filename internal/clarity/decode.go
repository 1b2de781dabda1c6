package clarity

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	perrors "github.com/p-blackswan/agent-ledger-indexer/internal/errors"
)

const (
	// maxDepth bounds nesting of lists, tuples and wrappers.
	maxDepth = 64
	// maxLength bounds any single length prefix so a corrupt header cannot
	// trigger a huge allocation.
	maxLength = 1 << 20
)

// DecodeHex decodes a hex string, with or without a 0x prefix.
func DecodeHex(s string) (Value, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Value{}, fmt.Errorf("%w: hex: %v", perrors.ErrDecode, err)
	}
	return Decode(raw)
}

// Decode parses one serialized value. Trailing bytes are an error.
func Decode(raw []byte) (Value, error) {
	d := &decoder{buf: raw}
	v, err := d.value(0)
	if err != nil {
		return Value{}, err
	}
	if d.pos != len(d.buf) {
		return Value{}, fmt.Errorf("%w: %d trailing bytes", perrors.ErrDecode, len(d.buf)-d.pos)
	}
	return v, nil
}

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) fail(format string, args ...any) error {
	return fmt.Errorf("%w: offset %d: %s", perrors.ErrDecode, d.pos, fmt.Sprintf(format, args...))
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.buf) {
		return nil, d.fail("need %d bytes, have %d", n, len(d.buf)-d.pos)
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) byte1() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) length() (int, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint32(b)
	if n > maxLength {
		return 0, d.fail("length %d exceeds limit", n)
	}
	return int(n), nil
}

func (d *decoder) value(depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, d.fail("nesting deeper than %d", maxDepth)
	}
	prefix, err := d.byte1()
	if err != nil {
		return Value{}, err
	}
	t := Type(prefix)

	switch t {
	case TypeInt:
		b, err := d.take(16)
		if err != nil {
			return Value{}, err
		}
		n := new(big.Int).SetBytes(b)
		if b[0]&0x80 != 0 {
			// two's complement
			n.Sub(n, new(big.Int).Lsh(big.NewInt(1), 128))
		}
		return Value{Type: t, Int: n}, nil

	case TypeUint:
		b, err := d.take(16)
		if err != nil {
			return Value{}, err
		}
		v := Value{Type: t}
		v.Uint.SetBytes(b)
		return v, nil

	case TypeBuffer:
		n, err := d.length()
		if err != nil {
			return Value{}, err
		}
		b, err := d.take(n)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Bytes: append([]byte(nil), b...)}, nil

	case TypeTrue, TypeFalse, TypeNone:
		return Value{Type: t}, nil

	case TypeStandardPrincipal, TypeContractPrincipal:
		addr, err := d.principal()
		if err != nil {
			return Value{}, err
		}
		if t == TypeContractPrincipal {
			name, err := d.shortString()
			if err != nil {
				return Value{}, err
			}
			addr += "." + name
		}
		return Value{Type: t, Text: addr}, nil

	case TypeResponseOk, TypeResponseErr, TypeSome:
		inner, err := d.value(depth + 1)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Inner: &inner}, nil

	case TypeList:
		n, err := d.length()
		if err != nil {
			return Value{}, err
		}
		items := make([]Value, 0, min(n, 256))
		for i := 0; i < n; i++ {
			item, err := d.value(depth + 1)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Value{Type: t, Items: items}, nil

	case TypeTuple:
		n, err := d.length()
		if err != nil {
			return Value{}, err
		}
		fields := make(map[string]Value, min(n, 64))
		for i := 0; i < n; i++ {
			name, err := d.shortString()
			if err != nil {
				return Value{}, err
			}
			field, err := d.value(depth + 1)
			if err != nil {
				return Value{}, err
			}
			fields[name] = field
		}
		return Value{Type: t, Fields: fields}, nil

	case TypeStringASCII, TypeStringUTF8:
		n, err := d.length()
		if err != nil {
			return Value{}, err
		}
		b, err := d.take(n)
		if err != nil {
			return Value{}, err
		}
		if t == TypeStringUTF8 && !utf8.Valid(b) {
			return Value{}, d.fail("invalid utf-8 string")
		}
		return Value{Type: t, Text: string(b)}, nil

	default:
		return Value{}, d.fail("unknown type prefix 0x%02x", prefix)
	}
}

func (d *decoder) principal() (string, error) {
	version, err := d.byte1()
	if err != nil {
		return "", err
	}
	hash, err := d.take(20)
	if err != nil {
		return "", err
	}
	addr, err := EncodeAddress(version, hash)
	if err != nil {
		return "", d.fail("%v", err)
	}
	return addr, nil
}

// shortString reads a one-byte length prefixed name (tuple keys, contract names).
func (d *decoder) shortString() (string, error) {
	n, err := d.byte1()
	if err != nil {
		return "", err
	}
	b, err := d.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
