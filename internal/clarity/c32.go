package clarity

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"
)

const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Address versions used by Stacks single-sig and multi-sig accounts.
const (
	VersionMainnetSingleSig byte = 22 // SP
	VersionMainnetMultiSig  byte = 20 // SM
	VersionTestnetSingleSig byte = 26 // ST
	VersionTestnetMultiSig  byte = 21 // SN
)

// EncodeAddress renders a c32check Stacks address from a version byte and a
// 20-byte hash160.
func EncodeAddress(version byte, hash160 []byte) (string, error) {
	if version >= 32 {
		return "", fmt.Errorf("c32: version %d out of range", version)
	}
	if len(hash160) != 20 {
		return "", fmt.Errorf("c32: hash160 must be 20 bytes, got %d", len(hash160))
	}
	sum := c32Checksum(version, hash160)
	payload := make([]byte, 0, 24)
	payload = append(payload, hash160...)
	payload = append(payload, sum[:]...)
	return "S" + string(c32Alphabet[version]) + c32Encode(payload), nil
}

// DecodeAddress parses a standard c32check address (without any contract
// name suffix) and verifies its checksum.
func DecodeAddress(addr string) (version byte, hash160 []byte, err error) {
	if len(addr) < 3 || addr[0] != 'S' {
		return 0, nil, fmt.Errorf("c32: %q is not a Stacks address", addr)
	}
	v := strings.IndexByte(c32Alphabet, normalizeC32(addr[1]))
	if v < 0 {
		return 0, nil, fmt.Errorf("c32: invalid version character in %q", addr)
	}
	payload, err := c32Decode(addr[2:])
	if err != nil {
		return 0, nil, err
	}
	if len(payload) != 24 {
		return 0, nil, fmt.Errorf("c32: %q decodes to %d bytes, want 24", addr, len(payload))
	}
	hash160 = payload[:20]
	sum := c32Checksum(byte(v), hash160)
	if !bytes.Equal(sum[:], payload[20:]) {
		return 0, nil, fmt.Errorf("c32: checksum mismatch for %q", addr)
	}
	return byte(v), hash160, nil
}

func c32Checksum(version byte, hash160 []byte) [4]byte {
	first := sha256.Sum256(append([]byte{version}, hash160...))
	second := sha256.Sum256(first[:])
	var out [4]byte
	copy(out[:], second[:4])
	return out
}

// c32Encode encodes data as a base-32 number, keeping one '0' per leading
// zero byte.
func c32Encode(data []byte) string {
	out := make([]byte, 0, len(data)*8/5+1)
	var acc uint32
	var bits uint
	for i := len(data) - 1; i >= 0; i-- {
		acc |= uint32(data[i]) << bits
		bits += 8
		for bits >= 5 {
			out = append(out, c32Alphabet[acc&31])
			acc >>= 5
			bits -= 5
		}
	}
	if bits > 0 {
		out = append(out, c32Alphabet[acc&31])
	}
	for len(out) > 0 && out[len(out)-1] == '0' {
		out = out[:len(out)-1]
	}
	for _, b := range data {
		if b != 0 {
			break
		}
		out = append(out, '0')
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func c32Decode(s string) ([]byte, error) {
	out := make([]byte, 0, len(s)*5/8+1)
	var acc uint32
	var bits uint
	for i := len(s) - 1; i >= 0; i-- {
		d := strings.IndexByte(c32Alphabet, normalizeC32(s[i]))
		if d < 0 {
			return nil, fmt.Errorf("c32: invalid character %q", s[i])
		}
		acc |= uint32(d) << bits
		bits += 5
		if bits >= 8 {
			out = append(out, byte(acc))
			acc >>= 8
			bits -= 8
		}
	}
	if bits > 0 {
		out = append(out, byte(acc))
	}
	for len(out) > 0 && out[len(out)-1] == 0 {
		out = out[:len(out)-1]
	}
	for i := 0; i < len(s) && s[i] == '0'; i++ {
		out = append(out, 0)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// normalizeC32 applies Crockford's lenient reading of ambiguous characters.
func normalizeC32(c byte) byte {
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	switch c {
	case 'O':
		return '0'
	case 'I', 'L':
		return '1'
	}
	return c
}
