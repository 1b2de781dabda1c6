package clarity

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// EncodeUint serializes u as a Clarity uint argument, 0x-prefixed hex.
func EncodeUint(u uint64) string {
	var buf [17]byte
	buf[0] = byte(TypeUint)
	binary.BigEndian.PutUint64(buf[9:], u)
	return "0x" + hex.EncodeToString(buf[:])
}

// EncodeAmount serializes a wide unsigned amount. Values above 128 bits are
// rejected because Clarity has no wider integer.
func EncodeAmount(u *uint256.Int) (string, error) {
	if u.BitLen() > 128 {
		return "", fmt.Errorf("clarity: amount %s exceeds u128", u.Dec())
	}
	b := u.Bytes32()
	buf := make([]byte, 0, 17)
	buf = append(buf, byte(TypeUint))
	buf = append(buf, b[16:]...)
	return "0x" + hex.EncodeToString(buf), nil
}

// EncodePrincipal serializes a standard (SP…) or contract (SP….name)
// principal argument.
func EncodePrincipal(principal string) (string, error) {
	if _, name, isContract := strings.Cut(principal, "."); isContract && (name == "" || len(name) > 128) {
		return "", fmt.Errorf("clarity: invalid contract name in %q", principal)
	}
	return EncodeHex(PrincipalValue(principal))
}
