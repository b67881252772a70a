// Package ring implements the fixed-size circular identifier space shared
// by every component built on top of the Chord ring: node ids, key ids,
// and the modular distance/ordering used for routing and ownership.
package ring

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrInvalidID is returned when a byte slice cannot be interpreted as a
// valid identifier in a given Space.
var ErrInvalidID = errors.New("ring: invalid id")

// Space defines the M-bit circular identifier space described in spec
// section 4.1. Identifiers are big-endian byte strings of length ByteLen.
type Space struct {
	Bits    int // number of bits in the identifier space (default 160)
	ByteLen int // ceil(Bits / 8)
}

// NewSpace builds a Space for the given bit width. bits must be > 0.
func NewSpace(bits int) (Space, error) {
	if bits <= 0 {
		return Space{}, fmt.Errorf("ring: invalid id width %d (must be > 0)", bits)
	}
	return Space{
		Bits:    bits,
		ByteLen: (bits + 7) / 8,
	}, nil
}

// ID is an identifier in a Space, stored big-endian.
type ID []byte

// Zero returns the all-zero identifier for this space.
func (sp Space) Zero() ID {
	return make(ID, sp.ByteLen)
}

// IDFromBytes hashes an arbitrary byte string into the space using SHA-1,
// the fixed cryptographic digest required by spec section 4.1. This is
// id(b) for arbitrary input, e.g. a node's advertised address or a DHT key.
func (sp Space) IDFromBytes(b []byte) ID {
	h := sha1.Sum(b)
	buf := make([]byte, sp.ByteLen)
	copy(buf, h[:sp.ByteLen])
	sp.mask(buf)
	return buf
}

// IDFromString is a convenience wrapper around IDFromBytes.
func (sp Space) IDFromString(s string) ID {
	return sp.IDFromBytes([]byte(s))
}

// mask clears the unused high-order bits of buf[0] when Bits is not a
// multiple of 8, so every ID produced by this Space stays within [0, 2^Bits).
func (sp Space) mask(buf []byte) {
	extraBits := sp.ByteLen*8 - sp.Bits
	if extraBits > 0 {
		buf[0] &= byte(0xFF >> extraBits)
	}
}

// IsValidID reports whether id has the right length and its padding bits
// (if Bits is not byte-aligned) are zero.
func (sp Space) IsValidID(id []byte) error {
	if len(id) != sp.ByteLen {
		return ErrInvalidID
	}
	extraBits := sp.ByteLen*8 - sp.Bits
	if extraBits > 0 {
		mask := byte(0xFF << (8 - extraBits))
		if id[0]&mask != 0 {
			return ErrInvalidID
		}
	}
	return nil
}

// FromHexString parses a hex-encoded identifier, rejecting values that
// exceed the space (non-zero padding bits or leading bytes).
func (sp Space) FromHexString(s string) (ID, error) {
	str := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if str == "" {
		return nil, fmt.Errorf("ring: empty hex id")
	}
	raw, err := hex.DecodeString(str)
	if err != nil {
		return nil, fmt.Errorf("ring: invalid hex id %q: %w", s, err)
	}
	if len(raw) > sp.ByteLen {
		for _, b := range raw[:len(raw)-sp.ByteLen] {
			if b != 0 {
				return nil, fmt.Errorf("ring: value exceeds %d-bit space", sp.Bits)
			}
		}
		raw = raw[len(raw)-sp.ByteLen:]
	}
	id := make(ID, sp.ByteLen)
	copy(id[sp.ByteLen-len(raw):], raw)
	if err := sp.IsValidID(id); err != nil {
		return nil, fmt.Errorf("ring: value exceeds %d-bit space", sp.Bits)
	}
	return id, nil
}

// AddPow2 computes (a + 2^i) mod 2^Bits, the finger table target formula
// from spec section 4.2 ("entry i targets id self + 2^i (mod 2^M)").
func (sp Space) AddPow2(a ID, i int) (ID, error) {
	if err := sp.IsValidID(a); err != nil {
		return nil, fmt.Errorf("ring: AddPow2: %w", err)
	}
	offset := new(big.Int).Lsh(big.NewInt(1), uint(i))
	maxID := new(big.Int).Lsh(big.NewInt(1), uint(sp.Bits))
	sum := new(big.Int).Add(a.ToBigInt(), offset)
	sum.Mod(sum, maxID)

	out := make(ID, sp.ByteLen)
	b := sum.Bytes()
	copy(out[sp.ByteLen-len(b):], b)
	sp.mask(out)
	return out, nil
}

// ToHexString renders the identifier in lowercase hex, optionally prefixed.
func (x ID) ToHexString(prefix bool) string {
	if x == nil {
		return "<nil>"
	}
	s := hex.EncodeToString(x)
	if prefix {
		return "0x" + s
	}
	return s
}

// ToBigInt interprets the identifier as a non-negative big-endian integer.
func (x ID) ToBigInt() *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).SetBytes(x)
}

// Cmp compares two identifiers byte-wise as unsigned integers.
func (x ID) Cmp(b ID) int {
	return bytes.Compare(x, b)
}

// Equal reports whether x and b are the same identifier.
func (x ID) Equal(b ID) bool {
	return bytes.Equal(x, b)
}

// Between reports whether x lies in the circular half-open interval (a, b],
// as defined in spec section 4.1: wraps correctly when a >= b, and (a, a]
// covers the whole ring.
func (x ID) Between(a, b ID) bool {
	abcmp := a.Cmp(b)
	if abcmp == 0 {
		return true
	}
	acmp := a.Cmp(x)
	xbcmp := x.Cmp(b)
	if abcmp < 0 {
		return acmp < 0 && xbcmp <= 0
	}
	return acmp < 0 || xbcmp <= 0
}

// BetweenOpen reports whether x lies in the open circular interval (a, b),
// used by Notify when deciding whether a candidate predecessor is strictly
// tighter than the current one.
func (x ID) BetweenOpen(a, b ID) bool {
	if a.Equal(b) {
		return !x.Equal(a)
	}
	acmp := a.Cmp(x)
	xbcmp := x.Cmp(b)
	if a.Cmp(b) < 0 {
		return acmp < 0 && xbcmp < 0
	}
	return acmp < 0 || xbcmp < 0
}
