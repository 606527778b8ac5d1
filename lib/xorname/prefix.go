// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xorname

import (
	"fmt"
	"strings"
)

// Prefix is a bit-prefix of the name space. The zero value is the
// empty prefix, which matches every name.
type Prefix struct {
	bitCount int
	name     Name
}

// NewPrefix returns the prefix made of the first bitCount bits of
// name. bitCount is clamped to [0, 256].
func NewPrefix(name Name, bitCount int) Prefix {
	bitCount = max(0, min(bitCount, Len*8))
	return Prefix{bitCount: bitCount, name: name.maskedTo(bitCount)}
}

// ParsePrefix parses a string of '0' and '1' characters.
func ParsePrefix(bits string) (Prefix, error) {
	if len(bits) > Len*8 {
		return Prefix{}, fmt.Errorf("prefix %q longer than %d bits", bits, Len*8)
	}
	var prefix Prefix
	for i, c := range bits {
		switch c {
		case '0':
			prefix = prefix.Pushed(false)
		case '1':
			prefix = prefix.Pushed(true)
		default:
			return Prefix{}, fmt.Errorf("prefix %q: invalid character %q at %d", bits, c, i)
		}
	}
	return prefix, nil
}

// BitCount is the number of bits in the prefix.
func (p Prefix) BitCount() int { return p.bitCount }

// Name returns the prefix bits followed by zeros.
func (p Prefix) Name() Name { return p.name }

// IsEmpty reports whether p is the empty prefix.
func (p Prefix) IsEmpty() bool { return p.bitCount == 0 }

// Pushed returns p extended by one bit.
func (p Prefix) Pushed(bit bool) Prefix {
	if p.bitCount >= Len*8 {
		return p
	}
	return Prefix{bitCount: p.bitCount + 1, name: p.name.WithBit(p.bitCount, bit)}
}

// Popped returns p with its last bit removed. The empty prefix pops to
// itself.
func (p Prefix) Popped() Prefix {
	if p.bitCount == 0 {
		return p
	}
	return NewPrefix(p.name, p.bitCount-1)
}

// Sibling returns the prefix that differs from p only in its last bit.
func (p Prefix) Sibling() Prefix {
	if p.bitCount == 0 {
		return p
	}
	last := p.bitCount - 1
	return Prefix{bitCount: p.bitCount, name: p.name.WithBit(last, !p.name.Bit(last))}
}

// Matches reports whether name falls under p.
func (p Prefix) Matches(name Name) bool {
	return p.name.CommonPrefixLen(name) >= p.bitCount
}

// IsCompatible reports whether one of p and other is a prefix of the
// other.
func (p Prefix) IsCompatible(other Prefix) bool {
	return p.name.CommonPrefixLen(other.name) >= min(p.bitCount, other.bitCount)
}

// IsExtensionOf reports whether p is strictly longer than other and
// starts with it.
func (p Prefix) IsExtensionOf(other Prefix) bool {
	return p.bitCount > other.bitCount && other.Matches(p.name)
}

// Ancestors returns every proper ancestor of p, shortest first.
func (p Prefix) Ancestors() []Prefix {
	ancestors := make([]Prefix, 0, p.bitCount)
	for count := range p.bitCount {
		ancestors = append(ancestors, NewPrefix(p.name, count))
	}
	return ancestors
}

// CompareDistance orders two prefixes by their distance from target:
// first by how many leading bits they share with target (more is
// closer), then by XOR distance of their names, then by length.
func CompareDistance(a, b Prefix, target Name) int {
	commonA := min(a.name.CommonPrefixLen(target), a.bitCount)
	commonB := min(b.name.CommonPrefixLen(target), b.bitCount)
	if commonA != commonB {
		if commonA > commonB {
			return -1
		}
		return 1
	}
	if c := target.CompareDistance(a.name, b.name); c != 0 {
		return c
	}
	switch {
	case a.bitCount > b.bitCount:
		return -1
	case a.bitCount < b.bitCount:
		return 1
	}
	return 0
}

// String renders the prefix as a bit string.
func (p Prefix) String() string {
	var builder strings.Builder
	builder.Grow(p.bitCount)
	for i := range p.bitCount {
		if p.name.Bit(i) {
			builder.WriteByte('1')
		} else {
			builder.WriteByte('0')
		}
	}
	return builder.String()
}

// MarshalText implements encoding.TextMarshaler.
func (p Prefix) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Prefix) UnmarshalText(text []byte) error {
	parsed, err := ParsePrefix(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (n Name) maskedTo(bitCount int) Name {
	var masked Name
	full := bitCount / 8
	copy(masked[:full], n[:full])
	if rest := bitCount % 8; rest != 0 {
		masked[full] = n[full] & ^byte(0xff>>rest)
	}
	return masked
}
