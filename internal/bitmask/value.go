// Package bitmask implements a per-bit known/unknown abstract domain for 8-bit
// register values, a small exact value set refined alongside it, and the
// C64 banking snapshot derived from the tracked registers.
package bitmask

import "fmt"

// Value is a byte where every bit is either known to have a value or unknown.
// Bits of KnownValue outside of KnownMask are always zero.
type Value struct {
	KnownMask  uint8 `json:"knownMask"`
	KnownValue uint8 `json:"knownValue"`
}

// FromImm returns a fully known value.
func FromImm(v uint8) Value {
	return Value{KnownMask: 0xFF, KnownValue: v}
}

// Unknown returns a value with no known bits.
func Unknown() Value {
	return Value{}
}

// IsFullyKnown returns whether all 8 bits are known.
func (v Value) IsFullyKnown() bool {
	return v.KnownMask == 0xFF
}

// Concrete returns the value if it is fully known.
func (v Value) Concrete() (uint8, bool) {
	if !v.IsFullyKnown() {
		return 0, false
	}
	return v.KnownValue, true
}

// Covers returns whether the concrete byte b is consistent with all known bits.
func (v Value) Covers(b uint8) bool {
	return b&v.KnownMask == v.KnownValue
}

// String renders the value as a bit pattern, unknown bits are shown as x.
func (v Value) String() string {
	buf := make([]byte, 8)
	for i := range 8 {
		bit := uint8(0x80) >> i
		switch {
		case v.KnownMask&bit == 0:
			buf[i] = 'x'
		case v.KnownValue&bit != 0:
			buf[i] = '1'
		default:
			buf[i] = '0'
		}
	}
	return fmt.Sprintf("%%%s", buf)
}

// TransferAND models AND #imm. Bits cleared in imm become known zero,
// all other bits keep their prior knowledge.
func TransferAND(v Value, imm uint8) Value {
	return Value{
		KnownMask:  v.KnownMask | ^imm,
		KnownValue: v.KnownValue & imm,
	}
}

// TransferORA models ORA #imm. Bits set in imm become known one,
// all other bits keep their prior knowledge.
func TransferORA(v Value, imm uint8) Value {
	return Value{
		KnownMask:  v.KnownMask | imm,
		KnownValue: v.KnownValue | imm,
	}
}

// TransferEOR models EOR #imm. Known bits are flipped where imm is set,
// unknown bits stay unknown.
func TransferEOR(v Value, imm uint8) Value {
	return Value{
		KnownMask:  v.KnownMask,
		KnownValue: (v.KnownValue ^ imm) & v.KnownMask,
	}
}

// TransferLDAImm models LDA #imm.
func TransferLDAImm(imm uint8) Value {
	return FromImm(imm)
}

// TransferLDAMem models a load from memory. Memory contents are not tracked
// across reads, so the result is unknown.
func TransferLDAMem() Value {
	return Unknown()
}

// Meet joins two values at a control flow merge point. A bit stays known
// only if it is known on both paths and both agree on its value.
func Meet(a, b Value) Value {
	mask := a.KnownMask & b.KnownMask &^ (a.KnownValue ^ b.KnownValue)
	return Value{
		KnownMask:  mask,
		KnownValue: a.KnownValue & mask,
	}
}

// CollapseToMask abstracts a set of concrete bytes. A bit is known if it
// has the same value in every member. An empty set is fully unknown.
func CollapseToMask(values ValueSet) Value {
	if values.Len() == 0 {
		return Unknown()
	}

	ones := uint8(0xFF)
	zeros := uint8(0xFF)
	values.Each(func(b uint8) {
		ones &= b
		zeros &= ^b
	})
	return Value{
		KnownMask:  ones | zeros,
		KnownValue: ones,
	}
}
