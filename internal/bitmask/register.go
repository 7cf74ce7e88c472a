package bitmask

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MaxExactValues is the largest number of candidates a register keeps as an
// exact set. Larger sets collapse to the bitmask only.
const MaxExactValues = 16

// Register value sources.
const (
	SourceDefault             = "default"
	SourceConstantPropagation = "constant_propagation"
	SourceParentExitState     = "parent_exit_state"
	SourceDynamic             = "dynamic"
	SourceMerged              = "merged"
	SourceUnknown             = "unknown"
)

type possibleKind uint8

const (
	collapsed possibleKind = iota
	exact
)

// Possible is either an exact set of candidate values or Collapsed, in which
// case only the bitmask describes the register.
type Possible struct {
	kind possibleKind
	set  ValueSet
}

// Exact returns an exact candidate set, or Collapsed if the set is larger
// than MaxExactValues.
func Exact(values ValueSet) Possible {
	if values.Len() > MaxExactValues {
		return Collapsed()
	}
	return Possible{kind: exact, set: values}
}

// Collapsed returns the candidate state that only relies on the bitmask.
func Collapsed() Possible {
	return Possible{kind: collapsed}
}

// Values returns the exact candidate set, ok is false if collapsed.
func (p Possible) Values() (ValueSet, bool) {
	switch p.kind {
	case exact:
		return p.set, true
	case collapsed:
		return ValueSet{}, false
	default:
		panic(fmt.Sprintf("unsupported possible values kind %d", p.kind))
	}
}

// IsCollapsed returns whether no exact set is retained.
func (p Possible) IsCollapsed() bool {
	return p.kind == collapsed
}

// Equal compares the kind and, for exact sets, the contents.
func (p Possible) Equal(other Possible) bool {
	if p.kind != other.kind {
		return false
	}
	return p.kind == collapsed || p.set.Equal(other.set)
}

func (p Possible) String() string {
	if values, ok := p.Values(); ok {
		return values.String()
	}
	return "collapsed"
}

// MarshalJSON encodes an exact set as an array and Collapsed as null.
func (p Possible) MarshalJSON() ([]byte, error) {
	if values, ok := p.Values(); ok {
		return json.Marshal(values)
	}
	return []byte("null"), nil
}

// UnmarshalJSON decodes an array into an exact set and null into Collapsed.
func (p *Possible) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = Collapsed()
		return nil
	}
	var values ValueSet
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*p = Exact(values)
	return nil
}

// Register is the abstract value of an 8-bit register at a program point.
// The bitmask is always maintained, the exact set only while it stays small.
type Register struct {
	Bitmask        Value    `json:"bitmask"`
	PossibleValues Possible `json:"possibleValues"`
	IsDynamic      bool     `json:"isDynamic"`
	Source         string   `json:"source"`
}

// RegisterFromImm returns a register holding a single known value.
func RegisterFromImm(imm uint8, source string) Register {
	return Register{
		Bitmask:        FromImm(imm),
		PossibleValues: Exact(NewValueSet(imm)),
		Source:         source,
	}
}

// RegisterUnknown returns a register whose value is runtime dependent.
func RegisterUnknown(source string) Register {
	return Register{
		Bitmask:        Unknown(),
		PossibleValues: Collapsed(),
		IsDynamic:      true,
		Source:         source,
	}
}

// RegisterFromValues returns a register that may hold any of the given values.
// The bitmask covers every member even if the set itself collapses.
func RegisterFromValues(values ValueSet, source string) Register {
	return Register{
		Bitmask:        CollapseToMask(values),
		PossibleValues: Exact(values),
		Source:         source,
	}
}

// AND applies AND #imm.
func (r Register) AND(imm uint8) Register {
	return r.transfer(TransferAND(r.Bitmask, imm), func(v uint8) uint8 { return v & imm })
}

// ORA applies ORA #imm.
func (r Register) ORA(imm uint8) Register {
	return r.transfer(TransferORA(r.Bitmask, imm), func(v uint8) uint8 { return v | imm })
}

// EOR applies EOR #imm.
func (r Register) EOR(imm uint8) Register {
	return r.transfer(TransferEOR(r.Bitmask, imm), func(v uint8) uint8 { return v ^ imm })
}

func (r Register) transfer(mask Value, op func(uint8) uint8) Register {
	result := Register{
		Bitmask:        mask,
		PossibleValues: Collapsed(),
		IsDynamic:      r.IsDynamic,
		Source:         r.Source,
	}
	if values, ok := r.PossibleValues.Values(); ok {
		result.PossibleValues = Exact(values.Map(op))
	}
	return result
}

// MeetRegister joins two registers at a control flow merge point.
// Exact sets are united while both sides retain one.
func MeetRegister(a, b Register) Register {
	result := Register{
		Bitmask:        Meet(a.Bitmask, b.Bitmask),
		PossibleValues: Collapsed(),
		IsDynamic:      a.IsDynamic || b.IsDynamic,
		Source:         a.Source,
	}
	if a.Source != b.Source {
		result.Source = SourceMerged
	}

	av, aok := a.PossibleValues.Values()
	bv, bok := b.PossibleValues.Values()
	if aok && bok {
		result.PossibleValues = Exact(av.Union(bv))
	}
	return result
}

// Equal compares bitmask, dynamic flag and candidate sets. The source is
// informational and not compared.
func (r Register) Equal(other Register) bool {
	return r.Bitmask == other.Bitmask &&
		r.IsDynamic == other.IsDynamic &&
		r.PossibleValues.Equal(other.PossibleValues)
}

// Concrete returns the register value if it is known exactly.
func (r Register) Concrete() (uint8, bool) {
	if v, ok := r.Bitmask.Concrete(); ok {
		return v, true
	}
	if values, ok := r.PossibleValues.Values(); ok && values.Len() == 1 {
		return values.Values()[0], true
	}
	return 0, false
}
