package bitmask

import (
	"encoding/json"
	"fmt"
	"math/bits"
)

// ValueSet is a set of byte values. Iteration is always in ascending order.
type ValueSet struct {
	words [4]uint64
}

// NewValueSet returns a set containing the given values.
func NewValueSet(values ...uint8) ValueSet {
	var s ValueSet
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add adds a value to the set.
func (s *ValueSet) Add(v uint8) {
	s.words[v>>6] |= 1 << (v & 63)
}

// Contains returns whether the value is part of the set.
func (s ValueSet) Contains(v uint8) bool {
	return s.words[v>>6]&(1<<(v&63)) != 0
}

// Len returns the number of values in the set.
func (s ValueSet) Len() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Union returns a set containing the values of both sets.
func (s ValueSet) Union(other ValueSet) ValueSet {
	var u ValueSet
	for i := range s.words {
		u.words[i] = s.words[i] | other.words[i]
	}
	return u
}

// Map returns the set of f applied to every member.
func (s ValueSet) Map(f func(uint8) uint8) ValueSet {
	var m ValueSet
	s.Each(func(v uint8) {
		m.Add(f(v))
	})
	return m
}

// Each calls f for every member in ascending order.
func (s ValueSet) Each(f func(uint8)) {
	for i, w := range s.words {
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			f(uint8(i*64 + bit))
			w &= w - 1
		}
	}
}

// Values returns the members in ascending order.
func (s ValueSet) Values() []uint8 {
	values := make([]uint8, 0, s.Len())
	s.Each(func(v uint8) {
		values = append(values, v)
	})
	return values
}

// Equal returns whether both sets contain the same values.
func (s ValueSet) Equal(other ValueSet) bool {
	return s.words == other.words
}

func (s ValueSet) String() string {
	return fmt.Sprintf("%02X", s.Values())
}

// MarshalJSON encodes the set as an ascending array of numbers.
func (s ValueSet) MarshalJSON() ([]byte, error) {
	values := make([]int, 0, s.Len())
	s.Each(func(v uint8) {
		values = append(values, int(v))
	})
	return json.Marshal(values)
}

// UnmarshalJSON decodes an array of numbers in the range 0..255.
func (s *ValueSet) UnmarshalJSON(data []byte) error {
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("decoding value set: %w", err)
	}

	*s = ValueSet{}
	for _, v := range values {
		if v < 0 || v > 0xFF {
			return fmt.Errorf("value set member %d out of byte range", v)
		}
		s.Add(uint8(v))
	}
	return nil
}
