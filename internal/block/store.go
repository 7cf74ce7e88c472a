package block

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/retroenv/c64re/internal/nodeid"
)

const maxEndAddress = 0x10000

var (
	ErrBlockNotFound    = errors.New("block not found")
	ErrSplitOutOfRange  = errors.New("split address not within block")
	ErrNotAdjacent      = errors.New("blocks are not adjacent")
	ErrOverlap          = errors.New("blocks overlap")
	ErrInvalidRange     = errors.New("invalid block range")
	ErrInvalidBlockType = errors.New("invalid block type")
)

// Action is the kind of mutation recorded in the change log.
type Action string

// Change log actions.
const (
	ActionReclassify Action = "reclassify"
	ActionSplit      Action = "split"
	ActionMerge      Action = "merge"
)

const changeSource = "block_store"

// ChangeDetails holds the action specific data of a change.
type ChangeDetails struct {
	OldType       Type     `json:"oldType,omitempty"`
	NewType       Type     `json:"newType,omitempty"`
	SplitAt       uint16   `json:"splitAt,omitempty"`
	NewBlocks     []uint16 `json:"newBlocks,omitempty"`
	MergedWith    uint16   `json:"mergedWith,omitempty"`
	ResultAddress uint16   `json:"resultAddress,omitempty"`
}

// Change is an entry of the append only change log.
type Change struct {
	Timestamp    time.Time     `json:"timestamp"`
	Action       Action        `json:"action"`
	BlockAddress uint16        `json:"blockAddress"`
	Details      ChangeDetails `json:"details"`
	Reason       string        `json:"reason"`
	Source       string        `json:"source"`
}

// Reader is the read only view of a block store.
type Reader interface {
	Block(address uint16) (Block, bool)
	BlockByID(id string) (Block, bool)
	BlockContaining(address uint16) (Block, bool)
	AllBlocks() []Block
	Len() int
	Version() uint64
	HasChangedSince(version uint64) bool
}

// Store owns the blocks of a program. Blocks never overlap and are kept
// ordered by address. Every mutation increments the version by one and
// appends a change log entry.
type Store struct {
	blocks  []Block
	version uint64
	changes []Change
	now     func() time.Time
}

// New returns a store holding deep copies of the given blocks.
func New(blocks []Block) (*Store, error) {
	s := &Store{
		blocks: make([]Block, 0, len(blocks)),
		now:    time.Now,
	}
	for _, b := range blocks {
		if uint32(b.Address) >= b.EndAddress || b.EndAddress > maxEndAddress {
			return nil, fmt.Errorf("%w: block '%s' $%04X-$%04X", ErrInvalidRange, b.ID, b.Address, b.EndAddress)
		}
		s.blocks = append(s.blocks, b.Clone())
	}

	slices.SortStableFunc(s.blocks, func(a, b Block) int {
		return cmp.Compare(a.Address, b.Address)
	})
	for i := 1; i < len(s.blocks); i++ {
		prev, cur := s.blocks[i-1], s.blocks[i]
		if prev.EndAddress > uint32(cur.Address) {
			return nil, fmt.Errorf("%w: '%s' $%04X-$%04X and '%s' $%04X-$%04X",
				ErrOverlap, prev.ID, prev.Address, prev.EndAddress, cur.ID, cur.Address, cur.EndAddress)
		}
	}
	return s, nil
}

// Version returns the current version. It starts at 0.
func (s *Store) Version() uint64 {
	return s.version
}

// HasChangedSince returns whether a mutation happened after the given version.
func (s *Store) HasChangedSince(version uint64) bool {
	return s.version > version
}

// Changes returns a copy of the change log.
func (s *Store) Changes() []Change {
	changes := make([]Change, len(s.changes))
	for i, c := range s.changes {
		c.Details.NewBlocks = slices.Clone(c.Details.NewBlocks)
		changes[i] = c
	}
	return changes
}

// Len returns the number of blocks.
func (s *Store) Len() int {
	return len(s.blocks)
}

// Block returns a copy of the block starting at the address.
func (s *Store) Block(address uint16) (Block, bool) {
	i, ok := s.index(address)
	if !ok {
		return Block{}, false
	}
	return s.blocks[i].Clone(), true
}

// BlockByID returns a copy of the block with the given id.
func (s *Store) BlockByID(id string) (Block, bool) {
	for _, b := range s.blocks {
		if b.ID == id {
			return b.Clone(), true
		}
	}
	return Block{}, false
}

// BlockContaining returns a copy of the block whose range contains the address.
func (s *Store) BlockContaining(address uint16) (Block, bool) {
	i := sort.Search(len(s.blocks), func(i int) bool {
		return s.blocks[i].Address > address
	})
	if i == 0 {
		return Block{}, false
	}
	b := s.blocks[i-1]
	if !b.Contains(address) {
		return Block{}, false
	}
	return b.Clone(), true
}

// AllBlocks returns copies of all blocks ordered by address.
func (s *Store) AllBlocks() []Block {
	blocks := make([]Block, len(s.blocks))
	for i, b := range s.blocks {
		blocks[i] = b.Clone()
	}
	return blocks
}

// Reclassify changes the type of the block starting at the address.
func (s *Store) Reclassify(address uint16, newType Type, reason string) error {
	if !newType.Valid() {
		return fmt.Errorf("%w '%s'", ErrInvalidBlockType, newType)
	}
	i, ok := s.index(address)
	if !ok {
		return fmt.Errorf("%w at address $%04X", ErrBlockNotFound, address)
	}

	oldType := s.blocks[i].Type
	s.blocks[i].Type = newType
	s.record(ActionReclassify, address, ChangeDetails{OldType: oldType, NewType: newType}, reason)
	return nil
}

// Split replaces the block starting at the address with two contiguous
// blocks sharing the boundary at splitAt. The first half keeps the block id.
func (s *Store) Split(address, splitAt uint16, reason string) error {
	i, ok := s.index(address)
	if !ok {
		return fmt.Errorf("%w at address $%04X", ErrBlockNotFound, address)
	}
	b := s.blocks[i]
	if splitAt <= b.Address || uint32(splitAt) >= b.EndAddress {
		return fmt.Errorf("%w: $%04X not within block $%04X-$%04X", ErrSplitOutOfRange, splitAt, b.Address, b.EndAddress)
	}

	first := b.Clone()
	first.EndAddress = uint32(splitAt)
	second := b.Clone()
	second.ID = nodeid.New(b.Kind(), splitAt).String()
	second.Address = splitAt

	first.Instructions, second.Instructions = partitionInstructions(b.Instructions, splitAt)

	if len(b.Raw) > 0 {
		offset := min(int(splitAt-b.Address), len(b.Raw))
		first.Raw = slices.Clone(b.Raw[:offset])
		second.Raw = slices.Clone(b.Raw[offset:])
		if len(second.Raw) == 0 {
			second.Raw = nil
		}
	}

	s.blocks = slices.Replace(s.blocks, i, i+1, first, second)
	s.record(ActionSplit, address, ChangeDetails{
		SplitAt:   splitAt,
		NewBlocks: []uint16{first.Address, second.Address},
	}, reason)
	return nil
}

// Merge replaces two exactly adjacent blocks by one spanning both. The order
// of the addresses does not matter, the result keeps the id and type of the
// lower block.
func (s *Store) Merge(address1, address2 uint16, reason string) error {
	i1, ok1 := s.index(address1)
	i2, ok2 := s.index(address2)
	if !ok1 || !ok2 {
		return fmt.Errorf("%w: one or both of $%04X, $%04X", ErrBlockNotFound, address1, address2)
	}

	lo, hi := i1, i2
	if s.blocks[hi].Address < s.blocks[lo].Address {
		lo, hi = hi, lo
	}
	first, second := s.blocks[lo], s.blocks[hi]
	if lo == hi || first.EndAddress != uint32(second.Address) {
		return fmt.Errorf("%w: $%04X and $%04X", ErrNotAdjacent, address1, address2)
	}

	merged := first.Clone()
	merged.EndAddress = second.EndAddress
	merged.Instructions = append(merged.Instructions, second.Instructions...)
	if len(first.Raw) > 0 || len(second.Raw) > 0 {
		merged.Raw = append(rawOrZero(first), rawOrZero(second)...)
	}

	// adjacent blocks in an ordered non overlapping list are neighbours
	s.blocks = slices.Replace(s.blocks, lo, hi+1, merged)
	s.record(ActionMerge, address1, ChangeDetails{
		MergedWith:    address2,
		ResultAddress: merged.Address,
	}, reason)
	return nil
}

func (s *Store) record(action Action, address uint16, details ChangeDetails, reason string) {
	s.version++
	s.changes = append(s.changes, Change{
		Timestamp:    s.now(),
		Action:       action,
		BlockAddress: address,
		Details:      details,
		Reason:       reason,
		Source:       changeSource,
	})
}

func (s *Store) index(address uint16) (int, bool) {
	return slices.BinarySearchFunc(s.blocks, address, func(b Block, target uint16) int {
		return cmp.Compare(b.Address, target)
	})
}

func partitionInstructions(instructions []Instruction, splitAt uint16) ([]Instruction, []Instruction) {
	var first, second []Instruction
	for _, ins := range instructions {
		if ins.Address < splitAt {
			first = append(first, ins)
		} else {
			second = append(second, ins)
		}
	}
	return first, second
}

func rawOrZero(b Block) []byte {
	if len(b.Raw) > 0 {
		return slices.Clone(b.Raw)
	}
	return make([]byte, b.Size())
}
