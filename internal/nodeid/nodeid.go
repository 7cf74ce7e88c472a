// Package nodeid provides the typed identifier that links blocks to graph nodes.
package nodeid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the node kind part of an identifier.
type Kind string

// Node kinds.
const (
	Code Kind = "code"
	Data Kind = "data"
)

var (
	errInvalidID      = errors.New("invalid node id")
	errInvalidAddress = errors.New("invalid address")
)

// ID identifies a graph node derived from a block start address.
type ID struct {
	Kind    Kind
	Address uint16
}

// New returns the identifier for the given kind and address.
func New(kind Kind, address uint16) ID {
	return ID{Kind: kind, Address: address}
}

// String renders the identifier as kind_hhhh with a lowercase address.
func (id ID) String() string {
	return fmt.Sprintf("%s_%04x", id.Kind, id.Address)
}

// Parse parses an identifier in the kind_hhhh format.
func Parse(s string) (ID, error) {
	kind, hex, ok := strings.Cut(s, "_")
	if !ok {
		return ID{}, fmt.Errorf("%w '%s': missing separator", errInvalidID, s)
	}

	switch Kind(kind) {
	case Code, Data:
	default:
		return ID{}, fmt.Errorf("%w '%s': unsupported kind '%s'", errInvalidID, s, kind)
	}

	if len(hex) != 4 {
		return ID{}, fmt.Errorf("%w '%s': address needs 4 hex digits", errInvalidID, s)
	}
	address, err := strconv.ParseUint(hex, 16, 16)
	if err != nil {
		return ID{}, fmt.Errorf("%w '%s': %w", errInvalidID, s, err)
	}
	return ID{Kind: Kind(kind), Address: uint16(address)}, nil
}

// ParseAddress parses a 16 bit address given as $0800, 0x0800 or 0800.
// The value is always interpreted as hexadecimal.
func ParseAddress(s string) (uint16, error) {
	address, err := parseHex(s)
	if err != nil {
		return 0, err
	}
	if address > 0xFFFF {
		return 0, fmt.Errorf("%w '%s': exceeds $FFFF", errInvalidAddress, s)
	}
	return uint16(address), nil
}

// ParseEndAddress parses an exclusive end address, which may be $10000.
func ParseEndAddress(s string) (uint32, error) {
	address, err := parseHex(s)
	if err != nil {
		return 0, err
	}
	if address > 0x10000 {
		return 0, fmt.Errorf("%w '%s': exceeds $10000", errInvalidAddress, s)
	}
	return uint32(address), nil
}

func parseHex(s string) (uint64, error) {
	trimmed := strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(trimmed, "$"):
		trimmed = trimmed[1:]
	case strings.HasPrefix(trimmed, "0x"), strings.HasPrefix(trimmed, "0X"):
		trimmed = trimmed[2:]
	}
	if trimmed == "" {
		return 0, fmt.Errorf("%w '%s'", errInvalidAddress, s)
	}

	address, err := strconv.ParseUint(trimmed, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w '%s': %w", errInvalidAddress, s, err)
	}
	return address, nil
}

// FormatAddress renders an address the way it is shown in messages.
func FormatAddress(address uint16) string {
	return fmt.Sprintf("$%04X", address)
}
