package graph

import (
	"strings"

	"github.com/retroenv/retrogolib/arch/cpu/cpu6502"
)

// C64 address ranges used for edge classification.
const (
	ioStart = 0xD000
	ioEnd   = 0xDFFF

	kernalVectorStart = 0x0314 // IRQ, BRK and NMI RAM vectors
	kernalVectorEnd   = 0x0319
	cpuVectorStart    = 0xFFFA
)

const indirectAddressing = "indirect"

var (
	readInstructions = map[string]struct{}{
		cpu6502.LdaInst.Name: {}, cpu6502.LdxInst.Name: {}, cpu6502.LdyInst.Name: {},
		cpu6502.AdcInst.Name: {}, cpu6502.AndInst.Name: {}, cpu6502.BitInst.Name: {},
		cpu6502.CmpInst.Name: {}, cpu6502.CpxInst.Name: {}, cpu6502.CpyInst.Name: {},
		cpu6502.EorInst.Name: {}, cpu6502.OraInst.Name: {}, cpu6502.SbcInst.Name: {},
	}
	// instructions after which execution never continues at the next address
	terminatingInstructions = map[string]struct{}{
		cpu6502.RtsInst.Name: {}, cpu6502.RtiInst.Name: {},
		cpu6502.JmpInst.Name: {}, cpu6502.BrkInst.Name: {},
	}
	writeInstructions = map[string]struct{}{
		cpu6502.StaInst.Name: {}, cpu6502.StxInst.Name: {}, cpu6502.StyInst.Name: {},
		cpu6502.IncInst.Name: {}, cpu6502.DecInst.Name: {},
		cpu6502.AslInst.Name: {}, cpu6502.LsrInst.Name: {}, cpu6502.RolInst.Name: {}, cpu6502.RorInst.Name: {},
	}
)

// EdgeTypeFor classifies an instruction referencing the target address.
// The addressing mode uses the block instruction naming like "indirect".
// Immediate operands and instructions without a memory reference return
// false.
func EdgeTypeFor(mnemonic, addressingMode string, target uint16) (EdgeType, bool) {
	name := strings.ToLower(mnemonic)

	switch {
	case name == cpu6502.JmpInst.Name && addressingMode == indirectAddressing:
		return IndirectJump, true
	case name == cpu6502.JmpInst.Name:
		return Jump, true
	case name == cpu6502.JsrInst.Name:
		return Call, true
	}
	// the branching set contains jmp and jsr as well
	if _, ok := cpu6502.BranchingInstructions[name]; ok {
		return Branch, true
	}

	if addressingMode == "immediate" || addressingMode == "implied" || addressingMode == "accumulator" {
		return "", false
	}
	if _, ok := readInstructions[name]; ok {
		if isIO(target) {
			return HardwareRead, true
		}
		return DataRead, true
	}
	if _, ok := writeInstructions[name]; ok {
		switch {
		case isVector(target):
			return VectorWrite, true
		case isIO(target):
			return HardwareWrite, true
		default:
			return DataWrite, true
		}
	}
	return "", false
}

// FallsThrough returns whether execution can continue at the address
// following the instruction.
func FallsThrough(mnemonic string) bool {
	_, ok := terminatingInstructions[strings.ToLower(mnemonic)]
	return !ok
}

func isIO(address uint16) bool {
	return address >= ioStart && address <= ioEnd
}

func isVector(address uint16) bool {
	return (address >= kernalVectorStart && address <= kernalVectorEnd) || address >= cpuVectorStart
}
