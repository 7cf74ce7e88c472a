package bitmask

// Ternary is a three-valued answer for banking questions.
type Ternary string

// Ternary values.
const (
	Yes          Ternary = "yes"
	No           Ternary = "no"
	Undetermined Ternary = "unknown"
)

// CPU port ($01) bits that control the memory configuration.
const (
	LoRAMBit  = 0x01 // BASIC ROM at $A000-$BFFF
	HiRAMBit  = 0x02 // KERNAL ROM at $E000-$FFFF
	CharenBit = 0x04 // I/O instead of character ROM at $D000-$DFFF
)

// Register defaults after BASIC SYS.
const (
	DefaultCPUPort   = 0x37
	DefaultVICBank   = 0x03
	DefaultVICMemPtr = 0x14
)

// Snapshot is the banking state at a program point.
type Snapshot struct {
	CPUPort   Register `json:"cpuPort"`   // $01
	VICBank   Register `json:"vicBank"`   // $DD00 bits 0-1
	VICMemPtr Register `json:"vicMemPtr"` // $D018

	KernalMapped  Ternary `json:"kernalMapped"`
	BasicMapped   Ternary `json:"basicMapped"`
	IOMapped      Ternary `json:"ioMapped"`
	ChargenMapped Ternary `json:"chargenMapped"`
}

// DefaultSnapshot returns the state of a program started from BASIC:
// all ROMs and I/O visible, VIC bank 0.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		CPUPort:   RegisterFromImm(DefaultCPUPort, SourceDefault),
		VICBank:   RegisterFromImm(DefaultVICBank, SourceDefault),
		VICMemPtr: RegisterFromImm(DefaultVICMemPtr, SourceDefault),
	}.derive()
}

// UnknownSnapshot returns a state where nothing is known about banking.
func UnknownSnapshot() Snapshot {
	return Snapshot{
		CPUPort:   RegisterUnknown(SourceUnknown),
		VICBank:   RegisterUnknown(SourceUnknown),
		VICMemPtr: RegisterUnknown(SourceUnknown),
	}.derive()
}

// WithCPUPort returns a copy of the snapshot with a new $01 value and the
// visibility flags derived from it.
func (s Snapshot) WithCPUPort(r Register) Snapshot {
	s.CPUPort = r
	return s.derive()
}

// MeetSnapshot joins two snapshots at a control flow merge point.
func MeetSnapshot(a, b Snapshot) Snapshot {
	return Snapshot{
		CPUPort:   MeetRegister(a.CPUPort, b.CPUPort),
		VICBank:   MeetRegister(a.VICBank, b.VICBank),
		VICMemPtr: MeetRegister(a.VICMemPtr, b.VICMemPtr),
	}.derive()
}

// Equal compares the tracked registers, the flags are derived from them.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.CPUPort.Equal(other.CPUPort) &&
		s.VICBank.Equal(other.VICBank) &&
		s.VICMemPtr.Equal(other.VICMemPtr)
}

func (s Snapshot) derive() Snapshot {
	bm := s.CPUPort.Bitmask
	s.BasicMapped = bitTernary(bm, LoRAMBit)
	s.KernalMapped = bitTernary(bm, HiRAMBit)
	s.IOMapped = bitTernary(bm, CharenBit)

	switch s.IOMapped {
	case Yes:
		s.ChargenMapped = No
	case No:
		s.ChargenMapped = Yes
	default:
		s.ChargenMapped = Undetermined
	}
	return s
}

func bitTernary(v Value, bit uint8) Ternary {
	if v.KnownMask&bit == 0 {
		return Undetermined
	}
	if v.KnownValue&bit != 0 {
		return Yes
	}
	return No
}

func (t Ternary) String() string {
	return string(t)
}
