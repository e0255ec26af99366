package command

// ChipIdentity is read once per session with GET_CHIP_ID.
type ChipIdentity struct {
	ID       byte
	Name     string
	Revision byte
}

// Unidentified is the name reported for unknown chip id bytes.
const Unidentified = "unidentified"

var chipNames = map[byte]string{
	0xA5: "CC2530",
	0xB5: "CC2531",
	0x95: "CC2533",
	0x43: "CC2543",
	0x44: "CC2544",
	0x45: "CC2545",
}

// LookupChip maps a chip id byte to its part name. ok is false for ids
// outside the table.
func LookupChip(id byte) (name string, ok bool) {
	name, ok = chipNames[id]
	if !ok {
		return Unidentified, false
	}
	return name, true
}

// NewChipIdentity resolves id and keeps rev.
func NewChipIdentity(id, rev byte) ChipIdentity {
	name, _ := LookupChip(id)
	return ChipIdentity{ID: id, Name: name, Revision: rev}
}

// Known reports whether the id matched the table.
func (c ChipIdentity) Known() bool {
	_, ok := chipNames[c.ID]
	return ok
}

func (c ChipIdentity) String() string {
	return c.Name + " (id 0x" + hex2(c.ID) + " rev 0x" + hex2(c.Revision) + ")"
}

func hex2(b byte) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0xf]})
}
