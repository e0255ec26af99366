// Package link drives the two-wire CC debug interface (DD data, DC clock)
// plus the RESET_N line. Everything above this package is timing-agnostic:
// it hands complete frames to an Engine and waits for one response word.
package link

// Variant identifies a sequencer program. Only one may be loaded on a
// Driver at a time.
type Variant uint8

const (
	VariantNone Variant = iota
	// VariantAttach pulls RESET_N low, gives two falling DC edges and
	// releases reset, leaving the target in debug mode. It pushes one
	// completion word when done.
	VariantAttach
	// VariantCommand executes framed debug commands, see ControlWord.
	VariantCommand
)

func (v Variant) String() string {
	switch v {
	case VariantNone:
		return "none"
	case VariantAttach:
		return "attach"
	case VariantCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Driver is a platform sequencer that clocks the debug link on its own,
// independent of CPU scheduling. Put, Ready and Get never block; the
// Engine owns all waiting and timeout policy.
//
// Wire contract of VariantCommand:
//
//	word 0:  writeCount<<16 | readCount
//	word 1+: ceil(writeCount/4) payload words, bytes MSB first
//
// Each written bit: set DD, DC high, hold, DC low. Before the read phase DD
// is released to input and sampled. While it is high the target is busy:
// the sequencer clocks 8 bits, drops them and samples again. Once DD is low
// 8*readCount bits are clocked in, sampled on the falling DC edge. One word
// is pushed per frame: notReady<<(8*readCount) | data. notReady is only set
// when a sequencer stops waiting before the target became ready, and then
// no data bits have been clocked, so the frame can be retried with a
// read-only frame. A frame with readCount 0 pushes 0 without waiting.
type Driver interface {
	// TryClaim takes exclusive ownership of the signal lines.
	TryClaim() bool
	// Unclaim releases ownership taken with TryClaim.
	Unclaim()

	// Load installs and starts a sequencer program.
	Load(v Variant) error
	// Unload stops the sequencer and frees the program.
	Unload()

	// Put queues one word; false means the transmit queue is full.
	Put(word uint32) bool
	// Ready reports whether a response word is available.
	Ready() bool
	// Get pops one response word. Only valid after Ready returned true.
	Get() uint32

	// Abort drops pending transmit and receive state and returns the
	// sequencer to its idle entry point with DC low and DD as input.
	Abort()
}

// MaxWriteCount is the largest payload one frame can carry.
const MaxWriteCount = 0xffff

// ControlWord builds the first word of a frame.
func ControlWord(writeCount, readCount int) uint32 {
	return uint32(writeCount&0xffff)<<16 | uint32(readCount&0xffff)
}

// SplitControlWord is the inverse of ControlWord.
func SplitControlWord(w uint32) (writeCount, readCount int) {
	return int(w >> 16), int(w & 0xffff)
}

// PackPayload packs bytes MSB first into 32-bit words, zero-filling the
// last word.
func PackPayload(data []byte) []uint32 {
	words := make([]uint32, (len(data)+3)/4)
	for i, b := range data {
		words[i/4] |= uint32(b) << (24 - 8*uint(i%4))
	}
	return words
}

// PayloadByte returns byte i of a packed payload.
func PayloadByte(words []uint32, i int) byte {
	return byte(words[i/4] >> (24 - 8*uint(i%4)))
}

// DecodeResponse splits a response word into the not-ready flag and the
// data bytes, first received byte first.
func DecodeResponse(word uint32, readCount int) (notReady bool, data []byte) {
	data = make([]byte, readCount)
	for i := 0; i < readCount; i++ {
		data[i] = byte(word >> (8 * uint(readCount-1-i)))
	}
	notReady = word>>(8*uint(readCount))&1 != 0
	return notReady, data
}
