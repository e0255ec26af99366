//go:build rp2040 || rp2350

package pio

import (
	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// Side-set drives two consecutive pins: bit 0 is DC, bit 1 is RST.
const (
	sideRstLow   = 0
	sideClkHigh  = 1 // RST still low
	sideIdle     = 2 // RST high, DC low
	sideIdleHigh = 3 // RST high, DC high
)

// buildAttachProgram resets the target into debug mode: RST low, two
// falling DC edges, RST high. It pushes one word and parks. Loaded at
// offset 0.
func buildAttachProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 2}
	return []uint16{
		asm.Set(rp2pio.SetDestPindirs, 0).Side(sideRstLow).Delay(3).Encode(), // 0: DD input
		asm.Nop().Side(sideClkHigh).Delay(3).Encode(),                        // 1
		asm.Nop().Side(sideRstLow).Delay(3).Encode(),                         // 2: flank 1
		asm.Nop().Side(sideClkHigh).Delay(3).Encode(),                        // 3
		asm.Nop().Side(sideRstLow).Delay(3).Encode(),                         // 4: flank 2
		asm.Nop().Side(sideIdle).Delay(7).Encode(),                           // 5: RST high
		asm.Push(false, true).Side(sideIdle).Encode(),                        // 6: completion word
		asm.Jmp(7, rp2pio.JmpAlways).Side(sideIdle).Encode(),                 // 7: park
	}
}

// Labels of the command program.
const (
	cmdWrite  = 5
	cmdByte   = 7
	cmdBit    = 9
	cmdRead   = 14
	cmdSample = 17
	cmdDrop   = 21
	cmdReady  = 25
	cmdRByte  = 26
	cmdRBit   = 27
	cmdDone   = 31
)

// buildCommandProgram runs one frame per control word:
//
//	pull control word, X = write count, keep read count in ISR
//	clock out X payload bytes MSB first, pulling words as needed
//	release DD; while DD is high clock 8 bits and sample again
//	clock in 8*readCount bits and push them
//
// The busy wait has no limit of its own; the engine aborts the state
// machine when the link timeout expires. Output bits change with the
// rising DC edge; input bits are sampled on the falling edge. The program
// fills all 32 instruction slots and must be loaded at offset 0.
func buildCommandProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 2}
	return []uint16{
		asm.Pull(false, true).Side(sideIdle).Encode(),                                  // 0: control word
		asm.Out(rp2pio.OutDestX, 16).Side(sideIdle).Encode(),                           // 1: X = write count
		asm.Mov(rp2pio.MovDestISR, rp2pio.MovSrcOSR).Side(sideIdle).Encode(),           // 2: save read count
		asm.Jmp(cmdWrite, rp2pio.JmpXNZeroDec).Side(sideIdle).Encode(),                 // 3
		asm.Jmp(cmdRead, rp2pio.JmpAlways).Side(sideIdle).Encode(),                     // 4: nothing to write
		asm.Set(rp2pio.SetDestPindirs, 1).Side(sideIdle).Encode(),                      // 5: write: DD output
		asm.Pull(false, true).Side(sideIdle).Encode(),                                  // 6: first payload word
		asm.Pull(true, true).Side(sideIdle).Encode(),                                   // 7: byte: next word when drained
		asm.Set(rp2pio.SetDestY, 7).Side(sideIdle).Encode(),                            // 8
		asm.Out(rp2pio.OutDestPins, 1).Side(sideIdleHigh).Encode(),                     // 9: bit: data, DC high
		asm.Jmp(cmdBit, rp2pio.JmpYNZeroDec).Side(sideIdle).Encode(),                   // 10: DC low
		asm.Jmp(cmdByte, rp2pio.JmpXNZeroDec).Side(sideIdle).Encode(),                  // 11
		asm.Set(rp2pio.SetDestPindirs, 0).Side(sideIdle).Encode(),                      // 12: DD input
		asm.Mov(rp2pio.MovDestOSR, rp2pio.MovSrcISR).Side(sideIdle).Encode(),           // 13: restore read count
		asm.Out(rp2pio.OutDestX, 16).Side(sideIdle).Encode(),                           // 14: read: X = read count
		asm.Mov(rp2pio.MovDestISR, rp2pio.MovSrcNull).Side(sideIdle).Delay(3).Encode(), // 15: turnaround
		asm.Jmp(cmdDone, rp2pio.JmpXZero).Side(sideIdle).Encode(),                      // 16: nothing to read, push 0
		asm.In(rp2pio.InSrcPins, 1).Side(sideIdle).Encode(),                            // 17: sample: DD high = busy
		asm.Mov(rp2pio.MovDestY, rp2pio.MovSrcISR).Side(sideIdle).Encode(),             // 18
		asm.Jmp(cmdReady, rp2pio.JmpYZero).Side(sideIdle).Encode(),                     // 19
		asm.Set(rp2pio.SetDestY, 7).Side(sideIdle).Encode(),                            // 20
		asm.Nop().Side(sideIdleHigh).Delay(2).Encode(),                                 // 21: drop: one busy bit
		asm.Jmp(cmdDrop, rp2pio.JmpYNZeroDec).Side(sideIdle).Encode(),                  // 22
		asm.Mov(rp2pio.MovDestISR, rp2pio.MovSrcNull).Side(sideIdle).Encode(),          // 23
		asm.Jmp(cmdSample, rp2pio.JmpAlways).Side(sideIdle).Encode(),                   // 24
		asm.Jmp(cmdRByte, rp2pio.JmpXNZeroDec).Side(sideIdle).Encode(),                 // 25: ready: X = read count - 1
		asm.Set(rp2pio.SetDestY, 7).Side(sideIdle).Encode(),                            // 26: rbyte
		asm.Nop().Side(sideIdleHigh).Delay(2).Encode(),                                 // 27: rbit: target drives on rising edge
		asm.In(rp2pio.InSrcPins, 1).Side(sideIdle).Encode(),                            // 28: sample on falling edge
		asm.Jmp(cmdRBit, rp2pio.JmpYNZeroDec).Side(sideIdle).Encode(),                  // 29
		asm.Jmp(cmdRByte, rp2pio.JmpXNZeroDec).Side(sideIdle).Encode(),                 // 30
		asm.Push(false, true).Side(sideIdle).Encode(),                                  // 31: done
	}
}
