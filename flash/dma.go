// Package flash erases, programs and reads target flash through the debug
// link. Programming stages each block in target RAM with DMA channel 0
// (debug data register to RAM) and lets channel 1 feed the flash
// controller (RAM to FWDATA).
package flash

import "ccflash/xdata"

// Target RAM layout used while programming.
const (
	BufferAddr uint16 = 0x0000 // staging buffer
	Desc0Addr  uint16 = 0x0200 // channel 0 descriptor
	Desc1Addr  uint16 = 0x0208 // channel 1 descriptor (DMA1CFG base)
)

// BufferSize is the largest block one Program call can stage. Anything
// longer would run into the descriptors.
const BufferSize = int(Desc0Addr - BufferAddr)

// DMAARM channel bits
const (
	ChDbgToBuffer   = 0x01
	ChBufferToFlash = 0x02
)

// Descriptor flag bytes (bytes 6 and 7).
const (
	// byte-wide, single transfers triggered by DBG_BW, dst increments
	desc0Flags6 = 0x1F
	desc0Flags7 = 0x11
	// byte-wide, triggered by FLASH, src increments, high priority
	desc1Flags6 = 0x12
	desc1Flags7 = 0x42
)

// Descriptors returns the two DMA descriptors for a block of length bytes:
// desc0 moves DBGDATA into the staging buffer, desc1 moves the buffer
// into FWDATA.
func Descriptors(length int) (desc0, desc1 [8]byte) {
	n := uint16(length)
	desc0 = [8]byte{
		hi(xdata.RegDBGDATA), lo(xdata.RegDBGDATA),
		hi(BufferAddr), lo(BufferAddr),
		hi(n), lo(n),
		desc0Flags6, desc0Flags7,
	}
	desc1 = [8]byte{
		hi(BufferAddr), lo(BufferAddr),
		hi(xdata.RegFWDATA), lo(xdata.RegFWDATA),
		hi(n), lo(n),
		desc1Flags6, desc1Flags7,
	}
	return desc0, desc1
}

func hi(v uint16) byte { return byte(v >> 8) }
func lo(v uint16) byte { return byte(v) }

// Bank returns the 32 KiB flash bank holding addr.
func Bank(addr uint32) uint8 {
	return xdata.Bank(addr)
}
