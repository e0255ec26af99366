// Package xdata reads and writes the target's XDATA space by feeding the
// halted 8051 core single instructions over the debug link.
package xdata

// DUP register map (XDATA addresses).
const (
	RegDBGDATA   uint16 = 0x6260 // debug interface data buffer
	RegFCTL      uint16 = 0x6270 // flash controller
	RegFADDRL    uint16 = 0x6271 // flash word address, low
	RegFADDRH    uint16 = 0x6272 // flash word address, high
	RegFWDATA    uint16 = 0x6273 // flash write data
	RegCLKCONSTA uint16 = 0x709E // system clock status
	RegCLKCONCMD uint16 = 0x70C6 // system clock configuration
	RegMEMCTR    uint16 = 0x70C7 // flash bank xdata mapping
	RegDMA1CFGL  uint16 = 0x70D2 // DMA ch. 1-4 descriptor pointer, low
	RegDMA1CFGH  uint16 = 0x70D3 // DMA ch. 1-4 descriptor pointer, high
	RegDMA0CFGL  uint16 = 0x70D4 // DMA ch. 0 descriptor pointer, low
	RegDMA0CFGH  uint16 = 0x70D5 // DMA ch. 0 descriptor pointer, high
	RegDMAARM    uint16 = 0x70D6 // DMA arming
)

// FCTL bits
const (
	FCTLErase = 0x01
	FCTLWrite = 0x02
	FCTLCM    = 0x04 // cache mode, prefetch
	FCTLAbort = 0x20
	FCTLFull  = 0x40
	FCTLBusy  = 0x80
)

// CLKCONCMD value selecting the 32 MHz crystal; CLKCONSTA mirrors it once
// the oscillator is stable.
const ClockXOSC32M = 0x80

// Bank window: the active flash bank shows up at 0x8000-0xFFFF.
const (
	BankWindow uint16 = 0x8000
	BankSize          = 0x8000
	BankShift         = 15
)

// Bank returns the 32 KiB bank holding a flat flash address.
func Bank(addr uint32) uint8 {
	return uint8(addr >> BankShift)
}

// Window returns the XDATA address that shows addr once its bank is mapped.
func Window(addr uint32) uint16 {
	return BankWindow | uint16(addr&(BankSize-1))
}
