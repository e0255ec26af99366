// Package command frames CC debug commands for the link sequencer.
//
// Opcode table (first byte on the wire). For simple commands the two low
// bits of the opcode give the number of argument bytes that follow, so the
// whole command fits one 32-bit word:
//
//	0x00  READ_ONLY     no write phase, sample and read only
//	0x10  CHIP_ERASE
//	0x19  WR_CONFIG     1 argument
//	0x24  RD_CONFIG
//	0x28  GET_PC        2 bytes back
//	0x30  READ_STATUS
//	0x44  HALT
//	0x4C  RESUME
//	0x55  DEBUG_INSTR   1..3 bytes of 8051 code (0x54|n)
//	0x5C  STEP_INSTR
//	0x68  GET_CHIP_ID   2 bytes back: id, revision
//	0x80  BURST_WRITE   extended: 11-bit length split over opcode and next byte
package command

const (
	CmdReadOnly   byte = 0x00
	CmdChipErase  byte = 0x10
	CmdWrConfig   byte = 0x19
	CmdRdConfig   byte = 0x24
	CmdGetPC      byte = 0x28
	CmdReadStatus byte = 0x30
	CmdHalt       byte = 0x44
	CmdResume     byte = 0x4C
	CmdDebugInstr byte = 0x54
	CmdStepInstr  byte = 0x5C
	CmdGetChipID  byte = 0x68
	CmdBurstWrite byte = 0x80
)

// READ_STATUS bits
const (
	StatusChipEraseBusy = 0x80
	StatusPCONIdle      = 0x40
	StatusCPUHalted     = 0x20
	StatusPowerModeZero = 0x10
	StatusHaltStatus    = 0x08
	StatusDebugLocked   = 0x04
	StatusOscStable     = 0x02
	StatusStackOverflow = 0x01
)

// WR_CONFIG bits
const (
	ConfigSoftPowerMode = 0x20
	ConfigTimersOff     = 0x08
	ConfigDMAPause      = 0x04
	ConfigTimerSuspend  = 0x02
)

// ConfigEnableDMA leaves DMA unpaused while the CPU is halted.
const ConfigEnableDMA = ConfigSoftPowerMode | ConfigTimerSuspend

// MaxBurst is the largest BURST_WRITE payload (11-bit length field).
const MaxBurst = 2048

// 8051 opcodes used through DEBUG_INSTR.
const (
	OpMovDPTR  byte = 0x90 // MOV DPTR,#data16
	OpMovA     byte = 0x74 // MOV A,#data
	OpMovxStor byte = 0xF0 // MOVX @DPTR,A
	OpMovxLoad byte = 0xE0 // MOVX A,@DPTR
	OpIncDPTR  byte = 0xA3 // INC DPTR
	OpNop      byte = 0x00
)

func isBurst(op byte) bool {
	return op&0xF8 == CmdBurstWrite
}
