package xdata

import (
	"errors"
	"fmt"
	"time"

	"ccflash/command"
	"ccflash/link"
)

// ErrClockTimeout means CLKCONSTA never reported the selected oscillator.
var ErrClockTimeout = errors.New("xdata: system clock did not settle")

// Access executes MOV/MOVX sequences on the halted core to reach XDATA.
type Access struct {
	cmd *command.Client
}

// New wraps a command client.
func New(cmd *command.Client) *Access {
	return &Access{cmd: cmd}
}

// Command returns the underlying command client.
func (a *Access) Command() *command.Client {
	return a.cmd
}

func (a *Access) setDPTR(addr uint16) error {
	_, err := a.cmd.Instr(command.OpMovDPTR, byte(addr>>8), byte(addr))
	return err
}

// Store writes value at addr.
func (a *Access) Store(addr uint16, value byte) error {
	if err := a.setDPTR(addr); err != nil {
		return fmt.Errorf("xdata write 0x%04x: %w", addr, err)
	}
	if _, err := a.cmd.Instr(command.OpMovA, value); err != nil {
		return fmt.Errorf("xdata write 0x%04x: %w", addr, err)
	}
	if _, err := a.cmd.Instr(command.OpMovxStor); err != nil {
		return fmt.Errorf("xdata write 0x%04x: %w", addr, err)
	}
	return nil
}

// Load reads the byte at addr.
func (a *Access) Load(addr uint16) (byte, error) {
	if err := a.setDPTR(addr); err != nil {
		return 0, fmt.Errorf("xdata read 0x%04x: %w", addr, err)
	}
	v, err := a.cmd.Instr(command.OpMovxLoad)
	if err != nil {
		return 0, fmt.Errorf("xdata read 0x%04x: %w", addr, err)
	}
	return v, nil
}

// WriteBlock stores data at consecutive addresses starting at addr,
// stepping DPTR on the target rather than reloading it.
func (a *Access) WriteBlock(addr uint16, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := a.setDPTR(addr); err != nil {
		return fmt.Errorf("xdata block 0x%04x: %w", addr, err)
	}
	for i, b := range data {
		if _, err := a.cmd.Instr(command.OpMovA, b); err != nil {
			return fmt.Errorf("xdata block 0x%04x+%d: %w", addr, i, err)
		}
		if _, err := a.cmd.Instr(command.OpMovxStor); err != nil {
			return fmt.Errorf("xdata block 0x%04x+%d: %w", addr, i, err)
		}
		if _, err := a.cmd.Instr(command.OpIncDPTR); err != nil {
			return fmt.Errorf("xdata block 0x%04x+%d: %w", addr, i, err)
		}
	}
	return nil
}

// ReadBlockBanked fills buf from flat flash address addr. MEMCTR selects
// the bank and the bank window at 0x8000 is read through MOVX; the bank is
// re-selected whenever the read crosses a 32 KiB boundary.
func (a *Access) ReadBlockBanked(addr uint32, buf []byte) error {
	for done := 0; done < len(buf); {
		cur := addr + uint32(done)
		n := BankSize - int(cur&(BankSize-1))
		if n > len(buf)-done {
			n = len(buf) - done
		}
		if err := a.Store(RegMEMCTR, Bank(cur)); err != nil {
			return err
		}
		if err := a.setDPTR(Window(cur)); err != nil {
			return fmt.Errorf("flash read 0x%05x: %w", cur, err)
		}
		for i := 0; i < n; i++ {
			v, err := a.cmd.Instr(command.OpMovxLoad)
			if err != nil {
				return fmt.Errorf("flash read 0x%05x: %w", cur+uint32(i), err)
			}
			buf[done+i] = v
			if _, err := a.cmd.Instr(command.OpIncDPTR); err != nil {
				return fmt.Errorf("flash read 0x%05x: %w", cur+uint32(i), err)
			}
		}
		done += n
	}
	return nil
}

// InitClock switches the target to the 32 MHz crystal and waits for
// CLKCONSTA to follow, polling every interval for at most timeout.
func (a *Access) InitClock(clock link.Clock, timeout, interval time.Duration) error {
	if err := a.Store(RegCLKCONCMD, ClockXOSC32M); err != nil {
		return err
	}
	start := clock.Now()
	for {
		v, err := a.Load(RegCLKCONSTA)
		if err != nil {
			return err
		}
		if v == ClockXOSC32M {
			return nil
		}
		if clock.Now().Sub(start) >= timeout {
			return fmt.Errorf("%w: CLKCONSTA 0x%02x", ErrClockTimeout, v)
		}
		clock.Sleep(interval)
	}
}
