// Package transfer moves whole flash images between a byte source or sink
// and a debug target, one block at a time.
package transfer

import (
	"fmt"
	"time"

	"ccflash/command"
	"ccflash/flash"
	"ccflash/hal"
	"ccflash/link"
	"ccflash/xdata"
)

// Target is what the orchestrator needs from a flasher. DebugSession
// implements it on the device, remote.Client on the host.
type Target interface {
	Identify() (command.ChipIdentity, error)
	Erase() error
	WriteBlock(addr uint32, data []byte) error
	ReadBlock(addr uint32, buf []byte) error
}

// SessionConfig holds every ceiling a session uses.
type SessionConfig struct {
	Link         link.Config
	Flash        flash.Config
	ClockTimeout time.Duration
	ClockPoll    time.Duration
}

// DefaultSessionConfig returns the board defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Link:         link.DefaultConfig(),
		Flash:        flash.DefaultConfig(),
		ClockTimeout: time.Second,
		ClockPoll:    time.Millisecond,
	}
}

// DebugSession is one attach of the debug link. It owns the engine and
// every layer built on it; nothing is shared between sessions.
type DebugSession struct {
	engine *link.Engine
	cmd    *command.Client
	x      *xdata.Access
	prog   *flash.Programmer

	chip command.ChipIdentity
}

// Open claims d, attaches to the target, reads its identity and switches
// it to the crystal oscillator. An unknown chip id is not an error here.
func Open(d link.Driver, clock link.Clock, cfg SessionConfig) (*DebugSession, error) {
	e, err := link.NewEngine(d, clock, cfg.Link)
	if err != nil {
		return nil, err
	}
	s := &DebugSession{engine: e, cmd: command.NewClient(e)}
	s.x = xdata.New(s.cmd)
	s.prog = flash.NewProgrammer(s.x, e.Clock(), cfg.Flash)

	if err := e.Attach(); err != nil {
		e.Close()
		return nil, err
	}
	if s.chip, err = s.cmd.ChipID(); err != nil {
		e.Close()
		return nil, fmt.Errorf("identify: %w", err)
	}
	hal.DebugAsync("[SESSION] " + s.chip.String())
	if !s.chip.Known() {
		return s, nil
	}
	if err := s.x.InitClock(e.Clock(), cfg.ClockTimeout, cfg.ClockPoll); err != nil {
		e.Close()
		return nil, err
	}
	return s, nil
}

// Identify returns the identity read when the session was opened.
func (s *DebugSession) Identify() (command.ChipIdentity, error) {
	return s.chip, nil
}

func (s *DebugSession) Erase() error {
	return s.prog.Erase()
}

// WriteBlock programs data at addr, one staging buffer at a time.
func (s *DebugSession) WriteBlock(addr uint32, data []byte) error {
	for off := 0; off < len(data); off += flash.BufferSize {
		end := min(off+flash.BufferSize, len(data))
		if err := s.prog.Program(addr+uint32(off), data[off:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *DebugSession) ReadBlock(addr uint32, buf []byte) error {
	return s.prog.Read(addr, buf)
}

// State reports the program pipeline state.
func (s *DebugSession) State() flash.State {
	return s.prog.State()
}

// Command exposes the raw command client for diagnostics.
func (s *DebugSession) Command() *command.Client {
	return s.cmd
}

// Close releases the debug link.
func (s *DebugSession) Close() error {
	return s.engine.Close()
}
