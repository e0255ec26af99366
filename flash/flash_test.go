package flash_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"ccflash/command"
	"ccflash/flash"
	"ccflash/link"
	"ccflash/simtarget"
	"ccflash/xdata"
)

func newProgrammer(t *testing.T, opts simtarget.Options) (*simtarget.Target, *flash.Programmer) {
	t.Helper()
	sim := simtarget.New(opts)
	clock := link.NewFakeClock(time.Millisecond)
	e, err := simtarget.Attached(sim, clock, link.Config{Timeout: time.Second})
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	cfg := flash.Config{
		EraseTimeout:   100 * time.Millisecond,
		ErasePoll:      10 * time.Millisecond,
		ProgramTimeout: 50 * time.Millisecond,
		ProgramPoll:    time.Millisecond,
	}
	return sim, flash.NewProgrammer(xdata.New(command.NewClient(e)), clock, cfg)
}

func TestDescriptors(t *testing.T) {
	d0, d1 := flash.Descriptors(512)
	want0 := [8]byte{0x62, 0x60, 0x00, 0x00, 0x02, 0x00, 0x1F, 0x11}
	want1 := [8]byte{0x00, 0x00, 0x62, 0x73, 0x02, 0x00, 0x12, 0x42}
	if diff := cmp.Diff(want0, d0); diff != "" {
		t.Errorf("desc0 mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want1, d1); diff != "" {
		t.Errorf("desc1 mismatch (-want +got):\n%s", diff)
	}
}

func TestBank(t *testing.T) {
	if got := flash.Bank(0x18000); got != 3 {
		t.Errorf("Expected bank 3 for 0x18000, got %d", got)
	}
	if got := flash.Bank(0); got != 0 {
		t.Errorf("Expected bank 0 for 0, got %d", got)
	}
}

func TestEraseWaitsForBusyFlag(t *testing.T) {
	opts := simtarget.DefaultOptions()
	opts.EraseBusyPolls = 2
	sim, p := newProgrammer(t, opts)

	if err := p.Erase(); err != nil {
		t.Fatalf("Erase failed: %v", err)
	}
	if sim.StatusPolls != 3 {
		t.Errorf("Expected erase to clear on the 3rd poll, got %d polls", sim.StatusPolls)
	}
	if p.State() != flash.Idle {
		t.Errorf("Expected Idle after erase, got %v", p.State())
	}
	for i, b := range sim.Flash {
		if b != 0xFF {
			t.Fatalf("flash[0x%05x] = 0x%02X after erase", i, b)
		}
	}
}

func TestEraseTimeout(t *testing.T) {
	opts := simtarget.DefaultOptions()
	opts.EraseNeverEnds = true
	_, p := newProgrammer(t, opts)

	if err := p.Erase(); !errors.Is(err, flash.ErrEraseTimeout) {
		t.Errorf("Expected ErrEraseTimeout, got %v", err)
	}
	if p.State() != flash.Failed {
		t.Errorf("Expected Failed state, got %v", p.State())
	}
}

func TestProgramBlock(t *testing.T) {
	sim, p := newProgrammer(t, simtarget.DefaultOptions())
	if err := p.Erase(); err != nil {
		t.Fatal(err)
	}

	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i ^ 0x5A)
	}
	addr := uint32(0x18000 + 1024)
	if err := p.Program(addr, data); err != nil {
		t.Fatalf("Program failed: %v", err)
	}
	if p.State() != flash.Done {
		t.Errorf("Expected Done, got %v", p.State())
	}
	if !sim.DMAEnabled() {
		t.Errorf("Expected DMA to be enabled")
	}
	if !bytes.Equal(sim.Flash[addr:addr+512], data) {
		t.Errorf("flash contents differ after program")
	}
	if sim.Flash[addr-1] != 0xFF || sim.Flash[addr+512] != 0xFF {
		t.Errorf("program touched bytes outside the block")
	}

	got := make([]byte, 512)
	if err := p.Read(addr, got); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("read back differs from programmed data")
	}
}

func TestProgramFullBuffer(t *testing.T) {
	sim, p := newProgrammer(t, simtarget.DefaultOptions())
	if err := p.Erase(); err != nil {
		t.Fatal(err)
	}
	data := bytes.Repeat([]byte{0x12, 0x34, 0x56, 0x78}, flash.BufferSize/4)
	if err := p.Program(0, data); err != nil {
		t.Fatalf("Program failed: %v", err)
	}
	if !bytes.Equal(sim.Flash[:flash.BufferSize], data) {
		t.Errorf("flash contents differ after a %d byte program", flash.BufferSize)
	}
	d0, d1 := flash.Descriptors(flash.BufferSize)
	got := sim.XData[flash.Desc0Addr : flash.Desc0Addr+16]
	if diff := cmp.Diff(append(d0[:], d1[:]...), got); diff != "" {
		t.Errorf("descriptors overwritten by the staged block (-want +got):\n%s", diff)
	}
}

func TestBufferEndsAtDescriptors(t *testing.T) {
	if flash.BufferSize != 512 {
		t.Errorf("Expected a 512 byte staging buffer, got %d", flash.BufferSize)
	}
	if int(flash.BufferAddr)+flash.BufferSize > int(flash.Desc0Addr) {
		t.Errorf("staging buffer overlaps the channel 0 descriptor")
	}
}

func TestProgramRejectsBadBlocks(t *testing.T) {
	_, p := newProgrammer(t, simtarget.DefaultOptions())
	if err := p.Program(2, make([]byte, 4)); !errors.Is(err, flash.ErrAlignment) {
		t.Errorf("Expected ErrAlignment, got %v", err)
	}
	if err := p.Program(0, make([]byte, 6)); !errors.Is(err, flash.ErrBlockSize) {
		t.Errorf("Expected ErrBlockSize, got %v", err)
	}
	if err := p.Program(0, make([]byte, flash.BufferSize+4)); !errors.Is(err, flash.ErrBlockSize) {
		t.Errorf("Expected ErrBlockSize for a block past the staging buffer, got %v", err)
	}
	if err := p.Program(0, make([]byte, command.MaxBurst)); !errors.Is(err, flash.ErrBlockSize) {
		t.Errorf("Expected ErrBlockSize for a full burst, got %v", err)
	}
	if err := p.Program(flash.FlashSize-4, make([]byte, 8)); err == nil {
		t.Errorf("Expected an error for a block past the end of flash")
	}
}

func TestProgramTimeout(t *testing.T) {
	opts := simtarget.DefaultOptions()
	opts.ProgramBusyPolls = 1 << 20
	_, p := newProgrammer(t, opts)

	err := p.Program(0, make([]byte, 64))
	if !errors.Is(err, flash.ErrProgramTimeout) {
		t.Errorf("Expected ErrProgramTimeout, got %v", err)
	}
	if p.State() != flash.Failed {
		t.Errorf("Expected Failed state, got %v", p.State())
	}
}
