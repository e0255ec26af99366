package transfer_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"ccflash/flash"
	"ccflash/link"
	"ccflash/simtarget"
	"ccflash/status"
	"ccflash/transfer"
)

func testConfig() transfer.SessionConfig {
	cfg := transfer.DefaultSessionConfig()
	cfg.Link.Timeout = time.Second
	cfg.Flash.ErasePoll = 10 * time.Millisecond
	return cfg
}

func TestSessionEndToEnd(t *testing.T) {
	opts := simtarget.DefaultOptions()
	opts.ChipID = 0xA5
	opts.EraseBusyPolls = 2
	opts.ClockPolls = 1
	sim := simtarget.New(opts)
	clock := link.NewFakeClock(time.Millisecond)

	s, err := transfer.Open(sim, clock, testConfig())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	chip, _ := s.Identify()
	if chip.Name != "CC2530" {
		t.Fatalf("Expected CC2530, got %v", chip)
	}

	image := make([]byte, 3000)
	for i := range image {
		image[i] = byte(i * 13)
	}
	res, err := transfer.Write(s, transfer.ReaderSource(bytes.NewReader(image)), transfer.DefaultOptions())
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if sim.StatusPolls != 3 {
		t.Errorf("Expected erase to finish on the 3rd status poll, got %d", sim.StatusPolls)
	}
	if res.Blocks != 6 || sim.Programs != 6 {
		t.Errorf("Expected 6 blocks programmed, got %d (sim %d)", res.Blocks, sim.Programs)
	}
	if s.State() != flash.Done {
		t.Errorf("Expected Done, got %v", s.State())
	}

	var out bytes.Buffer
	ropts := transfer.DefaultOptions()
	ropts.FlashSize = 4096
	if _, err := transfer.Read(s, transfer.WriterSink(&out), ropts); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	got := out.Bytes()
	if !bytes.Equal(got[:3000], image) {
		t.Errorf("read back image differs")
	}
	for i := 3000; i < len(got); i++ {
		if got[i] != 0xFF {
			t.Fatalf("byte 0x%x = 0x%02X, expected erased", i, got[i])
		}
	}
}

func TestSessionLargeBlocks(t *testing.T) {
	sim := simtarget.New(simtarget.DefaultOptions())
	s, err := transfer.Open(sim, link.NewFakeClock(time.Millisecond), testConfig())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	image := make([]byte, 4096)
	for i := range image {
		image[i] = byte(i*13 + 1)
	}
	opts := transfer.DefaultOptions()
	opts.BlockSize = 2048
	res, err := transfer.Write(s, transfer.ReaderSource(bytes.NewReader(image)), opts)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if res.Blocks != 2 {
		t.Errorf("Expected 2 blocks, got %d", res.Blocks)
	}
	if want := len(image) / flash.BufferSize; sim.Programs != want {
		t.Errorf("Expected %d staged programs, got %d", want, sim.Programs)
	}
	if !bytes.Equal(sim.Flash[:len(image)], image) {
		for i := range image {
			if sim.Flash[i] != image[i] {
				t.Fatalf("flash[0x%x] = 0x%02X, expected 0x%02X", i, sim.Flash[i], image[i])
			}
		}
	}
}

func TestSessionSingleOwner(t *testing.T) {
	sim := simtarget.New(simtarget.DefaultOptions())
	clock := link.NewFakeClock(time.Millisecond)
	s, err := transfer.Open(sim, clock, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := transfer.Open(sim, clock, testConfig()); !errors.Is(err, link.ErrBusy) {
		t.Errorf("Expected ErrBusy for a second session, got %v", err)
	}
	s.Close()
	s2, err := transfer.Open(sim, clock, testConfig())
	if err != nil {
		t.Fatalf("Expected reopen after close to work, got %v", err)
	}
	s2.Close()
}

func TestSessionUnknownChip(t *testing.T) {
	opts := simtarget.DefaultOptions()
	opts.ChipID = 0x77
	sim := simtarget.New(opts)
	s, err := transfer.Open(sim, link.NewFakeClock(time.Millisecond), testConfig())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	_, err = transfer.Write(s, transfer.ReaderSource(bytes.NewReader([]byte{1, 2, 3, 4})), transfer.DefaultOptions())
	if !errors.Is(err, transfer.ErrChipUnidentified) {
		t.Errorf("Expected ErrChipUnidentified, got %v", err)
	}
	if sim.Erases != 0 {
		t.Errorf("Expected no erase, got %d", sim.Erases)
	}
}

func TestSessionAttachTimeout(t *testing.T) {
	opts := simtarget.DefaultOptions()
	opts.Hang = true
	sim := simtarget.New(opts)
	_, err := transfer.Open(sim, link.NewFakeClock(time.Millisecond), testConfig())
	if !errors.Is(err, link.ErrTimeout) {
		t.Errorf("Expected link.ErrTimeout, got %v", err)
	}
	if !sim.TryClaim() {
		t.Errorf("Expected the driver to be released after a failed open")
	}
}

func TestSupervisorRetries(t *testing.T) {
	clock := link.NewFakeClock(0)
	sim := simtarget.New(simtarget.DefaultOptions())
	failures := 2
	sup := &transfer.Supervisor{
		Clock:      clock,
		RetryDelay: 5 * time.Second,
		Attempts:   5,
		Open: func() (transfer.Session, error) {
			if failures > 0 {
				failures--
				return nil, link.ErrTimeout
			}
			return transfer.Open(sim, clock, testConfig())
		},
	}

	var chipName string
	err := sup.Run(func(t transfer.Target) error {
		chip, err := t.Identify()
		chipName = chip.Name
		return err
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if chipName != "CC2530" {
		t.Errorf("Expected CC2530, got %q", chipName)
	}
	if clock.Sleeps < 2 {
		t.Errorf("Expected at least 2 retry sleeps, got %d", clock.Sleeps)
	}
}

func TestSupervisorGivesUp(t *testing.T) {
	clock := link.NewFakeClock(0)
	opens := 0
	sup := &transfer.Supervisor{
		Clock:      clock,
		RetryDelay: time.Second,
		Attempts:   3,
		Open: func() (transfer.Session, error) {
			opens++
			return nil, link.ErrTimeout
		},
	}
	err := sup.Run(func(transfer.Target) error { return nil })
	if !errors.Is(err, transfer.ErrGaveUp) || !errors.Is(err, link.ErrTimeout) {
		t.Errorf("Expected ErrGaveUp wrapping ErrTimeout, got %v", err)
	}
	if opens != 3 {
		t.Errorf("Expected 3 attempts, got %d", opens)
	}
}

func TestGateHoldsOffAfterFailures(t *testing.T) {
	clock := link.NewFakeClock(0)
	sim := simtarget.New(simtarget.DefaultOptions())
	rec := &status.Recorder{}
	opens, failing := 0, true
	gate := &transfer.Gate{
		Clock:      clock,
		RetryDelay: 5 * time.Second,
		Attempts:   2,
		Status:     rec,
		Open: func() (transfer.Session, error) {
			opens++
			if failing {
				return nil, link.ErrTimeout
			}
			return transfer.Open(sim, clock, testConfig())
		},
	}

	for i := 0; i < 2; i++ {
		if _, err := gate.Acquire(); !errors.Is(err, link.ErrTimeout) {
			t.Fatalf("attempt %d: expected link.ErrTimeout, got %v", i, err)
		}
	}
	_, err := gate.Acquire()
	if !errors.Is(err, transfer.ErrHoldOff) || !errors.Is(err, link.ErrTimeout) {
		t.Errorf("Expected ErrHoldOff wrapping the last failure, got %v", err)
	}
	if opens != 2 {
		t.Errorf("Expected no open during hold-off, got %d opens", opens)
	}
	if len(rec.Levels) != 2 || rec.Levels[1] != status.Error {
		t.Errorf("Expected two error signals, got %v", rec.Levels)
	}

	failing = false
	clock.Sleep(5 * time.Second)
	s, err := gate.Acquire()
	if err != nil {
		t.Fatalf("Expected an open after the delay, got %v", err)
	}
	s.Close()
	if opens != 3 {
		t.Errorf("Expected 3 opens, got %d", opens)
	}
	s, err = gate.Acquire()
	if err != nil {
		t.Fatalf("Expected success to clear the failure count, got %v", err)
	}
	s.Close()
}
