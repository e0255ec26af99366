package transfer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ccflash/command"
	"ccflash/status"
)

type fakeTarget struct {
	chip    command.ChipIdentity
	erased  int
	writes  map[uint32][]byte
	order   []uint32
	reads   int
	readErr error
}

func newFakeTarget(id byte) *fakeTarget {
	return &fakeTarget{chip: command.NewChipIdentity(id, 0), writes: map[uint32][]byte{}}
}

func (f *fakeTarget) Identify() (command.ChipIdentity, error) { return f.chip, nil }

func (f *fakeTarget) Erase() error {
	f.erased++
	return nil
}

func (f *fakeTarget) WriteBlock(addr uint32, data []byte) error {
	f.writes[addr] = append([]byte(nil), data...)
	f.order = append(f.order, addr)
	return nil
}

func (f *fakeTarget) ReadBlock(addr uint32, buf []byte) error {
	f.reads++
	for i := range buf {
		buf[i] = byte(addr>>8) + byte(i)
	}
	return f.readErr
}

type countingSink struct {
	appends int
	bytes   int
}

func (s *countingSink) Append(data []byte) error {
	s.appends++
	s.bytes += len(data)
	return nil
}

func TestPlan(t *testing.T) {
	n, err := Plan(262144, 512)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if n != 512 {
		t.Errorf("Expected 512 blocks, got %d", n)
	}
	if _, err := Plan(262144, 1000); !errors.Is(err, ErrBadPlan) {
		t.Errorf("Expected ErrBadPlan, got %v", err)
	}
	if _, err := Plan(262144, 0); !errors.Is(err, ErrBadPlan) {
		t.Errorf("Expected ErrBadPlan for zero block size, got %v", err)
	}
	if _, err := Plan(262144, 2); !errors.Is(err, ErrBadPlan) {
		t.Errorf("Expected ErrBadPlan for a block below one flash word, got %v", err)
	}
	if _, err := Plan(2*262144, 512); !errors.Is(err, ErrBadPlan) {
		t.Errorf("Expected ErrBadPlan for a flash size past the part, got %v", err)
	}
	if n, err := Plan(262144, 2048); err != nil || n != 128 {
		t.Errorf("Expected 128 blocks of 2048, got %d, %v", n, err)
	}
}

func TestWriteRejectsBadBlockSizeBeforeErase(t *testing.T) {
	for _, size := range []int{2, 6, 1000} {
		target := newFakeTarget(0xA5)
		opts := DefaultOptions()
		opts.BlockSize = size
		_, err := Write(target, ReaderSource(bytes.NewReader(make([]byte, 64))), opts)
		if !errors.Is(err, ErrBadPlan) {
			t.Errorf("block size %d: expected ErrBadPlan, got %v", size, err)
		}
		if target.erased != 0 || len(target.order) != 0 {
			t.Errorf("block size %d: target touched (%d erases, %d writes)", size, target.erased, len(target.order))
		}
	}
}

func TestWritePadsShortBlock(t *testing.T) {
	target := newFakeTarget(0xA5)
	image := make([]byte, 1300)
	for i := range image {
		image[i] = byte(i)
	}

	var seen []Progress
	opts := DefaultOptions()
	opts.Progress = func(p Progress) { seen = append(seen, p) }
	res, err := Write(target, ReaderSource(bytes.NewReader(image)), opts)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if diff := cmp.Diff([]uint32{0, 512, 1024}, target.order); diff != "" {
		t.Errorf("block order mismatch (-want +got):\n%s", diff)
	}
	last := target.writes[1024]
	if !bytes.Equal(last[:276], image[1024:]) {
		t.Errorf("last block data differs")
	}
	for i := 276; i < 512; i++ {
		if last[i] != 0xFF {
			t.Fatalf("last block byte %d = 0x%02X, expected 0xFF padding", i, last[i])
		}
	}
	if !res.SourceExhausted || res.Blocks != 3 || res.Bytes != 1300 {
		t.Errorf("Unexpected result %+v", res)
	}
	if target.erased != 1 {
		t.Errorf("Expected one erase, got %d", target.erased)
	}
	if len(seen) != 3 || seen[2].Blocks != 512 {
		t.Errorf("Unexpected progress reports %+v", seen)
	}
}

func TestWriteExactBlocks(t *testing.T) {
	target := newFakeTarget(0xB5)
	res, err := Write(target, ReaderSource(bytes.NewReader(make([]byte, 1024))), DefaultOptions())
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if len(target.order) != 2 || !res.SourceExhausted {
		t.Errorf("Expected two blocks and an exhausted source, got %d blocks, %+v", len(target.order), res)
	}
}

func TestWriteUnidentifiedChip(t *testing.T) {
	target := newFakeTarget(0x12)
	var rec status.Recorder
	opts := DefaultOptions()
	opts.Status = &rec

	_, err := Write(target, ReaderSource(bytes.NewReader(make([]byte, 16))), opts)
	if !errors.Is(err, ErrChipUnidentified) {
		t.Fatalf("Expected ErrChipUnidentified, got %v", err)
	}
	if target.erased != 0 || len(target.order) != 0 {
		t.Errorf("Expected no erase or write, got %d erases %d writes", target.erased, len(target.order))
	}
	if diff := cmp.Diff([]status.Level{status.Init, status.Error}, rec.Levels); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestReadEmitsEveryBlock(t *testing.T) {
	target := newFakeTarget(0xA5)
	var sink countingSink
	var rec status.Recorder
	opts := DefaultOptions()
	opts.Status = &rec

	res, err := Read(target, &sink, opts)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if sink.appends != 512 || sink.bytes != 262144 || res.Blocks != 512 {
		t.Errorf("Expected 512 blocks of 512 bytes, got %d appends %d bytes", sink.appends, sink.bytes)
	}
	if rec.Last != [2]int{512, 512} {
		t.Errorf("Expected final progress 512/512, got %v", rec.Last)
	}
	if rec.Levels[len(rec.Levels)-1] != status.Success {
		t.Errorf("Expected success level last, got %v", rec.Levels)
	}
}

func TestReadStopsOnError(t *testing.T) {
	target := newFakeTarget(0xA5)
	target.readErr = errors.New("boom")
	var sink countingSink
	if _, err := Read(target, &sink, DefaultOptions()); err == nil {
		t.Fatal("Expected an error")
	}
	if target.reads != 1 || sink.appends != 0 {
		t.Errorf("Expected to stop after the first block, got %d reads", target.reads)
	}
}
