package protocol

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSliceInputBuffer(t *testing.T) {
	buf := NewSliceInputBuffer([]byte{1, 2, 3, 4, 5})
	buf.Pop(2)
	if buf.Available() != 3 || buf.Data()[0] != 3 {
		t.Errorf("Expected [3 4 5], got %v", buf.Data())
	}
	buf.Pop(10)
	if buf.Available() != 0 {
		t.Errorf("Expected empty buffer, got %d bytes", buf.Available())
	}
}

func TestScratchOutput(t *testing.T) {
	s := NewScratchOutput()
	s.Output([]byte{1, 2, 3})
	s.Output([]byte{4, 5})
	s.Update(0, 99)
	s.Update(7, 1)

	if diff := cmp.Diff([]byte{99, 2, 3, 4, 5}, s.Result()); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte{3, 4, 5}, s.DataSince(2)); diff != "" {
		t.Errorf("DataSince mismatch (-want +got):\n%s", diff)
	}
	if s.Free() != MessageMax-5 {
		t.Errorf("Expected %d free, got %d", MessageMax-5, s.Free())
	}
	s.Reset()
	if s.CurPosition() != 0 {
		t.Errorf("Expected position 0 after reset, got %d", s.CurPosition())
	}
}

func TestFifoBuffer(t *testing.T) {
	f := NewFifoBuffer(10)
	if !f.IsEmpty() {
		t.Error("Expected new FIFO to be empty")
	}
	if n := f.Write(make([]byte, 12)); n != 9 {
		t.Errorf("Expected 9 bytes to fit a size-10 FIFO, got %d", n)
	}
	if f.Free() != 0 {
		t.Errorf("Expected no free space, got %d", f.Free())
	}
}

func TestFifoBufferWrap(t *testing.T) {
	f := NewFifoBuffer(5)
	f.Write([]byte{1, 2, 3, 4})
	f.Read(make([]byte, 2))
	if n := f.Write([]byte{5, 6}); n != 2 {
		t.Fatalf("Expected 2 bytes written, got %d", n)
	}
	if diff := cmp.Diff([]byte{3, 4, 5, 6}, f.Data()); diff != "" {
		t.Errorf("wrapped Data mismatch (-want +got):\n%s", diff)
	}
	f.Pop(3)
	out := make([]byte, 4)
	if n := f.Read(out); n != 1 || out[0] != 6 {
		t.Errorf("Expected [6], got %v", out[:n])
	}
}
