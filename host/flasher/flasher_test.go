package flasher

import (
	"bytes"
	"net"
	"os"
	"testing"
	"time"

	"ccflash/link"
	"ccflash/remote"
	"ccflash/simtarget"
	"ccflash/transfer"
)

// pipePort fails a second Close the way an *os.File does.
type pipePort struct {
	net.Conn
	flushes int
	closes  int
}

func (p *pipePort) Flush() error {
	p.flushes++
	return nil
}

func (p *pipePort) Close() error {
	p.closes++
	if p.closes > 1 {
		return os.ErrClosed
	}
	return p.Conn.Close()
}

func dialSim(t *testing.T) (*simtarget.Target, *Conn) {
	sim, c, _ := dialSimPort(t)
	return sim, c
}

func dialSimPort(t *testing.T) (*simtarget.Target, *Conn, *pipePort) {
	t.Helper()
	sim := simtarget.New(simtarget.DefaultOptions())
	cfg := transfer.DefaultSessionConfig()
	cfg.Flash.ErasePoll = time.Millisecond
	clock := link.NewFakeClock(time.Millisecond)

	hostEnd, devEnd := net.Pipe()
	srv := remote.NewServer(nil, func() (transfer.Session, error) {
		return transfer.Open(sim, clock, cfg)
	})
	go remote.ServeStream(devEnd, srv)

	port := &pipePort{Conn: hostEnd}
	c := Dial(port)
	t.Cleanup(func() { c.Close() })
	return sim, c, port
}

func TestDialIdentify(t *testing.T) {
	_, c := dialSim(t)
	chip, err := c.Identify()
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if !chip.Known() || chip.ID != 0xA5 {
		t.Errorf("Expected known chip 0xA5, got %v", chip)
	}
	if c.Transport().Sequence() == 0 {
		t.Errorf("Expected sequence to move past the first command")
	}
}

func TestDialWriteThroughConn(t *testing.T) {
	sim, c := dialSim(t)
	opts := transfer.DefaultOptions()
	opts.FlashSize = 2048
	image := bytes.Repeat([]byte{0x12, 0x34}, 300)
	res, err := transfer.Write(c, transfer.ReaderSource(bytes.NewReader(image)), opts)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !res.SourceExhausted || res.Bytes != len(image) {
		t.Errorf("Unexpected result %+v", res)
	}
	if !bytes.Equal(sim.Flash[:len(image)], image) {
		t.Errorf("simulated flash differs from image")
	}
}

func TestCloseTwice(t *testing.T) {
	_, c, port := dialSimPort(t)
	if _, err := c.Identify(); err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := c.Close(); err != nil {
			t.Fatalf("Close %d failed: %v", i+1, err)
		}
	}
	if port.closes != 1 {
		t.Errorf("Expected the port closed once, got %d", port.closes)
	}
}
