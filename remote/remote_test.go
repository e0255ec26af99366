package remote

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"ccflash/link"
	"ccflash/protocol"
	"ccflash/simtarget"
	"ccflash/transfer"
)

func newPair(t *testing.T, opts simtarget.Options) (*simtarget.Target, *Client) {
	t.Helper()
	sim := simtarget.New(opts)
	cfg := transfer.DefaultSessionConfig()
	cfg.Link.Timeout = 200 * time.Millisecond
	cfg.Flash.ErasePoll = 10 * time.Millisecond
	clock := link.NewFakeClock(time.Millisecond)

	srv := NewServer(nil, func() (transfer.Session, error) {
		return transfer.Open(sim, clock, cfg)
	})
	hostEnd, devEnd := net.Pipe()
	go ServeStream(devEnd, srv)

	c := NewClient(protocol.NewHostTransport(hostEnd))
	t.Cleanup(func() { c.Close() })
	return sim, c
}

func TestRemoteIdentify(t *testing.T) {
	_, c := newPair(t, simtarget.DefaultOptions())
	chip, err := c.Identify()
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if chip.Name != "CC2530" || chip.Revision != 0x24 {
		t.Errorf("Expected CC2530 rev 0x24, got %v", chip)
	}
}

func TestRemoteWriteAndRead(t *testing.T) {
	sim, c := newPair(t, simtarget.DefaultOptions())

	image := make([]byte, 1300)
	for i := range image {
		image[i] = byte(i*7 + 1)
	}
	opts := transfer.DefaultOptions()
	opts.FlashSize = 4096
	if _, err := transfer.Write(c, transfer.ReaderSource(bytes.NewReader(image)), opts); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !bytes.Equal(sim.Flash[:1300], image) {
		t.Errorf("simulated flash differs from image")
	}

	var out bytes.Buffer
	if _, err := transfer.Read(c, transfer.WriterSink(&out), opts); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(out.Bytes()[:1300], image) {
		t.Errorf("read back differs from image")
	}
	if out.Len() != 4096 || out.Bytes()[4095] != 0xFF {
		t.Errorf("Expected 4096 bytes with erased tail, got %d", out.Len())
	}
}

func TestRemoteErrorsKeepIdentity(t *testing.T) {
	opts := simtarget.DefaultOptions()
	opts.Hang = true
	_, c := newPair(t, opts)

	_, err := c.Identify()
	if !errors.Is(err, link.ErrTimeout) {
		t.Errorf("Expected link.ErrTimeout across the wire, got %v", err)
	}
}

func TestRemoteUnidentifiedChip(t *testing.T) {
	opts := simtarget.DefaultOptions()
	opts.ChipID = 0x01
	sim, c := newPair(t, opts)

	_, err := transfer.Write(c, transfer.ReaderSource(bytes.NewReader([]byte{1, 2, 3, 4})), transfer.DefaultOptions())
	if !errors.Is(err, transfer.ErrChipUnidentified) {
		t.Errorf("Expected ErrChipUnidentified, got %v", err)
	}
	if sim.Erases != 0 {
		t.Errorf("Expected no erase, got %d", sim.Erases)
	}
}

func TestStatusCodes(t *testing.T) {
	for _, se := range statusErrors {
		err := StatusError(StatusCode(se.err), "x")
		if !errors.Is(err, se.err) {
			t.Errorf("code %d does not round trip to %v", se.code, se.err)
		}
	}
	if StatusCode(nil) != StatusOK || StatusError(StatusOK, "") != nil {
		t.Errorf("Expected OK to map to nil")
	}
	if StatusCode(errors.New("other")) != StatusFailed {
		t.Errorf("Expected unknown errors to map to StatusFailed")
	}
}
