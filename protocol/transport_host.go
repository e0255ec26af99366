//go:build !tinygo

package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

var (
	ErrTooLong  = errors.New("protocol: message too long")
	ErrStopped  = errors.New("protocol: transport stopped")
	ErrNoAck    = errors.New("protocol: no acknowledgement")
	ErrNoAnswer = errors.New("protocol: no response")
)

// Message is one received message.
type Message struct {
	Sequence uint8
	Payload  []byte
}

// Command decodes the command id at the start of the payload and returns
// the remaining argument bytes.
func (m *Message) Command() (uint16, []byte, error) {
	args := m.Payload
	id, err := DecodeVLQUint(&args)
	return uint16(id), args, err
}

// HostTransport is the host end of the link. A background goroutine
// parses incoming messages into an ack channel and a response channel.
type HostTransport struct {
	port io.ReadWriteCloser
	seq  uint32

	in     *FifoBuffer
	synced bool

	acks      chan *Message
	responses chan *Message

	writeMu  sync.Mutex
	stop     chan struct{}
	stopOnce sync.Once
	closeErr error
	done     chan struct{}
}

// NewHostTransport starts reading from port.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:      port,
		seq:       SeqDest,
		in:        NewFifoBuffer(2048),
		synced:    true,
		acks:      make(chan *Message, 4),
		responses: make(chan *Message, 64),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Send writes one command and waits for its acknowledgement.
func (t *HostTransport) Send(cmdID uint16, args func(OutputBuffer), timeout time.Duration) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	seq := uint8(atomic.LoadUint32(&t.seq))
	out := NewScratchOutput()
	encode(out, seq, func(o OutputBuffer) {
		EncodeVLQUint(o, uint32(cmdID))
		if args != nil {
			args(o)
		}
	})
	msg := out.Result()
	if len(msg) > LengthMax {
		return fmt.Errorf("%w: command %d is %d bytes", ErrTooLong, cmdID, len(msg))
	}

	if _, err := t.port.Write(msg); err != nil {
		return fmt.Errorf("protocol: write: %w", err)
	}
	glog.V(3).Infof("sent cmd %d seq 0x%02x (%d bytes)", cmdID, seq, len(msg))

	deadline := time.After(timeout)
	for {
		select {
		case ack := <-t.acks:
			if ack.Sequence != nextSeq(seq) {
				glog.V(2).Infof("ack seq 0x%02x, want 0x%02x", ack.Sequence, nextSeq(seq))
				continue
			}
			atomic.StoreUint32(&t.seq, uint32(nextSeq(seq)))
			return nil
		case <-deadline:
			return fmt.Errorf("%w for command %d after %v", ErrNoAck, cmdID, timeout)
		case <-t.stop:
			return ErrStopped
		}
	}
}

// Receive waits for the next response message.
func (t *HostTransport) Receive(timeout time.Duration) (*Message, error) {
	select {
	case m := <-t.responses:
		return m, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w after %v", ErrNoAnswer, timeout)
	case <-t.stop:
		return nil, ErrStopped
	}
}

func (t *HostTransport) readLoop() {
	defer close(t.done)
	buf := make([]byte, 256)
	for {
		select {
		case <-t.stop:
			return
		default:
		}
		n, err := t.port.Read(buf)
		if n > 0 {
			t.in.Write(buf[:n])
			t.parse()
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			glog.V(2).Infof("read: %v", err)
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (t *HostTransport) parse() {
	data := t.in.Data()
	for len(data) > 0 {
		if !t.synced {
			data, t.synced = resync(data)
			continue
		}
		if data[0] == SyncByte {
			data = data[1:]
			continue
		}
		n, res := scan(data)
		if res == scanNeedMore {
			break
		}
		if res == scanBad {
			glog.V(2).Info("bad message, resyncing")
			t.synced = false
			continue
		}
		m := &Message{
			Sequence: data[posSeq],
			Payload:  append([]byte(nil), data[HeaderSize:n-TrailerSize]...),
		}
		data = data[n:]
		t.deliver(m)
	}
	if used := t.in.Available() - len(data); used > 0 {
		t.in.Pop(used)
	}
}

func (t *HostTransport) deliver(m *Message) {
	ch := t.responses
	if len(m.Payload) == 0 {
		ch = t.acks
	}
	select {
	case ch <- m:
	default:
		glog.Warningf("dropping message seq 0x%02x, receiver not keeping up", m.Sequence)
	}
}

// Close stops the reader and closes the port. Later calls return the
// first result.
func (t *HostTransport) Close() error {
	t.stopOnce.Do(func() {
		close(t.stop)
		t.closeErr = t.port.Close()
		<-t.done
	})
	return t.closeErr
}

// Reset restarts the sequence and drops anything queued.
func (t *HostTransport) Reset() {
	atomic.StoreUint32(&t.seq, SeqDest)
	for len(t.acks) > 0 {
		<-t.acks
	}
	for len(t.responses) > 0 {
		<-t.responses
	}
}

// Sequence returns the sequence number the next command will carry.
func (t *HostTransport) Sequence() uint8 {
	return uint8(atomic.LoadUint32(&t.seq))
}
