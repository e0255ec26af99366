package protocol

import "sync/atomic"

// CommandHandler consumes one command's arguments from args.
type CommandHandler func(cmdID uint16, args *[]byte) error

// Transport is the firmware end of the link. It validates incoming
// messages, hands their commands to the handler in order and answers each
// with an acknowledgement.
type Transport struct {
	synced uint32
	expect uint32 // next sequence expected from the host

	out     OutputBuffer
	handler CommandHandler
	onReset func()
	onFlush func()

	// HandlerErrors counts commands the handler rejected.
	HandlerErrors uint32
}

// NewTransport writes replies to out and dispatches to handler.
func NewTransport(out OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{synced: 1, expect: SeqDest, out: out, handler: handler}
}

// Receive consumes every complete message in in. Partial messages stay
// buffered for the next call.
func (t *Transport) Receive(in InputBuffer) {
	data := in.Data()
	for len(data) > 0 {
		if atomic.LoadUint32(&t.synced) == 0 {
			var ok bool
			if data, ok = resync(data); ok {
				atomic.StoreUint32(&t.synced, 1)
				t.ack()
			}
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
			atomic.StoreUint32(&t.synced, 0)
			continue
		}

		seq := data[posSeq]
		frame := data[HeaderSize : n-TrailerSize]
		data = data[n:]

		expect := uint8(atomic.LoadUint32(&t.expect))
		if seq == SeqDest && expect != SeqDest {
			// host restarted its sequence
			expect = SeqDest
			atomic.StoreUint32(&t.expect, SeqDest)
			if t.onReset != nil {
				t.onReset()
			}
		}
		if seq == expect {
			atomic.StoreUint32(&t.expect, uint32(nextSeq(seq)))
			t.dispatch(frame)
		}
		// a stale sequence gets the ack as a nak
		t.ack()
	}
	if used := in.Available() - len(data); used > 0 {
		in.Pop(used)
	}
}

func (t *Transport) dispatch(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			atomic.StoreUint32(&t.synced, 0)
		}
	}()
	for len(frame) > 0 {
		id, err := DecodeVLQUint(&frame)
		if err != nil {
			atomic.StoreUint32(&t.synced, 0)
			return
		}
		if t.handler == nil {
			return
		}
		if err := t.handler(uint16(id), &frame); err != nil {
			t.HandlerErrors++
			return
		}
	}
}

func (t *Transport) ack() {
	encode(t.out, uint8(atomic.LoadUint32(&t.expect)), nil)
	t.Flush()
}

// Send queues one command message.
func (t *Transport) Send(cmdID uint16, args func(OutputBuffer)) {
	encode(t.out, uint8(atomic.LoadUint32(&t.expect)), func(out OutputBuffer) {
		EncodeVLQUint(out, uint32(cmdID))
		if args != nil {
			args(out)
		}
	})
}

// Flush pushes queued output through the flush callback, if any.
func (t *Transport) Flush() {
	if t.onFlush != nil {
		t.onFlush()
	}
}

// Reset forgets the sequence state, for example after a USB reconnect.
func (t *Transport) Reset() {
	atomic.StoreUint32(&t.synced, 1)
	atomic.StoreUint32(&t.expect, SeqDest)
	if t.onReset != nil {
		t.onReset()
	}
}

func (t *Transport) SetResetCallback(fn func()) { t.onReset = fn }

// SetFlushCallback installs the function that drains the output buffer.
func (t *Transport) SetFlushCallback(fn func()) { t.onFlush = fn }
