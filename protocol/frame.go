// Package protocol frames messages between the host tool and the flasher
// firmware over USB CDC. Every message is
//
//	len seq payload... crc_hi crc_lo 0x7E
//
// and the payload is a run of VLQ command ids, each followed by its
// arguments. The receiver acknowledges every message with an empty one
// carrying the next sequence number it expects.
package protocol

// Version of the host/firmware message set.
const Version = "0.1.0"

const (
	HeaderSize  = 2
	TrailerSize = 3
	LengthMin   = HeaderSize + TrailerSize
	// LengthMax leaves room for a 128 byte data chunk plus its header.
	LengthMax = 192

	posLen = 0
	posSeq = 1

	SyncByte = 0x7E
	SeqDest  = 0x10
	SeqMask  = 0x0F
)

// MessageMax is the size of one scratch output buffer.
const MessageMax = 512

type scanResult uint8

const (
	scanNeedMore scanResult = iota
	scanBad
	scanOK
)

// scan checks whether data starts with a complete, valid message and
// returns its length.
func scan(data []byte) (int, scanResult) {
	if len(data) < LengthMin {
		return 0, scanNeedMore
	}
	n := int(data[posLen])
	if n < LengthMin || n > LengthMax {
		return 0, scanBad
	}
	if data[posSeq]&^SeqMask != SeqDest {
		return 0, scanBad
	}
	if len(data) < n {
		return 0, scanNeedMore
	}
	if data[n-1] != SyncByte {
		return 0, scanBad
	}
	crc := uint16(data[n-3])<<8 | uint16(data[n-2])
	if crc != CRC16(data[:n-TrailerSize]) {
		return 0, scanBad
	}
	return n, scanOK
}

// resync drops everything up to and including the next sync byte.
func resync(data []byte) ([]byte, bool) {
	for i, b := range data {
		if b == SyncByte {
			return data[i+1:], true
		}
	}
	return nil, false
}

func nextSeq(seq uint8) uint8 {
	return (seq+1)&SeqMask | SeqDest
}

// encode writes a whole message with seq around the bytes body produces.
func encode(out OutputBuffer, seq uint8, body func(OutputBuffer)) {
	start := out.CurPosition()
	out.Output([]byte{0, seq})
	if body != nil {
		body(out)
	}
	out.Update(start, uint8(len(out.DataSince(start))+TrailerSize))
	crc := CRC16(out.DataSince(start))
	out.Output([]byte{byte(crc >> 8), byte(crc), SyncByte})
}
