// Package ihex decodes Intel-HEX text into a flat image stream starting at
// address 0, without holding the whole image in memory. Gaps between
// records read as 0xFF.
package ihex

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var (
	ErrSyntax   = errors.New("ihex: malformed record")
	ErrChecksum = errors.New("ihex: checksum mismatch")
	ErrOverlap  = errors.New("ihex: record goes backwards")
)

// Record types
const (
	recData          = 0x00
	recEOF           = 0x01
	recExtLinearAddr = 0x04
)

// Reader streams the image described by Intel-HEX text.
type Reader struct {
	sc   *bufio.Scanner
	line int

	upper   uint32
	pos     uint32
	pending []byte
	addr    uint32
	eof     bool
}

// NewReader reads records from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{sc: bufio.NewScanner(r)}
}

// Fill copies the next len(buf) image bytes into buf. It returns fewer
// only at the end of the image and 0 once the image is exhausted.
func (r *Reader) Fill(buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		if len(r.pending) == 0 {
			if r.eof {
				break
			}
			if err := r.next(); err != nil {
				return n, err
			}
			continue
		}
		if r.addr < r.pos {
			return n, fmt.Errorf("%w: line %d at 0x%x, already at 0x%x", ErrOverlap, r.line, r.addr, r.pos)
		}
		if gap := r.addr - r.pos; gap > 0 {
			k := len(buf) - n
			if uint32(k) > gap {
				k = int(gap)
			}
			for i := 0; i < k; i++ {
				buf[n+i] = 0xFF
			}
			n += k
			r.pos += uint32(k)
			continue
		}
		k := copy(buf[n:], r.pending)
		r.pending = r.pending[k:]
		r.addr += uint32(k)
		r.pos += uint32(k)
		n += k
	}
	return n, nil
}

// Read implements io.Reader on top of Fill.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := r.Fill(p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// next loads the next data record into pending, or sets eof.
func (r *Reader) next() error {
	for r.sc.Scan() {
		r.line++
		text := bytes.TrimSpace(r.sc.Bytes())
		if len(text) == 0 {
			continue
		}
		rec, err := r.decode(text)
		if err != nil {
			return err
		}
		switch rec[3] {
		case recData:
			if rec[0] == 0 {
				continue
			}
			r.addr = r.upper<<16 | uint32(rec[1])<<8 | uint32(rec[2])
			r.pending = rec[4 : 4+int(rec[0])]
			return nil
		case recEOF:
			r.eof = true
			return nil
		case recExtLinearAddr:
			if rec[0] != 2 {
				return fmt.Errorf("%w: line %d: extended address length %d", ErrSyntax, r.line, rec[0])
			}
			r.upper = uint32(rec[4])<<8 | uint32(rec[5])
		}
		// other record types carry nothing for a flat image
	}
	if err := r.sc.Err(); err != nil {
		return err
	}
	r.eof = true
	return nil
}

func (r *Reader) decode(text []byte) ([]byte, error) {
	if text[0] != ':' || len(text)%2 != 1 {
		return nil, fmt.Errorf("%w: line %d", ErrSyntax, r.line)
	}
	rec := make([]byte, len(text)/2)
	if _, err := hex.Decode(rec, text[1:]); err != nil {
		return nil, fmt.Errorf("%w: line %d: %v", ErrSyntax, r.line, err)
	}
	if len(rec) < 5 || len(rec) != 5+int(rec[0]) {
		return nil, fmt.Errorf("%w: line %d: length", ErrSyntax, r.line)
	}
	var sum byte
	for _, b := range rec {
		sum += b
	}
	if sum != 0 {
		return nil, fmt.Errorf("%w: line %d", ErrChecksum, r.line)
	}
	return rec, nil
}
