package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/marcinbor85/gohex"

	cccmd "ccflash/command"
	"ccflash/ihex"
	"ccflash/status"
	"ccflash/transfer"
)

func identify() error {
	var chip cccmd.ChipIdentity
	err := supervised(status.Nop{}, func(t transfer.Target) error {
		var err error
		chip, err = t.Identify()
		return err
	})
	if err != nil {
		return err
	}
	if !chip.Known() {
		failColor.Printf("%s\n", chip)
		return transfer.ErrChipUnidentified
	}
	okColor.Printf("%s\n", chip)
	return nil
}

func erase() error {
	ind := status.NewConsole(os.Stdout, 0)
	return supervised(ind, func(t transfer.Target) error {
		chip, err := t.Identify()
		if err != nil {
			return err
		}
		if !chip.Known() {
			return fmt.Errorf("%w: %s", transfer.ErrChipUnidentified, chip)
		}
		ind.Set(status.Running)
		if err := t.Erase(); err != nil {
			ind.Set(status.Error)
			return err
		}
		ind.Set(status.Success)
		return nil
	})
}

func isHex(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".hex", ".ihex", ".ihx":
		return true
	}
	return false
}

func write() error {
	ind := status.NewConsole(os.Stdout, 0)
	opts, err := options(ind)
	if err != nil {
		return err
	}
	var res transfer.Result
	err = supervised(ind, func(t transfer.Target) error {
		// every attempt starts from the top of the file
		f, err := os.Open(*imageFile)
		if err != nil {
			return err
		}
		defer f.Close()

		src := transfer.ReaderSource(f)
		if isHex(*imageFile) {
			src = ihex.NewReader(f)
		}
		res, err = transfer.Write(t, src, opts)
		return err
	})
	if err != nil {
		return err
	}
	okColor.Printf("Wrote %d bytes in %d blocks to %s\n", res.Bytes, res.Blocks, res.Chip)
	return nil
}

func read() error {
	ind := status.NewConsole(os.Stdout, 0)
	opts, err := options(ind)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	var res transfer.Result
	err = supervised(ind, func(t transfer.Target) error {
		buf.Reset()
		var err error
		res, err = transfer.Read(t, transfer.WriterSink(&buf), opts)
		return err
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(*outFile, buf.Bytes(), 0644); err != nil {
		return err
	}
	okColor.Printf("Read %d bytes from %s into %s\n", res.Bytes, res.Chip, *outFile)
	return nil
}

// loadImage returns the image padded with the erased value to the flash
// size.
func loadImage(name string, size int) ([]byte, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if isHex(name) {
		mem := gohex.NewMemory()
		if err := mem.ParseIntelHex(f); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return mem.ToBinary(0, uint32(size), 0xFF), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	if len(data) > size {
		return nil, fmt.Errorf("%s: %d bytes do not fit in %d bytes of flash", name, len(data), size)
	}
	return append(data, bytes.Repeat([]byte{0xFF}, size-len(data))...), nil
}

func verify() error {
	ind := status.NewConsole(os.Stdout, 0)
	opts, err := options(ind)
	if err != nil {
		return err
	}
	want, err := loadImage(*imageFile, *flashSize)
	if err != nil {
		return err
	}
	var got bytes.Buffer
	err = supervised(ind, func(t transfer.Target) error {
		got.Reset()
		_, err := transfer.Read(t, transfer.WriterSink(&got), opts)
		return err
	})
	if err != nil {
		return err
	}

	mismatches, first := compare(want, got.Bytes())
	if mismatches == 0 {
		okColor.Printf("Flash matches %s\n", *imageFile)
		return nil
	}
	glog.V(1).Infof("first mismatch at 0x%05x", first)
	failColor.Printf("%d bytes differ, first at 0x%05x\n", mismatches, first)
	return fmt.Errorf("verify failed")
}

// compare counts differing bytes and returns the first differing offset,
// or -1 when the slices match.
func compare(want, got []byte) (int, int) {
	n, first := 0, -1
	for i := range want {
		if i < len(got) && got[i] == want[i] {
			continue
		}
		if first < 0 {
			first = i
		}
		n++
	}
	return n, first
}
