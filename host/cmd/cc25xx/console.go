package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"ccflash/host/flasher"
)

type consoleCmd struct {
	args    string
	help    string
	handler func(c *flasher.Conn, out io.Writer, args []string) error
}

var consoleCmds = map[string]consoleCmd{
	"identify": {"", "print the chip identity", consoleIdentify},
	"erase":    {"", "erase the whole flash", func(c *flasher.Conn, _ io.Writer, _ []string) error { return c.Erase() }},
	"read":     {"ADDR LEN", "hex dump LEN bytes of flash at ADDR", consoleRead},
	"write":    {"ADDR BYTE...", "program bytes at ADDR (word aligned)", consoleWrite},
}

func console() error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer c.Close()
	return repl(c, os.Stdin, os.Stdout)
}

func repl(c *flasher.Conn, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		args, err := shlex.Split(scanner.Text())
		if err != nil {
			failColor.Fprintf(out, "%v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "quit", "exit", "q":
			return nil
		case "help", "?":
			consoleHelp(out)
			continue
		}
		cmd, ok := consoleCmds[args[0]]
		if !ok {
			failColor.Fprintf(out, "unknown command %q, try help\n", args[0])
			continue
		}
		if err := cmd.handler(c, out, args[1:]); err != nil {
			failColor.Fprintf(out, "%v\n", err)
			continue
		}
		okColor.Fprintln(out, "ok")
	}
}

func consoleHelp(out io.Writer) {
	for _, name := range []string{"identify", "erase", "read", "write"} {
		cmd := consoleCmds[name]
		fmt.Fprintf(out, "  %-8s %-12s %s\n", name, cmd.args, cmd.help)
	}
	fmt.Fprintf(out, "  %-8s %-12s %s\n", "quit", "", "leave the console")
}

func consoleIdentify(c *flasher.Conn, out io.Writer, _ []string) error {
	chip, err := c.Identify()
	if err != nil {
		return err
	}
	infoColor.Fprintf(out, "%s\n", chip)
	return nil
}

func parseNum(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return v, nil
}

func consoleRead(c *flasher.Conn, out io.Writer, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: read ADDR LEN")
	}
	addr, err := parseNum(args[0], 32)
	if err != nil {
		return err
	}
	n, err := parseNum(args[1], 32)
	if err != nil {
		return err
	}
	if n == 0 || n > 64*1024 {
		return fmt.Errorf("length must be between 1 and 65536")
	}
	buf := make([]byte, n)
	if err := c.ReadBlock(uint32(addr), buf); err != nil {
		return err
	}
	fmt.Fprintln(out, strings.TrimRight(hex.Dump(buf), "\n"))
	return nil
}

func consoleWrite(c *flasher.Conn, _ io.Writer, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: write ADDR BYTE...")
	}
	addr, err := parseNum(args[0], 32)
	if err != nil {
		return err
	}
	data := make([]byte, 0, len(args)-1)
	for _, a := range args[1:] {
		v, err := parseNum(a, 8)
		if err != nil {
			return err
		}
		data = append(data, byte(v))
	}
	return c.WriteBlock(uint32(addr), data)
}
