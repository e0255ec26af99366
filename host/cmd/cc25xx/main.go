// Command cc25xx reads, writes and verifies CC25xx flash through a
// flasher board attached over USB serial.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/golang/glog"
	flag "github.com/spf13/pflag"

	"ccflash/host/flasher"
	"ccflash/host/serial"
	"ccflash/status"
	"ccflash/transfer"
)

type command struct {
	name     string
	handler  func() error
	short    string
	required []string
	optional []string
}

var (
	commands = []command{
		{"identify", identify, "Print the chip id and revision", nil, []string{"port"}},
		{"erase", erase, "Erase the whole flash", nil, []string{"port"}},
		{"write", write, "Erase and program an image (.hex or .bin)", []string{"image"}, []string{"port", "block-size", "flash-size"}},
		{"read", read, "Dump flash to a binary file", []string{"out"}, []string{"port", "block-size", "flash-size"}},
		{"verify", verify, "Compare flash against an image", []string{"image"}, []string{"port", "block-size", "flash-size"}},
		{"console", console, "Interactive shell", nil, []string{"port"}},
	}

	port      = flag.StringP("port", "p", "/dev/ttyACM0", "Serial device of the flasher board")
	baud      = flag.Int("baud", 115200, "Baud rate, ignored by USB CDC")
	imageFile = flag.StringP("image", "i", "", "Image to write or verify")
	outFile   = flag.StringP("out", "o", "", "File to store the flash dump in")
	blockSize = flag.Int("block-size", 512, "Transfer block size")
	flashSize = flag.Int("flash-size", 256*1024, "Flash size in bytes")
	attempts  = flag.Int("attempts", 1, "Start over this many times on failure")
	retryWait = flag.Duration("retry-delay", 2*time.Second, "Delay between attempts")
	simulate  = flag.Bool("sim", false, "Talk to a simulated board instead of --port")
	noColor   = flag.Bool("no-color", false, "Disable colored output")
)

func run() error {
	if flag.NArg() == 0 || flag.Arg(0) == "help" {
		flag.Usage()
		return nil
	}
	name := flag.Arg(0)
	for _, c := range commands {
		if c.name == name {
			if err := checkFlags(c.required); err != nil {
				return err
			}
			return c.handler()
		}
	}
	return fmt.Errorf("unknown command %q", name)
}

func main() {
	initFlags()
	flag.Parse()
	if *noColor {
		color.NoColor = true
	}

	if err := run(); err != nil {
		glog.Infof("Error: %+v", err)
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// connect opens the board named by --port, or an in-process simulated
// one with --sim.
func connect() (*flasher.Conn, error) {
	if *simulate {
		return simulated(), nil
	}
	cfg := serial.DefaultConfig(*port)
	cfg.Baud = *baud
	return flasher.ConnectWithConfig(cfg)
}

// supervised runs op under the retry policy set by --attempts.
func supervised(ind status.Indicator, op func(transfer.Target) error) error {
	s := &transfer.Supervisor{
		RetryDelay: *retryWait,
		Attempts:   *attempts,
		Status:     ind,
		Open: func() (transfer.Session, error) {
			c, err := connect()
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
	return s.Run(op)
}

// options checks the block plan up front so a bad --block-size fails
// before the port is opened.
func options(ind status.Indicator) (transfer.Options, error) {
	if _, err := transfer.Plan(*flashSize, *blockSize); err != nil {
		return transfer.Options{}, err
	}
	return transfer.Options{
		FlashSize: *flashSize,
		BlockSize: *blockSize,
		Status:    ind,
	}, nil
}

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	infoColor = color.New(color.FgCyan)
)
