package main

import (
	"net"

	"github.com/golang/glog"

	"ccflash/host/flasher"
	"ccflash/link"
	"ccflash/remote"
	"ccflash/simtarget"
	"ccflash/transfer"
)

// board is shared by every connection of one run so a write can be read
// back by the console.
var board *simtarget.Target

// simulated wires a Conn to an in-process flasher board.
func simulated() *flasher.Conn {
	if board == nil {
		board = simtarget.New(simtarget.DefaultOptions())
	}
	hostEnd, devEnd := net.Pipe()
	srv := remote.NewServer(nil, func() (transfer.Session, error) {
		return transfer.Open(board, link.SystemClock{}, transfer.DefaultSessionConfig())
	})
	go func() {
		if err := remote.ServeStream(devEnd, srv); err != nil {
			glog.V(1).Infof("simulated board: %v", err)
		}
	}()
	return flasher.Dial(pipePort{hostEnd})
}

type pipePort struct {
	net.Conn
}

func (pipePort) Flush() error { return nil }
