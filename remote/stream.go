package remote

import (
	"io"

	"ccflash/protocol"
)

// ServeStream runs the board side of the message protocol on rw until a
// read fails. Every received batch is answered before the next read.
func ServeStream(rw io.ReadWriter, srv *Server) error {
	in := protocol.NewFifoBuffer(1024)
	out := protocol.NewScratchOutput()
	tr := protocol.NewTransport(out, srv.Handle)

	var werr error
	tr.SetFlushCallback(func() {
		if res := out.Result(); len(res) > 0 && werr == nil {
			_, werr = rw.Write(res)
		}
		out.Reset()
	})
	srv.Bind(tr)
	defer srv.Close()

	buf := make([]byte, 256)
	for {
		n, err := rw.Read(buf)
		if n > 0 {
			in.Write(buf[:n])
			tr.Receive(in)
			tr.Flush()
		}
		if werr != nil {
			return werr
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
