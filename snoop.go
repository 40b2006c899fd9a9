package tftp

import (
	"net/netip"
	"time"

	"github.com/davecgh/go-spew/spew"
)

// Snoop sends a read request for filename to the server and dumps the
// decoded responses until the transfer ends or goes quiet. Data blocks are
// acknowledged so the server keeps talking. Intended for interactive
// debugging only.
func Snoop(r Reactor, server netip.AddrPort, filename string) error {
	sock, err := r.BindUDP(netip.AddrPort{})
	if err != nil {
		return err
	}
	defer sock.Close()

	req := &ReadWriteRequest{Opcode: Rrq, Filename: filename, Mode: ModeOctet}
	b, err := MarshalPacket(req)
	if err != nil {
		return err
	}
	if err := sock.SendTo(server, b); err != nil {
		return err
	}

	peer := server
	buf := make([]byte, 4+DefaultBlockSize)
	for {
		n, from, err := sock.RecvFrom(buf, 10*time.Second)
		if err != nil {
			return err
		}
		peer = from

		p, err := DecodePacket(buf[:n])
		if err != nil {
			spew.Dump(buf[:n])
			return err
		}
		spew.Dump(p)

		dp, ok := p.(*DataPacket)
		if !ok {
			return nil
		}
		ack, err := MarshalPacket(&AckPacket{Opcode: Ack, BlockNumber: dp.BlockNumber})
		if err != nil {
			return err
		}
		if err := sock.SendTo(peer, ack); err != nil {
			return err
		}
		if len(dp.Data) < DefaultBlockSize {
			return nil
		}
	}
}
