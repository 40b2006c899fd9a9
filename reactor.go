package tftp

import (
	"context"
	"net"
	"net/netip"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// Reactor is the scheduling capability of the protocol core: it binds UDP
// sockets whose receives can be armed with a timeout. Each transfer
// operation owns one socket for its whole lifetime; the well-known listener
// socket is a second, long-lived one.
type Reactor interface {
	// BindUDP binds a socket to the given local endpoint. The zero
	// netip.AddrPort binds an ephemeral port on all interfaces.
	BindUDP(local netip.AddrPort) (Socket, error)
}

// Socket is one bound UDP endpoint.
type Socket interface {
	// SendTo transmits one datagram to the remote endpoint.
	SendTo(remote netip.AddrPort, b []byte) error

	// RecvFrom waits up to timeout for one datagram. An elapsed timeout is
	// reported as ErrRecvTimeout; closing the socket cancels an armed
	// receive with a non-timeout error.
	RecvFrom(b []byte, timeout time.Duration) (int, netip.AddrPort, error)

	// LocalAddr returns the bound endpoint.
	LocalAddr() netip.AddrPort

	// Close releases the socket and cancels any armed receive.
	Close() error
}

// ErrRecvTimeout reports an armed receive whose timer elapsed before a
// datagram arrived.
var ErrRecvTimeout = errors.New("tftp: receive timed out")

// netReactor is the standard library backed reactor. Timed receives use
// read deadlines; socket options are set per platform at bind time.
type netReactor struct{}

// NewReactor returns a reactor backed by operating system UDP sockets.
func NewReactor() Reactor {
	return netReactor{}
}

func (netReactor) BindUDP(local netip.AddrPort) (Socket, error) {
	cfg := &net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			return c.Control(socketControl)
		},
	}

	addr := ":0"
	if local.IsValid() {
		addr = local.String()
	}
	conn, err := cfg.ListenPacket(context.Background(), "udp", addr)
	if err != nil {
		return nil, errors.Wrapf(ErrCommunication, "bind %s: %v", addr, err)
	}
	udp, ok := conn.(*net.UDPConn)
	if !ok {
		conn.Close()
		return nil, errors.Wrapf(ErrCommunication, "unexpected connection type %T", conn)
	}
	return &netSocket{c: udp}, nil
}

type netSocket struct {
	c *net.UDPConn
}

func (s *netSocket) SendTo(remote netip.AddrPort, b []byte) error {
	if _, err := s.c.WriteToUDPAddrPort(b, remote); err != nil {
		return errors.Wrapf(ErrCommunication, "send to %s: %v", remote, err)
	}
	return nil
}

func (s *netSocket) RecvFrom(b []byte, timeout time.Duration) (int, netip.AddrPort, error) {
	if err := s.c.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, netip.AddrPort{}, errors.Wrapf(ErrCommunication, "set deadline: %v", err)
	}
	n, addr, err := s.c.ReadFromUDPAddrPort(b)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return 0, netip.AddrPort{}, ErrRecvTimeout
		}
		return 0, netip.AddrPort{}, errors.Wrapf(ErrCommunication, "receive: %v", err)
	}
	return n, addr, nil
}

func (s *netSocket) LocalAddr() netip.AddrPort {
	addr, err := netip.ParseAddrPort(s.c.LocalAddr().String())
	if err != nil {
		return netip.AddrPort{}
	}
	return addr
}

func (s *netSocket) Close() error {
	return s.c.Close()
}
