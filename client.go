package tftp

import (
	"net/netip"

	"github.com/sirupsen/logrus"
)

// Client produces transfer operations bound to one reactor, composing the
// per-request fields onto a base configuration. The zero value is not
// usable; create clients with NewClient.
type Client struct {
	reactor Reactor
	base    TransferConfig
}

// NewClient returns a client factory. The base configuration supplies the
// defaults every produced operation starts from: timeout, retries, option
// policy, logger. Per-request fields of the base (handlers, filename,
// completion) are ignored.
func NewClient(r Reactor, base TransferConfig) *Client {
	if r == nil {
		r = NewReactor()
	}
	if base.Logger == nil {
		base.Logger = logrus.StandardLogger()
	}
	return &Client{reactor: r, base: base}
}

// compose merges the per-request fields onto the base configuration.
func (c *Client) compose(remote netip.AddrPort, filename string, completion CompletionHandler) TransferConfig {
	cfg := c.base
	cfg.Remote = remote
	cfg.Filename = filename
	cfg.Completion = completion
	return cfg
}

// Read creates a started read operation fetching filename from the server.
// The outcome arrives at the completion handler.
func (c *Client) Read(remote netip.AddrPort, filename string, to ReceiveDataHandler, completion CompletionHandler) (*ClientReadOperation, error) {
	cfg := c.compose(remote, filename, completion)
	cfg.Receive = to
	op, err := NewClientReadOperation(c.reactor, cfg)
	if err != nil {
		return nil, err
	}
	op.Start()
	return op, nil
}

// Write creates a started write operation storing filename on the server.
// The outcome arrives at the completion handler.
func (c *Client) Write(remote netip.AddrPort, filename string, from TransmitDataHandler, completion CompletionHandler) (*ClientWriteOperation, error) {
	cfg := c.compose(remote, filename, completion)
	cfg.Transmit = from
	op, err := NewClientWriteOperation(c.reactor, cfg)
	if err != nil {
		return nil, err
	}
	op.Start()
	return op, nil
}

// result couples a terminal status with its optional error packet.
type result struct {
	status TransferStatus
	errPkt *ErrorPacket
}

// Get fetches filename from the server, blocking until the transfer
// terminates.
func (c *Client) Get(remote netip.AddrPort, filename string, to ReceiveDataHandler) (TransferStatus, *ErrorPacket, error) {
	done := make(chan result, 1)
	_, err := c.Read(remote, filename, to, func(st TransferStatus, ep *ErrorPacket) {
		done <- result{st, ep}
	})
	if err != nil {
		return StatusCommunicationError, nil, err
	}
	r := <-done
	return r.status, r.errPkt, nil
}

// Put stores filename on the server, blocking until the transfer
// terminates.
func (c *Client) Put(remote netip.AddrPort, filename string, from TransmitDataHandler) (TransferStatus, *ErrorPacket, error) {
	done := make(chan result, 1)
	_, err := c.Write(remote, filename, from, func(st TransferStatus, ep *ErrorPacket) {
		done <- result{st, ep}
	})
	if err != nil {
		return StatusCommunicationError, nil, err
	}
	r := <-done
	return r.status, r.errPkt, nil
}
