package tftp

import (
	"net/netip"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultPort is the well-known TFTP server port.
const DefaultPort = 69

// Request is a decoded read or write request handed to the request handler.
// The three options the core negotiates itself are split from the residual
// ones: the handler is responsible for deciding about the residuals only.
type Request struct {
	Remote   netip.AddrPort
	Type     Opcode
	Filename string
	Mode     TransferMode

	KnownOptions    Options
	ResidualOptions Options
}

// RequestHandler decides what to do with an incoming request: spawn a
// server operation (NewServerReadOperation/NewServerWriteOperation with a
// configuration derived from the request), reply with an error
// (Listener.Reject), or ignore it. A panic inside the handler is recovered,
// logged and answered with an illegal-operation error.
type RequestHandler func(l *Listener, req Request)

// Listener owns the well-known server endpoint. It demultiplexes the first
// packet of each transfer and hands decoded requests to the request
// handler; everything after the request runs on the per-transfer ephemeral
// sockets of the spawned operations.
type Listener struct {
	reactor Reactor
	sock    Socket
	log     logrus.FieldLogger
	handler RequestHandler
}

// NewListener binds the well-known endpoint. The zero netip.AddrPort binds
// port 69 on all interfaces.
func NewListener(r Reactor, local netip.AddrPort, log logrus.FieldLogger) (*Listener, error) {
	if !local.IsValid() {
		local = netip.AddrPortFrom(netip.IPv4Unspecified(), DefaultPort)
	}
	sock, err := r.BindUDP(local)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Listener{reactor: r, sock: sock, log: log}, nil
}

// Reactor returns the reactor the listener binds operations on.
func (l *Listener) Reactor() Reactor { return l.reactor }

// Addr returns the bound well-known endpoint.
func (l *Listener) Addr() netip.AddrPort { return l.sock.LocalAddr() }

// Serve accepts requests until the listener is stopped. Each decoded
// request runs through the handler; packets that are not a well-formed RRQ
// or WRQ are answered with an illegal-operation error and dropped.
func (l *Listener) Serve(handler RequestHandler) error {
	l.handler = handler
	buf := make([]byte, 4+MaxBlockSize)

	for {
		// the well-known socket has no transfer timeout; re-arm a long
		// receive so Stop can cancel it promptly
		n, from, err := l.sock.RecvFrom(buf, time.Hour)
		if err != nil {
			if errors.Is(err, ErrRecvTimeout) {
				continue
			}
			return err
		}
		l.accept(from, buf[:n])
	}
}

// Stop closes the well-known socket; Serve returns. Operations already
// spawned keep running on their own sockets.
func (l *Listener) Stop() {
	l.sock.Close()
}

func (l *Listener) accept(from netip.AddrPort, raw []byte) {
	op := packetType(raw)
	if op != Rrq && op != Wrq {
		ReceiveStatistic().Packet(Invalid, len(raw))
		l.log.WithFields(logrus.Fields{"from": from.String(), "packet": op.String()}).
			Info("dropping packet that is not a request")
		l.Reject(from, IllegalTftpOperation, "not a request")
		return
	}

	p, err := DecodePacket(raw)
	if err != nil {
		ReceiveStatistic().Packet(Invalid, len(raw))
		l.log.WithError(err).WithField("from", from.String()).Error("undecodable request")
		l.Reject(from, IllegalTftpOperation, "invalid request")
		return
	}
	ReceiveStatistic().Packet(op, len(raw))

	req := p.(*ReadWriteRequest)
	known, residual := SplitKnownOptions(req.Options)

	defer func() {
		if r := recover(); r != nil {
			l.log.WithField("panic", r).Error("request handler panicked")
			l.Reject(from, IllegalTftpOperation, "internal error")
		}
	}()

	l.handler(l, Request{
		Remote:          from,
		Type:            op,
		Filename:        req.Filename,
		Mode:            req.Mode,
		KnownOptions:    known,
		ResidualOptions: residual,
	})
}

// Reject answers a request with an error packet from the well-known
// endpoint. The error is unacknowledged.
func (l *Listener) Reject(remote netip.AddrPort, code ErrorCode, msg string) {
	b, err := MarshalPacket(&ErrorPacket{Opcode: Error, Code: code, Message: msg})
	if err != nil {
		return
	}
	TransmitStatistic().Packet(Error, len(b))
	l.sock.SendTo(remote, b)
}

// CheckFilename is the path helper exposed to request handlers serving a
// directory tree: it joins the requested name onto the root and reports
// whether the result stays inside it. Access policy beyond that (case
// rules, symlinks) belongs to the host application.
func CheckFilename(root, name string) (string, bool) {
	if root == "" {
		return filepath.Clean(name), true
	}
	joined := filepath.Join(root, filepath.Clean("/"+name))
	rel, err := filepath.Rel(root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return joined, true
}
