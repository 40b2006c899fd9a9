package tftp

import (
	"net/netip"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// TransferStatus is the terminal outcome of a transfer operation, delivered
// to the completion handler.
type TransferStatus int

const (
	StatusSuccessful TransferStatus = iota
	StatusCommunicationError
	StatusRequestError
	StatusOptionNegotiationError
	StatusTransferError
	StatusAborted
)

// TransferPhase tracks where in its lifecycle an operation currently is.
// It is observability state, not part of the protocol.
type TransferPhase int

const (
	PhaseInitialisation TransferPhase = iota
	PhaseRequest
	PhaseOptionNegotiation
	PhaseDataTransfer
	PhaseUnknown
)

// CompletionHandler is invoked exactly once when an operation terminates.
// The error packet is the one sent or received on failure, nil otherwise.
type CompletionHandler func(TransferStatus, *ErrorPacket)

// TransferConfig configures one transfer operation. The role determines
// which fields apply: Filename and Mode drive client requests;
// ClientOptions and ResidualOptions carry a server operation's view of the
// request it answers. NegotiateAdditional is used by both roles.
type TransferConfig struct {
	// Timeout is the retransmission timeout; zero means DefaultTimeout. A
	// negotiated timeout option overrides it for the rest of the transfer.
	Timeout time.Duration

	// Retries is the number of retransmissions of an unanswered packet
	// before the transfer terminates with a communication error.
	Retries uint16

	// Dally keeps the receiver's socket armed for one extra timeout after
	// the final ACK, to re-acknowledge a retransmitted final data block.
	Dally bool

	// OptionsConfig is the option negotiation policy of this endpoint.
	OptionsConfig OptionsConfig

	// Completion is invoked exactly once at termination.
	Completion CompletionHandler

	// NegotiateAdditional handles the option names the core does not
	// negotiate itself. May be nil.
	NegotiateAdditional OptionNegotiationHandler

	Filename string       // client only
	Mode     TransferMode // client only

	// Remote is the peer: the server's well-known endpoint for a client
	// operation, the client's originating endpoint for a server operation.
	Remote netip.AddrPort

	// Local pins the operation's own endpoint; the zero value picks an
	// ephemeral port.
	Local netip.AddrPort

	ClientOptions   Options // server only: known options of the request
	ResidualOptions Options // server only: remaining options of the request

	// Receive consumes incoming data (client read, server write).
	Receive ReceiveDataHandler

	// Transmit produces outgoing data (client write, server read).
	Transmit TransmitDataHandler

	// Logger is the logging capability; nil uses the standard logger.
	Logger logrus.FieldLogger
}

func (cfg *TransferConfig) withDefaults() {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Mode == ModeInvalid {
		cfg.Mode = ModeOctet
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
}

// operationCore is the shared machinery of the four transfer operations:
// socket lifecycle, the send primitive with retransmission of the exact
// last wire image, inbound dispatch with peer TID binding, the statistics
// counters and the two abort primitives.
type operationCore struct {
	sock    Socket
	timeout time.Duration
	retries uint16
	left    uint16

	recvBuf  []byte
	lastSent []byte
	lastOp   Opcode

	peer      netip.AddrPort
	peerBound bool

	completion CompletionHandler
	log        *logrus.Entry

	mu        sync.Mutex
	phase     TransferPhase
	completed bool
	aborted   bool
	status    TransferStatus
	termErr   *ErrorPacket
}

func newOperationCore(r Reactor, cfg *TransferConfig, role string) (*operationCore, error) {
	cfg.withDefaults()

	sock, err := r.BindUDP(cfg.Local)
	if err != nil {
		return nil, err
	}

	// the receive buffer accomodates the default block size even when a
	// smaller one is requested; it grows when blksize is negotiated up
	size := DefaultBlockSize
	if cfg.OptionsConfig.BlockSize != nil && int(*cfg.OptionsConfig.BlockSize) > size {
		size = int(*cfg.OptionsConfig.BlockSize)
	}

	o := &operationCore{
		sock:       sock,
		timeout:    cfg.Timeout,
		retries:    cfg.Retries,
		recvBuf:    make([]byte, 4+size),
		peer:       cfg.Remote,
		completion: cfg.Completion,
		phase:      PhaseInitialisation,
		log: cfg.Logger.WithFields(logrus.Fields{
			"op":     xid.New().String(),
			"role":   role,
			"remote": cfg.Remote.String(),
		}),
	}
	return o, nil
}

func (o *operationCore) setPhase(p TransferPhase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

// Phase returns the current lifecycle phase of the operation.
func (o *operationCore) Phase() TransferPhase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Status returns the terminal status. Meaningful after completion.
func (o *operationCore) Status() TransferStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// ErrorInfo returns the error packet sent or received at termination, if
// any. Meaningful after completion.
func (o *operationCore) ErrorInfo() *ErrorPacket {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.termErr
}

// growRecv widens the receive buffer after blksize has been negotiated up.
func (o *operationCore) growRecv(blockSize int) {
	if 4+blockSize > len(o.recvBuf) {
		o.recvBuf = make([]byte, 4+blockSize)
	}
}

// send encodes and transmits a packet, keeping the exact wire image for
// retransmission. Sending an error packet captures it as the terminal
// error. The retry budget is re-armed: a fresh packet is forward progress.
func (o *operationCore) send(p Packet) error {
	b, err := MarshalPacket(p)
	if err != nil {
		return err
	}
	if ep, ok := p.(*ErrorPacket); ok {
		o.mu.Lock()
		o.termErr = ep
		o.mu.Unlock()
	}

	o.lastSent = b
	o.lastOp = p.opcode()
	o.left = o.retries

	TransmitStatistic().Packet(o.lastOp, len(b))
	o.log.WithField("packet", o.lastOp.String()).Debug("send")
	return o.sock.SendTo(o.peer, b)
}

// resend retransmits the last sent packet byte for byte.
func (o *operationCore) resend() error {
	if o.lastSent == nil {
		return errors.Wrap(ErrCommunication, "nothing to retransmit")
	}
	TransmitStatistic().Packet(o.lastOp, len(o.lastSent))
	o.log.WithField("packet", o.lastOp.String()).Debug("retransmit")
	return o.sock.SendTo(o.peer, o.lastSent)
}

// replyUnknownTid answers a packet from an unexpected source with an
// unacknowledged error packet, without touching the transfer state.
func (o *operationCore) replyUnknownTid(from netip.AddrPort) {
	p := &ErrorPacket{Opcode: Error, Code: UnknownTransferId, Message: "unknown transfer id"}
	b, err := MarshalPacket(p)
	if err != nil {
		return
	}
	TransmitStatistic().Packet(Error, len(b))
	o.log.WithField("from", from.String()).Info("packet from unexpected transfer id")
	o.sock.SendTo(from, b)
}

// collect waits for the next packet from the bound peer, retransmitting the
// last packet on timeout until the retry budget is exhausted. Packets from
// other sources are answered with an unknown-transfer-id error and ignored.
// The first accepted packet of a client operation binds the peer TID.
//
// Decode failures are answered with an illegal-operation error and reported
// as ErrInvalidPacket; the caller terminates the transfer.
func (o *operationCore) collect() (Packet, error) {
	for {
		n, from, err := o.sock.RecvFrom(o.recvBuf, o.timeout)
		if err != nil {
			if errors.Is(err, ErrRecvTimeout) {
				if o.left > 0 {
					o.left--
					if err := o.resend(); err != nil {
						return nil, err
					}
					continue
				}
				return nil, errors.Wrap(ErrCommunication, "retries exhausted")
			}
			if o.isAborted() {
				return nil, ErrAborted
			}
			return nil, err
		}

		if !o.acceptSource(from) {
			o.replyUnknownTid(from)
			continue
		}

		raw := o.recvBuf[:n]
		p, err := DecodePacket(raw)
		if err != nil {
			ReceiveStatistic().Packet(Invalid, n)
			o.log.WithError(err).Error("undecodable packet")
			o.send(&ErrorPacket{Opcode: Error, Code: IllegalTftpOperation, Message: "invalid packet"})
			return nil, err
		}
		ReceiveStatistic().Packet(p.opcode(), n)

		if !o.peerBound {
			// the first reply's source becomes the permanent peer TID,
			// superseding the well-known server endpoint
			o.peer = from
			o.peerBound = true
			o.log = o.log.WithField("tid", from.String())
		}
		o.left = o.retries

		if ep, ok := p.(*ErrorPacket); ok {
			o.mu.Lock()
			o.termErr = ep
			o.mu.Unlock()
		}
		return p, nil
	}
}

// acceptSource implements the TID check: after binding, only the peer is
// accepted. Before binding (a client waiting for the server's ephemeral
// TID) any port of the requested server address is accepted.
func (o *operationCore) acceptSource(from netip.AddrPort) bool {
	if o.peerBound {
		return from == o.peer
	}
	return from.Addr() == o.peer.Addr()
}

// bindPeer fixes the peer TID up front. Server operations know it from the
// listener before the first packet is sent.
func (o *operationCore) bindPeer() {
	o.peerBound = true
}

// finish terminates the operation: the socket is closed and the completion
// handler runs exactly once. Statistics are updated before this point by
// send/collect, so a completion handler always observes the final counts.
func (o *operationCore) finish(status TransferStatus, ep *ErrorPacket) {
	o.mu.Lock()
	if o.completed {
		o.mu.Unlock()
		return
	}
	o.completed = true
	o.status = status
	if ep != nil {
		o.termErr = ep
	}
	term := o.termErr
	o.mu.Unlock()

	o.sock.Close()
	o.log.WithField("status", status.String()).Info("transfer finished")
	if o.completion != nil {
		o.completion(status, term)
	}
}

func (o *operationCore) isAborted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.aborted
}

func (o *operationCore) markAborted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.completed {
		return false
	}
	o.aborted = true
	return true
}

// Abort terminates the operation immediately without emitting a packet.
// The operation has transitioned to its terminal state when Abort returns;
// an armed receive is cancelled.
func (o *operationCore) Abort() {
	if !o.markAborted() {
		return
	}
	o.finish(StatusAborted, nil)
}

// GracefulAbort emits one final error packet to the peer and terminates the
// operation. A failure to send the packet demotes the terminal status to a
// communication error.
func (o *operationCore) GracefulAbort(code ErrorCode, msg string) {
	if !o.markAborted() {
		return
	}
	status := StatusAborted
	if err := o.send(&ErrorPacket{Opcode: Error, Code: code, Message: msg}); err != nil {
		status = StatusCommunicationError
	}
	o.finish(status, nil)
}

// failProtocol answers a state violation with an illegal-operation error
// and terminates the transfer.
func (o *operationCore) failProtocol(msg string) {
	o.log.WithError(errors.Wrap(ErrProtocol, msg)).Error("protocol violation")
	o.send(&ErrorPacket{Opcode: Error, Code: IllegalTftpOperation, Message: msg})
	o.finish(StatusTransferError, nil)
}

// failAccess answers a data-handler refusal with the given error packet and
// terminates the transfer. The cause, when present, is the error the
// handler returned.
func (o *operationCore) failAccess(code ErrorCode, msg string, cause error) {
	err := errors.Wrap(ErrAccessPolicy, msg)
	if cause != nil {
		err = errors.Wrapf(ErrAccessPolicy, "%s: %v", msg, cause)
	}
	o.log.WithError(err).Error("data handler refused transfer")
	o.send(&ErrorPacket{Opcode: Error, Code: code, Message: msg})
	o.finish(StatusTransferError, nil)
}

// failCollect terminates the transfer after collect reported an error. The
// error packet answering an undecodable packet has already been sent.
func (o *operationCore) failCollect(err error) {
	switch {
	case errors.Is(err, ErrAborted):
		o.finish(StatusAborted, nil)
	case errors.Is(err, ErrInvalidPacket):
		o.finish(StatusTransferError, nil)
	default:
		o.log.WithError(err).Error("transfer failed")
		o.finish(StatusCommunicationError, nil)
	}
}

// dallyWait keeps the receiver's socket armed for one more timeout after
// the final ACK: a retransmitted final data block (the sender missed our
// ACK) is re-acknowledged with the identical ACK. The dally interval is the
// transfer timeout.
func (o *operationCore) dallyWait(finalBlock BlockNumber) {
	for {
		n, from, err := o.sock.RecvFrom(o.recvBuf, o.timeout)
		if err != nil {
			// an elapsed timer or a closed socket both end the dally
			return
		}
		if !o.acceptSource(from) {
			o.replyUnknownTid(from)
			continue
		}
		p, err := DecodePacket(o.recvBuf[:n])
		if err != nil {
			ReceiveStatistic().Packet(Invalid, n)
			continue
		}
		ReceiveStatistic().Packet(p.opcode(), n)
		if dp, ok := p.(*DataPacket); ok && dp.BlockNumber == finalBlock {
			if o.resend() != nil {
				return
			}
		}
	}
}
