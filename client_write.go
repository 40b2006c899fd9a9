package tftp

import (
	"strconv"

	"github.com/pkg/errors"
)

// ClientWriteOperation performs a write request: it emits a WRQ, negotiates
// options from the server's OACK and drives the data/ack loop, pulling each
// block from the transmit data handler.
type ClientWriteOperation struct {
	*operationCore
	cfg TransferConfig

	blockSize int
	lastAcked BlockNumber
}

// NewClientWriteOperation creates a write operation bound to the reactor.
// The configuration needs at least Remote, Filename, a Transmit handler and
// a Completion handler.
func NewClientWriteOperation(r Reactor, cfg TransferConfig) (*ClientWriteOperation, error) {
	if cfg.Transmit == nil {
		return nil, errors.New("tftp: write operation requires a transmit data handler")
	}
	core, err := newOperationCore(r, &cfg, "client-write")
	if err != nil {
		return nil, err
	}
	return &ClientWriteOperation{
		operationCore: core,
		cfg:           cfg,
		blockSize:     DefaultBlockSize,
	}, nil
}

// Start launches the transfer. It returns immediately; the outcome is
// delivered to the completion handler.
func (op *ClientWriteOperation) Start() {
	go op.run()
}

func (op *ClientWriteOperation) run() {
	op.cfg.Transmit.Reset()
	op.setPhase(PhaseRequest)

	// a write request announces the real transfer size
	var announce *uint64
	if op.cfg.OptionsConfig.HandleTransferSize {
		if size, ok := op.cfg.Transmit.RequestedTransferSize(); ok {
			announce = &size
		}
	}
	requested := op.cfg.OptionsConfig.requestOptions(announce)

	req := &ReadWriteRequest{
		Opcode:   Wrq,
		Filename: op.cfg.Filename,
		Mode:     op.cfg.Mode,
		Options:  requested,
	}
	if err := op.send(req); err != nil {
		op.finish(StatusCommunicationError, nil)
		return
	}

	// await the server's ACK#0 or OACK
	p, err := op.collect()
	if err != nil {
		op.failCollect(err)
		return
	}
	switch p := p.(type) {
	case *AckPacket:
		if p.BlockNumber != 0 {
			op.failProtocol("request acknowledged with block " + strconv.Itoa(int(p.BlockNumber)))
			return
		}
		// options ignored by the server: plain rfc1350 transfer
	case *OAckPacket:
		op.setPhase(PhaseOptionNegotiation)
		negotiated, err := acceptServerOptions(requested, p.Options, op.cfg.NegotiateAdditional)
		if err != nil {
			op.log.WithError(err).Error("option negotiation failed")
			op.send(&ErrorPacket{Opcode: Error, Code: TftpOptionRefused, Message: "option negotiation failed"})
			op.finish(StatusOptionNegotiationError, nil)
			return
		}
		op.blockSize = int(negotiated.blockSize)
		if negotiated.timeout > 0 {
			op.timeout = negotiated.timeout
		}
	case *ErrorPacket:
		op.finish(StatusRequestError, p)
		return
	default:
		op.failProtocol("unexpected " + p.opcode().String() + " answering write request")
		return
	}

	op.setPhase(PhaseDataTransfer)
	op.transferLoop()
}

func (op *ClientWriteOperation) transferLoop() {
	for {
		block := op.lastAcked.Next()
		data, err := op.cfg.Transmit.SendData(op.blockSize)
		if err != nil {
			op.failAccess(AccessViolation, "cannot read data", err)
			return
		}
		final := len(data) < op.blockSize

		if err := op.send(&DataPacket{Opcode: Data, BlockNumber: block, Data: data}); err != nil {
			op.finish(StatusCommunicationError, nil)
			return
		}

		if !op.awaitAck(block) {
			return
		}
		op.lastAcked = block

		if final {
			op.cfg.Transmit.Finished()
			op.finish(StatusSuccessful, nil)
			return
		}
	}
}

// awaitAck waits for the acknowledgement of the given block. A delayed
// duplicate of the previous acknowledgement is ignored without triggering a
// retransmission, which keeps one lost ACK from doubling every subsequent
// data packet (the sorcerer's apprentice syndrome). Reports whether the
// transfer continues.
func (op *ClientWriteOperation) awaitAck(block BlockNumber) bool {
	for {
		p, err := op.collect()
		if err != nil {
			op.failCollect(err)
			return false
		}
		switch p := p.(type) {
		case *AckPacket:
			switch p.BlockNumber {
			case block:
				return true
			case op.lastAcked:
				// delayed duplicate of the previous acknowledgement
				continue
			default:
				op.failProtocol("acknowledgement for block " + strconv.Itoa(int(p.BlockNumber)) +
					" while expecting " + strconv.Itoa(int(block)))
				return false
			}
		case *ErrorPacket:
			op.finish(StatusTransferError, p)
			return false
		default:
			op.failProtocol("unexpected " + p.opcode().String() + " while expecting acknowledgement")
			return false
		}
	}
}
