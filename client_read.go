package tftp

import (
	"strconv"

	"github.com/pkg/errors"
)

// ClientReadOperation performs a read request: it emits an RRQ, negotiates
// options from the server's OACK and drives the data/ack loop, handing each
// block to the receive data handler.
type ClientReadOperation struct {
	*operationCore
	cfg TransferConfig

	blockSize    int
	lastReceived BlockNumber
}

// NewClientReadOperation creates a read operation bound to the reactor. The
// configuration needs at least Remote, Filename, a Receive handler and a
// Completion handler.
func NewClientReadOperation(r Reactor, cfg TransferConfig) (*ClientReadOperation, error) {
	if cfg.Receive == nil {
		return nil, errors.New("tftp: read operation requires a receive data handler")
	}
	core, err := newOperationCore(r, &cfg, "client-read")
	if err != nil {
		return nil, err
	}
	return &ClientReadOperation{
		operationCore: core,
		cfg:           cfg,
		blockSize:     DefaultBlockSize,
	}, nil
}

// Start launches the transfer. It returns immediately; the outcome is
// delivered to the completion handler.
func (op *ClientReadOperation) Start() {
	go op.run()
}

func (op *ClientReadOperation) run() {
	op.cfg.Receive.Reset()
	op.setPhase(PhaseRequest)

	// a read request queries the transfer size with tsize=0
	var tsizeQuery uint64
	requested := op.cfg.OptionsConfig.requestOptions(&tsizeQuery)

	req := &ReadWriteRequest{
		Opcode:   Rrq,
		Filename: op.cfg.Filename,
		Mode:     op.cfg.Mode,
		Options:  requested,
	}
	if err := op.send(req); err != nil {
		op.finish(StatusCommunicationError, nil)
		return
	}

	for {
		p, err := op.collect()
		if err != nil {
			op.failCollect(err)
			return
		}

		switch p := p.(type) {
		case *DataPacket:
			// the server ignored the options: plain rfc1350 transfer
			op.setPhase(PhaseDataTransfer)
			if op.handleData(p) {
				return
			}
		case *OAckPacket:
			if op.Phase() != PhaseRequest {
				op.failProtocol("OACK after option negotiation finished")
				return
			}
			op.setPhase(PhaseOptionNegotiation)
			if !op.handleOAck(p, requested) {
				return
			}
			op.setPhase(PhaseDataTransfer)
		case *ErrorPacket:
			if op.Phase() == PhaseRequest {
				op.finish(StatusRequestError, p)
			} else {
				op.finish(StatusTransferError, p)
			}
			return
		default:
			op.failProtocol("unexpected " + p.opcode().String() + " during read")
			return
		}
	}
}

// handleOAck validates the server's option acknowledgement and answers it
// with ACK#0. Reports whether the transfer continues.
func (op *ClientReadOperation) handleOAck(p *OAckPacket, requested Options) bool {
	negotiated, err := acceptServerOptions(requested, p.Options, op.cfg.NegotiateAdditional)
	if err != nil {
		op.log.WithError(err).Error("option negotiation failed")
		op.send(&ErrorPacket{Opcode: Error, Code: TftpOptionRefused, Message: "option negotiation failed"})
		op.finish(StatusOptionNegotiationError, nil)
		return false
	}

	op.blockSize = int(negotiated.blockSize)
	op.growRecv(op.blockSize)
	if negotiated.timeout > 0 {
		op.timeout = negotiated.timeout
	}
	if negotiated.transferSize != nil {
		if !op.cfg.Receive.ReceivedTransferSize(*negotiated.transferSize) {
			op.failAccess(DiskFullOrAllocationExceeds,
				"transfer size "+strconv.FormatUint(*negotiated.transferSize, 10)+" refused", nil)
			return false
		}
	}

	if err := op.send(&AckPacket{Opcode: Ack, BlockNumber: 0}); err != nil {
		op.finish(StatusCommunicationError, nil)
		return false
	}
	return true
}

// handleData consumes one data packet. Reports whether the transfer
// terminated.
func (op *ClientReadOperation) handleData(p *DataPacket) bool {
	if len(p.Data) > op.blockSize {
		op.failProtocol("data block exceeds negotiated size")
		return true
	}

	if p.BlockNumber == op.lastReceived {
		// the peer retransmitted a block we acknowledged: our ACK was
		// lost. Re-acknowledge without handing the data down again.
		if op.resend() != nil {
			op.finish(StatusCommunicationError, nil)
			return true
		}
		return false
	}

	if p.BlockNumber != op.lastReceived.Next() {
		op.failProtocol("data block " + strconv.Itoa(int(p.BlockNumber)) + " out of sequence")
		return true
	}

	if err := op.cfg.Receive.ReceivedData(p.Data); err != nil {
		op.failAccess(AccessViolation, "cannot store data", err)
		return true
	}
	op.lastReceived = p.BlockNumber

	if err := op.send(&AckPacket{Opcode: Ack, BlockNumber: p.BlockNumber}); err != nil {
		op.finish(StatusCommunicationError, nil)
		return true
	}

	if len(p.Data) < op.blockSize {
		// short block: the transfer is complete
		if op.cfg.Dally {
			op.dallyWait(op.lastReceived)
		}
		op.cfg.Receive.Finished()
		op.finish(StatusSuccessful, nil)
		return true
	}
	return false
}
