package tftp

import (
	"strconv"

	"github.com/pkg/errors"
)

// ServerWriteOperation answers a write request: it negotiates the client's
// options, emits an OACK or ACK#0, and consumes the client's data blocks
// through the receive data handler, optionally dallying after the final
// acknowledgement.
type ServerWriteOperation struct {
	*operationCore
	cfg TransferConfig

	blockSize    int
	lastReceived BlockNumber
}

// NewServerWriteOperation creates an operation answering the write request
// a listener decoded. ClientOptions and ResidualOptions must carry the
// request's option split; Remote is the client's TID.
func NewServerWriteOperation(r Reactor, cfg TransferConfig) (*ServerWriteOperation, error) {
	if cfg.Receive == nil {
		return nil, errors.New("tftp: write operation requires a receive data handler")
	}
	core, err := newOperationCore(r, &cfg, "server-write")
	if err != nil {
		return nil, err
	}
	core.bindPeer()
	return &ServerWriteOperation{
		operationCore: core,
		cfg:           cfg,
		blockSize:     DefaultBlockSize,
	}, nil
}

// Start launches the transfer. It returns immediately; the outcome is
// delivered to the completion handler.
func (op *ServerWriteOperation) Start() {
	go op.run()
}

func (op *ServerWriteOperation) run() {
	op.cfg.Receive.Reset()
	op.setPhase(PhaseOptionNegotiation)

	serverOptions, ok := op.negotiate()
	if !ok {
		return
	}

	var first Packet
	if serverOptions.Len() > 0 {
		first = &OAckPacket{Opcode: OAck, Options: serverOptions}
	} else {
		first = &AckPacket{Opcode: Ack, BlockNumber: 0}
	}
	if err := op.send(first); err != nil {
		op.finish(StatusCommunicationError, nil)
		return
	}

	op.setPhase(PhaseDataTransfer)
	op.receiveLoop()
}

// negotiate applies the server-side decision rules to the client's options
// and builds the option set to acknowledge. Reports false when the
// operation terminated.
func (op *ServerWriteOperation) negotiate() (Options, bool) {
	var serverOptions Options

	if op.cfg.ResidualOptions.Len() > 0 {
		residual := op.cfg.ResidualOptions.Clone()
		if op.cfg.NegotiateAdditional == nil || !op.cfg.NegotiateAdditional(&residual) {
			op.send(&ErrorPacket{Opcode: Error, Code: TftpOptionRefused, Message: "option refused"})
			op.finish(StatusOptionNegotiationError, nil)
			return Options{}, false
		}
		serverOptions = residual
	}

	if op.cfg.OptionsConfig.BlockSize != nil {
		if raw, ok := op.cfg.ClientOptions.Get(OptionBlockSize); ok {
			if requested, valid := blockSizeValue(raw); valid {
				size := requested
				if size > *op.cfg.OptionsConfig.BlockSize {
					size = *op.cfg.OptionsConfig.BlockSize
				}
				op.blockSize = int(size)
				op.growRecv(op.blockSize)
				serverOptions.Set(OptionBlockSize, strconv.FormatUint(uint64(size), 10))
			}
		}
	}

	if op.cfg.OptionsConfig.Timeout != nil {
		if raw, ok := op.cfg.ClientOptions.Get(OptionTimeout); ok {
			if requested, valid := timeoutValue(raw); valid && requested <= *op.cfg.OptionsConfig.Timeout {
				op.timeout = secondsDuration(requested)
				serverOptions.Set(OptionTimeout, strconv.FormatUint(uint64(requested), 10))
			}
		}
	}

	if op.cfg.OptionsConfig.HandleTransferSize {
		if raw, ok := op.cfg.ClientOptions.Get(OptionTransferSize); ok {
			if size, valid := transferSizeValue(raw); valid {
				if !op.cfg.Receive.ReceivedTransferSize(size) {
					op.failAccess(DiskFullOrAllocationExceeds, "FILE TO BIG", nil)
					return Options{}, false
				}
				serverOptions.Set(OptionTransferSize, raw)
			}
		}
	}

	return serverOptions, true
}

func (op *ServerWriteOperation) receiveLoop() {
	for {
		p, err := op.collect()
		if err != nil {
			op.failCollect(err)
			return
		}

		switch p := p.(type) {
		case *DataPacket:
			if op.handleData(p) {
				return
			}
		case *ErrorPacket:
			op.finish(StatusTransferError, p)
			return
		default:
			op.failProtocol("unexpected " + p.opcode().String() + " during write")
			return
		}
	}
}

// handleData consumes one data packet. Reports whether the transfer
// terminated.
func (op *ServerWriteOperation) handleData(p *DataPacket) bool {
	if len(p.Data) > op.blockSize {
		op.failProtocol("data block exceeds negotiated size")
		return true
	}

	if p.BlockNumber == op.lastReceived {
		// client retransmitted a block we acknowledged; re-acknowledge
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
		op.failAccess(DiskFullOrAllocationExceeds, "cannot store data", err)
		return true
	}
	op.lastReceived = p.BlockNumber

	if err := op.send(&AckPacket{Opcode: Ack, BlockNumber: p.BlockNumber}); err != nil {
		op.finish(StatusCommunicationError, nil)
		return true
	}

	if len(p.Data) < op.blockSize {
		if op.cfg.Dally {
			op.dallyWait(op.lastReceived)
		}
		op.cfg.Receive.Finished()
		op.finish(StatusSuccessful, nil)
		return true
	}
	return false
}
