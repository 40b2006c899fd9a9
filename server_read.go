package tftp

import (
	"strconv"

	"github.com/pkg/errors"
)

// ServerReadOperation answers a read request: it negotiates the client's
// options, emits an OACK or the first data block, and drives the data/ack
// loop from the transmit data handler.
type ServerReadOperation struct {
	*operationCore
	cfg TransferConfig

	blockSize int
	lastAcked BlockNumber
}

// NewServerReadOperation creates an operation answering the read request a
// listener decoded. ClientOptions and ResidualOptions must carry the
// request's option split; Remote is the client's TID.
func NewServerReadOperation(r Reactor, cfg TransferConfig) (*ServerReadOperation, error) {
	if cfg.Transmit == nil {
		return nil, errors.New("tftp: read operation requires a transmit data handler")
	}
	core, err := newOperationCore(r, &cfg, "server-read")
	if err != nil {
		return nil, err
	}
	core.bindPeer()
	return &ServerReadOperation{
		operationCore: core,
		cfg:           cfg,
		blockSize:     DefaultBlockSize,
	}, nil
}

// Start launches the transfer. It returns immediately; the outcome is
// delivered to the completion handler.
func (op *ServerReadOperation) Start() {
	go op.run()
}

func (op *ServerReadOperation) run() {
	op.cfg.Transmit.Reset()
	op.setPhase(PhaseOptionNegotiation)

	serverOptions, ok := op.negotiate()
	if !ok {
		return
	}

	if serverOptions.Len() > 0 {
		if err := op.send(&OAckPacket{Opcode: OAck, Options: serverOptions}); err != nil {
			op.finish(StatusCommunicationError, nil)
			return
		}
		// the client answers the OACK with ACK#0, which awaitAck expects
		// explicitly; 0xFFFF is the sentinel previous block while waiting
		op.lastAcked = 0xFFFF
		op.setPhase(PhaseDataTransfer)
		if !op.awaitAck(0) {
			return
		}
		op.lastAcked = 0
	} else {
		op.setPhase(PhaseDataTransfer)
	}

	op.transferLoop()
}

// negotiate applies the server-side decision rules to the client's options
// and builds the option set to acknowledge. Reports false when the
// operation terminated.
func (op *ServerReadOperation) negotiate() (Options, bool) {
	var serverOptions Options

	// residual options first: what the additional negotiator leaves in the
	// map is echoed in the OACK
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
			// an out-of-range client value drops the option, it is not an
			// error
			if requested, valid := blockSizeValue(raw); valid {
				size := requested
				if size > *op.cfg.OptionsConfig.BlockSize {
					size = *op.cfg.OptionsConfig.BlockSize
				}
				op.blockSize = int(size)
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
			size, valid := transferSizeValue(raw)
			if !valid || size != 0 {
				// a read request queries the size with tsize=0; anything
				// else is refused
				op.send(&ErrorPacket{Opcode: Error, Code: TftpOptionRefused, Message: "transfer size must be 0"})
				op.finish(StatusOptionNegotiationError, nil)
				return Options{}, false
			}
			if announced, ok := op.cfg.Transmit.RequestedTransferSize(); ok {
				serverOptions.Set(OptionTransferSize, strconv.FormatUint(announced, 10))
			}
		}
	}

	return serverOptions, true
}

func (op *ServerReadOperation) transferLoop() {
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

// awaitAck waits for the acknowledgement of the given block, ignoring a
// delayed duplicate of the previous one (the sorcerer's apprentice
// mitigation). Reports whether the transfer continues.
func (op *ServerReadOperation) awaitAck(block BlockNumber) bool {
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
