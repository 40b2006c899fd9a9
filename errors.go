package tftp

import "github.com/pkg/errors"

// The error kinds of the protocol core. Every failure inside an operation is
// one of these sentinels, usually wrapped with context; callers branch with
// errors.Is. Operations never return them to the user of the library, they
// are folded into a TransferStatus delivered to the completion handler.
var (
	// ErrInvalidPacket is a packet that could not be decoded: short buffer,
	// missing null terminator, unknown opcode, malformed option list.
	ErrInvalidPacket = errors.New("tftp: invalid packet")

	// ErrOptionNegotiation is an unacceptable OACK or a refused residual
	// option.
	ErrOptionNegotiation = errors.New("tftp: option negotiation failed")

	// ErrCommunication is a socket failure or an exhausted retransmission
	// budget.
	ErrCommunication = errors.New("tftp: communication error")

	// ErrProtocol is a well-formed packet that is wrong for the current
	// state: unexpected opcode, wrong block number, oversized data.
	ErrProtocol = errors.New("tftp: protocol error")

	// ErrAccessPolicy is a data handler refusing the transfer: a rejected
	// transfer size or a block the handler cannot consume or produce.
	ErrAccessPolicy = errors.New("tftp: access policy violation")

	// ErrAborted is an explicit caller abort.
	ErrAborted = errors.New("tftp: transfer aborted")
)
