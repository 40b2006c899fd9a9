package tftp

import "fmt"

// Human readable descriptions of the protocol enumerations, for logs and
// diagnostics.

func (op Opcode) String() string {
	switch op {
	case Rrq:
		return "RRQ"
	case Wrq:
		return "WRQ"
	case Data:
		return "DATA"
	case Ack:
		return "ACK"
	case Error:
		return "ERROR"
	case OAck:
		return "OACK"
	default:
		return fmt.Sprintf("INVALID(%d)", uint16(op))
	}
}

func (m TransferMode) String() string {
	switch m {
	case ModeOctet:
		return "octet"
	case ModeNetascii:
		return "netascii"
	case ModeMail:
		return "mail"
	default:
		return "invalid"
	}
}

func (c ErrorCode) String() string {
	switch c {
	case NotDefined:
		return "not defined"
	case FileNotFound:
		return "file not found"
	case AccessViolation:
		return "access violation"
	case DiskFullOrAllocationExceeds:
		return "disk full or allocation exceeds"
	case IllegalTftpOperation:
		return "illegal tftp operation"
	case UnknownTransferId:
		return "unknown transfer id"
	case FileAlreadyExists:
		return "file already exists"
	case NoSuchUser:
		return "no such user"
	case TftpOptionRefused:
		return "tftp option refused"
	default:
		return fmt.Sprintf("error code %d", uint16(c))
	}
}

func (s TransferStatus) String() string {
	switch s {
	case StatusSuccessful:
		return "successful"
	case StatusCommunicationError:
		return "communication error"
	case StatusRequestError:
		return "request error"
	case StatusOptionNegotiationError:
		return "option negotiation error"
	case StatusTransferError:
		return "transfer error"
	case StatusAborted:
		return "aborted"
	default:
		return fmt.Sprintf("status %d", int(s))
	}
}

func (p TransferPhase) String() string {
	switch p {
	case PhaseInitialisation:
		return "initialisation"
	case PhaseRequest:
		return "request"
	case PhaseOptionNegotiation:
		return "option negotiation"
	case PhaseDataTransfer:
		return "data transfer"
	default:
		return "unknown"
	}
}
