// Package tftp implements the TFTP protocol core as specified in rfc1350,
// with the option extension of rfc2347 and the blocksize, timeout and
// transfer size options of rfc2348 and rfc2349.
//
// The package contains the packet codec, the option negotiation rules and
// the four transfer operations (client read/write, server read/write), all
// driven over an abstract Reactor capability. Only the octet transfer mode
// is supported; netascii and mail are recognized on the wire and rejected.
package tftp

import (
	"strings"

	"github.com/pkg/errors"
)

// Packet is a TFTP protocol packet
type Packet interface {
	opcode() Opcode
	marshal() ([]byte, error)
	unmarshal([]byte) error
}

// An Opcode encodes the type of a packet
type Opcode uint16

const (
	Rrq   Opcode = iota + 1 // A Read Request Type
	Wrq                     // A Write Request Type
	Data                    // Data Type
	Ack                     // Acknowledgement Type
	Error                   // Error Type
	OAck                    // Option Acknowledgement Type

	// Invalid marks an unrecognized opcode. It is a decoder-internal
	// sentinel (and the invalid bucket of the packet statistic), it never
	// appears on the wire.
	Invalid Opcode = 0
)

// packetType extracts the opcode from a binary packet. Opcodes outside the
// set {1..6} are reported as Invalid.
func packetType(b []byte) Opcode {
	if len(b) < 2 {
		return Invalid
	}
	op, _ := uint16At(b, 0)
	if op < uint16(Rrq) || op > uint16(OAck) {
		return Invalid
	}
	return Opcode(op)
}

// TransferMode is the transfer mode field of a read/write request.
type TransferMode int

const (
	ModeInvalid TransferMode = iota
	ModeOctet
	ModeNetascii
	ModeMail
)

// ParseTransferMode maps the wire string of a mode to a TransferMode. Mode
// names are matched case-insensitively; an unrecognized name yields
// ModeInvalid, which is not a decode failure but is rejected during request
// handling.
func ParseTransferMode(s string) TransferMode {
	switch strings.ToLower(s) {
	case "octet":
		return ModeOctet
	case "netascii":
		return ModeNetascii
	case "mail":
		return ModeMail
	default:
		return ModeInvalid
	}
}

// DecodePacket decodes a binary packet into its packet structure. All decode
// failures wrap ErrInvalidPacket with a diagnostic.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < 4 {
		return nil, errors.Wrapf(ErrInvalidPacket, "packet of %d bytes below minimum", len(b))
	}

	var p Packet
	switch op := packetType(b); op {
	case Rrq, Wrq:
		p = &ReadWriteRequest{Opcode: op}
	case Data:
		p = &DataPacket{Opcode: op}
	case Ack:
		p = &AckPacket{Opcode: op}
	case Error:
		p = &ErrorPacket{Opcode: op}
	case OAck:
		p = &OAckPacket{Opcode: op}
	default:
		raw, _ := uint16At(b, 0)
		return nil, errors.Wrapf(ErrInvalidPacket, "opcode %d not recognized", raw)
	}

	if err := p.unmarshal(b); err != nil {
		return nil, err
	}
	return p, nil
}

// MarshalPacket turns a structured packet into its binary representation for
// sending over the wire. Encoding is deterministic: options appear in their
// insertion order.
func MarshalPacket(p Packet) ([]byte, error) {
	if p == nil {
		return nil, errors.Wrap(ErrInvalidPacket, "cannot marshal nil packet")
	}
	return p.marshal()
}

// ReadWriteRequest is a TFTP read/write request packet as described in
// RFC1350, apendix I, with the option list extension of rfc2347.
type ReadWriteRequest struct {
	Opcode   Opcode
	Filename string
	Mode     TransferMode

	// ModeString preserves the wire spelling of the mode for diagnostics;
	// matching is done on the parsed Mode.
	ModeString string

	// tftp option extensions are appended to the read/write requests as
	// null terminated string pairs (option => value)
	Options Options
}

func (p ReadWriteRequest) opcode() Opcode {
	return p.Opcode
}

func (p *ReadWriteRequest) unmarshal(b []byte) error {
	filename, at, err := cstringAt(b, 2)
	if err != nil {
		return errors.Wrap(err, "request filename")
	}
	mode, at, err := cstringAt(b, at)
	if err != nil {
		return errors.Wrap(err, "request mode")
	}

	opts, err := parseOptions(b[at:])
	if err != nil {
		return errors.Wrap(err, "request options")
	}

	p.Filename = filename
	p.ModeString = mode
	p.Mode = ParseTransferMode(mode)
	p.Options = opts
	return nil
}

func (p *ReadWriteRequest) marshal() ([]byte, error) {
	mode := p.ModeString
	if mode == "" {
		var err error
		if mode, err = transferModeString(p.Mode); err != nil {
			return nil, err
		}
	}

	data := make([]byte, 2+len(p.Filename)+1+len(mode)+1+p.Options.wireSize())
	at := putUint16(data, 0, uint16(p.Opcode))
	at = putCString(data, at, p.Filename)
	at = putCString(data, at, mode)
	p.Options.encodeTo(data, at)
	return data, nil
}

func transferModeString(m TransferMode) (string, error) {
	switch m {
	case ModeOctet:
		return "octet", nil
	case ModeNetascii:
		return "netascii", nil
	case ModeMail:
		return "mail", nil
	default:
		return "", errors.Wrap(ErrInvalidPacket, "cannot encode invalid transfer mode")
	}
}

// DataPacket is a TFTP data packet as described in RFC1350, apendix I. A
// payload shorter than the negotiated block size marks the final block of a
// transfer.
type DataPacket struct {
	Opcode      Opcode
	BlockNumber BlockNumber
	Data        []byte
}

func (DataPacket) opcode() Opcode {
	return Data
}

func (p *DataPacket) unmarshal(b []byte) error {
	block, at := uint16At(b, 2)
	p.BlockNumber = BlockNumber(block)

	if l := len(b) - at; l > 0 {
		p.Data = make([]byte, l)
		copy(p.Data, b[at:])
	} else {
		p.Data = nil
	}
	return nil
}

func (p *DataPacket) marshal() ([]byte, error) {
	data := make([]byte, 4+len(p.Data))
	at := putUint16(data, 0, uint16(p.Opcode))
	at = putUint16(data, at, uint16(p.BlockNumber))
	copy(data[at:], p.Data)
	return data, nil
}

// AckPacket is a TFTP acknowledgement packet as described in RFC1350,
// apendix I. An ACK is exactly 4 bytes on the wire.
type AckPacket struct {
	Opcode      Opcode
	BlockNumber BlockNumber
}

func (AckPacket) opcode() Opcode {
	return Ack
}

func (p *AckPacket) unmarshal(b []byte) error {
	if len(b) != 4 {
		return errors.Wrapf(ErrInvalidPacket, "ACK of %d bytes, must be exactly 4", len(b))
	}
	block, _ := uint16At(b, 2)
	p.BlockNumber = BlockNumber(block)
	return nil
}

func (p *AckPacket) marshal() ([]byte, error) {
	data := make([]byte, 4)
	at := putUint16(data, 0, uint16(p.Opcode))
	putUint16(data, at, uint16(p.BlockNumber))
	return data, nil
}

// ErrorCode represents a TFTP error code as specified in RFC1350, apendix I,
// extended with the option negotiation code of rfc2347.
type ErrorCode uint16

const (
	NotDefined ErrorCode = iota
	FileNotFound
	AccessViolation
	DiskFullOrAllocationExceeds
	IllegalTftpOperation
	UnknownTransferId
	FileAlreadyExists
	NoSuchUser

	// TftpOptionRefused was introduced in rfc2347. It terminates a
	// connection during option negotiation.
	TftpOptionRefused
)

// ErrorPacket is a TFTP error packet as described in RFC1350, apendix I.
type ErrorPacket struct {
	Opcode  Opcode
	Code    ErrorCode
	Message string
}

func (ErrorPacket) opcode() Opcode {
	return Error
}

func (p *ErrorPacket) unmarshal(b []byte) error {
	if len(b) < 5 {
		return errors.Wrapf(ErrInvalidPacket, "ERR of %d bytes below minimum", len(b))
	}
	code, at := uint16At(b, 2)

	msg, end, err := cstringAt(b, at)
	if err != nil {
		return errors.Wrap(err, "error message")
	}
	if end != len(b) {
		return errors.Wrap(ErrInvalidPacket, "trailing bytes after error message")
	}

	p.Code = ErrorCode(code)
	p.Message = msg
	return nil
}

func (p *ErrorPacket) marshal() ([]byte, error) {
	data := make([]byte, 4+len(p.Message)+1)
	at := putUint16(data, 0, uint16(p.Opcode))
	at = putUint16(data, at, uint16(p.Code))
	putCString(data, at, p.Message)
	return data, nil
}

// OAckPacket is an option acknowledgement packet as specified in rfc2347.
// An OACK carries at least one option.
type OAckPacket struct {
	Opcode  Opcode
	Options Options
}

func (OAckPacket) opcode() Opcode {
	return OAck
}

func (p *OAckPacket) unmarshal(b []byte) error {
	opts, err := parseOptions(b[2:])
	if err != nil {
		return errors.Wrap(err, "option acknowledgement")
	}
	if opts.Len() == 0 {
		return errors.Wrap(ErrInvalidPacket, "OACK with empty option list")
	}
	p.Options = opts
	return nil
}

func (p *OAckPacket) marshal() ([]byte, error) {
	if p.Options.Len() == 0 {
		return nil, errors.Wrap(ErrInvalidPacket, "OACK requires at least one option")
	}
	data := make([]byte, 2+p.Options.wireSize())
	at := putUint16(data, 0, uint16(p.Opcode))
	p.Options.encodeTo(data, at)
	return data, nil
}
