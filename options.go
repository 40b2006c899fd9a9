package tftp

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Known option names as specified in rfc2348 and rfc2349. Option names are
// matched case-insensitively on the wire and always emitted lower-case.
const (
	OptionBlockSize    = "blksize"
	OptionTimeout      = "timeout"
	OptionTransferSize = "tsize"
)

// Block size and timeout option bounds from rfc2348 and rfc2349.
const (
	MinBlockSize     = 8
	MaxBlockSize     = 65464
	DefaultBlockSize = 512

	MinTimeoutOption = 1
	MaxTimeoutOption = 255
)

// DefaultTimeout is the retransmission timeout used when none is configured
// or negotiated.
const DefaultTimeout = 2 * time.Second

// DefaultRetries is the number of retransmissions of an unanswered packet
// before a transfer gives up.
const DefaultRetries = 1

// Options is a collection of TFTP option name/value pairs. Lookups are
// case-insensitive; names are stored lower-case and iteration follows
// insertion order, which keeps packet encoding deterministic.
type Options struct {
	names  []string
	values map[string]string
}

// Set adds or replaces an option. The name is normalized to lower-case.
func (o *Options) Set(name, value string) {
	key := strings.ToLower(name)
	if o.values == nil {
		o.values = make(map[string]string)
	}
	if _, ok := o.values[key]; !ok {
		o.names = append(o.names, key)
	}
	o.values[key] = value
}

// Get looks up an option value by name.
func (o Options) Get(name string) (string, bool) {
	v, ok := o.values[strings.ToLower(name)]
	return v, ok
}

// Del removes an option if present.
func (o *Options) Del(name string) {
	key := strings.ToLower(name)
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, n := range o.names {
		if n == key {
			o.names = append(o.names[:i], o.names[i+1:]...)
			break
		}
	}
}

// Len returns the number of options in the collection.
func (o Options) Len() int {
	return len(o.names)
}

// Names returns the option names in insertion order.
func (o Options) Names() []string {
	names := make([]string, len(o.names))
	copy(names, o.names)
	return names
}

// Clone returns an independent copy of the collection.
func (o Options) Clone() Options {
	var c Options
	for _, name := range o.names {
		c.Set(name, o.values[name])
	}
	return c
}

// wireSize is the encoded size of the option list: each pair is two null
// terminated strings.
func (o Options) wireSize() int {
	var n int
	for _, name := range o.names {
		n += len(name) + 1 + len(o.values[name]) + 1
	}
	return n
}

func (o Options) encodeTo(b []byte, at int) int {
	for _, name := range o.names {
		at = putCString(b, at, name)
		at = putCString(b, at, o.values[name])
	}
	return at
}

// parseOptions scans (name NUL value NUL)* over the whole buffer. A missing
// terminator on either string of a pair is a decode failure.
func parseOptions(b []byte) (Options, error) {
	var opts Options
	at := 0
	for at < len(b) {
		name, next, err := cstringAt(b, at)
		if err != nil {
			return Options{}, errors.Wrap(err, "option name")
		}
		if name == "" {
			return Options{}, errors.Wrap(ErrInvalidPacket, "empty option name")
		}
		value, next, err := cstringAt(b, next)
		if err != nil {
			return Options{}, errors.Wrap(err, "option value")
		}
		opts.Set(name, value)
		at = next
	}
	return opts, nil
}

// SplitKnownOptions separates the three options negotiated by the core from
// the residual ones, which are the business of the user-supplied additional
// option negotiator.
func SplitKnownOptions(opts Options) (known, residual Options) {
	for _, name := range opts.Names() {
		v, _ := opts.Get(name)
		switch name {
		case OptionBlockSize, OptionTimeout, OptionTransferSize:
			known.Set(name, v)
		default:
			residual.Set(name, v)
		}
	}
	return known, residual
}

// blockSizeValue parses and range-checks a blksize option value.
func blockSizeValue(s string) (uint16, bool) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil || v < MinBlockSize || v > MaxBlockSize {
		return 0, false
	}
	return uint16(v), true
}

// timeoutValue parses and range-checks a timeout option value.
func timeoutValue(s string) (uint8, bool) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil || v < MinTimeoutOption {
		return 0, false
	}
	return uint8(v), true
}

func secondsDuration(v uint8) time.Duration {
	return time.Duration(v) * time.Second
}

// transferSizeValue parses a tsize option value.
func transferSizeValue(s string) (uint64, bool) {
	v, err := strconv.ParseUint(s, 10, 64)
	return v, err == nil
}

// OptionsConfig is the per-endpoint option negotiation policy. A nil field
// means the option is not negotiated. On the client a set value is
// requested; on the server it is the maximum the server accepts.
type OptionsConfig struct {
	HandleTransferSize bool
	BlockSize          *uint16
	Timeout            *uint8
}

// requestOptions builds the option list a client offers in its RRQ/WRQ.
// For a read request the transfer size is queried with tsize=0; for a write
// request the real size is announced.
func (c OptionsConfig) requestOptions(transferSize *uint64) Options {
	var opts Options
	if c.BlockSize != nil {
		opts.Set(OptionBlockSize, strconv.FormatUint(uint64(*c.BlockSize), 10))
	}
	if c.Timeout != nil {
		opts.Set(OptionTimeout, strconv.FormatUint(uint64(*c.Timeout), 10))
	}
	if c.HandleTransferSize && transferSize != nil {
		opts.Set(OptionTransferSize, strconv.FormatUint(*transferSize, 10))
	}
	return opts
}

// OptionNegotiationHandler negotiates the options the core does not know
// about. The handler may mutate the map; returning false refuses the whole
// set. On the client it runs over the residual options of an OACK and must
// consume (delete) everything it accepts; on the server it runs over the
// residual options of a request and what it leaves in the map is echoed in
// the OACK.
type OptionNegotiationHandler func(*Options) bool

// negotiatedOptions is the outcome of a client-side OACK acceptance check.
type negotiatedOptions struct {
	blockSize    uint16
	timeout      time.Duration
	transferSize *uint64
}

// acceptServerOptions applies the client-side decision rule to a received
// OACK: every acknowledged option must have been requested and its value
// must lie inside the client's accepted range. Residual options are offered
// to the additional-option handler; a refusal or an unconsumed residual
// rejects the OACK.
func acceptServerOptions(requested Options, oack Options, negotiate OptionNegotiationHandler) (negotiatedOptions, error) {
	result := negotiatedOptions{blockSize: DefaultBlockSize}

	var residual Options
	for _, name := range oack.Names() {
		value, _ := oack.Get(name)
		reqValue, wasRequested := requested.Get(name)
		if !wasRequested {
			return result, errors.Wrapf(ErrOptionNegotiation, "server acknowledged option %q that was not requested", name)
		}

		switch name {
		case OptionBlockSize:
			v, ok := blockSizeValue(value)
			req, _ := blockSizeValue(reqValue)
			if !ok || v > req {
				return result, errors.Wrapf(ErrOptionNegotiation, "block size %q outside accepted range", value)
			}
			result.blockSize = v
		case OptionTimeout:
			v, ok := timeoutValue(value)
			req, _ := timeoutValue(reqValue)
			if !ok || v > req {
				return result, errors.Wrapf(ErrOptionNegotiation, "timeout %q outside accepted range", value)
			}
			result.timeout = time.Duration(v) * time.Second
		case OptionTransferSize:
			v, ok := transferSizeValue(value)
			if !ok {
				return result, errors.Wrapf(ErrOptionNegotiation, "transfer size %q not a valid value", value)
			}
			// A non-zero requested tsize announces the size of a write;
			// the echo must match.
			if req, _ := transferSizeValue(reqValue); req != 0 && v != req {
				return result, errors.Wrapf(ErrOptionNegotiation, "transfer size echo %d does not match announced %d", v, req)
			}
			result.transferSize = &v
		default:
			residual.Set(name, value)
		}
	}

	if residual.Len() > 0 {
		if negotiate == nil || !negotiate(&residual) || residual.Len() > 0 {
			return result, errors.Wrapf(ErrOptionNegotiation, "residual options %v refused", residual.Names())
		}
	}

	return result, nil
}
