// Package config carries the configuration surface of the tftp front-ends:
// the command line flags and the key/value settings file.
package config

import (
	"io"

	"github.com/DavidGamba/go-getoptions"
)

// Opts are tftpd compatible flags to configure the behaviour of the server
type Opts struct {
	Address string // --address|-a [address][:port]
	Secure  string // --secure|-s path/to/dir
	Config  string // --config|-c path/to/settings
	Metrics string // --metrics address to expose prometheus metrics on

	BlockSize    int  // --blocksize|-B max-block-size
	Timeout      int  // --timeout|-t secs
	Retransmit   int  // --retransmit|-T count
	TimeoutOpt   int  // --timeout-option max secs to accept for the timeout option
	TransferSize bool // --transfer-size negotiate tsize
	Dally        bool // --dally linger after the final ack
	Create       bool // --create
	Verbose      bool // --verbose|-v
	NoStats      bool // --no-stats
	Version      bool // --version|-V

	Out, Err io.Writer
}

func NewOpts() (*Opts, *getoptions.GetOpt) {
	var opts Opts
	opt := getoptions.New()

	// bundle short options together e.g: -vc
	opt.SetMode(getoptions.Bundling)

	opt.Bool("help", false, opt.Alias("h", "?"))

	opt.StringVar(&opts.Address, "address", ":69", opt.Alias("a"), opt.Description("address and port to listen on. the default is the tftp well-known port on all local interfaces"))
	opt.StringVar(&opts.Secure, "secure", "", opt.Alias("s"), opt.Description("serve and write files only below this directory. all request paths are relative to it"))
	opt.StringVar(&opts.Config, "config", "", opt.Alias("c"), opt.Description("load settings from the given key/value file before applying flags"))
	opt.StringVar(&opts.Metrics, "metrics", "", opt.Description("expose prometheus packet statistics on the given address"))

	opt.IntVar(&opts.BlockSize, "blocksize", 0, opt.Alias("B"), opt.Description("maximum permitted block size. values in the range 8-65464 inclusive are permitted. a reasonable value is MTU - 32"))
	opt.IntVar(&opts.Timeout, "timeout", 2, opt.Alias("t"), opt.Description("seconds to wait for a packet before retransmitting"))
	opt.IntVar(&opts.Retransmit, "retransmit", 1, opt.Alias("T"), opt.Description("number of retransmissions of an unanswered packet before giving up"))
	opt.IntVar(&opts.TimeoutOpt, "timeout-option", 0, opt.Description("maximum timeout option value to accept from clients; 0 refuses the option"))

	opt.BoolVar(&opts.TransferSize, "transfer-size", false, opt.Description("negotiate the transfer size option"))
	opt.BoolVar(&opts.Dally, "dally", false, opt.Description("keep the socket armed after the final acknowledgement to re-ack a retransmitted final block"))
	opt.BoolVar(&opts.Create, "create", false, opt.Description("allow new files to be created. by default only existing files can be updated"))
	opt.BoolVar(&opts.Verbose, "verbose", false, opt.Alias("v"), opt.Description("verbose output"))
	opt.BoolVar(&opts.NoStats, "no-stats", false, opt.Description("disable the global packet statistics"))
	opt.BoolVar(&opts.Version, "version", false, opt.Alias("V"), opt.Description("print the version and exit"))

	return &opts, opt
}
