// tftpget is the client front-end of the tftp package: it fetches a file
// from, or stores one on, a TFTP server.
//
//	tftpget [flags] get host[:port] remote-file [local-file]
//	tftpget [flags] put host[:port] local-file [remote-file]
package main

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/DavidGamba/go-getoptions"
	"github.com/sirupsen/logrus"

	"github.com/trivialnet/tftp"
)

type flags struct {
	blockSize    int
	timeout      int
	retransmit   int
	timeoutOpt   int
	transferSize bool
	verbose      bool
}

func main() {
	var f flags
	opt := getoptions.New()
	opt.SetMode(getoptions.Bundling)
	opt.Bool("help", false, opt.Alias("h", "?"))
	opt.IntVar(&f.blockSize, "blocksize", 0, opt.Alias("B"), opt.Description("request this block size (8-65464)"))
	opt.IntVar(&f.timeout, "timeout", 2, opt.Alias("t"), opt.Description("seconds to wait before retransmitting"))
	opt.IntVar(&f.retransmit, "retransmit", 1, opt.Alias("T"), opt.Description("retransmissions before giving up"))
	opt.IntVar(&f.timeoutOpt, "timeout-option", 0, opt.Description("request this timeout option value (1-255)"))
	opt.BoolVar(&f.transferSize, "transfer-size", false, opt.Description("negotiate the transfer size option"))
	opt.BoolVar(&f.verbose, "verbose", false, opt.Alias("v"), opt.Description("verbose output"))

	args, err := opt.Parse(os.Args[1:])
	if opt.Called("help") || len(args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: tftpget [flags] get|put host[:port] file [file]")
		fmt.Fprintln(os.Stderr, opt.Help())
		os.Exit(1)
	}
	if err != nil {
		logrus.Fatalf("tftpget: %v", err)
	}

	log := logrus.New()
	if f.verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	verb, host := args[0], args[1]
	remote, err := resolve(host)
	if err != nil {
		log.Fatalf("bad server address %q: %v", host, err)
	}

	client := tftp.NewClient(tftp.NewReactor(), tftp.TransferConfig{
		Timeout:       time.Duration(f.timeout) * time.Second,
		Retries:       uint16(f.retransmit),
		OptionsConfig: optionsConfig(f),
		Mode:          tftp.ModeOctet,
		Logger:        log,
	})

	switch verb {
	case "get":
		local := args[2]
		if len(args) > 3 {
			local = args[3]
		}
		handler, err := tftp.CreateStreamFile(local, true)
		if err != nil {
			log.Fatalf("open %s: %v", local, err)
		}
		status, errPkt, err := client.Get(remote, args[2], handler)
		report(log, status, errPkt, err)

	case "put":
		local := args[2]
		name := local
		if len(args) > 3 {
			name = args[3]
		}
		handler, err := tftp.OpenStreamFile(local)
		if err != nil {
			log.Fatalf("open %s: %v", local, err)
		}
		status, errPkt, err := client.Put(remote, name, handler)
		report(log, status, errPkt, err)

	default:
		log.Fatalf("unknown operation %q, want get or put", verb)
	}
}

func optionsConfig(f flags) tftp.OptionsConfig {
	cfg := tftp.OptionsConfig{HandleTransferSize: f.transferSize}
	if f.blockSize > 0 {
		bs := uint16(f.blockSize)
		cfg.BlockSize = &bs
	}
	if f.timeoutOpt > 0 {
		to := uint8(f.timeoutOpt)
		cfg.Timeout = &to
	}
	return cfg
}

func resolve(host string) (netip.AddrPort, error) {
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr, nil
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(addr, tftp.DefaultPort), nil
}

func report(log *logrus.Logger, status tftp.TransferStatus, errPkt *tftp.ErrorPacket, err error) {
	if err != nil {
		log.Fatalf("transfer failed: %v", err)
	}
	if status != tftp.StatusSuccessful {
		if errPkt != nil {
			log.Fatalf("transfer %s: %s (%s)", status, errPkt.Message, errPkt.Code)
		}
		log.Fatalf("transfer %s", status)
	}
	log.Info("transfer successful")
}
