// tftpd is the server front-end of the tftp package: it binds the
// well-known port and serves a directory tree.
package main

import (
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/trivialnet/tftp"
	"github.com/trivialnet/tftp/internal/config"
)

const version = "0.3.0"

func main() {
	opts, opt := config.NewOpts()
	_, err := opt.Parse(os.Args[1:])
	if opt.Called("help") {
		fmt.Fprintln(os.Stderr, opt.Help())
		os.Exit(1)
	}
	if err != nil {
		logrus.Fatalf("tftpd: %v", err)
	}
	if opts.Version {
		fmt.Println("tftpd", version)
		return
	}

	log := logrus.New()
	if opts.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	if opts.NoStats {
		tftp.DisableStatistics()
	}

	settings, err := config.Load(opts.Config)
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}
	applyFlags(opts, opt, &settings)

	if opts.Metrics != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(tftp.NewStatisticCollector())
		go func() {
			log.Infof("metrics on %s", opts.Metrics)
			http.ListenAndServe(opts.Metrics, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		}()
	}

	srv := &server{
		root:     opts.Secure,
		create:   opts.Create,
		log:      log,
		settings: settings,
	}

	reactor := tftp.NewReactor()
	listener, err := tftp.NewListener(reactor, listenAddr(opts.Address, settings.Port), log)
	if err != nil {
		log.Fatalf("bind: %v", err)
	}
	log.Infof("listening on %s", listener.Addr())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		listener.Stop()
	}()

	if err := listener.Serve(srv.handle); err != nil {
		log.Infof("listener stopped: %v", err)
	}
	logStats(log)
}

func listenAddr(flag string, port uint16) netip.AddrPort {
	if flag == "" || flag == ":69" {
		return netip.AddrPortFrom(netip.IPv4Unspecified(), port)
	}
	if strings.HasPrefix(flag, ":") {
		flag = "0.0.0.0" + flag
	}
	addr, err := netip.ParseAddrPort(flag)
	if err != nil {
		logrus.Fatalf("tftpd: bad address %q: %v", flag, err)
	}
	return addr
}

// applyFlags overrides file settings with explicitly given flags.
func applyFlags(opts *config.Opts, opt interface{ Called(string) bool }, s *config.Settings) {
	if opt.Called("timeout") {
		s.Timeout = time.Duration(opts.Timeout) * time.Second
	}
	if opt.Called("retransmit") {
		s.Retries = uint16(opts.Retransmit)
	}
	if opt.Called("dally") {
		s.Dally = opts.Dally
	}
	if opt.Called("transfer-size") {
		s.TransferSize = opts.TransferSize
	}
	if opt.Called("blocksize") {
		bs := uint16(opts.BlockSize)
		s.BlockSize = &bs
	}
	if opt.Called("timeout-option") {
		to := uint8(opts.TimeoutOpt)
		s.TimeoutOpt = &to
	}
}

func logStats(log *logrus.Logger) {
	rx := tftp.ReceiveStatistic().Total()
	tx := tftp.TransmitStatistic().Total()
	log.Infof("rx %d packets (%d bytes), tx %d packets (%d bytes)",
		rx.Packets, rx.Bytes, tx.Packets, tx.Bytes)
}
