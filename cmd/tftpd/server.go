package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/trivialnet/tftp"
	"github.com/trivialnet/tftp/internal/config"
)

// server is the request policy of tftpd: it maps request filenames below
// the served root and spawns one transfer operation per accepted request.
type server struct {
	root     string
	create   bool
	log      *logrus.Logger
	settings config.Settings
}

func (s *server) transferConfig(req tftp.Request) tftp.TransferConfig {
	return tftp.TransferConfig{
		Timeout: s.settings.Timeout,
		Retries: s.settings.Retries,
		Dally:   s.settings.Dally,
		OptionsConfig: tftp.OptionsConfig{
			HandleTransferSize: s.settings.TransferSize,
			BlockSize:          s.settings.BlockSize,
			Timeout:            s.settings.TimeoutOpt,
		},
		Remote:          req.Remote,
		ClientOptions:   req.KnownOptions,
		ResidualOptions: req.ResidualOptions,
		Logger:          s.log,
	}
}

func (s *server) handle(l *tftp.Listener, req tftp.Request) {
	log := s.log.WithFields(logrus.Fields{
		"remote": req.Remote.String(),
		"type":   req.Type.String(),
		"file":   req.Filename,
	})

	if req.Mode != tftp.ModeOctet {
		log.Infof("refusing mode %s", req.Mode)
		l.Reject(req.Remote, tftp.IllegalTftpOperation, "only octet mode is supported")
		return
	}

	name, ok := tftp.CheckFilename(s.root, req.Filename)
	if !ok {
		log.Info("refusing path outside served root")
		l.Reject(req.Remote, tftp.AccessViolation, "access violation")
		return
	}

	cfg := s.transferConfig(req)
	cfg.Completion = func(st tftp.TransferStatus, ep *tftp.ErrorPacket) {
		entry := log.WithField("status", st.String())
		if ep != nil {
			entry = entry.WithField("error", ep.Code.String())
		}
		entry.Info("transfer done")
	}

	switch req.Type {
	case tftp.Rrq:
		handler, err := tftp.OpenStreamFile(name)
		if err != nil {
			log.WithError(err).Info("cannot open file")
			l.Reject(req.Remote, rejectCode(err), "cannot open file")
			return
		}
		cfg.Transmit = handler
		op, err := tftp.NewServerReadOperation(l.Reactor(), cfg)
		if err != nil {
			handler.Finished()
			log.WithError(err).Error("cannot create operation")
			l.Reject(req.Remote, tftp.NotDefined, "internal error")
			return
		}
		op.Start()

	case tftp.Wrq:
		handler, err := tftp.CreateStreamFile(name, s.create)
		if err != nil {
			log.WithError(err).Info("cannot open file")
			l.Reject(req.Remote, rejectCode(err), "cannot open file")
			return
		}
		cfg.Receive = handler
		op, err := tftp.NewServerWriteOperation(l.Reactor(), cfg)
		if err != nil {
			handler.Finished()
			log.WithError(err).Error("cannot create operation")
			l.Reject(req.Remote, tftp.NotDefined, "internal error")
			return
		}
		op.Start()
	}
}

func rejectCode(err error) tftp.ErrorCode {
	switch {
	case os.IsNotExist(err):
		return tftp.FileNotFound
	case os.IsPermission(err):
		return tftp.AccessViolation
	default:
		return tftp.NotDefined
	}
}
