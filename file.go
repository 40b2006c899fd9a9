package tftp

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
)

// MemoryFile is an in-memory data handler usable on both sides of a
// transfer: it collects received data into a buffer and serves transmitted
// data from one.
type MemoryFile struct {
	buf bytes.Buffer
	off int

	// Limit caps the accepted transfer size (and the number of received
	// bytes) when non-zero.
	Limit uint64
}

// NewMemoryFile returns a memory file pre-loaded with the given content,
// ready to transmit. An empty argument yields an empty file ready to
// receive.
func NewMemoryFile(content []byte) *MemoryFile {
	m := &MemoryFile{}
	m.buf.Write(content)
	return m
}

// Bytes returns the current file content.
func (m *MemoryFile) Bytes() []byte { return m.buf.Bytes() }

func (m *MemoryFile) Reset() { m.off = 0 }

func (m *MemoryFile) ReceivedTransferSize(size uint64) bool {
	return m.Limit == 0 || size <= m.Limit
}

func (m *MemoryFile) ReceivedData(b []byte) error {
	if m.Limit != 0 && uint64(m.buf.Len()+len(b)) > m.Limit {
		return errors.New("tftp: memory file limit exceeded")
	}
	m.buf.Write(b)
	return nil
}

func (m *MemoryFile) RequestedTransferSize() (uint64, bool) {
	return uint64(m.buf.Len()), true
}

func (m *MemoryFile) SendData(max int) ([]byte, error) {
	content := m.buf.Bytes()
	if m.off >= len(content) {
		return nil, nil
	}
	end := m.off + max
	if end > len(content) {
		end = len(content)
	}
	chunk := content[m.off:end]
	m.off = end
	return chunk, nil
}

func (m *MemoryFile) Finished() {}

// StreamFile is a file backed data handler. Reads and writes go through a
// buffered io object the way the rest of the package does file io; the
// handler owns the file and closes it when the transfer finished.
type StreamFile struct {
	f *os.File
	r *bufio.Reader
	w *bufio.Writer

	size uint64
}

// OpenStreamFile opens an existing file for transmission.
func OpenStreamFile(name string) (*StreamFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &StreamFile{f: f, r: bufio.NewReader(f), size: uint64(fi.Size())}, nil
}

// CreateStreamFile opens a file for receiving. With create set a missing
// file is created, otherwise only existing files are overwritten.
func CreateStreamFile(name string, create bool) (*StreamFile, error) {
	flags := os.O_WRONLY | os.O_TRUNC
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(name, flags, 0o644)
	if err != nil {
		return nil, err
	}
	return &StreamFile{f: f, w: bufio.NewWriter(f)}, nil
}

func (s *StreamFile) Reset() {
	if s.r != nil {
		s.f.Seek(0, io.SeekStart)
		s.r.Reset(s.f)
	}
}

func (s *StreamFile) ReceivedTransferSize(size uint64) bool {
	// No quota on the filesystem side; announced sizes are accepted.
	return true
}

func (s *StreamFile) ReceivedData(b []byte) error {
	if s.w == nil {
		return errors.New("tftp: stream file not opened for receiving")
	}
	_, err := s.w.Write(b)
	return err
}

func (s *StreamFile) RequestedTransferSize() (uint64, bool) {
	return s.size, true
}

func (s *StreamFile) SendData(max int) ([]byte, error) {
	if s.r == nil {
		return nil, errors.New("tftp: stream file not opened for transmission")
	}
	b := make([]byte, max)
	n, err := io.ReadFull(s.r, b)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	return b[:n], err
}

func (s *StreamFile) Finished() {
	if s.w != nil {
		s.w.Flush()
	}
	s.f.Close()
}

// NullSink is a receive handler that accepts any transfer size and discards
// all data. Useful for throughput measurements and tests.
type NullSink struct {
	// Count accumulates the number of bytes discarded.
	Count uint64
}

func (n *NullSink) Reset()                           { n.Count = 0 }
func (n *NullSink) ReceivedTransferSize(uint64) bool { return true }
func (n *NullSink) ReceivedData(b []byte) error      { n.Count += uint64(len(b)); return nil }
func (n *NullSink) Finished()                        {}
