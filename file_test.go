package tftp

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryFileTransmit(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 1000)
	m := NewMemoryFile(content)
	m.Reset()

	if size, ok := m.RequestedTransferSize(); !ok || size != 1000 {
		t.Errorf("transfer size: %d %v", size, ok)
	}

	var got []byte
	for {
		chunk, err := m.SendData(512)
		if err != nil {
			t.Fatalf("send data: %v", err)
		}
		got = append(got, chunk...)
		if len(chunk) < 512 {
			break
		}
	}
	if !bytes.Equal(got, content) {
		t.Errorf("read back %d bytes, expected %d", len(got), len(content))
	}

	// Reset rewinds the read offset
	m.Reset()
	chunk, _ := m.SendData(512)
	if len(chunk) != 512 {
		t.Errorf("after reset expected a full block, got %d bytes", len(chunk))
	}
}

func TestMemoryFileReceive(t *testing.T) {
	m := &MemoryFile{Limit: 10}
	m.Reset()

	if m.ReceivedTransferSize(11) {
		t.Error("size above limit accepted")
	}
	if !m.ReceivedTransferSize(10) {
		t.Error("size at limit refused")
	}

	if err := m.ReceivedData([]byte("0123456789")); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := m.ReceivedData([]byte("x")); err == nil {
		t.Error("write above limit accepted")
	}
	if string(m.Bytes()) != "0123456789" {
		t.Errorf("content %q", m.Bytes())
	}
}

func TestStreamFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "payload.bin")
	content := bytes.Repeat([]byte("abc"), 700)

	w, err := CreateStreamFile(name, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w.Reset()
	if !w.ReceivedTransferSize(uint64(len(content))) {
		t.Error("stream file refused transfer size")
	}
	for off := 0; off < len(content); off += 512 {
		end := off + 512
		if end > len(content) {
			end = len(content)
		}
		if err := w.ReceivedData(content[off:end]); err != nil {
			t.Fatalf("receive: %v", err)
		}
	}
	w.Finished()

	r, err := OpenStreamFile(name)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	r.Reset()
	if size, ok := r.RequestedTransferSize(); !ok || size != uint64(len(content)) {
		t.Errorf("transfer size: %d %v", size, ok)
	}
	var got []byte
	for {
		chunk, err := r.SendData(512)
		if err != nil {
			t.Fatalf("send data: %v", err)
		}
		got = append(got, chunk...)
		if len(chunk) < 512 {
			break
		}
	}
	r.Finished()
	if !bytes.Equal(got, content) {
		t.Errorf("read back %d bytes, expected %d", len(got), len(content))
	}
}

func TestCreateStreamFileWithoutCreate(t *testing.T) {
	name := filepath.Join(t.TempDir(), "missing.bin")
	if _, err := CreateStreamFile(name, false); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestNullSink(t *testing.T) {
	var n NullSink
	n.Reset()
	if !n.ReceivedTransferSize(1 << 40) {
		t.Error("null sink refused a transfer size")
	}
	n.ReceivedData(make([]byte, 512))
	n.ReceivedData(make([]byte, 100))
	if n.Count != 612 {
		t.Errorf("count: %d", n.Count)
	}
}
