package tftp

import (
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestOptionsOrderAndCase(t *testing.T) {
	var opts Options
	opts.Set("TSIZE", "100")
	opts.Set("Blksize", "1024")
	opts.Set("tsize", "200") // replaces, keeps position

	names := opts.Names()
	if len(names) != 2 || names[0] != "tsize" || names[1] != "blksize" {
		t.Fatalf("unexpected names %v", names)
	}
	if v, ok := opts.Get("TsIzE"); !ok || v != "200" {
		t.Errorf("case-insensitive lookup failed: %q %v", v, ok)
	}

	opts.Del("BLKSIZE")
	if opts.Len() != 1 {
		t.Errorf("expected 1 option after delete, got %d", opts.Len())
	}
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		wantErr bool
		count   int
	}{
		{"empty list", nil, false, 0},
		{"single pair", []byte("opt\x00val\x00"), false, 1},
		{"two pairs", []byte("blksize\x001024\x00timeout\x005\x00"), false, 2},
		{"missing value terminator", []byte("opt\x00"), true, 0},
		{"missing value terminator with bytes", []byte("opt\x00va"), true, 0},
		{"unterminated name", []byte("opt"), true, 0},
		{"empty name", []byte("\x00v\x00"), true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseOptions(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPacket) {
					t.Errorf("expected ErrInvalidPacket, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			if opts.Len() != tt.count {
				t.Errorf("expected %d options, got %d", tt.count, opts.Len())
			}
		})
	}
}

func TestOptionRanges(t *testing.T) {
	if _, ok := blockSizeValue("7"); ok {
		t.Error("block size 7 accepted")
	}
	if v, ok := blockSizeValue("8"); !ok || v != 8 {
		t.Error("block size 8 refused")
	}
	if v, ok := blockSizeValue("65464"); !ok || v != 65464 {
		t.Error("block size 65464 refused")
	}
	if _, ok := blockSizeValue("65465"); ok {
		t.Error("block size 65465 accepted")
	}
	if _, ok := blockSizeValue("zero"); ok {
		t.Error("non-numeric block size accepted")
	}
	if _, ok := timeoutValue("0"); ok {
		t.Error("timeout 0 accepted")
	}
	if v, ok := timeoutValue("255"); !ok || v != 255 {
		t.Error("timeout 255 refused")
	}
	if _, ok := timeoutValue("256"); ok {
		t.Error("timeout 256 accepted")
	}
}

func TestSplitKnownOptions(t *testing.T) {
	opts := makeOptions("blksize", "1024", "weird", "42", "tsize", "0", "timeout", "3", "other", "x")
	known, residual := SplitKnownOptions(opts)
	if known.Len() != 3 {
		t.Errorf("expected 3 known options, got %v", known.Names())
	}
	if residual.Len() != 2 {
		t.Errorf("expected 2 residual options, got %v", residual.Names())
	}
	if _, ok := residual.Get("weird"); !ok {
		t.Error("weird not in residual set")
	}
}

func TestAcceptServerOptions(t *testing.T) {
	requested := makeOptions("blksize", "1024", "timeout", "5", "tsize", "0")

	t.Run("accepts values inside range", func(t *testing.T) {
		oack := makeOptions("blksize", "512", "timeout", "5", "tsize", "4096")
		n, err := acceptServerOptions(requested, oack, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n.blockSize != 512 {
			t.Errorf("block size: expected 512, got %d", n.blockSize)
		}
		if n.timeout != 5*time.Second {
			t.Errorf("timeout: expected 5s, got %v", n.timeout)
		}
		if n.transferSize == nil || *n.transferSize != 4096 {
			t.Errorf("transfer size not propagated: %v", n.transferSize)
		}
	})

	t.Run("rejects unrequested option", func(t *testing.T) {
		oack := makeOptions("windowsize", "4")
		if _, err := acceptServerOptions(requested, oack, nil); !errors.Is(err, ErrOptionNegotiation) {
			t.Errorf("expected ErrOptionNegotiation, got %v", err)
		}
	})

	t.Run("rejects block size above requested", func(t *testing.T) {
		oack := makeOptions("blksize", "2048")
		if _, err := acceptServerOptions(requested, oack, nil); !errors.Is(err, ErrOptionNegotiation) {
			t.Errorf("expected ErrOptionNegotiation, got %v", err)
		}
	})

	t.Run("rejects timeout above requested", func(t *testing.T) {
		oack := makeOptions("timeout", "6")
		if _, err := acceptServerOptions(requested, oack, nil); !errors.Is(err, ErrOptionNegotiation) {
			t.Errorf("expected ErrOptionNegotiation, got %v", err)
		}
	})

	t.Run("rejects mismatched transfer size echo", func(t *testing.T) {
		announced := makeOptions("tsize", "1000")
		oack := makeOptions("tsize", "999")
		if _, err := acceptServerOptions(announced, oack, nil); !errors.Is(err, ErrOptionNegotiation) {
			t.Errorf("expected ErrOptionNegotiation, got %v", err)
		}
	})

	t.Run("block size omitted falls back to default", func(t *testing.T) {
		oack := makeOptions("timeout", "5")
		n, err := acceptServerOptions(requested, oack, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n.blockSize != DefaultBlockSize {
			t.Errorf("expected default block size, got %d", n.blockSize)
		}
	})
}

func TestAcceptServerOptionsResidual(t *testing.T) {
	requested := makeOptions("blksize", "1024", "windowsize", "4")
	oack := makeOptions("blksize", "1024", "windowsize", "4")

	t.Run("no handler refuses residual", func(t *testing.T) {
		if _, err := acceptServerOptions(requested, oack, nil); !errors.Is(err, ErrOptionNegotiation) {
			t.Errorf("expected ErrOptionNegotiation, got %v", err)
		}
	})

	t.Run("handler refusal rejects", func(t *testing.T) {
		refuse := func(o *Options) bool { return false }
		if _, err := acceptServerOptions(requested, oack, refuse); !errors.Is(err, ErrOptionNegotiation) {
			t.Errorf("expected ErrOptionNegotiation, got %v", err)
		}
	})

	t.Run("handler leaving residual rejects", func(t *testing.T) {
		leave := func(o *Options) bool { return true }
		if _, err := acceptServerOptions(requested, oack, leave); !errors.Is(err, ErrOptionNegotiation) {
			t.Errorf("expected ErrOptionNegotiation, got %v", err)
		}
	})

	t.Run("handler consuming residual accepts", func(t *testing.T) {
		consume := func(o *Options) bool {
			o.Del("windowsize")
			return true
		}
		n, err := acceptServerOptions(requested, oack, consume)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n.blockSize != 1024 {
			t.Errorf("expected block size 1024, got %d", n.blockSize)
		}
	})
}

func TestRequestOptions(t *testing.T) {
	bs := uint16(1024)
	to := uint8(5)
	size := uint64(0)
	cfg := OptionsConfig{HandleTransferSize: true, BlockSize: &bs, Timeout: &to}

	opts := cfg.requestOptions(&size)
	names := opts.Names()
	if len(names) != 3 {
		t.Fatalf("expected 3 request options, got %v", names)
	}
	for _, want := range []struct{ name, value string }{
		{"blksize", "1024"}, {"timeout", "5"}, {"tsize", "0"},
	} {
		if v, _ := opts.Get(want.name); v != want.value {
			t.Errorf("option %s: expected %s, got %s", want.name, want.value, v)
		}
	}

	none := OptionsConfig{}
	if got := none.requestOptions(nil); got.Len() != 0 {
		t.Errorf("empty config produced options %v", got.Names())
	}
}
