package config

import (
	"time"

	"github.com/spf13/viper"
)

// Settings is the key/value configuration surface. Every key is optional;
// unknown keys in the file are ignored. Out-of-range values are clamped
// into the ranges of rfc2348/rfc2349.
type Settings struct {
	Timeout time.Duration // key "timeout", seconds
	Retries uint16        // key "retries"
	Port    uint16        // key "port"
	Dally   bool          // key "dally"

	// negotiation policy; nil means the option is not negotiated
	BlockSize    *uint16 // key "block_size"
	TimeoutOpt   *uint8  // key "timeout_option", seconds
	TransferSize bool    // key "transfer_size"
}

// Defaults returns the settings used when no file and no flags are given.
func Defaults() Settings {
	return Settings{
		Timeout: 2 * time.Second,
		Retries: 1,
		Port:    69,
	}
}

// Load reads a key/value settings file. A missing path returns the
// defaults.
func Load(path string) (Settings, error) {
	s := Defaults()
	if path == "" {
		return s, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("timeout", 2)
	v.SetDefault("retries", 1)
	v.SetDefault("port", 69)
	if err := v.ReadInConfig(); err != nil {
		return s, err
	}

	if t := v.GetInt("timeout"); t > 0 {
		s.Timeout = time.Duration(t) * time.Second
	}
	if r := v.GetInt("retries"); r >= 0 {
		s.Retries = clampUint16(r)
	}
	if p := v.GetInt("port"); p > 0 {
		s.Port = clampUint16(p)
	}
	s.Dally = v.GetBool("dally")
	s.TransferSize = v.GetBool("transfer_size")

	if v.IsSet("block_size") {
		bs := clampInt(v.GetInt("block_size"), 8, 65464)
		s.BlockSize = &bs
	}
	if v.IsSet("timeout_option") {
		to := uint8(clampInt(v.GetInt("timeout_option"), 1, 255))
		s.TimeoutOpt = &to
	}

	return s, nil
}

func clampUint16(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}

func clampInt(v, lo, hi int) uint16 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return uint16(v)
}
