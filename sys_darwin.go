//go:build darwin

package tftp

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func socketControl(fd uintptr) {
	unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, syscall.SO_REUSEADDR, 1)

	// mac doesn't have SO_PRIORITY so we omit it over here
}
