//go:build linux

package tftp

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func socketControl(fd uintptr) {
	// let multiple processes listen on the same port
	unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, syscall.SO_REUSEADDR, 1)

	// raise the socket priority so retransmission timing stays tight under
	// load. socket priority [low - high] => [1 - 7]
	unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, syscall.SO_PRIORITY, 7)
}
