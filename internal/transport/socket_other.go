//go:build !linux

package transport

import (
	"errors"
	"net"

	"github.com/sarpel/micrelay/internal/logger"
)

// applySocketOptions is a no-op stand-in for non-Linux development hosts;
// the production target is Linux, where socket_linux.go applies the real
// tuning via golang.org/x/sys/unix.
func applySocketOptions(log logger.Logger, _ *net.TCPConn, _ Config) {
	log.Warn("socket option tuning not implemented on this platform")
}

// unixRecvfromPeek reports an error on non-Linux hosts, so isClosed never
// mistakes the missing peek for a peer-closed socket.
func unixRecvfromPeek(_ uintptr, _ []byte) (int, any, error) {
	return 0, nil, errors.New("transport: MSG_PEEK not supported on this platform")
}
