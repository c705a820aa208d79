//go:build linux

package transport

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/sarpel/micrelay/internal/logger"
)

// applySocketOptions applies spec.md §4.6 step 4's socket tuning via
// golang.org/x/sys/unix, the same raw setsockopt pattern used for
// TCP_NODELAY in the pack's io_uring transport
// (other_examples/momentics-hioload-ws). Each failure logs WARN but does
// not abort the connection, per spec.
func applySocketOptions(log logger.Logger, conn *net.TCPConn, cfg Config) {
	raw, err := conn.SyscallConn()
	if err != nil {
		log.Warn("socket option tuning unavailable", logger.Err(err))
		return
	}

	idle := cfg.KeepAliveIdleS
	if idle == 0 {
		idle = 5
	}
	intvl := cfg.KeepAliveIntlS
	if intvl == 0 {
		intvl = 5
	}
	count := cfg.KeepAliveCountS
	if count == 0 {
		count = 3
	}
	sndTimeoutS := int(cfg.WriteTimeoutMs / 1000)
	if sndTimeoutS == 0 {
		sndTimeoutS = 5
	}

	_ = raw.Control(func(fd uintptr) {
		setOpt(log, "TCP_NODELAY", unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1))
		setOpt(log, "SO_KEEPALIVE", unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1))
		setOpt(log, "TCP_KEEPIDLE", unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, idle))
		setOpt(log, "TCP_KEEPINTVL", unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, intvl))
		setOpt(log, "TCP_KEEPCNT", unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, count))
		setOpt(log, "SO_SNDTIMEO", unix.SetsockoptTimeval(int(fd), unix.SOL_SOCKET, unix.SO_SNDTIMEO,
			&unix.Timeval{Sec: int64(sndTimeoutS)}))
	})
}

func setOpt(log logger.Logger, name string, err error) {
	if err != nil {
		log.Warn("setsockopt failed", logger.String("option", name), logger.Err(err))
	}
}

// unixRecvfromPeek performs a non-blocking, non-consuming MSG_PEEK read on
// fd, used by Validate to detect a peer-closed socket without stealing
// application bytes.
func unixRecvfromPeek(fd uintptr, buf []byte) (int, unix.Sockaddr, error) {
	return unix.Recvfrom(int(fd), buf, unix.MSG_PEEK|unix.MSG_DONTWAIT)
}
