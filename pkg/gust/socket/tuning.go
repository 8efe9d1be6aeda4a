// Package socket tunes accepted/listening TCP sockets for HTTP workloads:
// Nagle disabling, buffer sizing, keepalive, and (where the platform
// supports it) quick-ack, deferred-accept, and TCP Fast Open. Platform
// specifics live in tuning_linux.go, tuning_darwin.go, and the no-op
// fallback in tuning_other.go.
package socket

import (
	"net"
	"syscall"
)

// Config holds the socket options to apply. A zero Config leaves every
// option at the system default; use one of the presets below as a
// starting point instead of constructing one by hand.
type Config struct {
	// NoDelay disables Nagle's algorithm (TCP_NODELAY). Almost always
	// wanted for HTTP/1.1 request/response traffic.
	NoDelay bool

	// RecvBuffer sets SO_RCVBUF in bytes. Zero leaves the system default
	// (typically 128KB-256KB) in place.
	RecvBuffer int

	// SendBuffer sets SO_SNDBUF in bytes, same zero-value behavior as
	// RecvBuffer.
	SendBuffer int

	// QuickAck requests TCP_QUICKACK (Linux only — ignored elsewhere).
	// Sends ACKs immediately instead of waiting for the delayed-ACK
	// timer, trading a small amount of extra traffic for lower latency.
	QuickAck bool

	// DeferAccept requests TCP_DEFER_ACCEPT (Linux only): the kernel
	// doesn't wake accept() until the first data segment has arrived,
	// which saves a context switch per connection for request/response
	// protocols where the client always speaks first.
	DeferAccept bool

	// FastOpen enables TCP Fast Open (Linux 3.7+, Darwin 10.11+),
	// letting data ride along with the SYN to save a round trip on
	// repeat connections from the same client.
	FastOpen bool

	// KeepAlive enables SO_KEEPALIVE, so dead peers on long-lived
	// connections get detected instead of leaking a half-open socket
	// forever.
	KeepAlive bool
}

// DefaultConfig is a balanced preset suited to typical HTTP/1.1 traffic:
// moderate buffers, quick ACKs, deferred accept, Fast Open, and
// keepalive all on.
func DefaultConfig() *Config {
	return &Config{
		NoDelay:     true,
		RecvBuffer:  256 * 1024,
		SendBuffer:  256 * 1024,
		QuickAck:    true,
		DeferAccept: true,
		FastOpen:    true,
		KeepAlive:   true,
	}
}

// HighThroughputConfig favors bulk transfer over latency: larger
// buffers, and quick-ack disabled so the kernel can coalesce ACKs.
func HighThroughputConfig() *Config {
	return &Config{
		NoDelay:     true,
		RecvBuffer:  1024 * 1024,
		SendBuffer:  1024 * 1024,
		QuickAck:    false,
		DeferAccept: true,
		FastOpen:    true,
		KeepAlive:   true,
	}
}

// LowLatencyConfig favors response time over throughput: smaller
// buffers, quick-ack on, and deferred accept off so connections are
// accepted the instant the handshake completes.
func LowLatencyConfig() *Config {
	return &Config{
		NoDelay:     true,
		RecvBuffer:  128 * 1024,
		SendBuffer:  128 * 1024,
		QuickAck:    true,
		DeferAccept: false,
		FastOpen:    true,
		KeepAlive:   true,
	}
}

// Apply tunes an already-accepted connection. Call it right after
// Accept, before handing the connection to a handler. A nil cfg falls
// back to DefaultConfig. Non-TCP connections (e.g. a net.Conn over a
// Unix socket or an in-memory pipe in tests) are left untouched — Apply
// returns nil rather than erroring, since there's nothing to tune.
//
// TCP_NODELAY failures are treated as fatal and returned; everything
// else (buffer sizes, keepalive, platform options) is best-effort and
// silently skipped on failure, since none of them change request
// correctness, only throughput/latency characteristics.
func Apply(conn net.Conn, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		return err
	}

	var nodelayErr error
	ctrlErr := rawConn.Control(func(fd uintptr) {
		if cfg.NoDelay {
			if err := syscall.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1); err != nil {
				nodelayErr = err
				return
			}
		}

		if cfg.RecvBuffer > 0 {
			_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_RCVBUF, cfg.RecvBuffer)
		}

		if cfg.SendBuffer > 0 {
			_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_SNDBUF, cfg.SendBuffer)
		}

		if cfg.KeepAlive {
			_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_KEEPALIVE, 1)
		}

		applyPlatformOptions(int(fd), cfg)
	})

	if ctrlErr != nil {
		return ctrlErr
	}
	return nodelayErr
}

// ApplyListener tunes a listening socket before Accept is ever called.
// Some options (TCP_DEFER_ACCEPT, TCP_FASTOPEN) only make sense set on
// the listener itself rather than per-connection, since they change how
// the kernel handles the handshake/backlog.
func ApplyListener(listener net.Listener, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	tcpListener, ok := listener.(*net.TCPListener)
	if !ok {
		return nil
	}

	file, err := tcpListener.File()
	if err != nil {
		return err
	}
	defer file.Close()

	return applyListenerOptions(int(file.Fd()), cfg)
}
