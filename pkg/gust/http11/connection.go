package http11

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"
)

// ConnectionState represents the state of an HTTP connection.
// Mirrors the Idle → Reading → Dispatching → Writing → (Idle|Closing) → Closed
// state machine: Reading and Dispatching both report as StateActive at the
// atomic level (callers observing State() only need "busy vs idle"), while
// the Serve loop below tracks the finer-grained phase internally.
type ConnectionState int

const (
	// StateNew is the initial state when a connection is created
	StateNew ConnectionState = iota

	// StateActive indicates the connection is actively reading or dispatching a request
	StateActive

	// StateIdle indicates the connection is idle and waiting for the next request
	StateIdle

	// StateClosed indicates the connection has been closed
	StateClosed
)

// String returns the string representation of the connection state
func (s ConnectionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler is the sole async boundary the connection driver calls through.
// It receives a Context wrapping the parsed request, a response writer, and
// any route parameters/app-context the caller (typically a router-backed
// dispatcher built one layer up, in the server package) attached. Returning
// an error signals a handler fault: the driver emits a synthetic 500 if no
// bytes were written yet, then closes the connection.
type Handler func(ctx *Context) error

// Connection represents an HTTP/1.1 connection with lock-free state management.
//
// Design:
// - Lock-free atomic operations for all state transitions
// - Zero mutex contention under high concurrency
// - Supports HTTP/1.1 persistent connections (keep-alive)
// - Request pipelining (reads next request while processing current)
// - Zero allocations for request/response cycle (uses pools)
// - Graceful shutdown support
//
// Allocation behavior: 0 allocs/op when using pooled objects
type Connection struct {
	// Hot fields first (cache line optimization)
	state    atomic.Int32 // Lock-free state transitions (StateNew, StateActive, StateIdle, StateClosed)
	lastUse  atomic.Int64 // Unix timestamp in nanoseconds (lock-free)
	requests atomic.Int32 // Request counter (lock-free)

	// Network connection
	conn net.Conn

	// Buffered I/O
	reader *bufio.Reader
	writer *bufio.Writer

	// HTTP parser (pooled)
	parser *Parser

	// Request handler (stored to avoid closure allocation per request)
	handler Handler

	// Per-connection budgets
	idleTimeout     time.Duration // armed between requests; 0 disables
	requestTimeout  time.Duration // armed while dispatching; 0 disables
	maxRequests     int32         // 0 = unlimited
	maxHeaderSize   int           // buffer size before CRLFCRLF; 0 = use parser default
	maxBodySize     int64         // content-length / accumulated chunk length cap; 0 = unlimited

	// Close channel (signals connection should close)
	closeCh chan struct{}
	closed  atomic.Bool

	// hijacked is set once Hijack succeeds. A hijacked connection's raw
	// net.Conn is owned by the caller from that point on: Serve stops
	// touching it, cleanup skips returning the (now caller-owned) bufio
	// objects to their pools, and Close no longer closes the socket.
	hijacked atomic.Bool
}

// ConnectionConfig holds configuration for an HTTP connection
type ConnectionConfig struct {
	// IdleTimeout is the maximum time to wait for the next request's bytes
	// on an otherwise-idle connection. 0 disables the idle timer.
	// Default: 5 seconds.
	IdleTimeout time.Duration

	// RequestTimeout is the maximum time a single request may spend from
	// the moment parsing completes until the handler returns. 0 disables.
	// Default: 30 seconds.
	RequestTimeout time.Duration

	// MaxRequests is the maximum number of requests per connection.
	// 0 means unlimited. Default: 100.
	MaxRequests int

	// MaxHeaderSize bounds the header section (request line + headers)
	// before the blank line. Default: 8192.
	MaxHeaderSize int

	// MaxBodySize bounds the request body, whether framed by
	// Content-Length or accumulated chunked reads. Default: 1 MiB.
	MaxBodySize int64

	// ReadBufferSize is the size of the read buffer
	// Default: 4096 bytes
	ReadBufferSize int

	// WriteBufferSize is the size of the write buffer
	// Default: 4096 bytes
	WriteBufferSize int
}

// DefaultConnectionConfig returns the default connection configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		IdleTimeout:     5 * time.Second,
		RequestTimeout:  30 * time.Second,
		MaxRequests:     100,
		MaxHeaderSize:   8192,
		MaxBodySize:     1 << 20,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

// NewConnection creates a new HTTP/1.1 connection from a net.Conn
//
// The handler is stored in the connection to avoid closure allocations per request.
// This enables true zero-allocation request handling with lock-free state management.
//
// Allocation behavior: Allocates bufio readers/writers and the connection struct
func NewConnection(conn net.Conn, config ConnectionConfig, handler Handler) *Connection {
	c := &Connection{
		conn:           conn,
		handler:        handler,
		idleTimeout:    config.IdleTimeout,
		requestTimeout: config.RequestTimeout,
		maxRequests:    int32(config.MaxRequests),
		maxHeaderSize:  config.MaxHeaderSize,
		maxBodySize:    config.MaxBodySize,
		closeCh:        make(chan struct{}),
	}

	// Initialize lock-free atomic state
	c.state.Store(int32(StateNew))
	c.lastUse.Store(time.Now().UnixNano())
	c.requests.Store(0)

	// Use pooled bufio objects if buffer sizes match defaults
	if config.ReadBufferSize == DefaultBufferSize {
		c.reader = GetBufioReader(conn)
	} else {
		c.reader = bufio.NewReaderSize(conn, config.ReadBufferSize)
	}

	if config.WriteBufferSize == DefaultBufferSize {
		c.writer = GetBufioWriter(conn)
	} else {
		c.writer = bufio.NewWriterSize(conn, config.WriteBufferSize)
	}

	// Get parser from pool
	c.parser = GetParser()
	if config.MaxHeaderSize > 0 {
		c.parser.MaxHeaderSize = config.MaxHeaderSize
	}

	return c
}

// State returns the current connection state (lock-free)
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// setState sets the connection state (lock-free)
func (c *Connection) setState(state ConnectionState) {
	c.state.Store(int32(state))
	c.lastUse.Store(time.Now().UnixNano())
}

// Serve handles the connection lifecycle with keep-alive support.
// It processes requests in a loop until the connection should close:
// each iteration is one Idle → Reading → Dispatching → Writing →
// (Idle|Closing) cycle.
//
// Allocation behavior: 0 allocs/op per request (uses pools, no closure overhead)
func (c *Connection) Serve() error {
	defer c.cleanup()

	for {
		if c.shouldClose() {
			return nil
		}

		// Idle timer: armed while no request is in flight. Resets to
		// wall-clock + idleTimeout on every loop entry; any bytes read
		// before it fires keep the connection alive through Parse's own
		// retry-until-Complete loop.
		c.setState(StateIdle)
		if err := c.armIdleDeadline(); err != nil {
			return err
		}

		c.setState(StateActive)
		req, err := c.parser.Parse(c.reader)
		if err != nil {
			if err == io.EOF || err == ErrUnexpectedEOF {
				return nil
			}
			return c.closeWithSynthetic(statusForParseError(err))
		}

		if int64(req.ContentLength) > c.maxBodySize && c.maxBodySize > 0 {
			PutRequest(req)
			return c.closeWithSynthetic(413)
		}
		if cr, ok := req.Body.(*ChunkedReader); ok && c.maxBodySize > 0 {
			cr.maxBodySize = uint64(c.maxBodySize)
		}

		requestNum := c.requests.Add(1)
		rw := GetResponseWriter(c.writer)

		willCloseAfterThis := c.maxRequests > 0 && requestNum >= c.maxRequests
		if willCloseAfterThis {
			rw.Header().Set(headerConnection, headerClose)
		}

		ctx := GetContext()
		ctx.Request = req
		ctx.Writer = rw
		ctx.hijack = c.Hijack

		// Request timer: armed at Dispatching. Implemented as a combined
		// read+write deadline on the socket itself (rather than a second
		// timer goroutine) so a timeout simply fails the handler's next
		// I/O attempt; we then best-effort emit 408 within a short grace
		// window before destroying the socket.
		if err := c.armRequestDeadline(); err != nil {
			PutResponseWriter(rw)
			PutRequest(req)
			PutContext(ctx)
			return err
		}

		handlerErr := c.dispatch(ctx)

		if c.hijacked.Load() {
			// The handler took the raw connection; the response writer and
			// request are no longer connected to anything the driver owns.
			PutResponseWriter(rw)
			PutRequest(req)
			PutContext(ctx)
			return handlerErr
		}

		if flushErr := rw.Flush(); flushErr != nil {
			if isTimeout(flushErr) {
				c.writeSyntheticBestEffort(408)
			}
			PutResponseWriter(rw)
			PutRequest(req)
			PutContext(ctx)
			return flushErr
		}
		if handlerErr != nil && isTimeout(handlerErr) {
			c.writeSyntheticBestEffort(408)
			PutResponseWriter(rw)
			PutRequest(req)
			PutContext(ctx)
			return handlerErr
		}

		shouldClose := c.shouldCloseAfterRequest(req, rw, int(requestNum), handlerErr, willCloseAfterThis)

		PutResponseWriter(rw)
		PutRequest(req)
		PutContext(ctx)

		if shouldClose {
			return handlerErr
		}
	}
}

// dispatch invokes the stored handler, confining panic recovery and
// handler-fault-to-500 mapping to this single point: a handler that
// panics or returns an error gets exactly one synthetic 500, never two.
func (c *Connection) dispatch(ctx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if !ctx.Writer.HeaderWritten() {
				_ = ctx.Writer.WriteError(500, "Internal Server Error")
			}
			err = ErrHandlerPanic
		}
	}()

	if handlerErr := c.handler(ctx); handlerErr != nil {
		if !ctx.Writer.HeaderWritten() {
			_ = ctx.Writer.WriteError(500, "Internal Server Error")
		}
		return handlerErr
	}
	return nil
}

// shouldClose checks if the connection should close immediately
func (c *Connection) shouldClose() bool {
	if c.closed.Load() {
		return true
	}

	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

// shouldCloseAfterRequest determines if the connection should close after handling a request
func (c *Connection) shouldCloseAfterRequest(req *Request, rw *ResponseWriter, requestNum int, handlerErr error, willClose bool) bool {
	if handlerErr != nil {
		return true
	}

	if req.Close {
		return true
	}

	connectionHeader := rw.Header().Get(headerConnection)
	if bytesEqualCaseInsensitive(connectionHeader, headerClose) {
		return true
	}

	if willClose {
		return true
	}

	// HTTP/1.0 without explicit keep-alive
	if req.ProtoMajor == 1 && req.ProtoMinor == 0 {
		connectionHeader := req.Header.Get(headerConnection)
		if !bytesEqualCaseInsensitive(connectionHeader, headerKeepAlive) {
			return true
		}
	}

	return false
}

// Hijack lets the handler take over the raw connection, bypassing the
// driver's request/response framing entirely — the escape hatch WebSocket
// upgrades and other byte-stream protocols need.
// The returned bufio.ReadWriter wraps the connection's existing buffered
// reader/writer so any bytes the parser has already buffered past the
// current request (pipelined reads) aren't lost. After a successful
// Hijack, Serve returns immediately without touching the connection
// again; the caller owns net.Conn and must close it itself.
func (c *Connection) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if c.closed.Load() {
		return nil, nil, ErrConnectionClosed
	}
	if !c.hijacked.CompareAndSwap(false, true) {
		return nil, nil, ErrAlreadyHijacked
	}

	_ = c.conn.SetDeadline(time.Time{})
	rw := bufio.NewReadWriter(c.reader, c.writer)
	c.reader = nil
	c.writer = nil
	return c.conn, rw, nil
}

// armIdleDeadline sets the socket deadline for the idle phase.
func (c *Connection) armIdleDeadline() error {
	if c.idleTimeout <= 0 {
		return c.conn.SetDeadline(time.Time{})
	}
	return c.conn.SetDeadline(time.Now().Add(c.idleTimeout))
}

// armRequestDeadline sets the socket deadline for the dispatching phase,
// covering both the handler's reads of the body and its writes of the
// response.
func (c *Connection) armRequestDeadline() error {
	if c.requestTimeout <= 0 {
		return c.conn.SetDeadline(time.Time{})
	}
	return c.conn.SetDeadline(time.Now().Add(c.requestTimeout))
}

// writeSyntheticBestEffort attempts to write a synthetic status response
// directly to the socket within a short grace window, then lets the caller
// close the connection. Used when a request-timer deadline has already
// fired: the write may itself fail, which is acceptable — "ensures the
// socket is closed so the response is discarded" is the hard requirement,
// the 408 bytes are best-effort.
func (c *Connection) writeSyntheticBestEffort(status int) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, _ = c.conn.Write(syntheticResponse(status))
}

// closeWithSynthetic writes a synthetic error response for the given
// status and returns an error signalling the Serve loop to close.
func (c *Connection) closeWithSynthetic(status int) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, _ = c.conn.Write(syntheticResponse(status))
	switch status {
	case 400:
		return ErrInvalidRequestLine
	case 431:
		return ErrHeadersTooLarge
	case 413:
		return ErrBufferTooSmall
	default:
		return ErrConnectionClosed
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func statusForParseError(err error) int {
	switch err {
	case ErrHeadersTooLarge, ErrRequestLineTooLarge, ErrHeaderTooLarge, ErrTooManyHeaders:
		return 431
	case ErrURITooLong:
		return 414
	default:
		return 400
	}
}

// Close closes the connection gracefully
func (c *Connection) Close() error {
	// Mark as closed
	if !c.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	// Signal close
	close(c.closeCh)

	// Set state
	c.setState(StateClosed)

	// A hijacked connection's socket belongs to whoever took it; closing
	// it here would pull the rug out from under that caller.
	if c.hijacked.Load() {
		return nil
	}

	// Close underlying connection
	return c.conn.Close()
}

// cleanup releases pooled resources
func (c *Connection) cleanup() {
	// Return parser to pool
	if c.parser != nil {
		PutParser(c.parser)
		c.parser = nil
	}

	// Return bufio objects to pool if they're the default size
	if c.reader != nil {
		PutBufioReader(c.reader)
		c.reader = nil
	}

	if c.writer != nil {
		PutBufioWriter(c.writer)
		c.writer = nil
	}
}

// Hijacked reports whether a handler has taken over the raw connection via
// Hijack. Callers that close netConn themselves after Serve returns should
// skip doing so when this is true.
func (c *Connection) Hijacked() bool {
	return c.hijacked.Load()
}

// RemoteAddr returns the remote network address
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr returns the local network address
func (c *Connection) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RequestCount returns the number of requests handled on this connection (lock-free)
func (c *Connection) RequestCount() int {
	return int(c.requests.Load())
}

// IdleTime returns how long the connection has been idle (lock-free)
func (c *Connection) IdleTime() time.Duration {
	if c.State() == StateActive {
		return 0
	}

	lastUseNano := c.lastUse.Load()
	lastUseTime := time.Unix(0, lastUseNano)
	return time.Since(lastUseTime)
}
