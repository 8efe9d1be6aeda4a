package http11

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"

	"github.com/valyala/bytebufferpool"
)

// Context is the Raw Context materialized from a parsed request immediately
// before dispatch. It borrows from the connection's receive buffer for the
// duration of a single handler invocation and response write; it must never
// escape that step. Call Clone() on the underlying Request first if a value
// needs to survive past the handler.
type Context struct {
	Request *Request
	Writer  *ResponseWriter
	Params  Params

	// hijack is set by the connection driver for the lifetime of a single
	// dispatch; Hijack() calls through it. Nil outside of Serve (e.g. a
	// Context built directly in tests), in which case Hijack reports
	// ErrConnectionClosed.
	hijack func() (net.Conn, *bufio.ReadWriter, error)

	// AppCtx is the application-defined per-request value the framework
	// treats as opaque. Populated by the server's context factory, if any.
	AppCtx any

	// body caches the materialized body on first read so repeated calls to
	// Body()/JSON() don't re-drain the reader.
	body     []byte
	bodyRead bool

	std context.Context
}

// reset clears the Context for pooled reuse.
func (c *Context) reset() {
	c.Request = nil
	c.Writer = nil
	c.Params.Reset()
	c.AppCtx = nil
	c.body = nil
	c.bodyRead = false
	c.std = nil
	c.hijack = nil
}

// Hijack takes over the raw connection for this request, bypassing the
// driver's request/response framing — the mechanism WebSocket upgrades
// and similar byte-stream protocols use.
// After a successful Hijack, the handler owns net.Conn and the returned
// bufio.ReadWriter directly; it must not use ctx.Writer again, and the
// driver will not write a response or close the socket itself.
func (c *Context) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if c.hijack == nil {
		return nil, nil, ErrConnectionClosed
	}
	return c.hijack()
}

// Method returns the request method, e.g. "GET".
func (c *Context) Method() string { return c.Request.Method() }

// Path returns the request path.
func (c *Context) Path() string { return c.Request.Path() }

// Query returns the raw query string (without the leading '?').
func (c *Context) Query() string { return c.Request.Query() }

// Header returns a request header value by name (case-insensitive).
func (c *Context) Header(name string) string { return c.Request.GetHeaderString(name) }

// Param returns a captured route parameter value, or "" if absent.
func (c *Context) Param(name string) string { return c.Params.Get(name) }

// Context returns a standard context.Context for cancellation pass-through.
// The core never cancels it itself; it exists so middleware/handlers that
// need an externally-provided cancellation signal have somewhere to look.
func (c *Context) Context() context.Context {
	if c.std == nil {
		return context.Background()
	}
	return c.std
}

// WithContext attaches a cancellation context for Context() to return.
// The connection driver does not call it; a request carries one only when
// a handler or middleware attaches it.
func (c *Context) WithContext(ctx context.Context) {
	c.std = ctx
}

// Body materializes the full request body. The result is cached, so
// repeated calls are free after the first. Bounded in size by the
// connection's max_body_size enforcement upstream; this call itself never
// re-checks that bound.
func (c *Context) Body() ([]byte, error) {
	if c.bodyRead {
		return c.body, nil
	}
	c.bodyRead = true
	if c.Request.Body == nil {
		return nil, nil
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err := io.Copy(buf, c.Request.Body); err != nil {
		return nil, err
	}
	b := make([]byte, buf.Len())
	copy(b, buf.B)
	c.body = b
	return b, nil
}

// JSON parses the request body as JSON and returns it as a generic value.
// Per contract this never raises: on any read or decode failure it returns
// an empty object, since middleware downstream depends on that guarantee.
func (c *Context) JSON() map[string]any {
	body, err := c.Body()
	if err != nil || len(body) == 0 {
		return map[string]any{}
	}
	var v map[string]any
	if err := json.Unmarshal(body, &v); err != nil {
		return map[string]any{}
	}
	return v
}

// BindJSON decodes the request body into v, returning a decode error if
// any. Unlike JSON(), this is for callers who want strict validation rather
// than the always-succeeds convenience accessor.
func (c *Context) BindJSON(v any) error {
	body, err := c.Body()
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// Status begins a response with the given status code.
func (c *Context) Status(code int) *Context {
	c.Writer.WriteHeader(code)
	return c
}

// Write writes raw response bytes, implicitly starting the response with
// a 200 if Status was not called first.
func (c *Context) Write(b []byte) (int, error) {
	return c.Writer.Write(b)
}

// WriteString writes a response body as plain text with a 200 status.
func (c *Context) WriteString(s string) error {
	return c.Writer.WriteText(200, []byte(s))
}

// Stream writes a response as chunked transfer encoding, one hex-framed
// chunk per entry in chunks, terminated by the zero-length chunk. Use
// this for handlers that produce the body incrementally instead of
// buffering it all before the first Write.
func (c *Context) Stream(chunks [][]byte) error {
	return c.Writer.WriteChunked(chunks)
}
