package http11

import "errors"

// Parsing errors. All are package-level sentinels so the hot parse path
// never allocates an error.
var (
	// ErrInvalidRequestLine indicates a request line that isn't
	// "METHOD SP Request-URI SP HTTP-Version CRLF".
	ErrInvalidRequestLine = errors.New("http11: invalid request line")

	// ErrInvalidMethod indicates an unsupported or malformed HTTP method.
	ErrInvalidMethod = errors.New("http11: invalid HTTP method")

	// ErrInvalidPath indicates the request path is malformed.
	ErrInvalidPath = errors.New("http11: invalid request path")

	// ErrInvalidProtocol indicates a request line whose version token isn't
	// shaped like "HTTP/<digits>.<digits>". Well-formed versions other than
	// HTTP/1.1 and HTTP/1.0 are accepted syntactically; only the shape is
	// validated here.
	ErrInvalidProtocol = errors.New("http11: invalid or unsupported protocol version")

	// ErrInvalidHeader indicates a header line that doesn't parse as
	// "Name: Value", or that violates a field-name/whitespace rule.
	ErrInvalidHeader = errors.New("http11: invalid HTTP header")

	// ErrHeaderTooLarge indicates a header name or value exceeds the
	// configured size limits.
	ErrHeaderTooLarge = errors.New("http11: header name or value too large")

	// ErrTooManyHeaders indicates more than MaxHeaders distinct names
	// without an overflow buffer available.
	ErrTooManyHeaders = errors.New("http11: too many headers (>32 without overflow)")

	// ErrRequestLineTooLarge indicates the request line exceeds
	// MaxRequestLineSize.
	ErrRequestLineTooLarge = errors.New("http11: request line too large")

	// ErrHeadersTooLarge indicates the header block exceeds the parser's
	// configured bound.
	ErrHeadersTooLarge = errors.New("http11: headers too large")

	// ErrChunkedEncoding indicates malformed chunked transfer-encoding
	// framing: a bad chunk-size line, a missing CRLF, or an early EOF.
	ErrChunkedEncoding = errors.New("http11: chunked encoding error")

	// ErrInvalidContentLength indicates a Content-Length value that isn't
	// a plain non-negative decimal integer.
	ErrInvalidContentLength = errors.New("http11: invalid Content-Length")

	// ErrContentLengthWithTransferEncoding indicates a request carrying
	// both Content-Length and Transfer-Encoding — RFC 7230 §3.3.3 requires
	// rejecting this outright rather than guessing which one frames the
	// body, since a proxy and origin guessing differently is how request
	// smuggling happens.
	ErrContentLengthWithTransferEncoding = errors.New("http11: request has both Content-Length and Transfer-Encoding (RFC 7230 violation)")

	// ErrDuplicateContentLength indicates repeated Content-Length headers
	// whose values disagree, which RFC 7230 §3.3.3 also treats as
	// malformed rather than resolvable by picking a value.
	ErrDuplicateContentLength = errors.New("http11: duplicate Content-Length headers with different values (RFC 7230 violation)")

	// ErrURITooLong indicates the request-URI exceeds MaxURILength.
	ErrURITooLong = errors.New("http11: URI too long")

	// ErrUnexpectedEOF indicates the connection closed mid-request.
	ErrUnexpectedEOF = errors.New("http11: unexpected EOF")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("http11: buffer too small")
)

// Connection-level errors.
var (
	// ErrConnectionClosed indicates the connection has been closed.
	ErrConnectionClosed = errors.New("http11: connection closed")

	// ErrTimeout indicates a read or write timeout occurred.
	ErrTimeout = errors.New("http11: timeout")

	// ErrMaxRequestsExceeded indicates the configured per-connection
	// request cap has been reached.
	ErrMaxRequestsExceeded = errors.New("http11: max requests per connection exceeded")

	// ErrHandlerPanic indicates the handler panicked during dispatch. The
	// driver recovers at exactly one point and reports this instead of
	// propagating the panic up through the connection loop.
	ErrHandlerPanic = errors.New("http11: handler panicked")

	// ErrAlreadyHijacked is returned by a second Hijack call on the same
	// connection. Writes through the ResponseWriter after a hijack are not
	// checked and do not return it.
	ErrAlreadyHijacked = errors.New("http11: connection already hijacked")

	// ErrBodyNotEmpty names the case of hijacking while the request body
	// has not been fully drained. Connection.Hijack does not check the body
	// and does not return this error.
	ErrBodyNotEmpty = errors.New("http11: cannot hijack with unread request body")
)

// Response-writing errors.
var (
	// ErrHeadersAlreadyWritten indicates WriteHeader was called more than
	// once for the same response.
	ErrHeadersAlreadyWritten = errors.New("http11: headers already written")

	// ErrInvalidStatusCode indicates a status code outside the valid
	// 100-599 range.
	ErrInvalidStatusCode = errors.New("http11: invalid status code")
)
