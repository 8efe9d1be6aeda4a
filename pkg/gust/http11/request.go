package http11

import (
	"io"
	"net/url"
)

// Request is a single parsed HTTP/1.1 request, built for pooling and
// zero-copy access: methodBytes/pathBytes/queryBytes/protoBytes all
// alias the connection's receive buffer rather than copying out of it.
// Those slices — and anything derived from them without an explicit
// copy — are valid only until the request is reset for its next use;
// call Clone first if a value must outlive the handler.
type Request struct {
	// MethodID is the numeric method, set by the parser via ParseMethodID.
	MethodID uint8

	methodBytes []byte
	pathBytes   []byte
	queryBytes  []byte
	protoBytes  []byte

	// pathParsed caches ParsedURL()'s result; nil until first called.
	pathParsed *url.URL

	Header Header

	// Body is nil when the request has none, an io.LimitReader bounded by
	// ContentLength, or a *ChunkedReader for Transfer-Encoding: chunked.
	Body io.Reader

	// Proto is the request-line's literal version token (e.g. "HTTP/1.1",
	// but any well-formed "HTTP/<major>.<minor>" parses — see
	// parseHTTPVersion in parser.go). ProtoMajor/ProtoMinor are its
	// parsed components.
	Proto      string
	ProtoMajor int
	ProtoMinor int

	// ContentLength is 0 if no Content-Length header is present,
	// otherwise the parsed value.
	ContentLength int64

	// TransferEncoding is nil for identity encoding, ["chunked"] for
	// chunked.
	TransferEncoding []string

	// Close is true if the connection should not be reused after this
	// request — either an explicit "Connection: close", or HTTP/1.0
	// without an explicit "Connection: keep-alive".
	Close bool

	RemoteAddr string

	// buf is the pooled receive buffer methodBytes/pathBytes/etc alias
	// into; held here only so Reset can release the reference.
	buf []byte
}

// Method returns the method token as a string, via the zero-allocation
// MethodString table rather than converting methodBytes.
func (r *Request) Method() string {
	return MethodString(r.MethodID)
}

// MethodBytes returns the method token as parsed — a zero-copy alias
// into the receive buffer, valid only for the request's lifetime.
func (r *Request) MethodBytes() []byte {
	return r.methodBytes
}

// Path allocates and returns the request path as a string. Use PathBytes
// to read it without allocating.
func (r *Request) Path() string {
	return string(r.pathBytes)
}

// PathBytes returns the path as a zero-copy alias into the receive buffer.
func (r *Request) PathBytes() []byte {
	return r.pathBytes
}

// Query allocates and returns the query string (without '?'). Use
// QueryBytes to read it without allocating.
func (r *Request) Query() string {
	return string(r.queryBytes)
}

// QueryBytes returns the query string as a zero-copy alias into the
// receive buffer.
func (r *Request) QueryBytes() []byte {
	return r.queryBytes
}

// ParsedURL lazily builds and caches a *url.URL from the path and query.
// Prefer PathBytes/QueryBytes when full URL parsing isn't needed.
func (r *Request) ParsedURL() (*url.URL, error) {
	if r.pathParsed != nil {
		return r.pathParsed, nil
	}
	urlStr := string(r.pathBytes)
	if len(r.queryBytes) > 0 {
		urlStr += "?" + string(r.queryBytes)
	}
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}
	r.pathParsed = parsed
	return parsed, nil
}

// GetHeader reads a header by name (case-insensitive), or nil if absent.
func (r *Request) GetHeader(name []byte) []byte {
	return r.Header.Get(name)
}

// GetHeaderString is GetHeader returning a string; allocates.
func (r *Request) GetHeaderString(name string) string {
	return r.Header.GetString([]byte(name))
}

// HasHeader reports whether name is present (case-insensitive).
func (r *Request) HasHeader(name []byte) bool {
	return r.Header.Has(name)
}

// IsGET, IsPOST, IsPUT, IsDELETE, IsPATCH, IsHEAD, and IsOPTIONS are
// readable shorthands for comparing MethodID directly; prefer MethodID
// switches in hot paths that check more than one method.
func (r *Request) IsGET() bool     { return r.MethodID == MethodGET }
func (r *Request) IsPOST() bool    { return r.MethodID == MethodPOST }
func (r *Request) IsPUT() bool     { return r.MethodID == MethodPUT }
func (r *Request) IsDELETE() bool  { return r.MethodID == MethodDELETE }
func (r *Request) IsPATCH() bool   { return r.MethodID == MethodPATCH }
func (r *Request) IsHEAD() bool    { return r.MethodID == MethodHEAD }
func (r *Request) IsOPTIONS() bool { return r.MethodID == MethodOPTIONS }

// HasBody reports whether the request declares an entity body, via a
// positive Content-Length or any Transfer-Encoding.
func (r *Request) HasBody() bool {
	return r.ContentLength > 0 || len(r.TransferEncoding) > 0
}

// IsChunked reports whether the final (innermost-applied) transfer
// coding is chunked — per RFC 7230 §3.3.1, chunked must be the last
// coding applied, so only the last entry matters here.
func (r *Request) IsChunked() bool {
	if len(r.TransferEncoding) == 0 {
		return false
	}
	return r.TransferEncoding[len(r.TransferEncoding)-1] == "chunked"
}

// ShouldClose reports whether the connection should close after this
// request completes.
func (r *Request) ShouldClose() bool {
	return r.Close
}

// Reset clears every field for pooled reuse.
func (r *Request) Reset() {
	r.MethodID = 0
	r.methodBytes = nil
	r.pathBytes = nil
	r.queryBytes = nil
	r.protoBytes = nil
	r.pathParsed = nil
	r.Header.Reset()
	r.Body = nil
	r.Proto = ""
	r.ProtoMajor = 0
	r.ProtoMinor = 0
	r.ContentLength = 0
	r.TransferEncoding = nil
	r.Close = false
	r.RemoteAddr = ""
	r.buf = nil
}

// Clone copies out of the pooled buffer into freshly-allocated storage so
// the result survives past the handler that received the original —
// headers, path, query, method, and proto are all deep-copied; Body and
// the pooled buffer reference are deliberately left nil, since a cloned
// request is for metadata (logging, retry queues, etc.), not for
// replaying the entity body.
func (r *Request) Clone() *Request {
	clone := &Request{
		MethodID:         r.MethodID,
		methodBytes:      []byte(r.Method()),
		pathBytes:        []byte(r.Path()),
		queryBytes:       []byte(r.Query()),
		protoBytes:       []byte(r.Proto),
		Proto:            r.Proto,
		ProtoMajor:       r.ProtoMajor,
		ProtoMinor:       r.ProtoMinor,
		ContentLength:    r.ContentLength,
		TransferEncoding: r.TransferEncoding,
		Close:            r.Close,
		RemoteAddr:       r.RemoteAddr,
	}

	r.Header.VisitAll(func(name, value []byte) bool {
		clone.Header.Add(name, value)
		return true
	})

	if r.pathParsed != nil {
		if parsed, _ := r.ParsedURL(); parsed != nil {
			clone.pathParsed = &url.URL{
				Scheme:   parsed.Scheme,
				Host:     parsed.Host,
				Path:     parsed.Path,
				RawQuery: parsed.RawQuery,
			}
		}
	}

	return clone
}
