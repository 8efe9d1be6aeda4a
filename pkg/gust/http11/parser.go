package http11

import (
	"bytes"
	"io"
	"sync"
)

// tmpBufPool holds scratch buffers used only while scanning for the
// end of the header section; keeping it pooled avoids a 4KB allocation
// per request.
var tmpBufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, 4096)
		return &buf
	},
}

// Parser turns a byte stream into Request values, one at a time. It reads
// the request line and header block into an owned buffer, hands back a
// Request whose method/path/query/header slices alias that buffer
// (no copying, no per-header allocation up to MaxHeaders), then wires up
// a body reader appropriate to Content-Length or Transfer-Encoding.
//
// A single Parser is not safe for concurrent use — each connection owns
// one — but it is safe to reuse sequentially across many requests on a
// keep-alive connection, including pipelined requests sent back-to-back
// in the same read.
type Parser struct {
	// buf holds the current request's line+headers, capped at
	// maxHeaderSize(). Reused across Parse calls.
	buf []byte

	// unreadBuf holds bytes read past the current request's header
	// boundary (a pipelined next request, or the start of a body that
	// arrived in the same read as the headers). Parse consumes it first
	// before reading more from the connection.
	unreadBuf []byte

	// MaxHeaderSize overrides the request-line+headers size bound. Zero
	// means "use MaxRequestLineSize+MaxHeadersSize".
	MaxHeaderSize int
}

// NewParser creates a Parser with its line+header buffer pre-sized to
// the default bound, avoiding a grow-and-copy on the first request.
func NewParser() *Parser {
	return &Parser{
		buf: make([]byte, 0, MaxRequestLineSize+MaxHeadersSize),
	}
}

func (p *Parser) maxHeaderSize() int {
	if p.MaxHeaderSize > 0 {
		return p.MaxHeaderSize
	}
	return MaxRequestLineSize + MaxHeadersSize
}

// Parse reads one HTTP/1.1 request from r. The returned *Request comes
// from a pool and its zero-copy slices alias the Parser's internal
// buffer — it is only valid until the caller returns it via PutRequest,
// or until the next Parse call. Parsing fails closed: any framing
// ambiguity (conflicting Content-Length values, Content-Length
// alongside Transfer-Encoding, a malformed request line) is an error
// rather than a best-effort guess, since guessing wrong at this layer is
// how request smuggling happens.
func (p *Parser) Parse(r io.Reader) (*Request, error) {
	p.buf = p.buf[:0]

	var reader io.Reader
	if len(p.unreadBuf) > 0 {
		reader = io.MultiReader(bytes.NewReader(p.unreadBuf), r)
		p.unreadBuf = nil
	} else {
		reader = r
	}

	if err := p.readUntilHeadersEnd(reader); err != nil {
		return nil, err
	}

	req := GetRequest()
	req.Proto = http11Proto
	req.ProtoMajor = ProtoHTTP11Major
	req.ProtoMinor = ProtoHTTP11Minor
	req.buf = p.buf

	pos, err := p.parseRequestLine(req, p.buf)
	if err != nil {
		PutRequest(req)
		return nil, err
	}

	if err := p.parseHeaders(req, p.buf[pos:]); err != nil {
		PutRequest(req)
		return nil, err
	}

	// Anything past the header boundary that arrived in this same read
	// (body bytes, or the next pipelined request) must be replayed ahead
	// of further reads from the connection. Bytes this request's body does
	// not claim stay in unreadBuf for the next Parse call.
	bodyReader := r
	if len(p.unreadBuf) > 0 {
		switch {
		case req.ContentLength > 0 && int64(len(p.unreadBuf)) >= req.ContentLength:
			bodyReader = bytes.NewReader(p.unreadBuf[:req.ContentLength])
			p.unreadBuf = p.unreadBuf[req.ContentLength:]
		case req.ContentLength > 0 || req.IsChunked():
			bodyReader = io.MultiReader(bytes.NewReader(p.unreadBuf), r)
			p.unreadBuf = nil
		}
	}

	if err := p.setupBodyReader(req, bodyReader); err != nil {
		PutRequest(req)
		return nil, err
	}

	return req, nil
}

// readUntilHeadersEnd fills p.buf from r until the "\r\n\r\n" header
// terminator appears, then trims p.buf to exactly the header block and
// stashes whatever came after it (if anything, within this one read
// sequence) in unreadBuf.
func (p *Parser) readUntilHeadersEnd(r io.Reader) error {
	tmpBufPtr := tmpBufPool.Get().(*[]byte)
	defer tmpBufPool.Put(tmpBufPtr)
	tmpBuf := *tmpBufPtr

	for {
		n, err := r.Read(tmpBuf)
		if err != nil && err != io.EOF {
			return err
		}
		if n == 0 {
			if err == io.EOF {
				return ErrUnexpectedEOF
			}
			continue
		}

		p.buf = append(p.buf, tmpBuf[:n]...)

		if len(p.buf) >= 4 {
			// The terminator can't start any earlier than 3 bytes before
			// this read began, so only that tail needs scanning.
			searchStart := len(p.buf) - n - 3
			if searchStart < 0 {
				searchStart = 0
			}
			if idx := bytes.Index(p.buf[searchStart:], doubleCRLFBytes); idx != -1 {
				end := searchStart + idx + len(doubleCRLFBytes)
				if end < len(p.buf) {
					p.unreadBuf = append([]byte(nil), p.buf[end:]...)
				}
				p.buf = p.buf[:end]
				return nil
			}
		}

		if len(p.buf) > p.maxHeaderSize() {
			return ErrHeadersTooLarge
		}

		if err == io.EOF {
			return ErrUnexpectedEOF
		}
	}
}

// parseRequestLine parses "METHOD SP Request-URI SP HTTP-Version CRLF"
// and returns the offset of the byte following it (the start of the
// header block).
func (p *Parser) parseRequestLine(req *Request, buf []byte) (int, error) {
	lineEnd := bytes.Index(buf, crlfBytes)
	if lineEnd == -1 {
		return 0, ErrInvalidRequestLine
	}
	line := buf[:lineEnd]

	if len(line) > MaxRequestLineSize {
		return 0, ErrRequestLineTooLarge
	}

	spaceIdx := bytes.IndexByte(line, ' ')
	if spaceIdx == -1 {
		return 0, ErrInvalidRequestLine
	}
	methodBytes := line[:spaceIdx]
	req.MethodID = ParseMethodID(methodBytes)
	if req.MethodID == MethodUnknown {
		return 0, ErrInvalidMethod
	}
	req.methodBytes = methodBytes

	line = line[spaceIdx+1:]
	spaceIdx = bytes.IndexByte(line, ' ')
	if spaceIdx == -1 {
		return 0, ErrInvalidRequestLine
	}
	uriBytes := line[:spaceIdx]
	if len(uriBytes) > MaxURILength {
		return 0, ErrURITooLong
	}

	if queryIdx := bytes.IndexByte(uriBytes, '?'); queryIdx != -1 {
		req.pathBytes = uriBytes[:queryIdx]
		req.queryBytes = uriBytes[queryIdx+1:]
	} else {
		req.pathBytes = uriBytes
		req.queryBytes = nil
	}

	if len(req.pathBytes) == 0 || (req.pathBytes[0] != '/' && req.pathBytes[0] != '*') {
		return 0, ErrInvalidPath
	}

	// Any well-formed "HTTP/<major>.<minor>" token is accepted here —
	// rejecting unrecognized versions outright would make this parser a
	// de facto protocol-version gatekeeper, which isn't its job. HTTP/1.0
	// does change the keep-alive default elsewhere (shouldCloseAfterRequest);
	// everything else about the negotiated version is the caller's concern.
	line = line[spaceIdx+1:]
	req.protoBytes = line

	major, minor, ok := parseHTTPVersion(line)
	if !ok {
		return 0, ErrInvalidProtocol
	}
	req.ProtoMajor = major
	req.ProtoMinor = minor
	switch {
	case bytes.Equal(line, http10Bytes):
		req.Proto = "HTTP/1.0"
	case bytes.Equal(line, http11Bytes):
		req.Proto = http11Proto
	default:
		req.Proto = string(line)
	}

	return lineEnd + len(crlfBytes), nil
}

// parseHTTPVersion decodes an "HTTP/<digits>.<digits>" token.
func parseHTTPVersion(b []byte) (major, minor int, ok bool) {
	const prefix = "HTTP/"
	if len(b) < len(prefix)+3 || string(b[:len(prefix)]) != prefix {
		return 0, 0, false
	}
	rest := b[len(prefix):]
	dot := bytes.IndexByte(rest, '.')
	if dot <= 0 || dot >= len(rest)-1 {
		return 0, 0, false
	}
	maj, ok1 := parseDigits(rest[:dot])
	min, ok2 := parseDigits(rest[dot+1:])
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return maj, min, true
}

func parseDigits(b []byte) (int, bool) {
	if len(b) == 0 {
		return 0, false
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// headerScanState tracks the handful of headers whose combination (not
// just presence) affects how the request is framed or routed, so
// parseHeaders can reject ambiguous input instead of picking a
// side — exactly the class of bug that turns into request smuggling once
// a proxy and an origin server disagree about where a request ends.
type headerScanState struct {
	hasContentLength    bool
	hasTransferEncoding bool
	contentLengthValue  int64
	hasHost             bool
}

// parseHeaders parses the "Name: Value\r\n" lines between the request
// line and the blank line that ends the header block.
func (p *Parser) parseHeaders(req *Request, buf []byte) error {
	var state headerScanState
	pos := 0

	for pos < len(buf) {
		if pos+1 < len(buf) && buf[pos] == '\r' && buf[pos+1] == '\n' {
			break
		}

		lineEnd := bytes.Index(buf[pos:], crlfBytes)
		if lineEnd == -1 {
			return ErrInvalidHeader
		}
		lineEnd += pos
		line := buf[pos:lineEnd]

		colonIdx := bytes.IndexByte(line, ':')
		if colonIdx == -1 {
			return ErrInvalidHeader
		}
		// RFC 7230 §3.2 forbids whitespace between the field name and the
		// colon — "Host : example.com" is a known request-smuggling lever
		// because intermediaries disagree on whether it names "Host" or
		// "Host ".
		if colonIdx > 0 && (line[colonIdx-1] == ' ' || line[colonIdx-1] == '\t') {
			return ErrInvalidHeader
		}

		name := line[:colonIdx]
		if bytes.IndexByte(name, ' ') != -1 || bytes.IndexByte(name, '\t') != -1 {
			return ErrInvalidHeader
		}

		value := trimLeadingSpace(line[colonIdx+1:])
		value = trimTrailingSpace(value)

		if err := req.Header.Add(name, value); err != nil {
			return err
		}
		if err := p.applySpecialHeader(req, name, value, &state); err != nil {
			return err
		}

		pos = lineEnd + len(crlfBytes)
	}

	// RFC 7230 §3.3.3: a request naming both Transfer-Encoding and
	// Content-Length is rejected outright rather than picking a
	// framing — this is the classic CL.TE smuggling shape.
	if state.hasContentLength && state.hasTransferEncoding {
		return ErrContentLengthWithTransferEncoding
	}
	return nil
}

// applySpecialHeader folds one header into req's framing-relevant
// fields, flagging any combination that makes the request's length
// ambiguous.
func (p *Parser) applySpecialHeader(req *Request, name, value []byte, state *headerScanState) error {
	switch {
	case bytesEqualCaseInsensitive(name, headerContentLength):
		n, err := parseContentLength(value)
		if err != nil {
			return ErrInvalidContentLength
		}
		if state.hasContentLength {
			// RFC 7230 §3.3.3: repeated Content-Length headers must agree;
			// a mismatch is itself evidence of a smuggling attempt.
			if state.contentLengthValue != n {
				return ErrDuplicateContentLength
			}
			return nil
		}
		state.hasContentLength = true
		state.contentLengthValue = n
		req.ContentLength = n
		return nil

	case bytesEqualCaseInsensitive(name, headerTransferEncoding):
		state.hasTransferEncoding = true
		if bytesEqualCaseInsensitive(value, headerChunked) {
			req.TransferEncoding = []string{"chunked"}
		}
		return nil

	case bytesEqualCaseInsensitive(name, headerConnection):
		if bytesEqualCaseInsensitive(value, headerClose) {
			req.Close = true
		}
		return nil

	case bytesEqualCaseInsensitive(name, headerHost):
		// RFC 7230 §5.4 requires exactly one Host header on HTTP/1.1.
		if state.hasHost {
			return ErrInvalidHeader
		}
		state.hasHost = true
		return nil

	default:
		return nil
	}
}

// setupBodyReader attaches req.Body appropriate to the framing the
// header scan discovered: nil for no body, an io.LimitReader for
// Content-Length, or a ChunkedReader for chunked Transfer-Encoding.
func (p *Parser) setupBodyReader(req *Request, r io.Reader) error {
	switch {
	case req.ContentLength == 0 && len(req.TransferEncoding) == 0:
		req.Body = nil
	case req.ContentLength > 0:
		req.Body = io.LimitReader(r, req.ContentLength)
	case req.IsChunked():
		req.Body = NewChunkedReader(r)
	}
	return nil
}

// parseContentLength decodes a decimal Content-Length value, rejecting
// anything non-numeric or that would overflow int64.
func parseContentLength(b []byte) (int64, error) {
	if len(b) == 0 {
		return -1, ErrInvalidContentLength
	}
	var n int64
	for _, c := range b {
		if c < '0' || c > '9' {
			return -1, ErrInvalidContentLength
		}
		n = n*10 + int64(c-'0')
		if n < 0 {
			return -1, ErrInvalidContentLength
		}
	}
	return n, nil
}

func trimLeadingSpace(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	return b
}

func trimTrailingSpace(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}
