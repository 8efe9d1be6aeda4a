package websocket

import (
	"crypto/rand"
	"io"
	"net"
	"sync"
	"time"
	"unicode/utf8"
)

// MessageType distinguishes the two kinds of value ReadMessage and
// WriteMessage exchange; control frames (ping/pong/close) are handled
// internally and never surface as a MessageType from ReadMessage.
type MessageType int

const (
	TextMessage   MessageType = 1
	BinaryMessage MessageType = 2

	CloseMessage MessageType = 8
	PingMessage  MessageType = 9
	PongMessage  MessageType = 10
)

// Conn is a single WebSocket connection layered over a net.Conn. It
// owns fragment reassembly, control-frame dispatch, and masking
// direction (client frames masked, server frames not — RFC 6455 §5.1),
// exposing a message-oriented API so callers never see individual
// frames.
type Conn struct {
	conn        net.Conn
	isServer    bool
	subprotocol string

	frameReader *FrameReader
	frameWriter *FrameWriter
	writeMu     sync.Mutex

	readMu          sync.Mutex
	readMessage     []byte
	readMessageType MessageType

	closeOnce sync.Once
	closeSent bool
	closeErr  error

	pingHandler func(appData string) error
	pongHandler func(appData string) error

	readDeadline   time.Time
	writeDeadline  time.Time
	maxMessageSize int64
}

const defaultMaxMessageSize = 32 * 1024 * 1024

// newConn wraps netConn for message exchange. isServer controls which
// masking direction is enforced and generated. readBufSize/writeBufSize
// are accepted but not used: NewFrameReader and NewFrameWriter size
// their own buffers, and Conn itself holds no fixed-size I/O buffer of
// its own.
func newConn(netConn net.Conn, isServer bool, readBufSize, writeBufSize int, subprotocol string) *Conn {
	c := &Conn{
		conn:           netConn,
		isServer:       isServer,
		subprotocol:    subprotocol,
		frameReader:    NewFrameReader(netConn),
		frameWriter:    NewFrameWriter(netConn),
		maxMessageSize: defaultMaxMessageSize,
	}

	c.pingHandler = c.defaultPingHandler
	c.pongHandler = func(appData string) error { return nil }

	return c
}

// ReadMessage returns the next complete data message, transparently
// reassembling fragmented frames and answering control frames along
// the way (a Ping gets an automatic Pong, a Close unwinds the
// connection and returns io.EOF).
func (c *Conn) ReadMessage() (MessageType, []byte, error) {
	for {
		frame, err := c.frameReader.ReadFrame()
		if err != nil {
			return 0, nil, err
		}

		if err := c.checkMaskDirection(frame); err != nil {
			return 0, nil, err
		}

		if frame.IsControl() {
			if err := c.handleControlFrame(frame); err != nil {
				return 0, nil, err
			}
			continue
		}

		msgType, data, err, needMore := c.handleDataFrame(frame)
		if needMore {
			continue
		}
		return msgType, data, err
	}
}

// ReadMessageInto is ReadMessage for callers supplying their own
// buffer, trading the returned-copy allocation for an ErrMessageTooLarge
// if the message doesn't fit. Only the frame header still allocates.
//
//	buf := make([]byte, 4096)
//	msgType, n, err := conn.ReadMessageInto(buf)
//	data := buf[:n]
func (c *Conn) ReadMessageInto(buf []byte) (MessageType, int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	c.readMessageType = 0
	bytesRead := 0

	for {
		if bytesRead >= len(buf) {
			c.Close()
			return 0, 0, ErrMessageTooLarge
		}

		frame, n, err := c.frameReader.ReadFrameInto(buf[bytesRead:])
		if err == ErrFrameTooLarge {
			c.Close()
			return 0, 0, ErrMessageTooLarge
		}
		if err != nil {
			return 0, 0, err
		}

		if err := c.checkMaskDirection(frame); err != nil {
			return 0, 0, err
		}

		if frame.IsControl() {
			if err := c.handleControlFrame(frame); err != nil {
				return 0, 0, err
			}
			continue
		}

		if frame.Opcode == OpcodeContinuation {
			if c.readMessageType == 0 {
				c.Close()
				return 0, 0, ErrProtocolViolation
			}
		} else {
			if c.readMessageType != 0 {
				c.Close()
				return 0, 0, ErrProtocolViolation
			}
			c.readMessageType = MessageType(frame.Opcode)
		}

		bytesRead += n

		if int64(bytesRead) > c.maxMessageSize {
			c.Close()
			return 0, 0, ErrMessageTooLarge
		}

		if !frame.Fin {
			continue
		}

		msgType := c.readMessageType
		c.readMessageType = 0

		if msgType == TextMessage && !utf8.Valid(buf[:bytesRead]) {
			c.Close()
			return 0, 0, ErrInvalidUTF8
		}

		return msgType, bytesRead, nil
	}
}

// checkMaskDirection enforces RFC 6455 §5.1: frames from a client must
// be masked, frames from a server must not be.
func (c *Conn) checkMaskDirection(frame *Frame) error {
	if c.isServer && !frame.Masked {
		c.Close()
		return ErrMaskRequired
	}
	if !c.isServer && frame.Masked {
		c.Close()
		return ErrMaskNotAllowed
	}
	return nil
}

// handleDataFrame assembles one data frame into the in-progress
// message, returning the completed message once frame.Fin is set.
// needMore reports that the message is still being fragmented and the
// caller should keep reading.
func (c *Conn) handleDataFrame(frame *Frame) (msgType MessageType, payload []byte, err error, needMore bool) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if frame.Opcode == OpcodeContinuation {
		if c.readMessageType == 0 {
			c.Close()
			return 0, nil, ErrProtocolViolation, false
		}
	} else {
		if c.readMessageType != 0 {
			c.Close()
			return 0, nil, ErrProtocolViolation, false
		}
		c.readMessageType = MessageType(frame.Opcode)
		c.readMessage = c.readMessage[:0]
	}

	if len(frame.Payload) > 0 {
		if int64(len(c.readMessage)+len(frame.Payload)) > c.maxMessageSize {
			c.Close()
			return 0, nil, ErrMessageTooLarge, false
		}
		c.readMessage = append(c.readMessage, frame.Payload...)
	}

	if !frame.Fin {
		return 0, nil, nil, true
	}

	msgType = c.readMessageType
	assembled := c.readMessage

	// RFC 6455 §8.1: a text message's full reassembled payload must be
	// valid UTF-8, checked here rather than per-fragment since a split
	// can land mid-codepoint.
	if msgType == TextMessage && !utf8.Valid(assembled) {
		c.Close()
		return 0, nil, ErrInvalidUTF8, false
	}

	result := make([]byte, len(assembled))
	copy(result, assembled)

	c.readMessageType = 0
	c.readMessage = c.readMessage[:0]

	return msgType, result, nil, false
}

// handleControlFrame dispatches a Ping/Pong/Close frame to its handler.
// A valid Close frame triggers a close-frame echo (if one hasn't already
// been sent) and returns io.EOF to unwind the read loop; a Close frame
// with an invalid status code or a non-UTF-8 reason returns
// ErrInvalidCloseCode or ErrInvalidUTF8 instead, without an echo.
func (c *Conn) handleControlFrame(frame *Frame) error {
	switch frame.Opcode {
	case OpcodePing:
		return c.pingHandler(string(frame.Payload))

	case OpcodePong:
		return c.pongHandler(string(frame.Payload))

	case OpcodeClose:
		if len(frame.Payload) >= 2 {
			code := uint16(frame.Payload[0])<<8 | uint16(frame.Payload[1])

			if len(frame.Payload) > 2 {
				reason := string(frame.Payload[2:])
				if !utf8.ValidString(reason) {
					return ErrInvalidUTF8
				}
			}

			if !isValidCloseCode(code) {
				return ErrInvalidCloseCode
			}
		}

		if !c.closeSent {
			c.WriteControl(CloseMessage, frame.Payload)
			c.closeSent = true
		}

		return io.EOF
	}

	return nil
}

// clientMaskKey returns a fresh random masking key when this Conn is
// the client side of the connection (RFC 6455 §5.3), or nil for a
// server Conn, whose outgoing frames are never masked.
func (c *Conn) clientMaskKey() (*[4]byte, error) {
	if c.isServer {
		return nil, nil
	}
	var key [4]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, err
	}
	return &key, nil
}

// WriteMessage sends data as a single, unfragmented frame of the given
// type.
func (c *Conn) WriteMessage(messageType MessageType, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.writeDeadline.IsZero() {
		c.conn.SetWriteDeadline(c.writeDeadline)
	}

	if messageType == TextMessage && !utf8.Valid(data) {
		return ErrInvalidUTF8
	}

	var opcode byte
	switch messageType {
	case TextMessage:
		opcode = OpcodeText
	case BinaryMessage:
		opcode = OpcodeBinary
	default:
		return ErrInvalidOpcode
	}

	maskKey, err := c.clientMaskKey()
	if err != nil {
		return err
	}

	return c.frameWriter.WriteFrame(opcode, true, data, maskKey)
}

// WriteControl sends a Ping, Pong, or Close control frame.
func (c *Conn) WriteControl(messageType MessageType, data []byte) error {
	if len(data) > MaxControlFramePayload {
		return ErrInvalidControlFrame
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.writeDeadline.IsZero() {
		c.conn.SetWriteDeadline(c.writeDeadline)
	}

	var opcode byte
	switch messageType {
	case CloseMessage:
		opcode = OpcodeClose
		c.closeSent = true
	case PingMessage:
		opcode = OpcodePing
	case PongMessage:
		opcode = OpcodePong
	default:
		return ErrInvalidOpcode
	}

	maskKey, err := c.clientMaskKey()
	if err != nil {
		return err
	}

	return c.frameWriter.WriteControlFrame(opcode, data, maskKey)
}

func (c *Conn) WritePing(data []byte) error { return c.WriteControl(PingMessage, data) }
func (c *Conn) WritePong(data []byte) error { return c.WriteControl(PongMessage, data) }

// Close sends a normal-closure frame (unless one was already sent) and
// closes the underlying connection. Safe to call more than once; only
// the first call does any work.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		if !c.closeSent {
			payload := []byte{byte(CloseNormalClosure >> 8), byte(CloseNormalClosure & 0xFF)}
			c.WriteControl(CloseMessage, payload)
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// CloseWithCode sends a Close frame carrying code and reason, then
// closes the underlying connection.
func (c *Conn) CloseWithCode(code uint16, reason string) error {
	if !isValidCloseCode(code) {
		return ErrInvalidCloseCode
	}

	payload := make([]byte, 2+len(reason))
	payload[0] = byte(code >> 8)
	payload[1] = byte(code)
	copy(payload[2:], reason)

	c.closeOnce.Do(func() {
		c.WriteControl(CloseMessage, payload)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	c.readDeadline = t
	return c.conn.SetReadDeadline(t)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	c.writeDeadline = t
	return c.conn.SetWriteDeadline(t)
}

// SetPingHandler overrides the default auto-Pong behavior for incoming
// Ping frames.
func (c *Conn) SetPingHandler(handler func(appData string) error) {
	c.pingHandler = handler
}

// SetPongHandler installs a callback for incoming Pong frames. There is
// no default behavior beyond accepting the frame.
func (c *Conn) SetPongHandler(handler func(appData string) error) {
	c.pongHandler = handler
}

func (c *Conn) defaultPingHandler(appData string) error {
	return c.WritePong([]byte(appData))
}

// SetMaxMessageSize caps reassembled message size; ReadMessage and
// ReadMessageInto fail with ErrMessageTooLarge past this limit. Default
// is 32MB.
func (c *Conn) SetMaxMessageSize(size int64) {
	c.maxMessageSize = size
}

func (c *Conn) Subprotocol() string  { return c.subprotocol }
func (c *Conn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// isValidCloseCode reports whether code is a close status a peer may
// legally send on the wire (RFC 6455 §7.4.1) — excludes the
// never-sent reserved codes (1004, 1005, 1006, 1015) and unassigned
// ranges below 3000.
func isValidCloseCode(code uint16) bool {
	switch code {
	case 1000, 1001, 1002, 1003, 1007, 1008, 1009, 1010, 1011:
		return true
	case 1004, 1005, 1006, 1015:
		return false
	default:
		return code >= 3000 && code <= 4999
	}
}
