package websocket

import (
	"encoding/binary"
	"io"
)

// FrameReader parses WebSocket frames off an io.Reader, reusing its
// header and payload buffers across calls to avoid per-frame
// allocation on the common path.
type FrameReader struct {
	r          io.Reader
	headerBuf  *[]byte
	payloadBuf []byte
	pool       *BufferPool
}

// NewFrameReader wraps r with pooled header/payload buffers.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r:          r,
		headerBuf:  getHeaderBuffer(),
		payloadBuf: make([]byte, 0, 4096),
		pool:       DefaultBufferPool,
	}
}

// Close returns the reader's pooled header buffer. Safe to call once;
// a second call is a no-op.
func (fr *FrameReader) Close() {
	if fr.headerBuf != nil {
		putHeaderBuffer(fr.headerBuf)
		fr.headerBuf = nil
	}
}

// readFrameHeader reads and validates everything up to the payload:
// the fixed 2-byte header, any extended length field, and the masking
// key if present. Returns the in-progress Frame (Payload unset) and
// the total header size consumed, for the caller to then read
// frame.Length bytes of payload from fr.r.
func (fr *FrameReader) readFrameHeader() (*Frame, int, error) {
	if _, err := io.ReadFull(fr.r, (*fr.headerBuf)[:2]); err != nil {
		return nil, 0, err
	}

	frame := &Frame{}

	b0 := (*fr.headerBuf)[0]
	frame.Fin = (b0 & finalBit) != 0
	frame.RSV1 = (b0 & rsv1Bit) != 0
	frame.RSV2 = (b0 & rsv2Bit) != 0
	frame.RSV3 = (b0 & rsv3Bit) != 0
	frame.Opcode = b0 & opcodeMask

	b1 := (*fr.headerBuf)[1]
	frame.Masked = (b1 & maskBit) != 0
	payloadLen := uint64(b1 & lengthMask)

	if frame.Opcode > 0xA || (frame.Opcode > 0x2 && frame.Opcode < 0x8) {
		return nil, 0, ErrInvalidOpcode
	}

	if frame.IsControl() {
		if !frame.Fin {
			return nil, 0, ErrFragmentedControl
		}
		if payloadLen > MaxControlFramePayload {
			return nil, 0, ErrInvalidControlFrame
		}
	}

	if frame.RSV1 || frame.RSV2 || frame.RSV3 {
		return nil, 0, ErrReservedBitsSet
	}

	headerSize := 2
	switch payloadLen {
	case 126:
		if _, err := io.ReadFull(fr.r, (*fr.headerBuf)[2:4]); err != nil {
			return nil, 0, err
		}
		frame.Length = uint64(binary.BigEndian.Uint16((*fr.headerBuf)[2:4]))
		headerSize = 4

	case 127:
		if _, err := io.ReadFull(fr.r, (*fr.headerBuf)[2:10]); err != nil {
			return nil, 0, err
		}
		frame.Length = binary.BigEndian.Uint64((*fr.headerBuf)[2:10])
		headerSize = 10

		// RFC 6455 §5.2: the most significant bit of the 64-bit length
		// must be 0.
		if frame.Length&(1<<63) != 0 {
			return nil, 0, ErrFrameTooLarge
		}

	default:
		frame.Length = payloadLen
	}

	if frame.Masked {
		if _, err := io.ReadFull(fr.r, (*fr.headerBuf)[headerSize:headerSize+4]); err != nil {
			return nil, 0, err
		}
		copy(frame.MaskKey[:], (*fr.headerBuf)[headerSize:headerSize+4])
	}

	return frame, headerSize, nil
}

// ReadFrame reads the next frame, unmasking its payload if needed. The
// returned Frame.Payload aliases the reader's internal buffer and may
// be overwritten by the next ReadFrame call — copy it if it needs to
// outlive that call.
//
// Frames at or under the reader's current internal buffer capacity
// (4096 bytes to start) cost no allocation; larger frames grow and
// retain a bigger buffer for subsequent calls.
func (fr *FrameReader) ReadFrame() (*Frame, error) {
	frame, _, err := fr.readFrameHeader()
	if err != nil {
		return nil, err
	}

	if frame.Length == 0 {
		return frame, nil
	}

	if uint64(cap(fr.payloadBuf)) >= frame.Length {
		fr.payloadBuf = fr.payloadBuf[:frame.Length]
	} else if poolBuf, ok := fr.pool.GetExact(int(frame.Length)); ok {
		fr.payloadBuf = poolBuf[:frame.Length]
	} else {
		fr.payloadBuf = make([]byte, frame.Length)
	}

	if _, err := io.ReadFull(fr.r, fr.payloadBuf); err != nil {
		return nil, err
	}

	if frame.Masked {
		maskBytes(fr.payloadBuf, frame.MaskKey)
	}
	frame.Payload = fr.payloadBuf

	return frame, nil
}

// ReadFrameInto reads the next frame's payload into a caller-supplied
// buffer instead of the reader's own, for callers that already manage
// their own buffer lifecycle. Returns ErrFrameTooLarge if buf is
// smaller than the frame's payload.
func (fr *FrameReader) ReadFrameInto(buf []byte) (*Frame, int, error) {
	frame, _, err := fr.readFrameHeader()
	if err != nil {
		return nil, 0, err
	}

	if frame.Length == 0 {
		return frame, 0, nil
	}

	if uint64(len(buf)) < frame.Length {
		return nil, 0, ErrFrameTooLarge
	}

	payload := buf[:frame.Length]
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return nil, 0, err
	}

	if frame.Masked {
		maskBytes(payload, frame.MaskKey)
	}
	frame.Payload = payload

	return frame, int(frame.Length), nil
}

// FrameWriter writes frames to an io.Writer, reusing its header buffer
// across calls.
type FrameWriter struct {
	w         io.Writer
	headerBuf [MaxFrameHeaderSize]byte
	maskKey   [4]byte
}

// NewFrameWriter wraps w for frame writing.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame writes one frame. A non-nil maskKey masks payload in place
// before writing it — the caller's slice is mutated — since masking is
// the client→server direction's requirement (RFC 6455 §5.3) and this
// writer has no separate scratch buffer to mask into instead.
func (fw *FrameWriter) WriteFrame(opcode byte, fin bool, payload []byte, maskKey *[4]byte) error {
	b0 := opcode
	if fin {
		b0 |= finalBit
	}
	fw.headerBuf[0] = b0

	payloadLen := uint64(len(payload))
	headerSize := 2

	b1 := byte(0)
	if maskKey != nil {
		b1 |= maskBit
	}

	switch {
	case payloadLen <= 125:
		fw.headerBuf[1] = b1 | byte(payloadLen)

	case payloadLen <= 0xFFFF:
		fw.headerBuf[1] = b1 | 126
		binary.BigEndian.PutUint16(fw.headerBuf[2:4], uint16(payloadLen))
		headerSize = 4

	default:
		fw.headerBuf[1] = b1 | 127
		binary.BigEndian.PutUint64(fw.headerBuf[2:10], payloadLen)
		headerSize = 10
	}

	if maskKey != nil {
		copy(fw.headerBuf[headerSize:headerSize+4], maskKey[:])
		headerSize += 4
	}

	if _, err := fw.w.Write(fw.headerBuf[:headerSize]); err != nil {
		return err
	}

	if len(payload) > 0 {
		if maskKey != nil {
			maskBytes(payload, *maskKey)
		}
		if _, err := fw.w.Write(payload); err != nil {
			return err
		}
	}

	return nil
}

// WriteControlFrame writes a Close/Ping/Pong frame. Rejects payloads
// over MaxControlFramePayload and opcodes outside the control range.
func (fw *FrameWriter) WriteControlFrame(opcode byte, payload []byte, maskKey *[4]byte) error {
	if len(payload) > MaxControlFramePayload {
		return ErrInvalidControlFrame
	}
	if opcode < OpcodeClose || opcode > OpcodePong {
		return ErrInvalidOpcode
	}
	return fw.WriteFrame(opcode, true, payload, maskKey)
}

// WriteTextFrame writes a single-frame text message.
func (fw *FrameWriter) WriteTextFrame(data []byte, maskKey *[4]byte) error {
	return fw.WriteFrame(OpcodeText, true, data, maskKey)
}

// WriteBinaryFrame writes a single-frame binary message.
func (fw *FrameWriter) WriteBinaryFrame(data []byte, maskKey *[4]byte) error {
	return fw.WriteFrame(OpcodeBinary, true, data, maskKey)
}

// WritePing writes a Ping control frame.
func (fw *FrameWriter) WritePing(payload []byte, maskKey *[4]byte) error {
	return fw.WriteControlFrame(OpcodePing, payload, maskKey)
}

// WritePong writes a Pong control frame.
func (fw *FrameWriter) WritePong(payload []byte, maskKey *[4]byte) error {
	return fw.WriteControlFrame(OpcodePong, payload, maskKey)
}

// WriteClose writes a Close frame. A zero code omits the status-code/
// reason payload entirely, per RFC 6455 §7.1.5's allowance for a
// bodyless close.
func (fw *FrameWriter) WriteClose(code uint16, reason string, maskKey *[4]byte) error {
	var payload []byte
	if code != 0 {
		payload = make([]byte, 2+len(reason))
		binary.BigEndian.PutUint16(payload, code)
		copy(payload[2:], reason)
	}
	return fw.WriteControlFrame(OpcodeClose, payload, maskKey)
}
