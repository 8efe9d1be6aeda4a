package websocket

import (
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sylphxai/gust/pkg/gust/http11"
)

// hijackTestConn is a minimal net.Conn backed by fixed request bytes, used
// to drive a real http11.Connection through a handshake and hijack without
// a real socket.
type hijackTestConn struct {
	readData  *strings.Reader
	writeData *strings.Builder
	mu        sync.Mutex
	closed    bool
}

func newHijackTestConn(data string) *hijackTestConn {
	return &hijackTestConn{
		readData:  strings.NewReader(data),
		writeData: &strings.Builder{},
	}
}

func (c *hijackTestConn) Read(b []byte) (int, error)  { return c.readData.Read(b) }
func (c *hijackTestConn) Write(b []byte) (int, error) { return c.writeData.Write(b) }
func (c *hijackTestConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
func (c *hijackTestConn) LocalAddr() net.Addr                { return &net.TCPAddr{Port: 8080} }
func (c *hijackTestConn) RemoteAddr() net.Addr                { return &net.TCPAddr{Port: 12345} }
func (c *hijackTestConn) SetDeadline(t time.Time) error       { return nil }
func (c *hijackTestConn) SetReadDeadline(t time.Time) error   { return nil }
func (c *hijackTestConn) SetWriteDeadline(t time.Time) error  { return nil }
func (c *hijackTestConn) written() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeData.String()
}

func TestUpgradeContextSwitchesProtocols(t *testing.T) {
	request := "GET /ws HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Connection: Upgrade\r\n" +
		"Upgrade: websocket\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"\r\n"

	conn := newHijackTestConn(request)
	config := http11.DefaultConnectionConfig()

	u := &Upgrader{}
	var upgraded *Conn
	var upgradeErr error

	handler := func(ctx *http11.Context) error {
		upgraded, upgradeErr = u.UpgradeContext(ctx)
		return nil
	}

	httpConn := http11.NewConnection(conn, config, handler)
	if err := httpConn.Serve(); err != nil {
		t.Fatalf("Serve error: %v", err)
	}

	if upgradeErr != nil {
		t.Fatalf("UpgradeContext error: %v", upgradeErr)
	}
	if upgraded == nil {
		t.Fatal("UpgradeContext returned nil connection")
	}

	response := conn.written()
	if !strings.Contains(response, "101 Switching Protocols") {
		t.Errorf("response missing 101 status: %q", response)
	}
	if !strings.Contains(response, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=") {
		t.Errorf("response missing expected accept key: %q", response)
	}
	if !httpConn.Hijacked() {
		t.Error("connection should report Hijacked() == true after a successful upgrade")
	}
}

func TestUpgradeContextRejectsMissingKey(t *testing.T) {
	request := "GET /ws HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Connection: Upgrade\r\n" +
		"Upgrade: websocket\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"\r\n"

	conn := newHijackTestConn(request)
	config := http11.DefaultConnectionConfig()

	u := &Upgrader{}
	var upgradeErr error

	handler := func(ctx *http11.Context) error {
		_, upgradeErr = u.UpgradeContext(ctx)
		return nil
	}

	httpConn := http11.NewConnection(conn, config, handler)
	if err := httpConn.Serve(); err != nil {
		t.Fatalf("Serve error: %v", err)
	}

	if upgradeErr != ErrBadWebSocketKey {
		t.Errorf("err = %v, want ErrBadWebSocketKey", upgradeErr)
	}
	if httpConn.Hijacked() {
		t.Error("connection should not be hijacked when the handshake is rejected")
	}
}
