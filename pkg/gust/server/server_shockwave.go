//go:build !goexperiment.arenas && !greenteagc

package server

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sylphxai/gust/pkg/gust/http11"
)

// headerAdapterPool supplies the headerAdapter wrappers returned from
// requestAdapter.Header() and responseWriterAdapter.Header(). Wrappers are
// never put back, so once the pool is empty each call allocates a new
// one. Every other adapter the legacy handler path needs lives inline in
// adapterPair (see adapters_zero_alloc.go) and needs no pool of its own.
var headerAdapterPool = sync.Pool{
	New: func() interface{} {
		return &headerAdapter{}
	},
}

// ShockwaveServer drives accept/handle loops over a BaseServer,
// dispatching each connection through either a zero-allocation shared
// Handler closure or the LegacyHandler adapter path.
type ShockwaveServer struct {
	*BaseServer
	sharedHandler http11.Handler
}

// NewServer builds a ShockwaveServer from config. When config.Handler is
// set, its dispatch closure is built once here and shared across every
// connection; the LegacyHandler path instead builds adapters per
// connection in handleConnection.
func NewServer(config Config) Server {
	base := NewBaseServer(config)
	srv := &ShockwaveServer{BaseServer: base}

	if config.Handler != nil {
		srv.sharedHandler = func(ctx *http11.Context) error {
			srv.stats.TotalRequests.Add(1)
			if srv.config.EnableStats {
				srv.stats.LastRequestTime.Store(time.Now())
			}
			return srv.config.Handler(ctx)
		}
	}

	return srv
}

func (s *ShockwaveServer) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ln)
}

func (s *ShockwaveServer) ListenAndServeTLS(certFile, keyFile string) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.ServeTLS(ln, certFile, keyFile)
}

// Serve runs the accept loop over l until Shutdown/Close fires,
// dispatching each accepted connection to its own goroutine.
func (s *ShockwaveServer) Serve(l net.Listener) error {
	s.listener = l
	defer l.Close()

	for {
		if s.shutdown.Load() {
			return nil
		}

		if s.connSem != nil {
			select {
			case s.connSem <- struct{}{}:
			case <-s.done:
				return nil
			}
		}

		conn, err := l.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			s.stats.ConnectionErrors.Add(1)
			if s.connSem != nil {
				<-s.connSem
			}
			continue
		}

		s.stats.TotalConnections.Add(1)
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// ServeTLS wraps l in a TLS listener and serves the same connection loop
// Serve uses. The certificate/key pair named by certFile/keyFile takes
// priority; when both are empty, s.config.TLSConfig must already carry a
// usable certificate (e.g. one built via the tls package's autocert
// Config.Build), otherwise ServeTLS returns an error without serving.
func (s *ShockwaveServer) ServeTLS(l net.Listener, certFile, keyFile string) error {
	tlsConf := s.config.TLSConfig
	if tlsConf == nil {
		tlsConf = &tls.Config{}
	} else {
		tlsConf = tlsConf.Clone()
	}

	if certFile != "" || keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return fmt.Errorf("load TLS keypair: %w", err)
		}
		tlsConf.Certificates = []tls.Certificate{cert}
	}

	if len(tlsConf.Certificates) == 0 && tlsConf.GetCertificate == nil {
		return fmt.Errorf("no TLS certificate configured: pass certFile/keyFile or set Config.TLSConfig")
	}

	return s.Serve(tls.NewListener(l, tlsConf))
}

// connectionConfig builds the static http11.ConnectionConfig for every
// connection this server accepts.
func (s *ShockwaveServer) connectionConfig() http11.ConnectionConfig {
	cc := http11.ConnectionConfig{
		IdleTimeout:     s.config.IdleTimeout,
		RequestTimeout:  s.config.RequestTimeout,
		MaxRequests:     s.config.MaxKeepAliveRequests,
		MaxHeaderSize:   s.config.MaxHeaderBytes,
		MaxBodySize:     s.config.MaxRequestBodySize,
		ReadBufferSize:  s.config.ReadBufferSize,
		WriteBufferSize: s.config.WriteBufferSize,
	}
	if s.config.DisableKeepalive {
		cc.MaxRequests = 1
	}
	return cc
}

// legacyHandler builds a per-connection http11.Handler that bridges to
// s.config.LegacyHandler through one adapterPair captured by the closure
// (a single allocation per connection, reused for every request), used
// only when no zero-allocation Handler was configured.
func (s *ShockwaveServer) legacyHandler() http11.Handler {
	var adapters adapterPair

	return func(ctx *http11.Context) error {
		s.stats.TotalRequests.Add(1)
		if s.config.EnableStats {
			s.stats.LastRequestTime.Store(time.Now())
		}

		adapters.Setup(ctx.Request, ctx.Writer)
		s.config.LegacyHandler.ServeHTTP(&adapters.rwAdapter, &adapters.reqAdapter)
		adapters.Reset()

		return nil
	}
}

// handleConnection owns one accepted connection end to end. Per-request
// read/write deadlines are armed internally by http11.Connection.Serve
// (idle timer then request timer); this method only sets up the
// connection's static configuration and handler.
func (s *ShockwaveServer) handleConnection(netConn net.Conn) {
	defer s.wg.Done()

	var hijacked bool
	defer func() {
		if !hijacked {
			netConn.Close()
		}
	}()

	if s.connSem != nil {
		defer func() { <-s.connSem }()
	}

	s.trackConnection(netConn)
	defer s.untrackConnection(netConn)

	handler := s.sharedHandler
	if handler == nil {
		handler = s.legacyHandler()
	}

	conn := http11.NewConnection(netConn, s.connectionConfig(), handler)
	defer conn.Close()

	err := conn.Serve()
	hijacked = conn.Hijacked()

	if err != nil {
		s.stats.RequestErrors.Add(1)
		s.config.Logger.Debug("connection closed with error",
			"remote_addr", netConn.RemoteAddr(),
			"error", err,
		)
	}
}

// requestAdapter adapts *http11.Request to the Request interface.
type requestAdapter struct {
	req *http11.Request
}

func (r *requestAdapter) Method() string { return r.req.Method() }
func (r *requestAdapter) Path() string   { return r.req.Path() }
func (r *requestAdapter) Proto() string  { return r.req.Proto }
func (r *requestAdapter) Body() io.Reader { return r.req.Body }
func (r *requestAdapter) Close() bool     { return r.req.Close }

func (r *requestAdapter) Header() Header {
	h := headerAdapterPool.Get().(*headerAdapter)
	h.h = &r.req.Header
	return h
}
