// Package tls builds *tls.Config values for the server, either from a
// manual certificate/key pair or from automatic ACME provisioning
// (CertificateManager, backed by golang.org/x/crypto/acme/autocert).
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"
)

// Config is a fluent builder: every With* method mutates and returns
// the receiver, so calls chain. Build() turns the accumulated options
// into a *tls.Config.
type Config struct {
	// AutoCert routes Build through ACME provisioning instead of a
	// manual cert/key pair; Email and Domains become required.
	AutoCert      bool
	Email         string
	Domains       []string
	CertDir       string
	Staging       bool // Let's Encrypt staging directory, for testing
	RenewBefore   time.Duration
	CheckInterval time.Duration

	// CertFile/KeyFile are read when AutoCert is false.
	CertFile string
	KeyFile  string

	MinVersion             uint16
	MaxVersion             uint16
	CipherSuites           []uint16
	PreferServerCiphers    bool
	SessionTicketsDisabled bool
	Renegotiation          tls.RenegotiationSupport
	ClientAuth             tls.ClientAuthType
	ClientCAs              []string

	NextProtos []string

	// certManager is non-nil only after a successful buildAutoCert;
	// Stop/GetCertificateInfo/RenewCertificate all route through it.
	certManager *CertificateManager
}

// defaultCipherSuites lists AEAD, forward-secret TLS 1.2 cipher suites.
// TLS 1.3's own suite set is fixed by the standard library and isn't
// configurable here.
var defaultCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// NewConfig returns a Config seeded with secure, broadly-compatible
// defaults: TLS 1.2 minimum, the modern cipher suite list, renegotiation
// disabled, and h2/http1.1 ALPN.
func NewConfig() *Config {
	return &Config{
		MinVersion:          tls.VersionTLS12,
		MaxVersion:          tls.VersionTLS13,
		CipherSuites:        defaultCipherSuites,
		PreferServerCiphers: true,
		Renegotiation:       tls.RenegotiateNever,
		NextProtos:          []string{"h2", "http/1.1"},
		RenewBefore:         30 * 24 * time.Hour,
		CheckInterval:       12 * time.Hour,
	}
}

// WithAutoCert switches Build to automatic Let's Encrypt provisioning
// for the given domains, notified/contacted at email.
func (c *Config) WithAutoCert(email string, domains ...string) *Config {
	c.AutoCert = true
	c.Email = email
	c.Domains = domains
	return c
}

// WithStaging points ACME provisioning at Let's Encrypt's staging
// directory, which issues untrusted certificates but without the
// production directory's rate limits — for exercising the renewal path
// in tests without burning a production quota.
func (c *Config) WithStaging() *Config {
	c.Staging = true
	return c
}

// WithCertDir sets where provisioned certificates and account keys are
// cached on disk.
func (c *Config) WithCertDir(dir string) *Config {
	c.CertDir = dir
	return c
}

// WithManualCert switches Build to a static cert/key pair read from
// disk, turning AutoCert off if it was previously set.
func (c *Config) WithManualCert(certFile, keyFile string) *Config {
	c.AutoCert = false
	c.CertFile = certFile
	c.KeyFile = keyFile
	return c
}

// WithMinTLSVersion overrides the minimum negotiated protocol version.
func (c *Config) WithMinTLSVersion(version uint16) *Config {
	c.MinVersion = version
	return c
}

// WithMaxTLSVersion overrides the maximum negotiated protocol version.
func (c *Config) WithMaxTLSVersion(version uint16) *Config {
	c.MaxVersion = version
	return c
}

// WithCipherSuites overrides the TLS 1.2 cipher suite list.
func (c *Config) WithCipherSuites(suites []uint16) *Config {
	c.CipherSuites = suites
	return c
}

// WithALPN overrides the advertised application protocols.
func (c *Config) WithALPN(protos ...string) *Config {
	c.NextProtos = protos
	return c
}

// WithClientAuth requires or requests client certificates per authType.
func (c *Config) WithClientAuth(authType tls.ClientAuthType) *Config {
	c.ClientAuth = authType
	return c
}

// WithRenewBefore sets how long before expiry the renewal monitor
// refreshes a certificate.
func (c *Config) WithRenewBefore(d time.Duration) *Config {
	c.RenewBefore = d
	return c
}

// WithCheckInterval sets how often the renewal monitor wakes up to scan
// for certificates approaching expiry.
func (c *Config) WithCheckInterval(d time.Duration) *Config {
	c.CheckInterval = d
	return c
}

// Build produces a *tls.Config from the accumulated options, routing to
// ACME provisioning or a manual cert/key pair depending on AutoCert.
func (c *Config) Build() (*tls.Config, error) {
	if c.AutoCert {
		return c.buildAutoCert()
	}
	return c.buildManualCert()
}

func (c *Config) buildAutoCert() (*tls.Config, error) {
	if c.Email == "" {
		return nil, errors.New("email is required for automatic certificates")
	}
	if len(c.Domains) == 0 {
		return nil, errors.New("at least one domain is required for automatic certificates")
	}

	mgr, err := NewCertificateManager(&CertManagerConfig{
		Email:         c.Email,
		Domains:       c.Domains,
		CertDir:       c.CertDir,
		Staging:       c.Staging,
		RenewBefore:   c.RenewBefore,
		CheckInterval: c.CheckInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("create certificate manager: %w", err)
	}
	if err := mgr.Start(); err != nil {
		return nil, fmt.Errorf("start certificate manager: %w", err)
	}
	c.certManager = mgr

	return c.baseTLSConfig(&tls.Config{
		GetCertificate: mgr.GetCertificate,
	}), nil
}

func (c *Config) buildManualCert() (*tls.Config, error) {
	if c.CertFile == "" || c.KeyFile == "" {
		return nil, errors.New("certificate and key files are required")
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}

	return c.baseTLSConfig(&tls.Config{
		Certificates: []tls.Certificate{cert},
	}), nil
}

// baseTLSConfig fills in the options shared between the auto-cert and
// manual-cert paths on top of whatever certificate source base already
// carries.
func (c *Config) baseTLSConfig(base *tls.Config) *tls.Config {
	base.MinVersion = c.MinVersion
	base.MaxVersion = c.MaxVersion
	base.CipherSuites = c.CipherSuites
	base.PreferServerCipherSuites = c.PreferServerCiphers
	base.SessionTicketsDisabled = c.SessionTicketsDisabled
	base.Renegotiation = c.Renegotiation
	base.NextProtos = c.NextProtos
	base.ClientAuth = c.ClientAuth
	return base
}

// Stop shuts down the background renewal monitor, if AutoCert was used.
// A no-op otherwise.
func (c *Config) Stop() {
	if c.certManager != nil {
		c.certManager.Stop()
	}
}

// GetCertificateInfo returns a snapshot of the managed-certificate
// cache, or nil if Build hasn't run the auto-cert path.
func (c *Config) GetCertificateInfo() map[string]*CertificateEntry {
	if c.certManager == nil {
		return nil
	}

	c.certManager.mu.RLock()
	defer c.certManager.mu.RUnlock()

	info := make(map[string]*CertificateEntry, len(c.certManager.certificates))
	for domain, entry := range c.certManager.certificates {
		info[domain] = entry
	}
	return info
}

// RenewCertificate queues an out-of-band renewal for domain. Returns an
// error if no certificate manager is running or the renewal queue is
// currently full.
func (c *Config) RenewCertificate(domain string) error {
	if c.certManager == nil {
		return errors.New("certificate manager not initialized")
	}

	select {
	case c.certManager.renewalChan <- domain:
		return nil
	default:
		return errors.New("renewal queue full")
	}
}

// QuickTLS is the one-call path to automatic HTTPS: build a
// production-directory ACME config for the given domains.
func QuickTLS(email string, domains ...string) (*tls.Config, error) {
	return NewConfig().WithAutoCert(email, domains...).Build()
}

// QuickTLSStaging is QuickTLS against Let's Encrypt's staging
// directory, for exercising the provisioning path without production
// rate limits.
func QuickTLSStaging(email string, domains ...string) (*tls.Config, error) {
	return NewConfig().WithAutoCert(email, domains...).WithStaging().Build()
}

// ManualTLS is the one-call path to a static cert/key pair.
func ManualTLS(certFile, keyFile string) (*tls.Config, error) {
	return NewConfig().WithManualCert(certFile, keyFile).Build()
}

// SecureDefaults returns a Config requiring TLS 1.2+, forward-secret
// AEAD ciphers only, and h2/http1.1 ALPN — the same posture NewConfig
// starts from, named separately for callers who want to start from
// "secure" rather than "default" semantics explicitly.
func SecureDefaults() *Config {
	return &Config{
		MinVersion:          tls.VersionTLS12,
		MaxVersion:          tls.VersionTLS13,
		CipherSuites:        defaultCipherSuites,
		PreferServerCiphers: true,
		Renegotiation:       tls.RenegotiateNever,
		NextProtos:          []string{"h2", "http/1.1"},
	}
}

// HTTP3Defaults is SecureDefaults with ALPN adjusted to advertise h3
// first and the minimum version raised to TLS 1.3, which HTTP/3
// requires.
func HTTP3Defaults() *Config {
	cfg := SecureDefaults()
	cfg.NextProtos = []string{"h3", "h2", "http/1.1"}
	cfg.MinVersion = tls.VersionTLS13
	return cfg
}
