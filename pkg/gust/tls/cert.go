package tls

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

// CertificateManager tracks a CertificateEntry per domain and drives
// periodic renewal. The ACME protocol itself — directory discovery,
// nonce/JWS handling, order and authorization polling, HTTP-01
// challenge responses — is delegated entirely to
// golang.org/x/crypto/acme/autocert; this file's job is the on-disk
// account-key convention and the entry cache GetCertificateInfo/
// RenewCertificate read from.
const (
	LEProductionURL = "https://acme-v02.api.letsencrypt.org/directory"
	LEStagingURL    = "https://acme-staging-v02.api.letsencrypt.org/directory"
)

var (
	ErrCertNotFound     = errors.New("tls: certificate not found")
	ErrCertExpired      = errors.New("tls: certificate expired")
	ErrInvalidCert      = errors.New("tls: invalid certificate")
	ErrStorageFailed    = errors.New("tls: storage operation failed")
	ErrKeyGenerationErr = errors.New("tls: key generation failed")
)

type CertificateManager struct {
	certDir     string
	cacheDir    string
	accountKey  crypto.PrivateKey
	accountPath string

	mu           sync.RWMutex
	certificates map[string]*CertificateEntry

	email         string
	renewBefore   time.Duration
	checkInterval time.Duration
	staging       bool

	// autocertMgr owns the actual ACME protocol exchange and its own
	// certificate cache directory (shared with certDir).
	autocertMgr *autocert.Manager

	logger *slog.Logger

	renewalChan chan string
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

// CertificateEntry is one cached, parsed certificate plus the domain
// set and lifetime bounds the renewal monitor checks against.
type CertificateEntry struct {
	Certificate *tls.Certificate
	Leaf        *x509.Certificate
	Domains     []string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	mu          sync.RWMutex
}

// CertManagerConfig configures NewCertificateManager.
type CertManagerConfig struct {
	Email   string
	Domains []string

	CertDir       string        // default "./certs"
	Staging       bool          // use the Let's Encrypt staging directory
	RenewBefore   time.Duration // default 30 days
	CheckInterval time.Duration // default 12 hours
	KeyType       string        // "rsa2048", "rsa4096", "ecdsa256", "ecdsa384" — default "ecdsa256"
	Logger        *slog.Logger  // default slog.Default()
}

func NewCertificateManager(config *CertManagerConfig) (*CertificateManager, error) {
	if config.Email == "" {
		return nil, errors.New("tls: email is required for Let's Encrypt")
	}
	if len(config.Domains) == 0 {
		return nil, errors.New("tls: at least one domain is required")
	}

	certDir := config.CertDir
	if certDir == "" {
		certDir = "./certs"
	}
	renewBefore := config.RenewBefore
	if renewBefore == 0 {
		renewBefore = 30 * 24 * time.Hour
	}
	checkInterval := config.CheckInterval
	if checkInterval == 0 {
		checkInterval = 12 * time.Hour
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(certDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cert directory: %w", err)
	}

	cm := &CertificateManager{
		certDir:       certDir,
		cacheDir:      certDir,
		accountPath:   filepath.Join(certDir, "account.key"),
		certificates:  make(map[string]*CertificateEntry),
		email:         config.Email,
		renewBefore:   renewBefore,
		checkInterval: checkInterval,
		staging:       config.Staging,
		logger:        logger,
		renewalChan:   make(chan string, 10),
		stopChan:      make(chan struct{}),
	}

	// autocert keeps its own account state inside its cache directory,
	// but callers of this package still expect a recoverable account
	// key on disk (e.g. for out-of-band tooling), so the convention is
	// kept even though autocert itself never reads this file.
	accountKey, err := cm.loadOrCreateAccountKey(config.KeyType)
	if err != nil {
		return nil, fmt.Errorf("failed to load account key: %w", err)
	}
	cm.accountKey = accountKey

	acmeClient := &acme.Client{DirectoryURL: LEProductionURL}
	if config.Staging {
		acmeClient.DirectoryURL = LEStagingURL
	}

	cm.autocertMgr = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Cache:      autocert.DirCache(certDir),
		HostPolicy: autocert.HostWhitelist(config.Domains...),
		Email:      config.Email,
		Client:     acmeClient,
	}

	for _, domain := range config.Domains {
		// Missing certificates are obtained lazily on first
		// GetCertificate call; a load failure here is never fatal to
		// construction.
		_ = cm.loadCertificate(domain)
	}

	return cm, nil
}

// Start launches the background renewal monitor.
func (cm *CertificateManager) Start() error {
	cm.wg.Add(1)
	go cm.renewalMonitor()
	return nil
}

// Stop signals the renewal monitor to exit and waits for it.
func (cm *CertificateManager) Stop() {
	close(cm.stopChan)
	cm.wg.Wait()
}

// GetCertificate implements the crypto/tls.Config.GetCertificate
// signature: serves a cached entry when it's still valid, otherwise
// obtains a fresh one.
func (cm *CertificateManager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	domain := hello.ServerName
	if domain == "" {
		return nil, errors.New("tls: no server name provided")
	}

	cm.mu.RLock()
	entry, exists := cm.certificates[domain]
	cm.mu.RUnlock()

	if exists && entry.IsValid() {
		return entry.Certificate, nil
	}

	return cm.obtainCertificate(domain)
}

// obtainCertificate drives the embedded autocert.Manager through the
// authorize/HTTP-01/finalize flow and mirrors the result into
// cm.certificates for GetCertificateInfo/DaysUntilExpiry queries.
func (cm *CertificateManager) obtainCertificate(domain string) (*tls.Certificate, error) {
	cert, err := cm.autocertMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain})
	if err != nil {
		return nil, fmt.Errorf("failed to obtain certificate: %w", err)
	}

	leaf := cert.Leaf
	if leaf == nil {
		leaf, err = x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse leaf certificate: %w", err)
		}
	}

	cm.mu.Lock()
	cm.certificates[domain] = &CertificateEntry{
		Certificate: cert,
		Leaf:        leaf,
		Domains:     []string{domain},
		IssuedAt:    leaf.NotBefore,
		ExpiresAt:   leaf.NotAfter,
	}
	cm.mu.Unlock()

	return cert, nil
}

func (cm *CertificateManager) loadCertificate(domain string) error {
	certPath := filepath.Join(cm.certDir, domain+".crt")
	keyPath := filepath.Join(cm.certDir, domain+".key")

	if _, err := os.Stat(certPath); os.IsNotExist(err) {
		return ErrCertNotFound
	}
	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		return ErrCertNotFound
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("failed to parse leaf certificate: %w", err)
	}

	cm.mu.Lock()
	cm.certificates[domain] = &CertificateEntry{
		Certificate: &cert,
		Leaf:        leaf,
		Domains:     []string{domain},
		IssuedAt:    leaf.NotBefore,
		ExpiresAt:   leaf.NotAfter,
	}
	cm.mu.Unlock()

	return nil
}

func (cm *CertificateManager) storeCertificate(domain string, cert *tls.Certificate, privKey crypto.PrivateKey) error {
	certPath := filepath.Join(cm.certDir, domain+".crt")
	keyPath := filepath.Join(cm.certDir, domain+".key")

	if err := os.WriteFile(certPath, encodeCertificate(cert), 0600); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, encodePrivateKey(privKey), 0600); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

func (cm *CertificateManager) loadOrCreateAccountKey(keyType string) (crypto.PrivateKey, error) {
	if _, err := os.Stat(cm.accountPath); err == nil {
		keyPEM, err := os.ReadFile(cm.accountPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read account key: %w", err)
		}
		return parsePrivateKey(keyPEM)
	}

	if keyType == "" {
		keyType = "ecdsa256"
	}

	key, err := cm.generateKey(keyType)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(cm.accountPath, encodePrivateKey(key), 0600); err != nil {
		return nil, fmt.Errorf("failed to save account key: %w", err)
	}

	return key, nil
}

func (cm *CertificateManager) generateKey(keyType string) (crypto.PrivateKey, error) {
	switch keyType {
	case "rsa2048":
		return rsa.GenerateKey(rand.Reader, 2048)
	case "rsa4096":
		return rsa.GenerateKey(rand.Reader, 4096)
	case "ecdsa384":
		return ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	default: // "ecdsa256" and anything unrecognized
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
}

func (cm *CertificateManager) renewalMonitor() {
	defer cm.wg.Done()

	ticker := time.NewTicker(cm.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.checkRenewals()
		case domain := <-cm.renewalChan:
			cm.renewCertificate(domain)
		case <-cm.stopChan:
			return
		}
	}
}

func (cm *CertificateManager) checkRenewals() {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	now := time.Now()
	for domain, entry := range cm.certificates {
		if !entry.NeedsRenewal(now, cm.renewBefore) {
			continue
		}
		select {
		case cm.renewalChan <- domain:
		default:
			// Channel full; this domain gets picked up on the next tick.
		}
	}
}

func (cm *CertificateManager) renewCertificate(domain string) {
	if _, err := cm.obtainCertificate(domain); err != nil {
		cm.logger.Error("certificate renewal failed", "domain", domain, "error", err)
		return
	}
	cm.logger.Info("certificate renewed", "domain", domain)
}

// IsValid reports whether the entry's validity window currently
// contains time.Now().
func (ce *CertificateEntry) IsValid() bool {
	ce.mu.RLock()
	defer ce.mu.RUnlock()

	now := time.Now()
	return now.After(ce.IssuedAt) && now.Before(ce.ExpiresAt)
}

// NeedsRenewal reports whether now has reached renewBefore's lead time
// ahead of expiry.
func (ce *CertificateEntry) NeedsRenewal(now time.Time, renewBefore time.Duration) bool {
	ce.mu.RLock()
	defer ce.mu.RUnlock()

	return now.After(ce.ExpiresAt.Add(-renewBefore))
}

// DaysUntilExpiry returns whole days remaining until ExpiresAt,
// negative once the certificate has expired.
func (ce *CertificateEntry) DaysUntilExpiry() int {
	ce.mu.RLock()
	defer ce.mu.RUnlock()

	return int(time.Until(ce.ExpiresAt).Hours() / 24)
}

func generateCSR(privKey crypto.PrivateKey, domains []string) ([]byte, error) {
	template := &x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: domains[0]},
		DNSNames: domains,
	}
	return x509.CreateCertificateRequest(rand.Reader, template, privKey)
}

// encodePrivateKey PEM-encodes an RSA or ECDSA key. Returns nil for any
// other key type.
func encodePrivateKey(key crypto.PrivateKey) []byte {
	var pemType string
	var keyBytes []byte

	switch k := key.(type) {
	case *rsa.PrivateKey:
		pemType = "RSA PRIVATE KEY"
		keyBytes = x509.MarshalPKCS1PrivateKey(k)
	case *ecdsa.PrivateKey:
		pemType = "EC PRIVATE KEY"
		var err error
		keyBytes, err = x509.MarshalECPrivateKey(k)
		if err != nil {
			return nil
		}
	default:
		return nil
	}

	return pem.EncodeToMemory(&pem.Block{Type: pemType, Bytes: keyBytes})
}

// parsePrivateKey decodes a PEM-encoded RSA, EC, or PKCS8 private key.
func parsePrivateKey(pemData []byte) (crypto.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		return x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported key type: %s", block.Type)
	}
}

func encodeCertificate(cert *tls.Certificate) []byte {
	var certPEM []byte
	for _, c := range cert.Certificate {
		certPEM = append(certPEM, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c})...)
	}
	return certPEM
}
