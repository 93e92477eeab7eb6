// Package credentials owns the device's private key, certificate signing
// request, and issued client certificate on disk. It never touches the
// network; the pairing package exchanges the CSR this package produces
// for a signed certificate.
package credentials

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// Go's standard library crypto/x509 and crypto/rsa are the sole PKI
// primitives available anywhere in the retrieval pack — no example repo
// imports a third-party X.509/CSR library — so this package is stdlib-only
// by necessity, not by default; see DESIGN.md.

const (
	keyFileName  = "device.key"
	csrFileName  = "device.csr"
	certFileName = "device.crt"
	dirMode      = 0700
	fileMode     = 0600
)

// Manager owns the three on-disk PEM files: the device's private key,
// its certificate signing request, and its issued client certificate.
type Manager struct {
	dir string
}

// NewManager returns a Manager rooted at dir. It does not touch the
// filesystem until Init or one of the create/save operations is called.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

func (m *Manager) path(name string) string { return filepath.Join(m.dir, name) }

// Init ensures the credentials directory exists, a private key is
// present (generating one if absent), and a CSR is present (generating
// one from the key if absent). Whenever a new key is generated any stale
// CSR is deleted first, since a CSR is only valid for the key it was
// signed with.
func (m *Manager) Init() error {
	if err := os.MkdirAll(m.dir, dirMode); err != nil {
		return fmt.Errorf("credentials: mkdir %s: %w", m.dir, err)
	}
	if !m.HasKey() {
		if err := m.CreateKey(); err != nil {
			return err
		}
	}
	if !m.HasCSR() {
		if err := m.CreateCSR(); err != nil {
			return err
		}
	}
	return nil
}

// CreateKey generates an RSA-2048 key (exponent 65537), writes it as PEM,
// and deletes any existing CSR since it was derived from the old key.
func (m *Manager) CreateKey() error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("credentials: generate key: %w", err)
	}
	der := x509.MarshalPKCS1PrivateKey(key)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}
	if err := os.WriteFile(m.path(keyFileName), pem.EncodeToMemory(block), fileMode); err != nil {
		return fmt.Errorf("credentials: write key: %w", err)
	}
	if err := os.Remove(m.path(csrFileName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("credentials: remove stale csr: %w", err)
	}
	return nil
}

// CreateCSR loads the existing key and writes a new X.509 CSR, SHA-256
// signed, with a placeholder CN — the pairing service replaces it with
// the device's assigned common name when it signs the certificate.
func (m *Manager) CreateCSR() error {
	keyPEM, err := os.ReadFile(m.path(keyFileName))
	if err != nil {
		return fmt.Errorf("credentials: read key: %w", err)
	}
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return fmt.Errorf("credentials: malformed key PEM")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("credentials: parse key: %w", err)
	}
	template := &x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: "temporary"},
		SignatureAlgorithm: x509.SHA256WithRSA,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		return fmt.Errorf("credentials: create csr: %w", err)
	}
	block = &pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}
	if err := os.WriteFile(m.path(csrFileName), pem.EncodeToMemory(block), fileMode); err != nil {
		return fmt.Errorf("credentials: write csr: %w", err)
	}
	return nil
}

// SaveCertificate stores a signed certificate PEM blob received from the
// pairing service.
func (m *Manager) SaveCertificate(certPEM []byte) error {
	if err := os.WriteFile(m.path(certFileName), certPEM, fileMode); err != nil {
		return fmt.Errorf("credentials: write certificate: %w", err)
	}
	return nil
}

// GetKey returns the stored private key PEM.
func (m *Manager) GetKey() ([]byte, error) { return os.ReadFile(m.path(keyFileName)) }

// GetCSR returns the stored CSR PEM.
func (m *Manager) GetCSR() ([]byte, error) { return os.ReadFile(m.path(csrFileName)) }

// GetCertificate returns the stored certificate PEM.
func (m *Manager) GetCertificate() ([]byte, error) { return os.ReadFile(m.path(certFileName)) }

// DeleteCertificate removes the stored certificate, if any. Deleting an
// already-absent certificate is not an error.
func (m *Manager) DeleteCertificate() error {
	if err := os.Remove(m.path(certFileName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("credentials: delete certificate: %w", err)
	}
	return nil
}

func (m *Manager) exists(name string) bool {
	_, err := os.Stat(m.path(name))
	return err == nil
}

// HasKey reports whether a private key is stored.
func (m *Manager) HasKey() bool { return m.exists(keyFileName) }

// HasCSR reports whether a CSR is stored.
func (m *Manager) HasCSR() bool { return m.exists(csrFileName) }

// HasCertificate reports whether a certificate is stored.
func (m *Manager) HasCertificate() bool { return m.exists(certFileName) }

// CertificateCommonName parses the subject common name out of a
// certificate PEM blob. The session engine uses this — and only this —
// as the source of the MQTT topic prefix.
func CertificateCommonName(certPEM []byte) (string, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", fmt.Errorf("credentials: malformed certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("credentials: parse certificate: %w", err)
	}
	return cert.Subject.CommonName, nil
}
