package credentials

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"path/filepath"
	"testing"
	"time"
)

func TestInitGeneratesKeyAndCSR(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !m.HasKey() || !m.HasCSR() {
		t.Fatalf("expected key and csr present after Init")
	}
	if m.HasCertificate() {
		t.Fatalf("no certificate should exist yet")
	}
}

func TestInitIsIdempotent(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	key1, _ := m.GetKey()
	if err := m.Init(); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	key2, _ := m.GetKey()
	if string(key1) != string(key2) {
		t.Fatalf("Init regenerated an existing key")
	}
}

func TestCreateKeyDeletesStaleCSR(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !m.HasCSR() {
		t.Fatalf("expected csr present")
	}
	if err := m.CreateKey(); err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if m.HasCSR() {
		t.Fatalf("stale csr should have been deleted when a new key was generated")
	}
}

func TestDeleteCertificateIdempotent(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.DeleteCertificate(); err != nil {
		t.Fatalf("delete on absent certificate should be ok: %v", err)
	}
}

func TestCertificateCommonName(t *testing.T) {
	certPEM := selfSignedCert(t, "abc123")
	cn, err := CertificateCommonName(certPEM)
	if err != nil {
		t.Fatalf("CertificateCommonName: %v", err)
	}
	if cn != "abc123" {
		t.Fatalf("got %q want %q", cn, "abc123")
	}
}

func TestSaveAndGetCertificate(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(filepath.Join(dir, "creds"))
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	certPEM := selfSignedCert(t, "dev1")
	if err := m.SaveCertificate(certPEM); err != nil {
		t.Fatalf("SaveCertificate: %v", err)
	}
	if !m.HasCertificate() {
		t.Fatalf("expected certificate present")
	}
	got, err := m.GetCertificate()
	if err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
	if string(got) != string(certPEM) {
		t.Fatalf("certificate round-trip mismatch")
	}
}

func selfSignedCert(t *testing.T, cn string) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}
