package api

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeKeyPair writes a throwaway self-signed certificate for localhost.
func writeKeyPair(t *testing.T) *TLSFiles {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	files := &TLSFiles{CertFile: filepath.Join(dir, "cert.pem"), KeyFile: filepath.Join(dir, "key.pem")}
	if err := os.WriteFile(files.CertFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(files.KeyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return files
}

func TestInitTLS(t *testing.T) {
	tests := []struct {
		name, cert, key string
		enabled         bool
	}{
		{"unset", "", "", false},
		{"cert only", "/path/to/cert.pem", "", false},
		{"key only", "", "/path/to/key.pem", false},
		{"both", "/path/to/cert.pem", "/path/to/key.pem", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetTLSConfigForTest(&TLSFiles{CertFile: "/old/cert.pem", KeyFile: "/old/key.pem"})
			defer SetTLSConfigForTest(nil)
			t.Setenv("ARTUTOR_TLS_CERT", tt.cert)
			t.Setenv("ARTUTOR_TLS_KEY", tt.key)

			InitTLS()

			if IsTLSEnabled() != tt.enabled {
				t.Fatalf("IsTLSEnabled = %v, want %v", IsTLSEnabled(), tt.enabled)
			}
			if tt.enabled && TLSSettings().CertFile != tt.cert {
				t.Errorf("CertFile = %q, want %q", TLSSettings().CertFile, tt.cert)
			}
		})
	}
}

func TestServerTLSConfigDisabled(t *testing.T) {
	SetTLSConfigForTest(nil)

	cfg, err := serverTLSConfig()
	if cfg != nil || err != nil {
		t.Errorf("expected nil, nil when TLS is off, got %v, %v", cfg, err)
	}
}

func TestServerTLSConfigMissingFiles(t *testing.T) {
	SetTLSConfigForTest(&TLSFiles{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"})
	defer SetTLSConfigForTest(nil)

	if _, err := serverTLSConfig(); err == nil {
		t.Error("expected an error for missing key pair")
	}
}

func TestServerTLSConfigLoadsKeyPair(t *testing.T) {
	SetTLSConfigForTest(writeKeyPair(t))
	defer SetTLSConfigForTest(nil)

	cfg, err := serverTLSConfig()
	if err != nil {
		t.Fatalf("serverTLSConfig: %v", err)
	}
	if len(cfg.Certificates) != 1 || cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("unexpected tls config: %d certs, min version %x", len(cfg.Certificates), cfg.MinVersion)
	}
}
