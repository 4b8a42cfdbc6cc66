package api

import (
	"crypto/tls"
	"fmt"
	"log"

	"github.com/AaronLay10/ARTutor/internal/config"
)

// TLSFiles names the certificate and key the API serves with.
type TLSFiles struct {
	CertFile string
	KeyFile  string
}

var tlsFiles *TLSFiles

// InitTLS reads ARTUTOR_TLS_CERT and ARTUTOR_TLS_KEY, replacing any earlier
// setting. TLS is enabled only when both are set.
func InitTLS() {
	tlsFiles = tlsFilesFromEnv()
}

func tlsFilesFromEnv() *TLSFiles {
	cert := config.EnvOr("ARTUTOR_TLS_CERT", "")
	key := config.EnvOr("ARTUTOR_TLS_KEY", "")
	switch {
	case cert == "" && key == "":
		return nil
	case cert == "" || key == "":
		log.Printf("tls: ARTUTOR_TLS_CERT and ARTUTOR_TLS_KEY must both be set, serving plain HTTP")
		return nil
	}
	return &TLSFiles{CertFile: cert, KeyFile: key}
}

// IsTLSEnabled returns true if TLS is configured.
func IsTLSEnabled() bool {
	return tlsFiles != nil
}

// TLSSettings returns the configured files, or nil.
func TLSSettings() *TLSFiles {
	return tlsFiles
}

// serverTLSConfig loads the configured key pair. It returns nil, nil when
// TLS is off.
func serverTLSConfig() (*tls.Config, error) {
	if tlsFiles == nil {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(tlsFiles.CertFile, tlsFiles.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// SetTLSConfigForTest sets the TLS files directly.
func SetTLSConfigForTest(f *TLSFiles) {
	tlsFiles = f
}
