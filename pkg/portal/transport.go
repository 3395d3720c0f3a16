package portal

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

// NewInsecureTransport returns a transport that skips certificate
// verification. The portal serves an incomplete chain on a non-standard port.
func NewInsecureTransport() *http.Transport {
	return newTransport(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec
}

// newTransport mirrors the settings of http.DefaultTransport without
// reading it, since test mocks and middleware may have replaced it.
func newTransport(tlsConfig *tls.Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       tlsConfig,
	}
}

// NewCATransport creates a transport that only trusts the certificates
// found in the PEM file at caPath.
func NewCATransport(caPath string) (*http.Transport, error) {
	caBytes, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read CA file: %w", err)
	}

	certPool := x509.NewCertPool()
	for rest := caBytes; len(rest) > 0; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("invalid pem block type %s, expected CERTIFICATE", block.Type)
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("unable to parse certificate: %w", err)
		}
		certPool.AddCert(cert)
	}
	if len(certPool.Subjects()) == 0 { //nolint:staticcheck
		return nil, fmt.Errorf("no certificate found in %s", caPath)
	}

	return newTransport(&tls.Config{RootCAs: certPool}), nil
}
