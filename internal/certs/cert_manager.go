// Package certs loads the optional TLS certificate of the front-end server.
package certs

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// ErrExpired is returned for a certificate past its NotAfter date.
var ErrExpired = errors.New("certificate expired")

// CertManager holds the server certificate pair.
type CertManager struct {
	certFile string
	keyFile  string
	now      func() time.Time
}

// NewCertManager creates a CertManager for a PEM certificate and key.
func NewCertManager(certFile, keyFile string) *CertManager {
	return &CertManager{certFile: certFile, keyFile: keyFile, now: time.Now}
}

// Enabled reports whether both files are configured.
func (cm *CertManager) Enabled() bool {
	return cm.certFile != "" && cm.keyFile != ""
}

// Load reads the pair and refuses an expired leaf certificate.
func (cm *CertManager) Load() (*tls.Certificate, error) {
	pair, err := tls.LoadX509KeyPair(cm.certFile, cm.keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	if cm.IsExpired(leaf) {
		return nil, fmt.Errorf("%s: %w on %s", cm.certFile, ErrExpired, leaf.NotAfter.Format(time.RFC3339))
	}
	pair.Leaf = leaf
	return &pair, nil
}

// IsExpired checks if a certificate is expired.
func (cm *CertManager) IsExpired(cert *x509.Certificate) bool {
	return cert.NotAfter.Before(cm.now())
}

// TLSConfig returns a server TLS configuration serving the loaded pair.
func (cm *CertManager) TLSConfig() (*tls.Config, error) {
	pair, err := cm.Load()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{*pair},
	}, nil
}
