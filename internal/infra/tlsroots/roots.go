package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrNoCertsFound is returned when PEM data holds no certificate block.
	ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM data")
)

// Pool is a set of trusted root certificates.
type Pool struct {
	certs *x509.CertPool
	added int
}

// NewPool returns a pool seeded with the system roots. On platforms without
// a system pool it starts empty.
func NewPool() *Pool {
	certs, err := x509.SystemCertPool()
	if err != nil {
		certs = x509.NewCertPool()
	}
	return &Pool{certs: certs}
}

// NewEmptyPool returns a pool that trusts nothing until certificates are added.
func NewEmptyPool() *Pool {
	return &Pool{certs: x509.NewCertPool()}
}

// LoadPool returns a system pool extended with the CA bundle at caFile.
// An empty caFile yields the system pool alone.
func LoadPool(caFile string) (*Pool, error) {
	p := NewPool()
	if caFile == "" {
		return p, nil
	}
	if err := p.AddCertFile(caFile); err != nil {
		return nil, err
	}
	return p, nil
}

// AddCertFile adds every certificate in the PEM file at path.
func (p *Pool) AddCertFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tlsroots: read %s: %w", path, err)
	}
	if err := p.AddCertPEM(data); err != nil {
		return fmt.Errorf("tlsroots: %s: %w", path, err)
	}
	return nil
}

// AddCertPEM adds every CERTIFICATE block in data. Other block types are skipped.
func (p *Pool) AddCertPEM(data []byte) error {
	n := 0
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		p.certs.AddCert(cert)
		n++
	}
	if n == 0 {
		return ErrNoCertsFound
	}
	p.added += n
	return nil
}

// Added reports how many certificates were added beyond the initial roots.
func (p *Pool) Added() int {
	return p.added
}

// CertPool returns the underlying x509 pool.
func (p *Pool) CertPool() *x509.CertPool {
	return p.certs
}

// ClientConfig returns a client TLS config that verifies servers against the pool.
func (p *Pool) ClientConfig() *tls.Config {
	return &tls.Config{
		RootCAs:    p.certs,
		MinVersion: tls.VersionTLS12,
	}
}
