package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"portalgate/internal/observability/logging"
)

// Config holds the server TLS configuration
type Config struct {
	// Logger is the logger to use
	Logger *logging.Logger

	// CertPath is the path to the server certificate
	CertPath string

	// KeyPath is the path to the server key
	KeyPath string

	// ClientCAPath is an optional CA bundle. When set, client certificates
	// are verified against it if presented, but never required.
	ClientCAPath string
}

// GetTLSConfig creates a TLS configuration for the server
func (c *Config) GetTLSConfig() (*tls.Config, error) {
	c.Logger.Debug("Initializing TLS configuration")

	if c.CertPath == "" || c.KeyPath == "" {
		return nil, errors.New("TLS enabled but certificate or key path not provided")
	}

	cert, err := tls.LoadX509KeyPair(c.CertPath, c.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if c.ClientCAPath != "" {
		pool, err := loadCertPool(c.ClientCAPath)
		if err != nil {
			return nil, err
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
		c.Logger.Debug("Client CA loaded", "path", c.ClientCAPath)
	}

	c.Logger.Info("TLS configuration successful")
	return tlsConfig, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("failed to parse CA file: %s", path)
	}
	return pool, nil
}
