package tls

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portalgate/internal/observability/logging"
)

// writeSelfSigned writes a self-signed certificate and key and returns
// their paths
func writeSelfSigned(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "portalgate.test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		DNSNames:              []string{"portalgate.test"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certPath, keyPath
}

func TestGetTLSConfig(t *testing.T) {
	certPath, keyPath := writeSelfSigned(t)

	cfg, err := (&Config{Logger: logging.Nop(), CertPath: certPath, KeyPath: keyPath}).GetTLSConfig()
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, tls.NoClientCert, cfg.ClientAuth)
	assert.Nil(t, cfg.ClientCAs)
}

func TestGetTLSConfig_ClientCA(t *testing.T) {
	certPath, keyPath := writeSelfSigned(t)

	cfg, err := (&Config{
		Logger:       logging.Nop(),
		CertPath:     certPath,
		KeyPath:      keyPath,
		ClientCAPath: certPath,
	}).GetTLSConfig()
	require.NoError(t, err)
	assert.NotNil(t, cfg.ClientCAs)
	assert.Equal(t, tls.VerifyClientCertIfGiven, cfg.ClientAuth)
}

func TestGetTLSConfig_Errors(t *testing.T) {
	certPath, keyPath := writeSelfSigned(t)

	_, err := (&Config{Logger: logging.Nop()}).GetTLSConfig()
	assert.Error(t, err)

	_, err = (&Config{Logger: logging.Nop(), CertPath: certPath, KeyPath: filepath.Join(t.TempDir(), "missing.pem")}).GetTLSConfig()
	assert.Error(t, err)

	_, err = (&Config{Logger: logging.Nop(), CertPath: certPath, KeyPath: keyPath, ClientCAPath: keyPath}).GetTLSConfig()
	assert.Error(t, err, "a key file is not a CA bundle")
}
