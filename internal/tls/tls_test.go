package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	standardtls "crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSelfSignedCert_Defaults(t *testing.T) {
	t.Parallel()

	cert, err := GenerateSelfSignedCert()
	require.NoError(t, err)
	require.NotNil(t, cert)

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)

	assert.Equal(t, "localhost", leaf.Subject.CommonName)
	assert.Equal(t, []string{"localhost"}, leaf.DNSNames)
	require.Len(t, leaf.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", leaf.IPAddresses[0].String())

	validity := leaf.NotAfter.Sub(time.Now())
	assert.InDelta(t, selfSignedValidity.Hours(), validity.Hours(), 1)

	ecKey, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	require.True(t, ok, "public key is not ECDSA")
	assert.Equal(t, elliptic.P256(), ecKey.Curve)
	assert.Equal(t, leaf.Subject.CommonName, leaf.Issuer.CommonName, "certificate must be self-signed")
}

func TestGenerateSelfSignedCert_CustomHosts(t *testing.T) {
	t.Parallel()

	cert, err := GenerateSelfSignedCert("contact.example.com", "10.0.0.5", "www.example.com")
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)

	assert.Equal(t, "contact.example.com", leaf.Subject.CommonName)
	assert.Equal(t, []string{"contact.example.com", "www.example.com"}, leaf.DNSNames)
	require.Len(t, leaf.IPAddresses, 1)
	assert.Equal(t, "10.0.0.5", leaf.IPAddresses[0].String())
	assert.NoError(t, leaf.VerifyHostname("www.example.com"))
}

func TestServerConfig_Disabled(t *testing.T) {
	t.Parallel()

	cfg, err := ServerConfig("", "", false)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestServerConfig_SelfSigned(t *testing.T) {
	t.Parallel()

	cfg, err := ServerConfig("", "", true)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(standardtls.VersionTLS12), cfg.MinVersion)
}

func TestServerConfig_FromFiles(t *testing.T) {
	t.Parallel()

	generated, err := GenerateSelfSignedCert("files.example.com")
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(generated.PrivateKey.(*ecdsa.PrivateKey))
	require.NoError(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: generated.Certificate[0]}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))

	// Files win over the self-signed flag.
	cfg, err := ServerConfig(certFile, keyFile, true)
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)

	leaf, err := x509.ParseCertificate(cfg.Certificates[0].Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "files.example.com", leaf.Subject.CommonName)
}

func TestServerConfig_FileNotFound(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := ServerConfig(filepath.Join(dir, "missing.crt"), filepath.Join(dir, "missing.key"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "certificate file not found")
}

func TestServerConfig_IncompletePair(t *testing.T) {
	t.Parallel()

	_, err := ServerConfig("/etc/ssl/cert.pem", "", true)
	assert.ErrorIs(t, err, ErrIncompleteKeyPair)

	_, err = ServerConfig("", "/etc/ssl/key.pem", false)
	assert.ErrorIs(t, err, ErrIncompleteKeyPair)
}
