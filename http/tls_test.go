package http_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net"
	nethttp "net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/http"
	"github.com/ldkit/ldk/test"
)

// selfSigned writes a certificate for 127.0.0.1 and its key to dir.
func selfSigned(t *testing.T, dir string) (certPath, keyPath string, cert *x509.Certificate) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	test.ErrNil(t, err, "generating key")
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "ldk test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	test.ErrNil(t, err, "creating certificate")
	cert, err = x509.ParseCertificate(der)
	test.ErrNil(t, err, "parsing certificate")
	keyDER, err := x509.MarshalECPrivateKey(key)
	test.ErrNil(t, err, "marshaling key")

	certPath = filepath.Join(dir, "ldk.crt")
	keyPath = filepath.Join(dir, "ldk.key")
	test.ErrNil(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600), "writing cert")
	test.ErrNil(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600), "writing key")
	return certPath, keyPath, cert
}

func TestJSONSourceTLS(t *testing.T) {
	certPath, keyPath, cert := selfSigned(t, t.TempDir())
	l, err := net.Listen("tcp", "127.0.0.1:0")
	test.ErrNil(t, err, "listening")
	j, err := http.NewJSONSource(http.WithListener(l), http.WithTLS(http.TLSConfig{
		CertificatePath:    certPath,
		CertificateKeyPath: keyPath,
	}))
	test.ErrNil(t, err, "NewJSONSource")
	defer j.Close()

	pool := x509.NewCertPool()
	pool.AddCert(cert)
	client := &nethttp.Client{Transport: &nethttp.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}}}
	resp, err := client.Post("https://"+j.Addr()+"/", "application/json", strings.NewReader(`{"PersonID": "1"}`))
	test.ErrNil(t, err, "posting over https")
	resp.Body.Close()
	test.MustBe(t, nethttp.StatusAccepted, resp.StatusCode)

	rec, err := j.Record()
	test.ErrNil(t, err, "Record")
	test.MustBe(t, ldk.Record{"PersonID": "1"}, rec)
}

func TestJSONSourceTLSErrors(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath, _ := selfSigned(t, dir)
	bogus := filepath.Join(dir, "bogus.pem")
	test.ErrNil(t, os.WriteFile(bogus, []byte("not a certificate"), 0600), "writing bogus CA")

	tests := []struct {
		name   string
		conf   http.TLSConfig
		expErr string
	}{
		{name: "no key", conf: http.TLSConfig{CertificatePath: certPath}, expErr: "needs a certificate and a key"},
		{name: "missing cert", conf: http.TLSConfig{CertificatePath: filepath.Join(dir, "nope.crt"), CertificateKeyPath: keyPath}, expErr: "loading keypair"},
		{name: "bad ca", conf: http.TLSConfig{CertificatePath: certPath, CertificateKeyPath: keyPath, CACertPath: bogus}, expErr: "parsing CA certificate"},
		{name: "verification without ca", conf: http.TLSConfig{CertificatePath: certPath, CertificateKeyPath: keyPath, EnableClientVerification: true}, expErr: "needs a CA certificate"},
	}
	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			l, err := net.Listen("tcp", "127.0.0.1:0")
			test.ErrNil(t, err, "listening")
			_, err = http.NewJSONSource(http.WithListener(l), http.WithTLS(tst.conf))
			if err == nil || !strings.Contains(err.Error(), tst.expErr) {
				t.Fatalf("expected error containing %q, got %v", tst.expErr, err)
			}
		})
	}
}

func TestJSONSourceClientVerification(t *testing.T) {
	certPath, keyPath, cert := selfSigned(t, t.TempDir())
	l, err := net.Listen("tcp", "127.0.0.1:0")
	test.ErrNil(t, err, "listening")
	j, err := http.NewJSONSource(http.WithListener(l), http.WithTLS(http.TLSConfig{
		CertificatePath:          certPath,
		CertificateKeyPath:       keyPath,
		CACertPath:               certPath,
		EnableClientVerification: true,
	}))
	test.ErrNil(t, err, "NewJSONSource")
	defer j.Close()

	pool := x509.NewCertPool()
	pool.AddCert(cert)
	client := &nethttp.Client{Transport: &nethttp.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}}}
	resp, err := client.Post("https://"+j.Addr()+"/", "application/json", strings.NewReader(`{}`))
	if err == nil {
		var body map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		t.Fatalf("expected handshake failure without a client certificate, got %d %v", resp.StatusCode, body)
	}
}
