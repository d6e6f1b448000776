package http

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ldkit/ldk"
	"github.com/pkg/errors"
)

// TLSConfig contains TLS configuration for serving.
type TLSConfig struct {
	// CertificatePath contains the path to the certificate (.crt or .pem file)
	CertificatePath string
	// CertificateKeyPath contains the path to the certificate key (.key file)
	CertificateKeyPath string
	// CACertPath is the path to a CA certificate (.crt or .pem file) used to
	// verify clients.
	CACertPath string
	// EnableClientVerification enables verification of client TLS certificates (Mutual TLS)
	EnableClientVerification bool
}

// keypairReloader serves a certificate which is reloaded from disk on SIGHUP.
type keypairReloader struct {
	certMu   sync.RWMutex
	cert     *tls.Certificate
	certPath string
	keyPath  string
	sigs     chan os.Signal
}

func newKeypairReloader(certPath, keyPath string, log ldk.Logger) (*keypairReloader, error) {
	result := &keypairReloader{
		certPath: certPath,
		keyPath:  keyPath,
		sigs:     make(chan os.Signal, 1),
	}
	if err := result.maybeReload(); err != nil {
		return nil, err
	}
	signal.Notify(result.sigs, syscall.SIGHUP)
	go func() {
		for range result.sigs {
			log.Printf("Received SIGHUP, reloading TLS certificate and key from %q and %q", certPath, keyPath)
			if err := result.maybeReload(); err != nil {
				log.Printf("Keeping old TLS certificate because the new one could not be loaded: %v", err)
			}
		}
	}()
	return result, nil
}

func (kpr *keypairReloader) maybeReload() error {
	newCert, err := tls.LoadX509KeyPair(kpr.certPath, kpr.keyPath)
	if err != nil {
		return errors.Wrap(err, "loading keypair")
	}
	kpr.certMu.Lock()
	defer kpr.certMu.Unlock()
	kpr.cert = &newCert
	return nil
}

func (kpr *keypairReloader) getCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	kpr.certMu.RLock()
	defer kpr.certMu.RUnlock()
	return kpr.cert, nil
}

func (kpr *keypairReloader) stop() {
	signal.Stop(kpr.sigs)
	close(kpr.sigs)
}

// serverConfig returns the tls.Config for serving with c, and a function
// which stops watching for SIGHUP.
func (c *TLSConfig) serverConfig(log ldk.Logger) (*tls.Config, func(), error) {
	if c.CertificatePath == "" || c.CertificateKeyPath == "" {
		return nil, nil, errors.New("serving TLS needs a certificate and a key")
	}
	conf := &tls.Config{MinVersion: tls.VersionTLS12}
	if c.CACertPath != "" {
		b, err := os.ReadFile(c.CACertPath)
		if err != nil {
			return nil, nil, errors.Wrap(err, "loading tls ca key")
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(b) {
			return nil, nil, errors.New("error parsing CA certificate")
		}
		conf.ClientCAs = certPool
	}
	if c.EnableClientVerification {
		if conf.ClientCAs == nil {
			return nil, nil, errors.New("client verification needs a CA certificate")
		}
		conf.ClientAuth = tls.RequireAndVerifyClientCert
	}
	kpr, err := newKeypairReloader(c.CertificatePath, c.CertificateKeyPath, log)
	if err != nil {
		return nil, nil, err
	}
	conf.GetCertificate = kpr.getCertificate
	return conf, kpr.stop, nil
}
