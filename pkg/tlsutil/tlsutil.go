// Package tlsutil builds crypto/tls configurations for the gateway's HTTP
// listener and for its outbound identity service client.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"slices"

	"github.com/c360/postgraph/errors"
)

// ServerConfig enables HTTPS on the listener. Leaving CertFile empty serves
// plain HTTP.
type ServerConfig struct {
	CertFile   string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile    string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	MinVersion string `json:"min_version,omitempty" yaml:"min_version,omitempty"` // "1.2" or "1.3"

	// ClientCAFiles turns on mutual TLS; clients must present a certificate
	// signed by one of these CAs
	ClientCAFiles []string `json:"client_ca_files,omitempty" yaml:"client_ca_files,omitempty"`
}

// Enabled reports whether a certificate is configured
func (c ServerConfig) Enabled() bool {
	return c.CertFile != ""
}

// Validate checks the pair is complete and the version is known
func (c ServerConfig) Validate() error {
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ServerConfig", "Validate",
			"cert_file and key_file must be set together")
	}
	return validateVersion("ServerConfig", c.MinVersion)
}

// ClientConfig adjusts how outbound HTTPS peers are verified. The system
// pool is always trusted; CAFiles are added to it.
type ClientConfig struct {
	CAFiles    []string `json:"ca_files,omitempty" yaml:"ca_files,omitempty"`
	MinVersion string   `json:"min_version,omitempty" yaml:"min_version,omitempty"`

	// CertFile and KeyFile present a client certificate to the peer
	CertFile string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty" yaml:"key_file,omitempty"`

	// InsecureSkipVerify disables peer verification. Development only.
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
}

// Enabled reports whether anything differs from the default transport
func (c ClientConfig) Enabled() bool {
	return len(c.CAFiles) > 0 || c.MinVersion != "" || c.CertFile != "" || c.InsecureSkipVerify
}

// Validate checks the pair is complete and the version is known
func (c ClientConfig) Validate() error {
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ClientConfig", "Validate",
			"cert_file and key_file must be set together")
	}
	return validateVersion("ClientConfig", c.MinVersion)
}

// LoadServerConfig returns nil when TLS is not enabled
func LoadServerConfig(cfg ServerConfig) (*tls.Config, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadServerConfig", "load certificate")
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   parseTLSVersion(cfg.MinVersion),
	}

	if len(cfg.ClientCAFiles) > 0 {
		pool, err := appendCAFiles(x509.NewCertPool(), cfg.ClientCAFiles, "LoadServerConfig")
		if err != nil {
			return nil, err
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return tlsConfig, nil
}

// LoadClientConfig builds a client configuration trusting the system pool
// plus cfg.CAFiles
func LoadClientConfig(cfg ClientConfig) (*tls.Config, error) {
	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}
	if rootCAs, err = appendCAFiles(rootCAs, cfg.CAFiles, "LoadClientConfig"); err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		RootCAs:            rootCAs,
		MinVersion:         parseTLSVersion(cfg.MinVersion),
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for development
	}

	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientConfig", "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Transport clones the default transport with tlsConfig applied
func Transport(tlsConfig *tls.Config) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = tlsConfig
	return t
}

func appendCAFiles(pool *x509.CertPool, files []string, method string) (*x509.CertPool, error) {
	for _, caFile := range files {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", method, fmt.Sprintf("read CA file %s", caFile))
		}
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, errors.WrapFatal(errors.ErrInvalidData, "tlsutil", method,
				fmt.Sprintf("parse CA certificate from %s", caFile))
		}
	}
	return pool, nil
}

func validateVersion(component, version string) error {
	if version != "" && !slices.Contains([]string{"1.2", "1.3"}, version) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, component, "Validate",
			fmt.Sprintf("unsupported min_version: %s", version))
	}
	return nil
}

// parseTLSVersion defaults to TLS 1.2
func parseTLSVersion(version string) uint16 {
	if version == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}
