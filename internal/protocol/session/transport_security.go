package session

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

var (
	ErrTLSCAFileRequired       = errors.New("session: tls ca file required")
	ErrTLSCertFileRequired     = errors.New("session: tls cert file required")
	ErrTLSKeyFileRequired      = errors.New("session: tls key file required")
	ErrTLSInsecureSkipNotAllow = errors.New("session: insecure skip verify conflicts with ca file")
)

// TLSConfig enables the api-ssl service transport.
type TLSConfig struct {
	Enabled            bool
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

func (c Config) ValidateClientTransport() error {
	if !c.TLS.Enabled {
		return nil
	}
	if strings.TrimSpace(c.TLS.CAFile) == "" && !c.TLS.InsecureSkipVerify {
		return ErrTLSCAFileRequired
	}
	if strings.TrimSpace(c.TLS.CAFile) != "" && c.TLS.InsecureSkipVerify {
		return ErrTLSInsecureSkipNotAllow
	}
	hasCert := strings.TrimSpace(c.TLS.CertFile) != ""
	hasKey := strings.TrimSpace(c.TLS.KeyFile) != ""
	if hasKey && !hasCert {
		return ErrTLSCertFileRequired
	}
	if hasCert && !hasKey {
		return ErrTLSKeyFileRequired
	}
	return nil
}

func clientTLSConfig(cfg TLSConfig, address string) (*tls.Config, error) {
	out := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	serverName := strings.TrimSpace(cfg.ServerName)
	if serverName == "" {
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			return nil, err
		}
		serverName = host
	}
	out.ServerName = serverName

	if caPath := strings.TrimSpace(cfg.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("session: parse tls ca bundle: %s", caPath)
		}
		out.RootCAs = pool
	}

	if strings.TrimSpace(cfg.CertFile) != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		out.Certificates = []tls.Certificate{cert}
	}
	return out, nil
}
