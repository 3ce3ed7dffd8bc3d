// Package tlscert supplies the certificate source for the HTTPS listener.
package tlscert

import (
	"crypto/tls"
	"fmt"
	"log/slog"
)

// Mode selects where server certificates come from.
type Mode string

const (
	ModeOff  Mode = "off"
	ModeFile Mode = "file"
)

// MinTLSVersion is the lowest protocol version the report server accepts.
const MinTLSVersion = tls.VersionTLS13

// Config names the certificate source.
type Config struct {
	Mode     Mode
	CertFile string
	KeyFile  string
}

// Manager hands a ready tls.Config to the HTTP server.
type Manager interface {
	TLSConfig() *tls.Config
	// Description is logged at startup.
	Description() string
	Shutdown() error
}

// NewManager validates the certificate source and returns its manager.
// ModeOff and the empty mode return a nil Manager.
func NewManager(cfg Config, logger *slog.Logger) (Manager, error) {
	switch cfg.Mode {
	case "", ModeOff:
		return nil, nil
	case ModeFile:
		m, err := newFileManager(cfg, logger)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported TLS mode %q (valid modes: off, file)", cfg.Mode)
	}
}
