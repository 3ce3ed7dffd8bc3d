package tlscert

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// fileManager serves a PEM cert/key pair from disk. The pair is read again
// on every handshake so rotated files take effect without a restart.
type fileManager struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
}

func newFileManager(cfg Config, logger *slog.Logger) (*fileManager, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, errors.New("server.tls_cert_file and server.tls_key_file are required when server.tls_mode=file")
	}
	if err := checkReadableFile(cfg.CertFile); err != nil {
		return nil, fmt.Errorf("certificate file %s: %w", cfg.CertFile, err)
	}
	if err := checkReadableFile(cfg.KeyFile); err != nil {
		return nil, fmt.Errorf("key file %s: %w", cfg.KeyFile, err)
	}
	if err := checkKeyFilePermissions(cfg.KeyFile); err != nil {
		return nil, err
	}
	if _, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile); err != nil {
		return nil, fmt.Errorf("failed to load certificate pair: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &fileManager{certFile: cfg.CertFile, keyFile: cfg.KeyFile, logger: logger}, nil
}

func (m *fileManager) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     MinTLSVersion,
		GetCertificate: m.certificate,
	}
}

func (m *fileManager) certificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	pair, err := tls.LoadX509KeyPair(m.certFile, m.keyFile)
	if err != nil {
		m.logger.Error("failed to reload TLS certificate",
			slog.String("cert_file", m.certFile),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return &pair, nil
}

func (m *fileManager) Description() string {
	return fmt.Sprintf("files (cert=%s, key=%s)", m.certFile, m.keyFile)
}

func (m *fileManager) Shutdown() error { return nil }

func checkReadableFile(path string) error {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return fmt.Errorf("not accessible: %w", err)
	case info.IsDir():
		return errors.New("is a directory")
	case info.Size() == 0:
		return errors.New("is empty")
	}
	return nil
}

// checkKeyFilePermissions rejects private keys that group or others can
// access; 0600 and 0400 pass.
func checkKeyFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Errorf("key file %s has insecure permissions %04o (use 0600 or 0400)", path, perm)
	}
	return nil
}
