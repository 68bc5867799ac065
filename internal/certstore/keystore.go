package certstore

import (
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sensiblebit/certtrust"
)

// DefaultPassword is the store password used when none is configured,
// following the Java keystore convention.
const DefaultPassword = "changeit"

// FileBackend persists the trusted set as a single password-protected
// keystore file. Writes go to a temporary file that replaces the target,
// so a failed save never truncates the previous store.
type FileBackend struct {
	path     string
	password string
	decode   func(data []byte, password string) ([]*x509.Certificate, error)
	encode   func(certs []*x509.Certificate, password string) ([]byte, error)
}

// NewJKSBackend stores trusted certificates in a Java KeyStore file.
func NewJKSBackend(path, password string) *FileBackend {
	return &FileBackend{
		path:     path,
		password: password,
		decode:   certtrust.DecodeTrustedJKS,
		encode:   certtrust.EncodeTrustedJKS,
	}
}

// NewPKCS12Backend stores trusted certificates in a PKCS#12 trust store file.
func NewPKCS12Backend(path, password string) *FileBackend {
	return &FileBackend{
		path:     path,
		password: password,
		decode:   certtrust.DecodePKCS12TrustStore,
		encode:   certtrust.EncodePKCS12TrustStore,
	}
}

// Path returns the keystore file path.
func (b *FileBackend) Path() string {
	return b.path
}

// Load reads the keystore file. A missing file is an empty store.
func (b *FileBackend) Load() ([]*x509.Certificate, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", b.path, err)
	}
	certs, err := b.decode(data, b.password)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", b.path, err)
	}
	return certs, nil
}

// Save writes certs to the keystore file.
func (b *FileBackend) Save(certs []*x509.Certificate) error {
	data, err := b.encode(certs, b.password)
	if err != nil {
		return err
	}
	return writeFileAtomic(b.path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
