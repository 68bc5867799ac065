package certstore

import (
	"fmt"
	"strings"
)

// Backend types accepted by OpenBackend.
const (
	TypeJKS    = "jks"
	TypePKCS12 = "pkcs12"
	TypeSQLite = "sqlite"
	TypeMemory = "memory"
)

// OpenBackend returns the Backend for storeType persisting at path. An empty
// password selects DefaultPassword for keystore formats.
func OpenBackend(storeType, path, password string) (Backend, error) {
	if password == "" {
		password = DefaultPassword
	}
	storeType = strings.ToLower(strings.TrimSpace(storeType))
	if storeType != TypeMemory && path == "" {
		return nil, fmt.Errorf("store type %q requires a path", storeType)
	}
	switch storeType {
	case TypeJKS, "":
		return NewJKSBackend(path, password), nil
	case TypePKCS12, "p12":
		return NewPKCS12Backend(path, password), nil
	case TypeSQLite:
		return NewSQLiteBackend(path), nil
	case TypeMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported store type %q (use jks, pkcs12, sqlite, or memory)", storeType)
	}
}
