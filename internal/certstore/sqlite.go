package certstore

import (
	"crypto/x509"
	"database/sql"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sensiblebit/certtrust"
	_ "modernc.org/sqlite"
)

// sqliteTrustRow maps a row in the SQLite trusted_certificates table.
type sqliteTrustRow struct {
	Alias      string         `db:"alias"`
	CommonName sql.NullString `db:"common_name"`
	Subject    string         `db:"subject"`
	NotAfter   time.Time      `db:"not_after"`
	PEM        string         `db:"pem"`
	TrustedAt  time.Time      `db:"trusted_at"`
}

// SQLiteBackend persists the trusted set in a SQLite database file. The
// database is built in memory and written out with VACUUM INTO, so the file
// on disk is always a complete snapshot.
type SQLiteBackend struct {
	path string
}

// NewSQLiteBackend stores trusted certificates in the SQLite file at path.
func NewSQLiteBackend(path string) *SQLiteBackend {
	return &SQLiteBackend{path: path}
}

// Path returns the database file path.
func (b *SQLiteBackend) Path() string {
	return b.path
}

// openMemDB creates an in-memory SQLite database with the trust store schema.
func openMemDB() (*sqlx.DB, error) {
	dsn := "file::memory:?_pragma=temp_store(2)&_pragma=journal_mode(off)&_pragma=synchronous(off)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return db, nil
}

// initSQLiteSchema creates the trusted_certificates table.
func initSQLiteSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trusted_certificates (
			alias       text PRIMARY KEY,
			common_name text,
			subject     text NOT NULL,
			not_after   timestamp NOT NULL,
			pem         text NOT NULL,
			trusted_at  timestamp NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trusted_common_name ON trusted_certificates (common_name);
	`)
	return err
}

// Load reads the trusted set from the database file. A missing file is an
// empty store. Rows that do not hold a valid certificate are skipped.
func (b *SQLiteBackend) Load() ([]*x509.Certificate, error) {
	if _, err := os.Stat(b.path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	db, err := openMemDB()
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec("ATTACH DATABASE ? AS diskdb", b.path); err != nil {
		return nil, fmt.Errorf("attaching database %s: %w", b.path, err)
	}
	defer func() {
		if _, detachErr := db.Exec("DETACH DATABASE diskdb"); detachErr != nil {
			slog.Warn("detaching database", "path", b.path, "error", detachErr)
		}
	}()

	var tables int
	if err := db.Get(&tables, "SELECT count(*) FROM diskdb.sqlite_master WHERE type = 'table' AND name = 'trusted_certificates'"); err != nil {
		return nil, fmt.Errorf("reading schema of %s: %w", b.path, err)
	}
	if tables == 0 {
		return nil, fmt.Errorf("%s is not a trust store database", b.path)
	}

	var rows []sqliteTrustRow
	if err := db.Select(&rows, "SELECT alias, common_name, subject, not_after, pem, trusted_at FROM diskdb.trusted_certificates ORDER BY alias"); err != nil {
		return nil, fmt.Errorf("reading trusted certificates from %s: %w", b.path, err)
	}

	certs := make([]*x509.Certificate, 0, len(rows))
	for _, r := range rows {
		block, _ := pem.Decode([]byte(r.PEM))
		if block == nil {
			slog.Debug("skipping certificate with unparseable PEM", "alias", r.Alias)
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			slog.Debug("skipping certificate with invalid DER", "alias", r.Alias, "error", err)
			continue
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// trustTimes returns trusted_at by alias from the database file, read
// through db. A missing or unreadable file yields no entries.
func (b *SQLiteBackend) trustTimes(db *sqlx.DB) map[string]time.Time {
	times := make(map[string]time.Time)
	if _, err := os.Stat(b.path); err != nil {
		return times
	}
	if _, err := db.Exec("ATTACH DATABASE ? AS diskdb", b.path); err != nil {
		slog.Warn("attaching database for trust times", "path", b.path, "error", err)
		return times
	}
	defer func() {
		if _, err := db.Exec("DETACH DATABASE diskdb"); err != nil {
			slog.Warn("detaching database", "path", b.path, "error", err)
		}
	}()

	var rows []struct {
		Alias     string    `db:"alias"`
		TrustedAt time.Time `db:"trusted_at"`
	}
	if err := db.Select(&rows, "SELECT alias, trusted_at FROM diskdb.trusted_certificates"); err != nil {
		slog.Warn("reading trust times", "path", b.path, "error", err)
		return times
	}
	for _, r := range rows {
		times[r.Alias] = r.TrustedAt
	}
	return times
}

// Save writes certs to the database file, replacing its previous contents.
// Certificates already in the file keep their original trusted_at.
func (b *SQLiteBackend) Save(certs []*x509.Certificate) error {
	db, err := openMemDB()
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	trustedAt := b.trustTimes(db)
	now := time.Now().UTC()
	for _, cert := range certs {
		cn := cert.Subject.CommonName
		alias := strings.ToLower(certtrust.Tag(cert))
		at, ok := trustedAt[alias]
		if !ok {
			at = now
		}
		row := sqliteTrustRow{
			Alias:      alias,
			CommonName: sql.NullString{String: cn, Valid: cn != ""},
			Subject:    cert.Subject.String(),
			NotAfter:   cert.NotAfter.UTC(),
			PEM:        certtrust.CertToPEM(cert),
			TrustedAt:  at,
		}
		if _, err := db.NamedExec(`
			INSERT OR REPLACE INTO trusted_certificates (alias, common_name, subject, not_after, pem, trusted_at)
			VALUES (:alias, :common_name, :subject, :not_after, :pem, :trusted_at)
		`, row); err != nil {
			return fmt.Errorf("saving certificate %s: %w", row.Alias, err)
		}
	}

	// VACUUM INTO refuses to overwrite, so write beside the target and rename.
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%d.tmp", filepath.Base(b.path), os.Getpid()))
	_ = os.Remove(tmp)
	if _, err := db.Exec("VACUUM INTO ?", tmp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("saving database to %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", b.path, err)
	}

	slog.Debug("database saved", "path", b.path, "certificates", len(certs))
	return nil
}
