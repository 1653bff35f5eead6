package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// AddressBookDirectory resolves names from the OS contact directory's
// local SQLite databases. Lookups are best-effort: a missing or locked
// database is a miss, never a run failure.
type AddressBookDirectory struct {
	dbPaths []string
	cache   map[string]string
}

// NewAddressBookDirectory discovers contact databases under the user's
// library directories, or under overrideRoot when set (used by tests).
func NewAddressBookDirectory(overrideRoot string) (*AddressBookDirectory, error) {
	roots := addressBookRoots(overrideRoot)

	var dbPaths []string
	for _, root := range roots {
		entries, err := collectContactDBs(root)
		if err != nil {
			continue
		}
		dbPaths = append(dbPaths, entries...)
	}

	return &AddressBookDirectory{
		dbPaths: dbPaths,
		cache:   map[string]string{},
	}, nil
}

// Paths returns the discovered contact database paths.
func (d *AddressBookDirectory) Paths() []string {
	if d == nil {
		return nil
	}
	return d.dbPaths
}

// Lookup resolves a normalized phone or email key to a contact name.
func (d *AddressBookDirectory) Lookup(ctx context.Context, normalizedKey string) (string, bool, error) {
	if d == nil || len(d.dbPaths) == 0 {
		return "", false, nil
	}
	if cached, ok := d.cache[normalizedKey]; ok {
		if cached == "" {
			return "", false, nil
		}
		return cached, true, nil
	}

	for _, path := range d.dbPaths {
		name, ok, err := queryContactName(ctx, path, normalizedKey)
		if err != nil {
			continue
		}
		if ok {
			d.cache[normalizedKey] = name
			return name, true, nil
		}
	}

	d.cache[normalizedKey] = ""
	return "", false, nil
}

func queryContactName(ctx context.Context, dbPath, key string) (string, bool, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", dbPath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return "", false, err
	}
	defer func() {
		_ = conn.Close()
	}()
	conn.SetMaxOpenConns(1)

	if IsEmail(key) {
		return scanContactRow(conn.QueryRowContext(ctx, `
			SELECT TRIM(COALESCE(p.ZFIRSTNAME, '') || ' ' || COALESCE(p.ZLASTNAME, ''))
			FROM ZABCDEMAILADDRESS e
			JOIN ZABCDRECORD p ON e.ZOWNER = p.Z_PK
			WHERE LOWER(e.ZADDRESS) = ? LIMIT 1`, NormalizeEmail(key)))
	}

	digits := digitsOnly(key)
	if digits == "" {
		return "", false, nil
	}

	// Stored numbers carry arbitrary punctuation; compare on a
	// stripped copy, matching progressively shorter suffixes.
	suffixes := []string{digits}
	if len(digits) >= 10 {
		suffixes = append(suffixes, digits[len(digits)-10:])
	}
	if len(digits) >= 7 {
		suffixes = append(suffixes, digits[len(digits)-7:])
	}

	for _, suffix := range suffixes {
		name, ok, err := scanContactRow(conn.QueryRowContext(ctx, `
			SELECT TRIM(COALESCE(p.ZFIRSTNAME, '') || ' ' || COALESCE(p.ZLASTNAME, ''))
			FROM ZABCDPHONENUMBER pn
			JOIN ZABCDRECORD p ON pn.ZOWNER = p.Z_PK
			WHERE REPLACE(REPLACE(REPLACE(REPLACE(REPLACE(pn.ZFULLNUMBER, ' ', ''), '-', ''), '(', ''), ')', ''), '+', '') LIKE '%' || ?
			LIMIT 1`, suffix))
		if err != nil {
			return "", false, err
		}
		if ok {
			return name, true, nil
		}
	}
	return "", false, nil
}

func scanContactRow(row *sql.Row) (string, bool, error) {
	var name string
	if err := row.Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false, nil
	}
	return name, true, nil
}

func addressBookRoots(overrideRoot string) []string {
	if overrideRoot != "" {
		return []string{overrideRoot}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, "Library/Application Support/AddressBook"),
		filepath.Join(home, "Library/Application Support/Contacts"),
	}
}

func collectContactDBs(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".abcddb") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
