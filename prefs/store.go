// Package prefs persists user settings in a small SQLite key-value table:
// the rewriting mode, intensity, language, custom instructions and the API
// key.
package prefs

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gitlab.com/tozd/go/errors"
	_ "modernc.org/sqlite"

	"github.com/gaurav-prasanna/easyread/core"
)

// Recognized keys.
const (
	KeyMode         = "cognitiveMode"
	KeyLevel        = "simplificationLevel"
	KeyLanguage     = "selectedLanguage"
	KeyCustomPrompt = "customPromptText"
	KeyAPIKey       = "apiKey"
)

// Keys lists every recognized key.
var Keys = []string{KeyMode, KeyLevel, KeyLanguage, KeyCustomPrompt, KeyAPIKey}

// ErrUnknownKey is returned when setting a key outside Keys.
var ErrUnknownKey = errors.Base("unknown preference key")

const schema = `
CREATE TABLE IF NOT EXISTS prefs (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store is the preference table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Errorf("creating %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Errorf("opening preferences: %w", err)
	}
	// One writer; SQLite serializes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Errorf("creating preferences table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value of key and whether it is set.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Errorf("reading %s: %w", key, err)
	}
	return v, true, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if !known(key) {
		return errors.Errorf("%w: %q", ErrUnknownKey, key)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return errors.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Removing an unset key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM prefs WHERE key = ?`, key); err != nil {
		return errors.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// All returns every stored pair.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM prefs ORDER BY key`)
	if err != nil {
		return nil, errors.Errorf("listing preferences: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.WithStack(err)
		}
		out[k] = v
	}
	return out, errors.WithStack(rows.Err())
}

func known(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Transform builds the run configuration from p, falling back to the
// defaults for anything unset. A malformed level is ignored.
func Transform(ctx context.Context, p core.Preferences) (core.Transform, error) {
	t := core.DefaultTransform()

	vals := make(map[string]string, 4)
	for _, k := range []string{KeyMode, KeyLevel, KeyLanguage, KeyCustomPrompt} {
		v, ok, err := p.Get(ctx, k)
		if err != nil {
			return t, err
		}
		if ok {
			vals[k] = strings.TrimSpace(v)
		}
	}

	if v := vals[KeyMode]; v != "" {
		t.Mode = core.Mode(v)
	}
	if n, err := strconv.Atoi(vals[KeyLevel]); err == nil {
		t.Intensity = n
	}
	if v := vals[KeyLanguage]; v != "" {
		t.TargetLanguage = v
	}
	t.CustomInstructions = vals[KeyCustomPrompt]
	return t, nil
}

// APIKey returns the stored key if set, otherwise fallback.
func APIKey(ctx context.Context, p core.Preferences, fallback string) (string, error) {
	v, ok, err := p.Get(ctx, KeyAPIKey)
	if err != nil {
		return "", err
	}
	if ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	return fallback, nil
}
