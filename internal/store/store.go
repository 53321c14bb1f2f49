// Package store persists the saved Wi-Fi network registry in SQLite.
// Passwords are encrypted at rest with AES-256-GCM under a key generated on
// first use and kept in a 0600 key file, since saved networks carry Wi-Fi
// credentials.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lanlink/internal/models"
)

// ErrNotFound is returned when a saved network does not exist.
var ErrNotFound = errors.New("saved network not found")

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS saved_networks (
  bssid             TEXT PRIMARY KEY,
  ssid              TEXT NOT NULL,
  password_cipher   TEXT NOT NULL DEFAULT '',
  is_secure         INTEGER NOT NULL DEFAULT 0,
  last_connected    INTEGER NOT NULL,
  connection_count  INTEGER NOT NULL DEFAULT 1
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_saved_networks_last_connected
ON saved_networks (last_connected);
`,
}

// Store is the saved-network registry.
type Store struct {
	db     *sql.DB
	box    *secretBox
	logger zerolog.Logger

	mu               sync.Mutex
	maxSavedNetworks int
}

// New opens (creating if necessary) the registry at dbPath, using the AES key
// at keyPath for password encryption.
func New(dbPath, keyPath string, maxSavedNetworks int) (*Store, error) {
	box, err := openSecretBox(keyPath)
	if err != nil {
		return nil, fmt.Errorf("open secret key: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply migration %d: %w", i, err)
		}
	}

	return &Store{
		db:               db,
		box:              box,
		logger:           log.With().Str("component", "store").Logger(),
		maxSavedNetworks: maxSavedNetworks,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetMaxSavedNetworks updates the retention limit and trims immediately.
func (s *Store) SetMaxSavedNetworks(max int) error {
	s.mu.Lock()
	s.maxSavedNetworks = max
	s.mu.Unlock()
	return s.trim()
}

// Upsert records a connection to a network. An existing BSSID entry has its
// connection count incremented and lastConnected refreshed; a new BSSID is
// inserted with a count of one. Returns the resulting saved-network count.
func (s *Store) Upsert(n models.SavedNetwork) (int, error) {
	if n.BSSID == "" {
		return 0, errors.New("bssid is required")
	}

	cipher, err := s.box.seal(n.Password)
	if err != nil {
		return 0, fmt.Errorf("encrypt password: %w", err)
	}

	last := n.LastConnected
	if last.IsZero() {
		last = time.Now()
	}

	_, err = s.db.Exec(`
		INSERT INTO saved_networks (bssid, ssid, password_cipher, is_secure, last_connected, connection_count)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(bssid) DO UPDATE SET
			ssid = excluded.ssid,
			password_cipher = excluded.password_cipher,
			is_secure = excluded.is_secure,
			last_connected = excluded.last_connected,
			connection_count = saved_networks.connection_count + 1
	`, n.BSSID, n.SSID, cipher, boolToInt(n.IsSecure), last.Unix())
	if err != nil {
		return 0, fmt.Errorf("upsert saved network: %w", err)
	}

	if err := s.trim(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to trim saved networks")
	}

	return s.Count()
}

// Get returns the saved network for a BSSID with its password decrypted.
func (s *Store) Get(bssid string) (models.SavedNetwork, error) {
	row := s.db.QueryRow(`
		SELECT bssid, ssid, password_cipher, is_secure, last_connected, connection_count
		FROM saved_networks WHERE bssid = ?
	`, bssid)

	n, err := s.scanNetwork(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SavedNetwork{}, ErrNotFound
	}
	return n, err
}

// All returns every saved network, most recently connected first. Passwords
// are decrypted; callers own the returned slice.
func (s *Store) All() ([]models.SavedNetwork, error) {
	rows, err := s.db.Query(`
		SELECT bssid, ssid, password_cipher, is_secure, last_connected, connection_count
		FROM saved_networks ORDER BY last_connected DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query saved networks: %w", err)
	}
	defer rows.Close()

	var networks []models.SavedNetwork
	for rows.Next() {
		n, err := s.scanNetwork(rows)
		if err != nil {
			return nil, err
		}
		networks = append(networks, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saved networks: %w", err)
	}
	return networks, nil
}

// Count returns the number of saved networks.
func (s *Store) Count() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM saved_networks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count saved networks: %w", err)
	}
	return count, nil
}

// Delete removes a saved network.
func (s *Store) Delete(bssid string) error {
	res, err := s.db.Exec(`DELETE FROM saved_networks WHERE bssid = ?`, bssid)
	if err != nil {
		return fmt.Errorf("delete saved network: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanNetwork(row rowScanner) (models.SavedNetwork, error) {
	var (
		n      models.SavedNetwork
		cipher string
		secure int
		last   int64
	)
	if err := row.Scan(&n.BSSID, &n.SSID, &cipher, &secure, &last, &n.ConnectionCount); err != nil {
		return models.SavedNetwork{}, err
	}

	password, err := s.box.open(cipher)
	if err != nil {
		return models.SavedNetwork{}, fmt.Errorf("decrypt password for %s: %w", n.BSSID, err)
	}

	n.Password = password
	n.IsSecure = secure != 0
	n.LastConnected = time.Unix(last, 0)
	return n, nil
}

// trim evicts the oldest entries beyond the retention limit.
func (s *Store) trim() error {
	s.mu.Lock()
	max := s.maxSavedNetworks
	s.mu.Unlock()

	if max <= 0 {
		return nil
	}

	_, err := s.db.Exec(`
		DELETE FROM saved_networks WHERE bssid NOT IN (
			SELECT bssid FROM saved_networks
			ORDER BY last_connected DESC
			LIMIT ?
		)
	`, max)
	if err != nil {
		return fmt.Errorf("trim saved networks: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
