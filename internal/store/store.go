// Package store is the Persistence Gateway: a typed, owner-scoped API over
// the relational store backing every entity in internal/model. It follows
// the teacher's internal/queue.Manager shape — a struct wrapping *sql.DB
// opened against SQLite with WAL journaling, one method group per entity —
// generalized from a single `downloads` table to the full entity graph this
// system needs.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the process-wide Persistence Gateway.
type Store struct {
	db *sql.DB
}

// Open creates (or attaches to) the SQLite database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initializing schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			username TEXT NOT NULL,
			password TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			UNIQUE(owner_id, name)
		);

		CREATE TABLE IF NOT EXISTS vpn_profiles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			config_text TEXT NOT NULL DEFAULT '',
			check_ip TEXT NOT NULL DEFAULT '',
			is_default INTEGER NOT NULL DEFAULT 0,
			owner_id TEXT NOT NULL,
			UNIQUE(owner_id, name)
		);

		CREATE TABLE IF NOT EXISTS devices (
			id TEXT PRIMARY KEY,
			client_name TEXT NOT NULL,
			ip TEXT NOT NULL UNIQUE,
			mac TEXT NOT NULL DEFAULT '',
			node TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			credential_id TEXT,
			is_maestro INTEGER NOT NULL DEFAULT 0,
			maestro_id TEXT,
			vpn_profile_id TEXT,
			owner_id TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS monitors (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL UNIQUE,
			owner_id TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sensors (
			id TEXT PRIMARY KEY,
			monitor_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			config TEXT NOT NULL DEFAULT '{}',
			owner_id TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sensors_monitor ON sensors(monitor_id);

		CREATE TABLE IF NOT EXISTS ping_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sensor_id TEXT NOT NULL,
			ts DATETIME NOT NULL,
			status TEXT NOT NULL,
			latency_ms REAL
		);
		CREATE INDEX IF NOT EXISTS idx_ping_sensor_ts ON ping_samples(sensor_id, ts);

		CREATE TABLE IF NOT EXISTS ethernet_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sensor_id TEXT NOT NULL,
			ts DATETIME NOT NULL,
			status TEXT NOT NULL,
			speed TEXT NOT NULL DEFAULT '',
			rx_bitrate TEXT NOT NULL DEFAULT '0',
			tx_bitrate TEXT NOT NULL DEFAULT '0'
		);
		CREATE INDEX IF NOT EXISTS idx_eth_sensor_ts ON ethernet_samples(sensor_id, ts);

		CREATE TABLE IF NOT EXISTS notification_channels (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			config TEXT NOT NULL DEFAULT '{}',
			owner_id TEXT NOT NULL,
			UNIQUE(owner_id, name)
		);

		CREATE TABLE IF NOT EXISTS alert_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sensor_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			ts DATETIME NOT NULL,
			details TEXT NOT NULL DEFAULT ''
		);
	`)
	return err
}

// ErrVpnProfileInUse is returned by DeleteVpnProfile when a Device still
// references the profile.
var ErrVpnProfileInUse = fmt.Errorf("store: vpn profile still referenced by a device")

// ErrNotFound is returned by Get* methods when no row matches.
var ErrNotFound = sql.ErrNoRows
