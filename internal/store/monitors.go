package store

import (
	"database/sql"
	"fmt"

	"github.com/m360/sentinel/internal/model"
)

// GetMonitor fetches a monitor by ID.
func (s *Store) GetMonitor(id string) (*model.Monitor, error) {
	m := &model.Monitor{}
	err := s.db.QueryRow(`SELECT id, device_id, owner_id FROM monitors WHERE id = ?`, id).
		Scan(&m.ID, &m.DeviceID, &m.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("store: get monitor %s: %w", id, err)
	}
	return m, nil
}

// GetMonitorByDevice fetches the (at most one) monitor for deviceID.
func (s *Store) GetMonitorByDevice(deviceID string) (*model.Monitor, error) {
	m := &model.Monitor{}
	err := s.db.QueryRow(`SELECT id, device_id, owner_id FROM monitors WHERE device_id = ?`, deviceID).
		Scan(&m.ID, &m.DeviceID, &m.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("store: get monitor for device %s: %w", deviceID, err)
	}
	return m, nil
}

// ListMonitorsByOwner returns every monitor owned by ownerID.
func (s *Store) ListMonitorsByOwner(ownerID string) ([]model.Monitor, error) {
	rows, err := s.db.Query(`SELECT id, device_id, owner_id FROM monitors WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list monitors for %s: %w", ownerID, err)
	}
	defer rows.Close()

	var out []model.Monitor
	for rows.Next() {
		var m model.Monitor
		if err := rows.Scan(&m.ID, &m.DeviceID, &m.OwnerID); err != nil {
			return nil, fmt.Errorf("store: scan monitor: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertMonitor inserts a new monitor row (at most one per device),
// assigning it an ID if the caller left one unset.
func (s *Store) InsertMonitor(m *model.Monitor) error {
	if m.ID == "" {
		m.ID = model.NewID()
	}
	_, err := s.db.Exec(`INSERT INTO monitors (id, device_id, owner_id) VALUES (?, ?, ?)`, m.ID, m.DeviceID, m.OwnerID)
	if err != nil {
		return fmt.Errorf("store: insert monitor: %w", err)
	}
	return nil
}

// DeleteMonitor removes a monitor and cascades its sensors (and their
// samples).
func (s *Store) DeleteMonitor(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: delete monitor %s: %w", id, err)
	}
	defer tx.Rollback()

	if err := cascadeDeleteMonitorTx(tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func cascadeDeleteMonitorTx(tx *sql.Tx, monitorID string) error {
	rows, err := tx.Query(`SELECT id FROM sensors WHERE monitor_id = ?`, monitorID)
	if err != nil {
		return fmt.Errorf("store: list sensors for monitor %s: %w", monitorID, err)
	}
	var sensorIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("store: scan sensor id: %w", err)
		}
		sensorIDs = append(sensorIDs, id)
	}
	rows.Close()

	for _, sid := range sensorIDs {
		if err := cascadeDeleteSensorTx(tx, sid); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`DELETE FROM monitors WHERE id = ?`, monitorID); err != nil {
		return fmt.Errorf("store: delete monitor %s: %w", monitorID, err)
	}
	return nil
}
