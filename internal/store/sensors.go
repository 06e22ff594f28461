package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/m360/sentinel/internal/model"
)

func scanSensor(row interface {
	Scan(dest ...interface{}) error
}) (*model.Sensor, error) {
	s := &model.Sensor{}
	var configText string
	if err := row.Scan(&s.ID, &s.MonitorID, &s.Kind, &s.Name, &configText, &s.OwnerID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(configText), &s.Config); err != nil {
		return nil, fmt.Errorf("decoding sensor config: %w", err)
	}
	return s, nil
}

const sensorColumns = `id, monitor_id, kind, name, config, owner_id`

// GetSensor fetches a sensor by ID.
func (s *Store) GetSensor(id string) (*model.Sensor, error) {
	row := s.db.QueryRow(`SELECT `+sensorColumns+` FROM sensors WHERE id = ?`, id)
	sn, err := scanSensor(row)
	if err != nil {
		return nil, fmt.Errorf("store: get sensor %s: %w", id, err)
	}
	return sn, nil
}

// ListSensorsByOwner returns every sensor owned by ownerID.
func (s *Store) ListSensorsByOwner(ownerID string) ([]model.Sensor, error) {
	rows, err := s.db.Query(`SELECT `+sensorColumns+` FROM sensors WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list sensors for %s: %w", ownerID, err)
	}
	defer rows.Close()

	var out []model.Sensor
	for rows.Next() {
		sn, err := scanSensor(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan sensor: %w", err)
		}
		out = append(out, *sn)
	}
	return out, rows.Err()
}

// ListAllSensors returns every sensor across every tenant — used by the
// Scheduler's startAll on boot.
func (s *Store) ListAllSensors() ([]model.Sensor, error) {
	rows, err := s.db.Query(`SELECT ` + sensorColumns + ` FROM sensors`)
	if err != nil {
		return nil, fmt.Errorf("store: list all sensors: %w", err)
	}
	defer rows.Close()

	var out []model.Sensor
	for rows.Next() {
		sn, err := scanSensor(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan sensor: %w", err)
		}
		out = append(out, *sn)
	}
	return out, rows.Err()
}

// InsertSensor inserts a new sensor row, assigning it an ID if the caller
// left one unset.
func (s *Store) InsertSensor(sn *model.Sensor) error {
	if sn.ID == "" {
		sn.ID = model.NewID()
	}
	configText, err := json.Marshal(sn.Config)
	if err != nil {
		return fmt.Errorf("store: encoding sensor config: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO sensors (`+sensorColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		sn.ID, sn.MonitorID, sn.Kind, sn.Name, string(configText), sn.OwnerID)
	if err != nil {
		return fmt.Errorf("store: insert sensor: %w", err)
	}
	return nil
}

// UpdateSensor updates an existing sensor row by ID.
func (s *Store) UpdateSensor(sn *model.Sensor) error {
	configText, err := json.Marshal(sn.Config)
	if err != nil {
		return fmt.Errorf("store: encoding sensor config: %w", err)
	}
	_, err = s.db.Exec(`UPDATE sensors SET kind=?, name=?, config=? WHERE id=? AND owner_id=?`,
		sn.Kind, sn.Name, string(configText), sn.ID, sn.OwnerID)
	if err != nil {
		return fmt.Errorf("store: update sensor %s: %w", sn.ID, err)
	}
	return nil
}

// DeleteSensor removes a sensor and cascades its samples.
func (s *Store) DeleteSensor(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: delete sensor %s: %w", id, err)
	}
	defer tx.Rollback()

	if err := cascadeDeleteSensorTx(tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func cascadeDeleteSensorTx(tx *sql.Tx, sensorID string) error {
	if _, err := tx.Exec(`DELETE FROM ping_samples WHERE sensor_id = ?`, sensorID); err != nil {
		return fmt.Errorf("store: delete ping samples for sensor %s: %w", sensorID, err)
	}
	if _, err := tx.Exec(`DELETE FROM ethernet_samples WHERE sensor_id = ?`, sensorID); err != nil {
		return fmt.Errorf("store: delete ethernet samples for sensor %s: %w", sensorID, err)
	}
	if _, err := tx.Exec(`DELETE FROM sensors WHERE id = ?`, sensorID); err != nil {
		return fmt.Errorf("store: delete sensor %s: %w", sensorID, err)
	}
	return nil
}

// GetSensorWithDevice loads a sensor joined with its device (via its
// monitor), including the device's credential/maestro/vpn-profile joins —
// the shape the Scheduler needs to launch a worker.
func (s *Store) GetSensorWithDevice(sensorID string) (*model.Sensor, *model.DeviceWithJoins, error) {
	sn, err := s.GetSensor(sensorID)
	if err != nil {
		return nil, nil, err
	}
	mon, err := s.GetMonitor(sn.MonitorID)
	if err != nil {
		return nil, nil, fmt.Errorf("store: monitor for sensor %s: %w", sensorID, err)
	}
	device, err := s.GetDevice(mon.DeviceID)
	if err != nil {
		return nil, nil, fmt.Errorf("store: device for sensor %s: %w", sensorID, err)
	}
	dj, err := s.joinDevice(device)
	if err != nil {
		return nil, nil, err
	}
	return sn, dj, nil
}
