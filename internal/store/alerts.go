package store

import (
	"fmt"

	"github.com/m360/sentinel/internal/model"
)

// InsertAlertRecord appends an alert firing record.
func (s *Store) InsertAlertRecord(a *model.AlertRecord) error {
	res, err := s.db.Exec(`INSERT INTO alert_records (sensor_id, channel_id, ts, details) VALUES (?, ?, ?, ?)`,
		a.SensorID, a.ChannelID, a.Timestamp, a.Details)
	if err != nil {
		return fmt.Errorf("store: insert alert record for %s: %w", a.SensorID, err)
	}
	id, err := res.LastInsertId()
	if err == nil {
		a.ID = id
	}
	return nil
}

// ListAlertRecordsBySensor returns every alert record for sensorID, newest
// first.
func (s *Store) ListAlertRecordsBySensor(sensorID string) ([]model.AlertRecord, error) {
	rows, err := s.db.Query(`SELECT id, sensor_id, channel_id, ts, details FROM alert_records WHERE sensor_id = ? ORDER BY ts DESC`, sensorID)
	if err != nil {
		return nil, fmt.Errorf("store: list alert records for %s: %w", sensorID, err)
	}
	defer rows.Close()

	var out []model.AlertRecord
	for rows.Next() {
		var a model.AlertRecord
		if err := rows.Scan(&a.ID, &a.SensorID, &a.ChannelID, &a.Timestamp, &a.Details); err != nil {
			return nil, fmt.Errorf("store: scan alert record: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
