package store

import (
	"database/sql"
	"fmt"

	"github.com/m360/sentinel/internal/model"
)

// InsertPingSample appends a ping sample. Samples are append-only.
func (s *Store) InsertPingSample(sample *model.PingSample) error {
	res, err := s.db.Exec(`INSERT INTO ping_samples (sensor_id, ts, status, latency_ms) VALUES (?, ?, ?, ?)`,
		sample.SensorID, sample.Timestamp, sample.Status, sample.LatencyMs)
	if err != nil {
		return fmt.Errorf("store: insert ping sample for %s: %w", sample.SensorID, err)
	}
	id, err := res.LastInsertId()
	if err == nil {
		sample.ID = id
	}
	return nil
}

// LatestPingSample returns the most recent ping sample for sensorID, or nil
// if none exists yet.
func (s *Store) LatestPingSample(sensorID string) (*model.PingSample, error) {
	row := s.db.QueryRow(`SELECT id, sensor_id, ts, status, latency_ms FROM ping_samples WHERE sensor_id = ? ORDER BY ts DESC LIMIT 1`, sensorID)
	sample := &model.PingSample{}
	var latency sql.NullFloat64
	err := row.Scan(&sample.ID, &sample.SensorID, &sample.Timestamp, &sample.Status, &latency)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest ping sample for %s: %w", sensorID, err)
	}
	if latency.Valid {
		v := latency.Float64
		sample.LatencyMs = &v
	}
	return sample, nil
}

// InsertEthernetSample appends an ethernet sample. Samples are append-only.
func (s *Store) InsertEthernetSample(sample *model.EthernetSample) error {
	res, err := s.db.Exec(`INSERT INTO ethernet_samples (sensor_id, ts, status, speed, rx_bitrate, tx_bitrate) VALUES (?, ?, ?, ?, ?, ?)`,
		sample.SensorID, sample.Timestamp, sample.Status, sample.Speed, sample.RxBitrate, sample.TxBitrate)
	if err != nil {
		return fmt.Errorf("store: insert ethernet sample for %s: %w", sample.SensorID, err)
	}
	id, err := res.LastInsertId()
	if err == nil {
		sample.ID = id
	}
	return nil
}

// LatestEthernetSample returns the most recent ethernet sample for
// sensorID, or nil if none exists yet.
func (s *Store) LatestEthernetSample(sensorID string) (*model.EthernetSample, error) {
	row := s.db.QueryRow(`SELECT id, sensor_id, ts, status, speed, rx_bitrate, tx_bitrate FROM ethernet_samples WHERE sensor_id = ? ORDER BY ts DESC LIMIT 1`, sensorID)
	sample := &model.EthernetSample{}
	err := row.Scan(&sample.ID, &sample.SensorID, &sample.Timestamp, &sample.Status, &sample.Speed, &sample.RxBitrate, &sample.TxBitrate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest ethernet sample for %s: %w", sensorID, err)
	}
	return sample, nil
}
