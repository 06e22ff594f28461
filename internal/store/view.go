package store

import (
	"fmt"

	"github.com/m360/sentinel/internal/model"
)

// MonitorsWithSensors returns the aggregated view §6 requires: every
// monitor owned by ownerID, joined with its device fields and a compact
// summary of each of its sensors.
func (s *Store) MonitorsWithSensors(ownerID string) ([]model.MonitorView, error) {
	monitors, err := s.ListMonitorsByOwner(ownerID)
	if err != nil {
		return nil, err
	}

	views := make([]model.MonitorView, 0, len(monitors))
	for _, mon := range monitors {
		device, err := s.GetDevice(mon.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("store: monitor view device %s: %w", mon.DeviceID, err)
		}
		dj, err := s.joinDevice(device)
		if err != nil {
			return nil, err
		}

		sensors, err := s.listSensorsByMonitor(mon.ID)
		if err != nil {
			return nil, err
		}

		summaries := make([]model.SensorSummary, 0, len(sensors))
		for _, sn := range sensors {
			summaries = append(summaries, model.SensorSummary{
				ID:     sn.ID,
				Name:   sn.Name,
				Kind:   sn.Kind,
				Config: sn.Config,
			})
		}

		views = append(views, model.MonitorView{
			MonitorID: mon.ID,
			DeviceID:  mon.DeviceID,
			Device:    *dj,
			Sensors:   summaries,
		})
	}
	return views, nil
}

func (s *Store) listSensorsByMonitor(monitorID string) ([]model.Sensor, error) {
	rows, err := s.db.Query(`SELECT `+sensorColumns+` FROM sensors WHERE monitor_id = ?`, monitorID)
	if err != nil {
		return nil, fmt.Errorf("store: list sensors for monitor %s: %w", monitorID, err)
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
