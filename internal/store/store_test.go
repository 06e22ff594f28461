package store

import (
	"testing"

	"github.com/m360/sentinel/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertCredentialAssignsID(t *testing.T) {
	s := newTestStore(t)
	c := &model.Credential{Name: "admin", Username: "admin", Password: "secret", OwnerID: "tenant-1"}
	if err := s.InsertCredential(c); err != nil {
		t.Fatalf("insert credential: %v", err)
	}
	if c.ID == "" {
		t.Fatal("expected InsertCredential to assign an ID")
	}

	got, err := s.GetCredential(c.ID)
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if got.Username != "admin" || got.OwnerID != "tenant-1" {
		t.Fatalf("unexpected credential: %+v", got)
	}
}

func TestInsertCredentialHonorsExplicitID(t *testing.T) {
	s := newTestStore(t)
	c := &model.Credential{ID: "cred-fixed", Name: "admin", Username: "admin", Password: "x", OwnerID: "tenant-1"}
	if err := s.InsertCredential(c); err != nil {
		t.Fatalf("insert credential: %v", err)
	}
	if c.ID != "cred-fixed" {
		t.Fatalf("expected explicit ID to be preserved, got %q", c.ID)
	}
}

func TestSensorCascadeDeleteRemovesSamples(t *testing.T) {
	s := newTestStore(t)

	cred := &model.Credential{Name: "admin", Username: "admin", Password: "x", OwnerID: "tenant-1"}
	if err := s.InsertCredential(cred); err != nil {
		t.Fatalf("insert credential: %v", err)
	}

	device := &model.Device{ClientName: "router-1", IP: "10.0.0.1", CredentialID: &cred.ID, OwnerID: "tenant-1"}
	if err := s.InsertDevice(device); err != nil {
		t.Fatalf("insert device: %v", err)
	}

	monitor := &model.Monitor{DeviceID: device.ID, OwnerID: "tenant-1"}
	if err := s.InsertMonitor(monitor); err != nil {
		t.Fatalf("insert monitor: %v", err)
	}

	sensor := &model.Sensor{
		MonitorID: monitor.ID,
		Kind:      model.KindPing,
		Name:      "wan latency",
		Config:    model.SensorConfig{IntervalSec: 60, PingType: model.PingSelfToTarget, TargetIP: "8.8.8.8"},
		OwnerID:   "tenant-1",
	}
	if err := s.InsertSensor(sensor); err != nil {
		t.Fatalf("insert sensor: %v", err)
	}

	latency := 12.5
	if err := s.InsertPingSample(&model.PingSample{SensorID: sensor.ID, Status: model.PingStatusOK, LatencyMs: &latency}); err != nil {
		t.Fatalf("insert ping sample: %v", err)
	}

	if sample, err := s.LatestPingSample(sensor.ID); err != nil || sample == nil {
		t.Fatalf("expected a latest ping sample, got %+v, err=%v", sample, err)
	}

	if err := s.DeleteSensor(sensor.ID); err != nil {
		t.Fatalf("delete sensor: %v", err)
	}

	if _, err := s.GetSensor(sensor.ID); err == nil {
		t.Fatal("expected sensor to be gone after delete")
	}

	sample, err := s.LatestPingSample(sensor.ID)
	if err != nil {
		t.Fatalf("latest ping sample after cascade delete: %v", err)
	}
	if sample != nil {
		t.Fatalf("expected cascaded ping samples to be gone, got %+v", sample)
	}
}

func TestInsertVpnProfileClearsPriorDefault(t *testing.T) {
	s := newTestStore(t)

	first := &model.VpnProfile{Name: "primary", ConfigText: "x", IsDefault: true, OwnerID: "tenant-1"}
	if err := s.InsertVpnProfile(first); err != nil {
		t.Fatalf("insert first vpn profile: %v", err)
	}

	second := &model.VpnProfile{Name: "backup", ConfigText: "y", IsDefault: true, OwnerID: "tenant-1"}
	if err := s.InsertVpnProfile(second); err != nil {
		t.Fatalf("insert second vpn profile: %v", err)
	}

	got, err := s.GetVpnProfile(first.ID)
	if err != nil {
		t.Fatalf("get first vpn profile: %v", err)
	}
	if got.IsDefault {
		t.Fatal("expected inserting a new default to clear the prior one")
	}
}

func TestGetSensorWithDeviceJoinsMaestroAndCredential(t *testing.T) {
	s := newTestStore(t)

	maestroCred := &model.Credential{Name: "maestro-cred", Username: "admin", Password: "x", OwnerID: "tenant-1"}
	if err := s.InsertCredential(maestroCred); err != nil {
		t.Fatalf("insert maestro credential: %v", err)
	}
	maestro := &model.Device{ClientName: "maestro", IP: "10.0.0.1", CredentialID: &maestroCred.ID, IsMaestro: true, OwnerID: "tenant-1"}
	if err := s.InsertDevice(maestro); err != nil {
		t.Fatalf("insert maestro device: %v", err)
	}

	device := &model.Device{ClientName: "leaf", IP: "10.0.0.2", MaestroID: &maestro.ID, OwnerID: "tenant-1"}
	if err := s.InsertDevice(device); err != nil {
		t.Fatalf("insert leaf device: %v", err)
	}

	monitor := &model.Monitor{DeviceID: device.ID, OwnerID: "tenant-1"}
	if err := s.InsertMonitor(monitor); err != nil {
		t.Fatalf("insert monitor: %v", err)
	}

	sensor := &model.Sensor{
		MonitorID: monitor.ID,
		Kind:      model.KindPing,
		Name:      "maestro ping",
		Config:    model.SensorConfig{IntervalSec: 60, PingType: model.PingMaestroToDevice},
		OwnerID:   "tenant-1",
	}
	if err := s.InsertSensor(sensor); err != nil {
		t.Fatalf("insert sensor: %v", err)
	}

	sn, dj, err := s.GetSensorWithDevice(sensor.ID)
	if err != nil {
		t.Fatalf("get sensor with device: %v", err)
	}
	if sn.ID != sensor.ID {
		t.Fatalf("unexpected sensor returned: %+v", sn)
	}
	if dj.Maestro == nil || dj.Maestro.ID != maestro.ID {
		t.Fatalf("expected maestro join, got %+v", dj.Maestro)
	}
}
