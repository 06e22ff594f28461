package alert

import (
	"context"
	"testing"
	"time"

	"github.com/m360/sentinel/internal/model"
	"github.com/m360/sentinel/internal/notify"
)

type fakeRecorder struct {
	records []*model.AlertRecord
}

func (f *fakeRecorder) InsertAlertRecord(a *model.AlertRecord) error {
	f.records = append(f.records, a)
	return nil
}

type fakeDispatcher struct {
	calls []notify.Payload
}

func (f *fakeDispatcher) Notify(ctx context.Context, sensorOwnerID, channelID string, payload notify.Payload) {
	f.calls = append(f.calls, payload)
}

func testSensor(rules ...model.AlertRule) model.Sensor {
	return model.Sensor{
		ID:      "sensor-1",
		OwnerID: "tenant-a",
		Config:  model.SensorConfig{Alerts: rules},
	}
}

func testDevice() model.DeviceWithJoins {
	return model.DeviceWithJoins{Device: model.Device{ClientName: "acme", IP: "10.0.0.1"}}
}

func ptr(f float64) *float64 { return &f }

func TestEvaluateTimeoutFires(t *testing.T) {
	rec := &fakeRecorder{}
	disp := &fakeDispatcher{}
	e := New(rec, disp, 15)

	sensor := testSensor(model.AlertRule{Type: model.AlertTimeout, ChannelID: "chan-1", CooldownMinutes: 10})
	e.Evaluate(context.Background(), sensor, testDevice(), Sample{Status: model.PingStatusTimeout})

	if len(disp.calls) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(disp.calls))
	}
	if len(rec.records) != 1 {
		t.Fatalf("expected 1 alert record, got %d", len(rec.records))
	}
}

func TestEvaluateRespectsCooldown(t *testing.T) {
	rec := &fakeRecorder{}
	disp := &fakeDispatcher{}
	e := New(rec, disp, 15)
	fixed := time.Now()
	e.now = func() time.Time { return fixed }

	sensor := testSensor(model.AlertRule{Type: model.AlertTimeout, ChannelID: "chan-1", CooldownMinutes: 10})
	sample := Sample{Status: model.PingStatusTimeout}

	e.Evaluate(context.Background(), sensor, testDevice(), sample)
	e.Evaluate(context.Background(), sensor, testDevice(), sample)

	if len(disp.calls) != 1 {
		t.Fatalf("expected cooldown to suppress second fire, got %d calls", len(disp.calls))
	}

	e.now = func() time.Time { return fixed.Add(11 * time.Minute) }
	e.Evaluate(context.Background(), sensor, testDevice(), sample)
	if len(disp.calls) != 2 {
		t.Fatalf("expected fire after cooldown elapsed, got %d calls", len(disp.calls))
	}
}

func TestEvaluateHighLatencyThreshold(t *testing.T) {
	rec := &fakeRecorder{}
	disp := &fakeDispatcher{}
	e := New(rec, disp, 15)

	sensor := testSensor(model.AlertRule{Type: model.AlertHighLatency, ChannelID: "chan-1", CooldownMinutes: 5, ThresholdMs: 100})

	e.Evaluate(context.Background(), sensor, testDevice(), Sample{Status: model.PingStatusOK, LatencyMs: ptr(50)})
	if len(disp.calls) != 0 {
		t.Fatalf("latency under threshold should not fire, got %d calls", len(disp.calls))
	}

	e.Evaluate(context.Background(), sensor, testDevice(), Sample{Status: model.PingStatusOK, LatencyMs: ptr(150)})
	if len(disp.calls) != 1 {
		t.Fatalf("latency over threshold should fire, got %d calls", len(disp.calls))
	}
}

func TestEvaluateSpeedChangeExemptsFirstObservation(t *testing.T) {
	rec := &fakeRecorder{}
	disp := &fakeDispatcher{}
	e := New(rec, disp, 15)

	sensor := testSensor(model.AlertRule{Type: model.AlertSpeedChange, ChannelID: "chan-1", CooldownMinutes: 5})

	e.Evaluate(context.Background(), sensor, testDevice(), Sample{Status: model.EthStatusLinkUp, Speed: "1Gbps"})
	if len(disp.calls) != 0 {
		t.Fatalf("first observation must not fire, got %d calls", len(disp.calls))
	}

	e.Evaluate(context.Background(), sensor, testDevice(), Sample{Status: model.EthStatusLinkUp, Speed: "100Mbps"})
	if len(disp.calls) != 1 {
		t.Fatalf("changed speed should fire, got %d calls", len(disp.calls))
	}

	e.Evaluate(context.Background(), sensor, testDevice(), Sample{Status: model.EthStatusLinkUp, Speed: "100Mbps"})
	if len(disp.calls) != 1 {
		t.Fatalf("unchanged speed should not refire, got %d calls", len(disp.calls))
	}
}

func TestEvaluateTrafficThresholdDirectionAny(t *testing.T) {
	rec := &fakeRecorder{}
	disp := &fakeDispatcher{}
	e := New(rec, disp, 15)

	sensor := testSensor(model.AlertRule{
		Type: model.AlertTrafficThreshold, ChannelID: "chan-1", CooldownMinutes: 5,
		ThresholdMbps: 10, Direction: "any",
	})

	under := Sample{RxBitrate: "5000000", TxBitrate: "5000000"}
	e.Evaluate(context.Background(), sensor, testDevice(), under)
	if len(disp.calls) != 0 {
		t.Fatalf("under-threshold traffic should not fire, got %d calls", len(disp.calls))
	}

	over := Sample{RxBitrate: "20000000", TxBitrate: "1000000"}
	e.Evaluate(context.Background(), sensor, testDevice(), over)
	if len(disp.calls) != 1 {
		t.Fatalf("rx over threshold with direction=any should fire, got %d calls", len(disp.calls))
	}
}

func TestEvaluateTrafficThresholdDirectionTxIgnoresRx(t *testing.T) {
	rec := &fakeRecorder{}
	disp := &fakeDispatcher{}
	e := New(rec, disp, 15)

	sensor := testSensor(model.AlertRule{
		Type: model.AlertTrafficThreshold, ChannelID: "chan-1", CooldownMinutes: 5,
		ThresholdMbps: 10, Direction: "tx",
	})

	sample := Sample{RxBitrate: "50000000", TxBitrate: "1000000"}
	e.Evaluate(context.Background(), sensor, testDevice(), sample)
	if len(disp.calls) != 0 {
		t.Fatalf("rx-only overage with direction=tx should not fire, got %d calls", len(disp.calls))
	}
}

func TestEvaluateRulesOfOneSensorFireIndependently(t *testing.T) {
	rec := &fakeRecorder{}
	disp := &fakeDispatcher{}
	e := New(rec, disp, 15)

	sensor := testSensor(
		model.AlertRule{Type: model.AlertTimeout, ChannelID: "chan-1", CooldownMinutes: 5},
		model.AlertRule{Type: model.AlertHighLatency, ChannelID: "chan-2", CooldownMinutes: 5, ThresholdMs: 10},
	)

	e.Evaluate(context.Background(), sensor, testDevice(), Sample{Status: model.PingStatusTimeout})
	if len(disp.calls) != 1 {
		t.Fatalf("expected only the timeout rule to fire, got %d calls", len(disp.calls))
	}
}

// TestEvaluateZeroCooldownFallsBackToDefault confirms a rule left at its
// zero-value CooldownMinutes is floored at the configured default instead of
// firing on every single cycle.
func TestEvaluateZeroCooldownFallsBackToDefault(t *testing.T) {
	rec := &fakeRecorder{}
	disp := &fakeDispatcher{}
	e := New(rec, disp, 10)
	fixed := time.Now()
	e.now = func() time.Time { return fixed }

	sensor := testSensor(model.AlertRule{Type: model.AlertTimeout, ChannelID: "chan-1"}) // CooldownMinutes left unset
	sample := Sample{Status: model.PingStatusTimeout}

	e.Evaluate(context.Background(), sensor, testDevice(), sample)
	e.Evaluate(context.Background(), sensor, testDevice(), sample)
	if len(disp.calls) != 1 {
		t.Fatalf("expected default cooldown to suppress second fire, got %d calls", len(disp.calls))
	}

	e.now = func() time.Time { return fixed.Add(11 * time.Minute) }
	e.Evaluate(context.Background(), sensor, testDevice(), sample)
	if len(disp.calls) != 2 {
		t.Fatalf("expected fire after default cooldown elapsed, got %d calls", len(disp.calls))
	}
}
