package fanout

import (
	"errors"
	"testing"
	"time"

	"github.com/m360/sentinel/internal/model"
)

type fakeSink struct {
	messages []interface{}
	failNext bool
}

func (f *fakeSink) WriteJSON(v interface{}) error {
	if f.failNext {
		return errors.New("write failed")
	}
	f.messages = append(f.messages, v)
	return nil
}

type emptySensorLister struct{}

func (emptySensorLister) ListSensorsByOwner(string) ([]model.Sensor, error) { return nil, nil }

type emptySampleReader struct{}

func (emptySampleReader) LatestPingSample(string) (*model.PingSample, error)         { return nil, nil }
func (emptySampleReader) LatestEthernetSample(string) (*model.EthernetSample, error) { return nil, nil }

func newTestFanout() *Fanout {
	return New(emptySensorLister{}, emptySampleReader{})
}

func TestAttachSendsWelcomeReadyAndBatch(t *testing.T) {
	f := newTestFanout()
	sink := &fakeSink{}
	f.Attach(sink, "tenant-a")

	if len(sink.messages) != 3 {
		t.Fatalf("expected 3 messages (welcome, ready, sensor_batch), got %d", len(sink.messages))
	}
}

func TestPublishDeliversToMatchingTenantSubAll(t *testing.T) {
	f := newTestFanout()
	sink := &fakeSink{}
	f.Attach(sink, "tenant-a")
	f.handleInbound(sink, "tenant-a", inbound{Type: "subscribe_all"})
	before := len(sink.messages)

	f.Publish("tenant-a", Event{SensorID: "sensor-1", Kind: model.KindPing, Status: model.PingStatusOK, Timestamp: time.Now()})

	if len(sink.messages) != before+1 {
		t.Fatalf("expected 1 new message delivered, got %d", len(sink.messages)-before)
	}
}

func TestPublishSkipsOtherTenants(t *testing.T) {
	f := newTestFanout()
	sink := &fakeSink{}
	f.Attach(sink, "tenant-a")
	f.handleInbound(sink, "tenant-a", inbound{Type: "subscribe_all"})
	// A matching tenant-b subscriber keeps the zero-delivery fallback from running.
	other := &fakeSink{}
	f.Attach(other, "tenant-b")
	f.handleInbound(other, "tenant-b", inbound{Type: "subscribe_all"})
	before := len(sink.messages)

	f.Publish("tenant-b", Event{SensorID: "sensor-1", Kind: model.KindPing, Status: model.PingStatusOK, Timestamp: time.Now()})

	if len(sink.messages) != before {
		t.Fatalf("cross-tenant publish with other matches must not deliver, got %d new messages", len(sink.messages)-before)
	}
}

func TestPublishFallsBackCrossTenantWhenZeroDeliveries(t *testing.T) {
	f := newTestFanout()
	sink := &fakeSink{}
	f.Attach(sink, "tenant-legacy")
	// subscription left unset (subEmpty) — zero deliveries expected in pass 1.
	before := len(sink.messages)

	f.Publish("tenant-b", Event{SensorID: "sensor-1", Kind: model.KindPing, Status: model.PingStatusOK, Timestamp: time.Now()})

	if len(sink.messages) != before+1 {
		t.Fatalf("expected fallback delivery to subEmpty subscriber, got %d new messages", len(sink.messages)-before)
	}
}

func TestPublishNoFallbackWithoutSensorID(t *testing.T) {
	f := newTestFanout()
	sink := &fakeSink{}
	f.Attach(sink, "tenant-legacy")
	before := len(sink.messages)

	f.Publish("tenant-b", Event{SensorID: "", Kind: model.KindPing, Status: model.PingStatusOK, Timestamp: time.Now()})

	if len(sink.messages) != before {
		t.Fatalf("events with no sensor_id must never trigger the fallback, got %d new messages", len(sink.messages)-before)
	}
}

func TestPublishDetachesOnWriteError(t *testing.T) {
	f := newTestFanout()
	sink := &fakeSink{}
	f.Attach(sink, "tenant-a")
	f.handleInbound(sink, "tenant-a", inbound{Type: "subscribe_all"})

	sink.failNext = true
	f.Publish("tenant-a", Event{SensorID: "sensor-1", Kind: model.KindPing, Status: model.PingStatusOK, Timestamp: time.Now()})

	f.mu.Lock()
	_, stillAttached := f.subs[sink]
	f.mu.Unlock()
	if stillAttached {
		t.Fatal("sink should be detached after a write error")
	}
}

func TestSubscribeSensorsFiltersInitialBatch(t *testing.T) {
	f := New(stubSensorLister{sensors: []model.Sensor{
		{ID: "sensor-1", Kind: model.KindPing, OwnerID: "tenant-a"},
		{ID: "sensor-2", Kind: model.KindPing, OwnerID: "tenant-a"},
	}}, emptySampleReader{})
	sink := &fakeSink{}
	f.Attach(sink, "tenant-a")
	sink.messages = nil

	f.handleInbound(sink, "tenant-a", inbound{Type: "subscribe_sensors", SensorIDs: []string{"sensor-1"}})

	batch := sink.messages[len(sink.messages)-1].(map[string]interface{})
	items := batch["items"].([]map[string]interface{})
	if len(items) != 1 {
		t.Fatalf("expected batch filtered to 1 sensor, got %d", len(items))
	}
}

type stubSensorLister struct {
	sensors []model.Sensor
}

func (s stubSensorLister) ListSensorsByOwner(ownerID string) ([]model.Sensor, error) {
	var out []model.Sensor
	for _, sn := range s.sensors {
		if sn.OwnerID == ownerID {
			out = append(out, sn)
		}
	}
	return out, nil
}
