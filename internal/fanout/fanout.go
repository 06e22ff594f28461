// Package fanout implements the subscriber registry that streams sensor
// events to WebSocket clients. Grounded on the teacher's
// internal/queue.Manager for the mutex-guarded registry shape, and on
// github.com/gorilla/websocket (confirmed as the pack's WebSocket
// transport via the Butterfly-Student-mikrotik-collector manifest) for
// the sink implementation itself.
package fanout

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/m360/sentinel/internal/model"
)

// Sink is anything a fan-out message can be written to. *websocket.Conn
// satisfies this directly.
type Sink interface {
	WriteJSON(v interface{}) error
}

// SensorLister enumerates a tenant's sensors for the initial batch.
type SensorLister interface {
	ListSensorsByOwner(ownerID string) ([]model.Sensor, error)
}

// SampleReader reads the most recent sample for a sensor.
type SampleReader interface {
	LatestPingSample(sensorID string) (*model.PingSample, error)
	LatestEthernetSample(sensorID string) (*model.EthernetSample, error)
}

// Event is one sample crossing the fan-out boundary.
type Event struct {
	SensorID  string
	Kind      string // ping|ethernet
	Status    string
	LatencyMs *float64
	Speed     string
	RxBitrate string
	TxBitrate string
	Timestamp time.Time
}

type subscriptionKind int

const (
	subEmpty subscriptionKind = iota // not yet chosen
	subAll
	subSet
)

type subscriber struct {
	sink    Sink
	tenant  string
	kind    subscriptionKind
	sensors map[string]bool
}

func (s *subscriber) matches(sensorID string) bool {
	switch s.kind {
	case subAll:
		return true
	case subSet:
		return s.sensors[sensorID]
	default:
		return false
	}
}

// Fanout is the process-wide subscriber registry.
type Fanout struct {
	mu   sync.Mutex
	subs map[Sink]*subscriber

	sensors SensorLister
	samples SampleReader
	now     func() time.Time
}

// New creates a Fanout backed by sensors/samples for initial-batch lookups.
func New(sensors SensorLister, samples SampleReader) *Fanout {
	return &Fanout{
		subs:    make(map[Sink]*subscriber),
		sensors: sensors,
		samples: samples,
		now:     time.Now,
	}
}

// Attach registers sink for tenant with an unset subscription, then sends
// welcome, ready, and an initial batch.
func (f *Fanout) Attach(sink Sink, tenant string) {
	f.mu.Lock()
	f.subs[sink] = &subscriber{sink: sink, tenant: tenant, kind: subEmpty}
	f.mu.Unlock()

	f.send(sink, map[string]string{"type": "welcome"})
	f.send(sink, map[string]string{"type": "ready"})
	f.sendInitialBatch(sink, tenant)
}

// Detach removes sink from the registry.
func (f *Fanout) Detach(sink Sink) {
	f.mu.Lock()
	delete(f.subs, sink)
	f.mu.Unlock()
}

// Publish delivers ev to every matching subscriber of tenant, falling back
// to a tenant-agnostic delivery pass if nothing matched and ev names a
// sensor. This fallback preserves behaviour observed for legacy/unowned
// rows and MUST NOT be removed.
func (f *Fanout) Publish(tenant string, ev Event) {
	f.mu.Lock()
	snapshot := make([]*subscriber, 0, len(f.subs))
	for _, sub := range f.subs {
		snapshot = append(snapshot, sub)
	}
	f.mu.Unlock()

	msg := eventMessage(ev)
	delivered := 0
	for _, sub := range snapshot {
		if sub.tenant != tenant || !sub.matches(ev.SensorID) {
			continue
		}
		if err := sub.sink.WriteJSON(msg); err != nil {
			f.Detach(sub.sink)
			continue
		}
		delivered++
	}

	if delivered > 0 || ev.SensorID == "" {
		return
	}

	for _, sub := range snapshot {
		if sub.kind != subAll && sub.kind != subEmpty && !sub.matches(ev.SensorID) {
			continue
		}
		if err := sub.sink.WriteJSON(msg); err != nil {
			f.Detach(sub.sink)
		}
	}
}

func eventMessage(ev Event) map[string]interface{} {
	switch ev.Kind {
	case model.KindEthernet:
		return map[string]interface{}{
			"sensor_id":  ev.SensorID,
			"sensor_type": "ethernet",
			"status":     ev.Status,
			"speed":      ev.Speed,
			"rx_bitrate": ev.RxBitrate,
			"tx_bitrate": ev.TxBitrate,
			"timestamp":  ev.Timestamp.UTC().Format(time.RFC3339),
		}
	default:
		return map[string]interface{}{
			"sensor_id":   ev.SensorID,
			"sensor_type": "ping",
			"status":      ev.Status,
			"latency_ms":  ev.LatencyMs,
			"timestamp":   ev.Timestamp.UTC().Format(time.RFC3339),
		}
	}
}

func (f *Fanout) send(sink Sink, v interface{}) {
	if err := sink.WriteJSON(v); err != nil {
		f.Detach(sink)
	}
}

// sendInitialBatch enumerates tenant's sensors (filtered to the sink's
// chosen subscription, if any), reads each sensor's most recent sample,
// and emits one sensor_batch message.
func (f *Fanout) sendInitialBatch(sink Sink, tenant string) {
	f.mu.Lock()
	sub, ok := f.subs[sink]
	f.mu.Unlock()
	if !ok {
		return
	}

	sensors, err := f.sensors.ListSensorsByOwner(tenant)
	if err != nil {
		log.Printf("fanout: initial batch sensor list for %s: %v", tenant, err)
		return
	}

	items := make([]map[string]interface{}, 0, len(sensors))
	for _, sn := range sensors {
		if sub.kind == subSet && !sub.sensors[sn.ID] {
			continue
		}
		items = append(items, f.batchItem(sn))
	}

	f.send(sink, map[string]interface{}{
		"type":  "sensor_batch",
		"items": items,
		"ts":    f.now().UTC().Format(time.RFC3339),
	})
}

func (f *Fanout) batchItem(sn model.Sensor) map[string]interface{} {
	now := f.now()

	if sn.Kind == model.KindEthernet {
		sample, err := f.samples.LatestEthernetSample(sn.ID)
		if err != nil {
			log.Printf("fanout: latest ethernet sample for %s: %v", sn.ID, err)
		}
		if sample == nil {
			return map[string]interface{}{
				"sensor_id": sn.ID, "sensor_type": "ethernet",
				"status": model.EthStatusPending, "timestamp": now.UTC().Format(time.RFC3339),
			}
		}
		return map[string]interface{}{
			"sensor_id": sn.ID, "sensor_type": "ethernet",
			"status": sample.Status, "speed": sample.Speed,
			"rx_bitrate": sample.RxBitrate, "tx_bitrate": sample.TxBitrate,
			"timestamp": sample.Timestamp.UTC().Format(time.RFC3339),
		}
	}

	sample, err := f.samples.LatestPingSample(sn.ID)
	if err != nil {
		log.Printf("fanout: latest ping sample for %s: %v", sn.ID, err)
	}
	if sample == nil {
		return map[string]interface{}{
			"sensor_id": sn.ID, "sensor_type": "ping",
			"status": model.PingStatusPending, "timestamp": now.UTC().Format(time.RFC3339),
		}
	}
	return map[string]interface{}{
		"sensor_id": sn.ID, "sensor_type": "ping",
		"status": sample.Status, "latency_ms": sample.LatencyMs,
		"timestamp": sample.Timestamp.UTC().Format(time.RFC3339),
	}
}

// inbound is one subscriber -> server control message.
type inbound struct {
	Type      string   `json:"type"`
	SensorIDs []string `json:"sensor_ids"`
	Resource  string   `json:"resource"`
}

// Serve reads control messages from conn on behalf of tenant until ctx is
// cancelled or the connection errors, applying §4.8's subscriber protocol.
// Attach/Detach bracket the connection's lifetime.
func (f *Fanout) Serve(ctx context.Context, conn *websocket.Conn, tenant string) {
	f.Attach(conn, tenant)
	defer f.Detach(conn)

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		conn.Close()
		close(done)
	}()

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		f.handleInbound(conn, tenant, msg)

		select {
		case <-done:
			return
		default:
		}
	}
}

func (f *Fanout) handleInbound(sink Sink, tenant string, msg inbound) {
	switch msg.Type {
	case "ping":
		f.send(sink, map[string]string{"type": "pong"})

	case "subscribe_sensors":
		set := make(map[string]bool, len(msg.SensorIDs))
		for _, id := range msg.SensorIDs {
			set[id] = true
		}
		f.mu.Lock()
		if sub, ok := f.subs[sink]; ok {
			sub.kind = subSet
			sub.sensors = set
		}
		f.mu.Unlock()
		f.send(sink, map[string]string{"type": "ready"})
		f.sendInitialBatch(sink, tenant)

	case "subscribe_all":
		f.mu.Lock()
		if sub, ok := f.subs[sink]; ok {
			sub.kind = subAll
			sub.sensors = nil
		}
		f.mu.Unlock()
		f.send(sink, map[string]string{"type": "ready"})
		f.sendInitialBatch(sink, tenant)

	case "sync_request":
		if msg.Resource == "sensors_latest" {
			f.send(sink, map[string]string{"type": "ready"})
			f.sendInitialBatch(sink, tenant)
		}

	default:
		log.Printf("fanout: unknown message type %q from tenant %s", msg.Type, tenant)
	}
}
