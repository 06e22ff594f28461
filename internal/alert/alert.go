// Package alert implements the per-sensor threshold machine: cooldown-gated
// rule evaluation that turns a sample into zero or one notification plus an
// AlertRecord. State is grounded on the Butterfly-Student-mikrotik-collector
// OnDemandTrafficService pattern of a single mutex-guarded map keyed by
// entity ID, rather than one goroutine/lock per sensor — evaluation is
// already serialized per sensor by the single-worker invariant, so only
// cross-sensor access needs the mutex.
package alert

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/m360/sentinel/internal/model"
	"github.com/m360/sentinel/internal/notify"
)

// Sample is the evaluator's kind-agnostic view of one probe result.
type Sample struct {
	Status    string
	LatencyMs *float64 // ping only
	Speed     string   // ethernet only; "" means unknown/unset this cycle
	RxBitrate string   // ethernet only, digits
	TxBitrate string   // ethernet only, digits
}

// AlertRecorder persists a fired alert.
type AlertRecorder interface {
	InsertAlertRecord(*model.AlertRecord) error
}

// Dispatcher delivers an alert payload to a channel.
type Dispatcher interface {
	Notify(ctx context.Context, sensorOwnerID, channelID string, payload notify.Payload)
}

type cooldownKey struct {
	sensorID  string
	alertType string
}

// Evaluator applies alert rules and throttles repeat fires per
// (sensor, alert type) regardless of config edits in between.
type Evaluator struct {
	records    AlertRecorder
	dispatcher Dispatcher

	mu        sync.Mutex
	lastFire  map[cooldownKey]time.Time
	lastSpeed map[string]string // sensorID -> last observed ethernet speed

	now func() time.Time

	// defaultCooldownMinutes floors any AlertRule whose own CooldownMinutes
	// is left at its zero value (the configured Scheduler.DefaultAlertCooldownMinutes).
	// A zero rule cooldown must never mean "no cooldown".
	defaultCooldownMinutes int
}

// New creates an Evaluator backed by records and dispatcher, applying
// defaultCooldownMinutes to any rule that doesn't set its own.
func New(records AlertRecorder, dispatcher Dispatcher, defaultCooldownMinutes int) *Evaluator {
	return &Evaluator{
		records:                records,
		dispatcher:             dispatcher,
		lastFire:               make(map[cooldownKey]time.Time),
		lastSpeed:              make(map[string]string),
		now:                    time.Now,
		defaultCooldownMinutes: defaultCooldownMinutes,
	}
}

// Evaluate applies every alert rule configured on sensor to sample, firing
// at most one notification+record per rule per call.
func (e *Evaluator) Evaluate(ctx context.Context, sensor model.Sensor, device model.DeviceWithJoins, sample Sample) {
	now := e.now()

	for _, rule := range sensor.Config.Alerts {
		if e.onCooldown(sensor.ID, rule, now) {
			continue
		}

		triggered, reason := e.decide(sensor, rule, sample)
		if !triggered {
			continue
		}

		e.fire(ctx, sensor, device, rule, reason, now)
	}

	if sample.Speed != "" {
		e.mu.Lock()
		e.lastSpeed[sensor.ID] = sample.Speed
		e.mu.Unlock()
	}
}

func (e *Evaluator) onCooldown(sensorID string, rule model.AlertRule, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	last, ok := e.lastFire[cooldownKey{sensorID, rule.Type}]
	if !ok {
		return false
	}
	cooldown := rule.CooldownMinutes
	if cooldown <= 0 {
		cooldown = e.defaultCooldownMinutes
	}
	return now.Sub(last) < time.Duration(cooldown)*time.Minute
}

func (e *Evaluator) decide(sensor model.Sensor, rule model.AlertRule, sample Sample) (bool, string) {
	switch rule.Type {
	case model.AlertTimeout:
		if sample.Status == model.PingStatusTimeout {
			return true, "ping timed out"
		}
		return false, ""

	case model.AlertHighLatency:
		if sample.Status == model.PingStatusOK && sample.LatencyMs != nil && *sample.LatencyMs > rule.ThresholdMs {
			return true, fmt.Sprintf("latency %.0fms exceeded threshold %.0fms", *sample.LatencyMs, rule.ThresholdMs)
		}
		return false, ""

	case model.AlertSpeedChange:
		e.mu.Lock()
		prev, known := e.lastSpeed[sensor.ID]
		e.mu.Unlock()
		if known && sample.Speed != "" && prev != sample.Speed {
			return true, fmt.Sprintf("link speed changed from %s to %s", prev, sample.Speed)
		}
		return false, ""

	case model.AlertTrafficThreshold:
		return e.decideTraffic(rule, sample)

	default:
		log.Printf("alert: sensor %s has unknown alert type %q", sensor.ID, rule.Type)
		return false, ""
	}
}

func (e *Evaluator) decideTraffic(rule model.AlertRule, sample Sample) (bool, string) {
	rx, rxErr := strconv.ParseInt(sample.RxBitrate, 10, 64)
	tx, txErr := strconv.ParseInt(sample.TxBitrate, 10, 64)
	thresholdBps := int64(rule.ThresholdMbps * 1_000_000)

	direction := rule.Direction
	if direction == "" {
		direction = "any"
	}

	rxOver := rxErr == nil && rx > thresholdBps
	txOver := txErr == nil && tx > thresholdBps

	switch direction {
	case "rx":
		if rxOver {
			return true, fmt.Sprintf("rx bitrate %d exceeded %.2f Mbps", rx, rule.ThresholdMbps)
		}
	case "tx":
		if txOver {
			return true, fmt.Sprintf("tx bitrate %d exceeded %.2f Mbps", tx, rule.ThresholdMbps)
		}
	default: // "any"
		if rxOver {
			return true, fmt.Sprintf("rx bitrate %d exceeded %.2f Mbps", rx, rule.ThresholdMbps)
		}
		if txOver {
			return true, fmt.Sprintf("tx bitrate %d exceeded %.2f Mbps", tx, rule.ThresholdMbps)
		}
	}
	return false, ""
}

func (e *Evaluator) fire(ctx context.Context, sensor model.Sensor, device model.DeviceWithJoins, rule model.AlertRule, reason string, now time.Time) {
	payload := notify.Payload{
		SensorName: sensor.Name,
		ClientName: device.ClientName,
		IP:         device.IP,
		Reason:     reason,
	}
	e.dispatcher.Notify(ctx, sensor.OwnerID, rule.ChannelID, payload)

	record := &model.AlertRecord{
		SensorID:  sensor.ID,
		ChannelID: rule.ChannelID,
		Timestamp: now,
		Details:   reason,
	}
	if err := e.records.InsertAlertRecord(record); err != nil {
		log.Printf("alert: recording alert for sensor %s: %v", sensor.ID, err)
	}

	e.mu.Lock()
	e.lastFire[cooldownKey{sensor.ID, rule.Type}] = now
	e.mu.Unlock()
}
