package scheduler

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"time"

	"github.com/m360/sentinel/internal/alert"
	"github.com/m360/sentinel/internal/fanout"
	"github.com/m360/sentinel/internal/model"
	"github.com/m360/sentinel/internal/routeros"
)

var avgRTTPattern = regexp.MustCompile(`^(?:(\d+)s)?(?:(\d+)ms)?$`)

// parseAvgRTT parses RouterOS's avg-rtt field, of the form "<s>s<ms>ms" with
// either group optional (e.g. "2s350ms", "350ms", "2s"), into milliseconds.
func parseAvgRTT(s string) (float64, error) {
	m := avgRTTPattern.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0, fmt.Errorf("scheduler: unparseable avg-rtt %q", s)
	}
	var totalMs float64
	if m[1] != "" {
		secs, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, err
		}
		totalMs += float64(secs) * 1000
	}
	if m[2] != "" {
		ms, err := strconv.Atoi(m[2])
		if err != nil {
			return 0, err
		}
		totalMs += float64(ms)
	}
	return totalMs, nil
}

// resolveOrigin returns the device that issues the ping and the credential
// it authenticates with, per ping_type.
func (s *Scheduler) resolveOrigin(sensor model.Sensor, device model.DeviceWithJoins) (originIP string, cred model.Credential, target string, err error) {
	switch sensor.Config.PingType {
	case model.PingMaestroToDevice:
		if device.Maestro == nil || device.Maestro.CredentialID == nil {
			return "", model.Credential{}, "", fmt.Errorf("scheduler: sensor %s has no maestro with credentials", sensor.ID)
		}
		c, err := s.store.GetCredential(*device.Maestro.CredentialID)
		if err != nil {
			return "", model.Credential{}, "", fmt.Errorf("scheduler: loading maestro credential for sensor %s: %w", sensor.ID, err)
		}
		return device.Maestro.IP, *c, device.IP, nil

	case model.PingSelfToTarget:
		if sensor.Config.TargetIP == "" {
			return "", model.Credential{}, "", fmt.Errorf("scheduler: sensor %s is self_to_target with no target_ip", sensor.ID)
		}
		if device.Credential == nil {
			return "", model.Credential{}, "", fmt.Errorf("scheduler: sensor %s device has no credential", sensor.ID)
		}
		return device.IP, *device.Credential, sensor.Config.TargetIP, nil

	default:
		return "", model.Credential{}, "", fmt.Errorf("scheduler: sensor %s has unknown ping_type %q", sensor.ID, sensor.Config.PingType)
	}
}

func (s *Scheduler) runPingCycle(ctx context.Context, sensor model.Sensor, device model.DeviceWithJoins, ifName string) {
	originIP, cred, target, err := s.resolveOrigin(sensor, device)
	if err != nil {
		log.Println(err)
		return
	}

	sample := s.pingOnce(ctx, originIP, cred, target, ifName, sensor.Config.LatencyThresholdMs)
	sample.SensorID = sensor.ID
	sample.Timestamp = time.Now()

	if err := s.store.InsertPingSample(&sample); err != nil {
		log.Printf("scheduler: persisting ping sample for sensor %s: %v", sensor.ID, err)
	}

	s.publisher.Publish(sensor.OwnerID, fanout.Event{
		SensorID:  sensor.ID,
		Kind:      model.KindPing,
		Status:    sample.Status,
		LatencyMs: sample.LatencyMs,
		Timestamp: sample.Timestamp,
	})

	s.alertEval.Evaluate(ctx, sensor, device, alert.Sample{
		Status:    sample.Status,
		LatencyMs: sample.LatencyMs,
	})
}

func (s *Scheduler) pingOnce(ctx context.Context, originIP string, cred model.Credential, target, ifName string, latencyThresholdMs float64) model.PingSample {
	timeoutSample := func() model.PingSample {
		s.pool.Invalidate(originIP)
		return model.PingSample{Status: model.PingStatusTimeout, LatencyMs: nil}
	}

	session, err := s.pool.Get(ctx, originIP, cred, ifName)
	if err != nil {
		log.Printf("scheduler: ping origin %s connect failed: %v", originIP, err)
		return timeoutSample()
	}

	reply, err := session.Run("/ping", "=address="+target, "=count=1")
	if err != nil {
		log.Printf("scheduler: ping origin %s -> %s failed: %v", originIP, target, err)
		return timeoutSample()
	}

	row := routeros.FirstRow(reply)
	if row == nil || row["received"] != "1" {
		s.pool.Invalidate(originIP)
		return model.PingSample{Status: model.PingStatusTimeout, LatencyMs: nil}
	}

	latencyMs, err := parseAvgRTT(row["avg-rtt"])
	if err != nil {
		s.pool.Invalidate(originIP)
		return model.PingSample{Status: model.PingStatusTimeout, LatencyMs: nil}
	}

	status := model.PingStatusOK
	if latencyThresholdMs > 0 && latencyMs > latencyThresholdMs {
		status = model.PingStatusHighLatency
	}

	return model.PingSample{Status: status, LatencyMs: &latencyMs}
}
