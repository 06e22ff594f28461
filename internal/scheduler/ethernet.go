package scheduler

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/m360/sentinel/internal/alert"
	"github.com/m360/sentinel/internal/fanout"
	"github.com/m360/sentinel/internal/model"
	"github.com/m360/sentinel/internal/routeros"
)

var linkUpValues = map[string]bool{
	"link-ok": true, "link_ok": true, "ok": true, "up": true,
	"running": true, "true": true, "yes": true,
}

func isLinkUp(status string) bool {
	return linkUpValues[strings.ToLower(strings.TrimSpace(status))]
}

func isTruthy(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "yes" || v == "1"
}

func (s *Scheduler) runEthernetCycle(ctx context.Context, sensor model.Sensor, device model.DeviceWithJoins, vpnIface string) {
	if device.Credential == nil {
		log.Printf("scheduler: sensor %s device has no credential", sensor.ID)
		return
	}

	sample := s.ethernetOnce(ctx, device.IP, *device.Credential, sensor.Config.InterfaceName, vpnIface)
	sample.SensorID = sensor.ID
	sample.Timestamp = time.Now()

	if err := s.store.InsertEthernetSample(&sample); err != nil {
		log.Printf("scheduler: persisting ethernet sample for sensor %s: %v", sensor.ID, err)
	}

	s.publisher.Publish(sensor.OwnerID, fanout.Event{
		SensorID:  sensor.ID,
		Kind:      model.KindEthernet,
		Status:    sample.Status,
		Speed:     sample.Speed,
		RxBitrate: sample.RxBitrate,
		TxBitrate: sample.TxBitrate,
		Timestamp: sample.Timestamp,
	})

	s.alertEval.Evaluate(ctx, sensor, device, alert.Sample{
		Status:    sample.Status,
		Speed:     sample.Speed,
		RxBitrate: sample.RxBitrate,
		TxBitrate: sample.TxBitrate,
	})
}

func (s *Scheduler) ethernetOnce(ctx context.Context, deviceIP string, cred model.Credential, ifName, vpnIface string) model.EthernetSample {
	hardFail := func() model.EthernetSample {
		s.pool.Invalidate(deviceIP)
		return model.EthernetSample{Status: model.EthStatusLinkDown, Speed: "N/A", RxBitrate: "0", TxBitrate: "0"}
	}

	session, err := s.pool.Get(ctx, deviceIP, cred, vpnIface)
	if err != nil {
		log.Printf("scheduler: ethernet origin %s connect failed: %v", deviceIP, err)
		return hardFail()
	}

	status, speed, err := s.ethernetMonitor(session, ifName)
	if err != nil {
		log.Printf("scheduler: ethernet monitor %s/%s failed: %v", deviceIP, ifName, err)
		return hardFail()
	}

	if speed == "" {
		fallbackStatus, err := s.ethernetLegacyGet(session, ifName)
		if err != nil {
			log.Printf("scheduler: ethernet legacy get %s/%s failed: %v", deviceIP, ifName, err)
			return hardFail()
		}
		status = fallbackStatus
	}

	rx, tx := s.ethernetTraffic(session, ifName)

	return model.EthernetSample{Status: status, Speed: speed, RxBitrate: rx, TxBitrate: tx}
}

// ethernetMonitor is the RouterOS 7 path: /interface/ethernet monitor.
func (s *Scheduler) ethernetMonitor(session *routeros.Session, ifName string) (status, speed string, err error) {
	reply, err := session.Run("/interface/ethernet/monitor", "=numbers="+ifName, "=once=")
	if err != nil {
		return "", "", err
	}
	row := routeros.FirstRow(reply)
	if row == nil {
		return "", "", nil
	}

	if isLinkUp(row["status"]) {
		status = model.EthStatusLinkUp
	} else {
		status = model.EthStatusLinkDown
	}

	speed = row["rate"]
	if speed == "" {
		speed = row["speed"]
	}
	return status, speed, nil
}

// ethernetLegacyGet is the RouterOS 6 fallback: /interface/ethernet print
// filtered by name, used only to determine link status when the monitor
// call left speed unknown. It does not change an already-known speed.
func (s *Scheduler) ethernetLegacyGet(session *routeros.Session, ifName string) (string, error) {
	reply, err := session.Run("/interface/ethernet/print", "?name="+ifName)
	if err != nil {
		return "", err
	}
	row := routeros.FirstRow(reply)
	if row == nil {
		return model.EthStatusLinkDown, nil
	}
	if isTruthy(row["running"]) {
		return model.EthStatusLinkUp, nil
	}
	return model.EthStatusLinkDown, nil
}

// ethernetTraffic reads rx/tx bitrates. A traffic-only failure never
// demotes link status; it just reports "0" for both counters.
func (s *Scheduler) ethernetTraffic(session *routeros.Session, ifName string) (rx, tx string) {
	reply, err := session.Run("/interface/monitor-traffic", "=interface="+ifName, "=once=")
	if err != nil {
		return "0", "0"
	}
	row := routeros.FirstRow(reply)
	if row == nil {
		return "0", "0"
	}
	rx = row["rx-bits-per-second"]
	if rx == "" {
		rx = "0"
	}
	tx = row["tx-bits-per-second"]
	if tx == "" {
		tx = "0"
	}
	return rx, tx
}
