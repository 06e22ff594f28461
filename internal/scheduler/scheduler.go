// Package scheduler owns the sensor_id -> worker registry: one
// cancellable goroutine per sensor, each running its own probe/persist/
// publish/alert cycle. Grounded on the teacher's internal/downloader.Engine
// (per-item context.CancelFunc stored in a mutex-guarded map, exactly the
// activeDownloads shape reused here as workers keyed by sensor
// instead of download).
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/m360/sentinel/internal/alert"
	"github.com/m360/sentinel/internal/fanout"
	"github.com/m360/sentinel/internal/model"
	"github.com/m360/sentinel/internal/routeros"
	"github.com/m360/sentinel/internal/vpnmgr"
)

// Store is the subset of the Persistence Gateway the scheduler needs.
type Store interface {
	GetSensorWithDevice(sensorID string) (*model.Sensor, *model.DeviceWithJoins, error)
	ListAllSensors() ([]model.Sensor, error)
	InsertPingSample(*model.PingSample) error
	InsertEthernetSample(*model.EthernetSample) error
	GetCredential(id string) (*model.Credential, error)
}

// Publisher is the narrow fan-out dependency the scheduler needs.
type Publisher interface {
	Publish(tenant string, ev fanout.Event)
}

// AlertEvaluator is the narrow alert-evaluator dependency the scheduler
// needs.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, sensor model.Sensor, device model.DeviceWithJoins, sample alert.Sample)
}

// Scheduler is the process-wide sensor worker registry.
type Scheduler struct {
	store     Store
	pool      *routeros.Pool
	vpn       *vpnmgr.Manager
	publisher Publisher
	alertEval AlertEvaluator

	mu      sync.Mutex
	workers map[string]context.CancelFunc
	group   errgroup.Group
}

// New creates a Scheduler wired to its collaborators.
func New(store Store, pool *routeros.Pool, vpn *vpnmgr.Manager, publisher Publisher, alertEval AlertEvaluator) *Scheduler {
	return &Scheduler{
		store:     store,
		pool:      pool,
		vpn:       vpn,
		publisher: publisher,
		alertEval: alertEval,
		workers:   make(map[string]context.CancelFunc),
	}
}

// StartAll loads every sensor across every tenant and launches a worker for
// each. Called once at boot.
func (s *Scheduler) StartAll(ctx context.Context) error {
	sensors, err := s.store.ListAllSensors()
	if err != nil {
		return err
	}
	for _, sn := range sensors {
		s.Launch(ctx, sn.ID)
	}
	return nil
}

// Launch starts a fresh worker for sensorID, cancelling any existing one
// first.
func (s *Scheduler) Launch(parent context.Context, sensorID string) {
	s.Stop(sensorID)

	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.workers[sensorID] = cancel
	s.mu.Unlock()

	s.group.Go(func() error {
		s.runWorker(ctx, sensorID)
		return nil
	})
}

// Stop cancels sensorID's worker, if any, and removes it from the registry.
func (s *Scheduler) Stop(sensorID string) {
	s.mu.Lock()
	cancel, ok := s.workers[sensorID]
	delete(s.workers, sensorID)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// Restart stops then relaunches sensorID's worker.
func (s *Scheduler) Restart(parent context.Context, sensorID string) {
	s.Stop(sensorID)
	s.Launch(parent, sensorID)
}

// StopAll cancels every running worker and waits for them to exit.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.workers))
	for _, cancel := range s.workers {
		cancels = append(cancels, cancel)
	}
	s.workers = make(map[string]context.CancelFunc)
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	// Worker goroutines always return nil; cancellation is driven by each
	// sensor's own context.CancelFunc, not by errgroup's error propagation.
	_ = s.group.Wait()
}

func (s *Scheduler) runWorker(ctx context.Context, sensorID string) {
	sensor, device, err := s.store.GetSensorWithDevice(sensorID)
	if err != nil {
		log.Printf("scheduler: sensor %s disappeared before launch: %v", sensorID, err)
		return
	}

	profileID := ""
	if device.VpnProfileID != nil {
		profileID = *device.VpnProfileID
	}
	ifName := s.ensureOriginConnectivity(ctx, profileID)
	defer s.releaseOriginConnectivity(profileID)

	interval := sensor.Config.IntervalSec
	if interval <= 0 {
		interval = model.DefaultInterval(sensor.Kind)
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	if s.runCycle(ctx, sensorID, ifName) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if s.runCycle(ctx, sensorID, ifName) {
				return
			}
		}
	}
}

// ensureOriginConnectivity brings profileID's tunnel up (if set) and
// returns the interface name RouterOS dials for this worker must bind to.
func (s *Scheduler) ensureOriginConnectivity(ctx context.Context, profileID string) string {
	if profileID == "" {
		return ""
	}
	ifName, err := s.vpn.EnsureUp(ctx, profileID)
	if err != nil {
		log.Printf("scheduler: tunnel %s failed to come up: %v", profileID, err)
		return ""
	}
	return ifName
}

func (s *Scheduler) releaseOriginConnectivity(profileID string) {
	if profileID == "" {
		return
	}
	s.vpn.Release(profileID)
}

// runCycle reloads the sensor+device (config may have changed since launch),
// probes, persists, publishes, and evaluates alerts. If the sensor can no
// longer be loaded (its row has been deleted), it returns true and the
// worker terminates cleanly without rescheduling.
//
// The returned fatal bool also signals a config error (an unknown
// sensor.Kind): logged once, worker exits rather than retrying every cycle
// against a kind it can never service. Ping origin errors from
// resolveOrigin (unknown ping_type, missing maestro credential, missing
// target_ip) are not fatal: runPingCycle logs them and the worker tries
// again on every tick.
func (s *Scheduler) runCycle(ctx context.Context, sensorID, ifName string) (fatal bool) {
	sensor, device, err := s.store.GetSensorWithDevice(sensorID)
	if err != nil {
		log.Printf("scheduler: sensor %s vanished mid-cycle, worker exiting: %v", sensorID, err)
		return true
	}

	switch sensor.Kind {
	case model.KindPing:
		s.runPingCycle(ctx, *sensor, *device, ifName)
		return false
	case model.KindEthernet:
		s.runEthernetCycle(ctx, *sensor, *device, ifName)
		return false
	default:
		log.Printf("scheduler: sensor %s has unknown kind %q, worker exiting", sensorID, sensor.Kind)
		return true
	}
}
