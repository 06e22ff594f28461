// Package model defines the entities shared across the sensor execution
// engine: tenants, devices, sensors, samples, alerts and their wiring.
package model

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a fresh random identifier for the entities in this
// package whose ID is a string (sensors, devices, credentials, ...). Callers
// that already have an externally-assigned ID should leave it as-is; this
// is only for rows created without one.
func NewID() string {
	return uuid.New().String()
}

// Sensor kinds.
const (
	KindPing     = "ping"
	KindEthernet = "ethernet"
)

// Ping sample statuses.
const (
	PingStatusOK          = "ok"
	PingStatusHighLatency = "high_latency"
	PingStatusTimeout     = "timeout"
	PingStatusError       = "error"
	PingStatusPending     = "pending"
)

// Ethernet sample statuses.
const (
	EthStatusLinkUp   = "link_up"
	EthStatusLinkDown = "link_down"
	EthStatusError    = "error"
	EthStatusPending  = "pending"
)

// Ping origin modes.
const (
	PingMaestroToDevice = "maestro_to_device"
	PingSelfToTarget    = "self_to_target"
)

// Notification channel kinds.
const (
	ChannelWebhook  = "webhook"
	ChannelTelegram = "telegram"
)

// Alert types.
const (
	AlertTimeout          = "timeout"
	AlertHighLatency      = "high_latency"
	AlertSpeedChange      = "speed_change"
	AlertTrafficThreshold = "traffic_threshold"
)

// Credential is a RouterOS login owned by a tenant.
type Credential struct {
	ID       string
	Name     string
	Username string
	Password string
	OwnerID  string
}

// VpnProfile is a WireGuard profile owned by a tenant.
type VpnProfile struct {
	ID         string
	Name       string
	ConfigText string
	CheckIP    string
	IsDefault  bool
	OwnerID    string
}

// Device is a Mikrotik device reachable directly or through a VpnProfile.
type Device struct {
	ID           string
	ClientName   string
	IP           string
	MAC          string
	Node         string
	Status       string
	CredentialID *string
	IsMaestro    bool
	MaestroID    *string
	VpnProfileID *string
	OwnerID      string
}

// Monitor is the 1:1 wrapper that groups a Device's sensors.
type Monitor struct {
	ID       string
	DeviceID string
	OwnerID  string
}

// AlertRule is one entry of Sensor.Config.Alerts.
type AlertRule struct {
	Type            string  `json:"type"`
	ChannelID       string  `json:"channel_id"`
	CooldownMinutes int     `json:"cooldown_minutes"`
	ThresholdMs     float64 `json:"threshold_ms,omitempty"`
	ThresholdMbps   float64 `json:"threshold_mbps,omitempty"`
	Direction       string  `json:"direction,omitempty"` // any|rx|tx
}

// SensorConfig is the typed view of Sensor.Config JSON.
type SensorConfig struct {
	IntervalSec        int         `json:"interval_sec"`
	PingType           string      `json:"ping_type,omitempty"`
	TargetIP           string      `json:"target_ip,omitempty"`
	LatencyThresholdMs float64     `json:"latency_threshold_ms,omitempty"`
	InterfaceName      string      `json:"interface_name,omitempty"`
	Alerts             []AlertRule `json:"alerts,omitempty"`
}

// DefaultInterval returns the spec-mandated default interval for kind.
func DefaultInterval(kind string) int {
	if kind == KindEthernet {
		return 30
	}
	return 60
}

// Sensor is one monitored metric on a Device (via its Monitor).
type Sensor struct {
	ID        string
	MonitorID string
	Kind      string
	Name      string
	Config    SensorConfig
	OwnerID   string
}

// PingSample is one ping probe measurement.
type PingSample struct {
	ID        int64
	SensorID  string
	Timestamp time.Time
	Status    string
	LatencyMs *float64
}

// EthernetSample is one ethernet probe measurement.
type EthernetSample struct {
	ID         int64
	SensorID   string
	Timestamp  time.Time
	Status     string
	Speed      string
	RxBitrate  string
	TxBitrate  string
}

// NotificationChannel is a webhook/telegram delivery target.
type NotificationChannel struct {
	ID      string
	Name    string
	Kind    string
	Config  ChannelConfig
	OwnerID string
}

// ChannelConfig carries kind-specific delivery settings.
type ChannelConfig struct {
	URL   string `json:"url,omitempty"`   // webhook
	Token string `json:"token,omitempty"` // telegram bot token
	ChatID string `json:"chat_id,omitempty"`
}

// AlertRecord is a persisted log of a fired alert.
type AlertRecord struct {
	ID        int64
	SensorID  string
	ChannelID string
	Timestamp time.Time
	Details   string
}

// DeviceWithJoins is the Device joined with the fields the Scheduler needs:
// its credential, its maestro (if any), and its vpn profile.
type DeviceWithJoins struct {
	Device
	Credential *Credential
	Maestro    *Device
	VpnProfile *VpnProfile
}

// MonitorView is the aggregated "monitors-with-sensors" row §6 requires.
type MonitorView struct {
	MonitorID string
	DeviceID  string
	Device    DeviceWithJoins
	Sensors   []SensorSummary
}

// SensorSummary is the compact sensor shape embedded in a MonitorView.
type SensorSummary struct {
	ID     string
	Name   string
	Kind   string
	Config SensorConfig
}
