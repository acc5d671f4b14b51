package types

import "time"

// AlertType classifies the condition an alert tracks.
type AlertType string

const (
	AlertStatusChange    AlertType = "status_change"
	AlertHighCPU         AlertType = "high_cpu"
	AlertHighMemory      AlertType = "high_memory"
	AlertHighDisk        AlertType = "high_disk"
	AlertInterfaceDown   AlertType = "interface_down"
	AlertNetwatchDown    AlertType = "netwatch_down"
	AlertThreshold       AlertType = "threshold"
	AlertReboot          AlertType = "reboot"
	AlertPppoeConnect    AlertType = "pppoe_connect"
	AlertPppoeDisconnect AlertType = "pppoe_disconnect"
)

// Severity of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is an open or historical problem on one entity. Alerts are never
// deleted, only marked resolved; at most one unresolved alert per
// (entity, type) pair exists at any time.
type Alert struct {
	ID         string    `json:"id"`
	EntityID   string    `json:"entity_id"`
	EntityName string    `json:"entity_name"`
	Type       AlertType `json:"type"`
	Severity   Severity  `json:"severity"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`

	Acknowledged bool       `json:"acknowledged"`
	AckBy        string     `json:"ack_by,omitempty"`
	AckAt        *time.Time `json:"ack_at,omitempty"`

	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	EscalationLevel int        `json:"escalation_level"`
	LastEscalatedAt *time.Time `json:"last_escalated_at,omitempty"`
}

// EventKind tags alert lifecycle events flowing out of the engine.
type EventKind string

const (
	EventAlertCreated   EventKind = "alert_created"
	EventAlertEscalated EventKind = "alert_escalated"
	EventAlertResolved  EventKind = "alert_resolved"
	EventAlertAck       EventKind = "alert_acknowledged"
	EventEntityState    EventKind = "entity_state"
	EventPollResult     EventKind = "poll_result"
)

// Event is the engine's outbound lifecycle message, consumed by the
// notification dispatcher and the live event broadcaster.
type Event struct {
	Kind      EventKind     `json:"kind"`
	Alert     *Alert        `json:"alert,omitempty"`
	EntityID  string        `json:"entity_id"`
	State     EntityState   `json:"state,omitempty"`
	Poll      *PollResult   `json:"poll,omitempty"`
	Level     int           `json:"level,omitempty"`
	Downtime  time.Duration `json:"downtime,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
