package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeScanResult is emitted after every scan request
	EventTypeScanResult EventType = "scan_result"
	// EventTypeRulesReloaded is emitted when the rules file was recompiled
	EventTypeRulesReloaded EventType = "rules_reloaded"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	EventTypePong       EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// ScanResultEvent describes a scan verdict. Record values are never
// included, only the verdict and the rationale.
type ScanResultEvent struct {
	RequestID    string   `json:"request_id"`
	RecordID     string   `json:"record_id,omitempty"`
	IsPII        bool     `json:"is_pii"`
	Confidence   float64  `json:"confidence"`
	Reasons      []string `json:"reasons"`
	ProcessingMS float64  `json:"processing_ms"`
}

// RulesReloadedEvent reports a successful rules reload
type RulesReloadedEvent struct {
	Path          string `json:"path"`
	Standalone    int    `json:"standalone_rules"`
	Combinatorial int    `json:"combinatorial_sets"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalScans       int64  `json:"total_scans"`
	FlaggedScans     int64  `json:"flagged_scans"`
	ActiveRules      int    `json:"active_rules"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SubscriptionRequest narrows the events a client receives
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter applies to scan_result events only
type EventFilter struct {
	OnlyPII       bool    `json:"only_pii,omitempty"`
	MinConfidence float64 `json:"min_confidence,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID           string
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	IP           string
	UserAgent    string

	conn *websocket.Conn
}
