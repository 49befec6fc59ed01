// Package models defines the quarantine store entity types.
package models

import "math"

// RiskTier classifies the severity of a detection, ordered by severity.
type RiskTier string

// Risk tiers, least to most severe.
const (
	TierLow      RiskTier = "low"
	TierMedium   RiskTier = "medium"
	TierHigh     RiskTier = "high"
	TierCritical RiskTier = "critical"
)

// Tiers lists all risk tiers in ascending severity order.
var Tiers = []RiskTier{TierLow, TierMedium, TierHigh, TierCritical}

// Valid reports whether t is a known risk tier.
func (t RiskTier) Valid() bool {
	switch t {
	case TierLow, TierMedium, TierHigh, TierCritical:
		return true
	}
	return false
}

// Status is the lifecycle state of a quarantine record.
type Status string

// Record statuses. A record starts active and moves forward exactly once
// into one of the three terminal states.
const (
	StatusActive   Status = "active"
	StatusRestored Status = "restored"
	StatusExpired  Status = "expired"
	StatusEvicted  Status = "evicted"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusRestored, StatusExpired, StatusEvicted:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusRestored || s == StatusExpired || s == StatusEvicted
}

// EventType identifies a state transition in the audit trail.
type EventType string

// Event types, one per record state transition.
const (
	EventQuarantined EventType = "quarantined"
	EventRestored    EventType = "restored"
	EventExpired     EventType = "expired"
	EventEvicted     EventType = "evicted"
)

// TransitionEvent returns the audit event type recorded when a record
// enters the given terminal status.
func TransitionEvent(s Status) EventType {
	switch s {
	case StatusRestored:
		return EventRestored
	case StatusExpired:
		return EventExpired
	case StatusEvicted:
		return EventEvicted
	}
	return EventQuarantined
}

// NeverExpires is the ExpiresAt sentinel for indefinite retention
// (RetentionDays == 0). It compares greater than any reachable clock value.
const NeverExpires = int64(math.MaxInt64)

// ExpiryTime computes the fixed expiry timestamp for a record detected at
// detectedAt with the given retention. Retention is applied once at record
// creation and never recomputed.
func ExpiryTime(detectedAt int64, retentionDays int) int64 {
	if retentionDays <= 0 {
		return NeverExpires
	}
	return detectedAt + int64(retentionDays)*86400
}

// QuarantineRecord is the durable index entry for one quarantined file.
type QuarantineRecord struct {
	ID             int64    `json:"id"`
	OriginalPath   string   `json:"original_path"`
	QuarantinePath string   `json:"quarantine_path"`
	DetectionLabel string   `json:"detection_label"`
	DetectedAt     int64    `json:"detected_at"`
	ScanSessionID  string   `json:"scan_session_id"`
	RiskTier       RiskTier `json:"risk_tier"`
	Category       string   `json:"category"`
	RetentionDays  int      `json:"retention_days"`
	ExpiresAt      int64    `json:"expires_at"`
	ContentHash    string   `json:"content_hash,omitempty"`
	SizeBytes      int64    `json:"size_bytes"`
	MIMEType       string   `json:"mime_type,omitempty"`
	Status         Status   `json:"status"`
	Archived       bool     `json:"archived"`
}

// QuarantineEvent is one row of the append-only audit trail.
type QuarantineEvent struct {
	ID         int64     `json:"id"`
	RecordID   int64     `json:"record_id"`
	Type       EventType `json:"type"`
	OccurredAt int64     `json:"occurred_at"`
	Detail     string    `json:"detail,omitempty"`
}

// StoreSummary aggregates record counts and the active payload size.
type StoreSummary struct {
	Total      int   `json:"total"`
	Active     int   `json:"active"`
	Restored   int   `json:"restored"`
	Expired    int   `json:"expired"`
	Evicted    int   `json:"evicted"`
	ActiveSize int64 `json:"active_size"`
}
