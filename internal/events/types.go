// Package events provides event management functionality.
package events

// EventType represents different event types
type EventType string

const (
	AlertTriggered EventType = "ALERT_TRIGGERED"
	AlertDelivered EventType = "ALERT_DELIVERED"
	DeliveryFailed EventType = "DELIVERY_FAILED"
	PassCompleted  EventType = "PASS_COMPLETED"
	PassSkipped    EventType = "PASS_SKIPPED"
	MaintenanceRun EventType = "MAINTENANCE_RUN"
	ErrorOccurred  EventType = "ERROR_OCCURRED"
)
