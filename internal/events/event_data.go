package events

// EventData is implemented by every typed event payload.
type EventData interface {
	EventType() EventType
}

// AlertTriggeredData describes a rule that fired and had its state transition applied.
type AlertTriggeredData struct {
	AlertID  string `json:"alert_id"`
	RuleID   string `json:"rule_id"`
	OwnerID  string `json:"owner_id"`
	RuleType string `json:"rule_type"`
	Title    string `json:"title"`
}

// EventType returns the event type for AlertTriggeredData
func (d *AlertTriggeredData) EventType() EventType {
	return AlertTriggered
}

// DeliveryData describes the outcome of handing an alert to a sink.
type DeliveryData struct {
	OwnerID  string `json:"owner_id"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Sink     string `json:"sink"`
	Error    string `json:"error,omitempty"`
}

// EventType returns AlertDelivered, or DeliveryFailed when Error is set.
func (d *DeliveryData) EventType() EventType {
	if d.Error != "" {
		return DeliveryFailed
	}
	return AlertDelivered
}

// PassCompletedData summarizes one evaluation pass.
type PassCompletedData struct {
	PassID           string `json:"pass_id"`
	TotalProcessed   int    `json:"total_processed"`
	TriggeredCount   int    `json:"triggered_count"`
	FailedCount      int    `json:"failed_count"`
	DeliveryFailures int    `json:"delivery_failures"`
	NotDispatched    int    `json:"not_dispatched"`
	DurationMs       int64  `json:"duration_ms"`
}

// EventType returns the event type for PassCompletedData
func (d *PassCompletedData) EventType() EventType {
	return PassCompleted
}

// PassSkippedData is emitted when a pass was requested while another was running.
type PassSkippedData struct {
	PassID string `json:"pass_id"`
}

// EventType returns the event type for PassSkippedData
func (d *PassSkippedData) EventType() EventType {
	return PassSkipped
}

// MaintenanceData reports what a maintenance run removed and which databases failed their check.
type MaintenanceData struct {
	Unhealthy    []string `json:"unhealthy,omitempty"`
	PrunedAlerts int64    `json:"pruned_alerts"`
	PrunedQuotes int64    `json:"pruned_quotes,omitempty"`
}

// EventType returns the event type for MaintenanceData
func (d *MaintenanceData) EventType() EventType {
	return MaintenanceRun
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string         `json:"error"`
	Context map[string]any `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
