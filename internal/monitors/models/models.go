package models

import "time"

// MonitorsCollection is the MongoDB collection name for monitor configs
const MonitorsCollection = "monitors"

// Defaults applied at registration when the caller omits the field.
const (
	DefaultFailureThreshold = 3
	DefaultTimeoutMS        = 5000
)

// MonitorConfig is the immutable configuration of one monitored URL.
// Created once via registration and never mutated thereafter.
type MonitorConfig struct {
	ID               string    `bson:"_id" json:"monitor_id"`
	URL              string    `bson:"url" json:"url"`
	Name             string    `bson:"name,omitempty" json:"name,omitempty"`
	FailureThreshold int       `bson:"failure_threshold" json:"failure_threshold"`
	TimeoutMS        int       `bson:"timeout_ms" json:"timeout_ms"`
	AlertWebhookURL  string    `bson:"alert_webhook_url,omitempty" json:"alert_webhook_url,omitempty"`
	AlertTo          string    `bson:"alert_to,omitempty" json:"alert_to,omitempty"`
	EmailFrom        string    `bson:"email_from,omitempty" json:"email_from,omitempty"`
	CreatedAt        time.Time `bson:"created_at" json:"created_at"`
}

// DisplayName returns the configured name, falling back to the URL.
func (m *MonitorConfig) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.URL
}

// Timeout returns the probe timeout as a duration.
func (m *MonitorConfig) Timeout() time.Duration {
	if m.TimeoutMS <= 0 {
		return DefaultTimeoutMS * time.Millisecond
	}
	return time.Duration(m.TimeoutMS) * time.Millisecond
}

// Threshold returns the consecutive-failure threshold, falling back to the
// default for configs written before the field existed.
func (m *MonitorConfig) Threshold() int {
	if m.FailureThreshold <= 0 {
		return DefaultFailureThreshold
	}
	return m.FailureThreshold
}
