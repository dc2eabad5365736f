package dto

import "vigil/internal/monitors/models"

// CreateMonitorOutput is the registration response
type CreateMonitorOutput struct {
	Body struct {
		MonitorID string `json:"monitorId" description:"Generated monitor identifier"`
	}
}

// GetMonitorOutput wraps one monitor config
type GetMonitorOutput struct {
	Body models.MonitorConfig
}

// ListMonitorsOutput wraps the full monitor list
type ListMonitorsOutput struct {
	Body struct {
		Monitors []models.MonitorConfig `json:"monitors"`
		Total    int                    `json:"total"`
	}
}
