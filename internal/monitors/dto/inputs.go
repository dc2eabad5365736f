package dto

// CreateMonitorInput represents the input for registering a new monitor
type CreateMonitorInput struct {
	Body struct {
		URL              string `json:"url" required:"true" minLength:"1" maxLength:"2048" description:"Target URL to probe"`
		Name             string `json:"name,omitempty" maxLength:"200" description:"Display name"`
		FailureThreshold int    `json:"failureThreshold,omitempty" minimum:"1" maximum:"100" description:"Consecutive failures before a down alert (default 3)"`
		TimeoutMs        int    `json:"timeoutMs,omitempty" minimum:"1" maximum:"120000" description:"Probe timeout in milliseconds (default 5000)"`
		AlertWebhookURL  string `json:"alertWebhookUrl,omitempty" maxLength:"2048" description:"Webhook URL for alert delivery"`
		AlertTo          string `json:"alertTo,omitempty" maxLength:"320" description:"Alert email recipient"`
		EmailFrom        string `json:"emailFrom,omitempty" maxLength:"320" description:"Alert email sender"`
	}
}

// GetMonitorInput represents the input for fetching one monitor
type GetMonitorInput struct {
	MonitorID string `path:"monitor_id" required:"true" description:"Monitor identifier"`
}

// ListMonitorsInput represents the input for listing monitors
type ListMonitorsInput struct{}
