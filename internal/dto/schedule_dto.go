package dto

// ScheduleResponse acknowledges that a scheduling run was queued, or
// summarizes a completed run when invoked synchronously.
type ScheduleResponse struct {
	Message string `json:"message"`
}

// ScheduleAuthError is returned for a bad auth_code after the fixed delay.
type ScheduleAuthError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ScheduleRunError is returned when a run could not be started.
type ScheduleRunError struct {
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
}

// HealthResponse reports service and database health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	DB        string `json:"db"`
}
