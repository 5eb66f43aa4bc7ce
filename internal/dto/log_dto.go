package dto

// The experimenter log wire format predates this implementation and is a
// compatibility contract: booleans travel as the strings "True"/"False",
// handled failures come back as HTTP 200 with an error-shaped body, and an
// experiment with no recorded observations carries the literal string
// "None" instead of an array.

// ObservationEntry is one observation-prompt/observation pair under an
// experiment prompt.
type ObservationEntry struct {
	ObservationPromptID string `json:"observation_prompt_id"`
	ObservationPrompt   string `json:"observation_prompt"`
	Observation         string `json:"observation"`
}

// Experiment is one experiment prompt with its observations. Observations
// is either []ObservationEntry or the string "None".
type Experiment struct {
	ExperimentPromptID string `json:"experiment_prompt_id"`
	ExperimentPrompt   string `json:"experiment_prompt"`
	Observations       any    `json:"observations"`
}

// SubGroupEntry is one sub-group with its display date and experiments.
type SubGroupEntry struct {
	SubGroupID          string       `json:"sub_group_id"`
	SubGroupName        string       `json:"sub_group_name"`
	SubGroupDisplayDate string       `json:"sub_group_display_date"`
	Experiments         []Experiment `json:"experiments"`
}

// GroupEntry is one experiment group with its sub-groups.
type GroupEntry struct {
	GroupID   string          `json:"group_id"`
	GroupName string          `json:"group_name"`
	SubGroups []SubGroupEntry `json:"sub_groups"`
}

// ExperimenterLogResponse is the assembled three-level log document.
type ExperimenterLogResponse struct {
	PublicUserID         string       `json:"public_user_id"`
	FirstName            string       `json:"first_name"`
	ExperimentsToDisplay string       `json:"experiments_to_display"`
	Error                string       `json:"error"`
	DaysOfExperimenting  int          `json:"days_of_experimenting,omitempty"`
	Groups               []GroupEntry `json:"groups,omitempty"`
}

// LogErrorResponse is the uniform failure payload for the log endpoint.
type LogErrorResponse struct {
	Error               string `json:"error"`
	EndUserErrorMessage string `json:"end_user_error_message"`
}
