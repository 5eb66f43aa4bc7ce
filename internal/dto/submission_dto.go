package dto

// SubmitObservationRequest is the POST /v1/submit-observation/ body.
type SubmitObservationRequest struct {
	PublicUserID        string `json:"public_user_id"`
	ObservationPromptID string `json:"observation_prompt_id"`
	Visibility          string `json:"visibility"`
	Observation         string `json:"observation"`
}

// SubmissionResponse is the binary submission verdict. There is no partial
// success: the pair's active observation is either the new text or, after
// compensation, unchanged.
type SubmissionResponse struct {
	Status              string `json:"status"`
	EndUserErrorMessage string `json:"end_user_error_message,omitempty"`
}
