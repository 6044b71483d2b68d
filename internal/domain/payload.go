package domain

// UserInputPayload is the payload for user_input event.
type UserInputPayload struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// RunCreatedPayload is the payload for run_created event.
type RunCreatedPayload struct {
	AssistantID string `json:"assistant_id"`
}

// RunStatusPayload is the payload for run_status event.
type RunStatusPayload struct {
	Status RunStatus `json:"status"`
	Poll   int       `json:"poll"`
}

// RunDonePayload is the payload for run_done event.
type RunDonePayload struct {
	MessageID string `json:"message_id,omitempty"`
	Reply     string `json:"reply"`
	Polls     int    `json:"polls"`
}

// RunFailedPayload is the payload for run_failed event.
type RunFailedPayload struct {
	Code    string    `json:"code"`
	Status  RunStatus `json:"status,omitempty"`
	Message string    `json:"message"`
}
