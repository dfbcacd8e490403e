package models

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// WebhookAck is returned to the payment processor after an event is handled
type WebhookAck struct {
	Received bool   `json:"received"`
	Event    string `json:"event"`
	Note     string `json:"note,omitempty"`
}
