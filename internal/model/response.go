package model

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Envelope is the typed decoding side of APIResponse.
type Envelope[T any] struct {
	Success bool      `json:"success"`
	Data    *T        `json:"data"`
	Error   *APIError `json:"error"`
}
