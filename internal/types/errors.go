package types

type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// NewRetryableErrorResponse marks the failure as one the client may retry as-is.
func NewRetryableErrorResponse(code, message string, details any) ErrorResponse {
	resp := NewErrorResponse(code, message, details)
	resp.Error.Retryable = true
	return resp
}
