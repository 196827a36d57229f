package model

// Machine-readable error codes returned by the authentication middleware.
const (
	CodeMissingAPIKey           = "MISSING_API_KEY"
	CodeInvalidAPIKey           = "INVALID_API_KEY"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeAuthenticationError     = "AUTHENTICATION_ERROR"
)

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreatedKeyResponse is returned when a key is generated or rotated. It is
// the only place the plaintext secret ever appears.
type CreatedKeyResponse struct {
	KeyID   string   `json:"key_id"`
	Secret  string   `json:"secret"`
	Info    *KeyInfo `json:"info,omitempty"`
	Warning string   `json:"warning"`
}

// SecretWarning is attached to every response that carries a plaintext secret.
const SecretWarning = "Save this secret now - it cannot be retrieved again."
