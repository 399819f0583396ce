// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` and `failPipeline()` helpers in this package). These codes provide
// clients with a stable, machine-readable error taxonomy that supplements
// human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, not_found, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., send_failed, provider_error) are reserved for
//     pipeline errors that cannot be conveyed by status alone.
//   - All error responses must include both an HTTP status and one of these codes.
//
// Example response:
//   {
//     "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//     "code": "provider_error",
//     "error": "Failed to send message",
//     "details": "evolution api error: status 400: ...",
//     "evolutionResponse": {"status": 400, "error": "Bad Request"}
//   }

package handlers

const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeNotFound   = "not_found"
	ErrCodeConflict   = "conflict"

	// Domain-specific:
	ErrCodeWebhookFailed    = "webhook_failed"
	ErrCodeSendFailed       = "send_failed"
	ErrCodeProviderError    = "provider_error"
	ErrCodeUploadFailed     = "upload_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeReadFailed       = "read_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
