// Package services holds the inbound and outbound WhatsApp pipelines and the
// identity, conversation and history operations they are built from. This
// file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into HTTP status codes is performed at the handler layer.
package services

import "errors"

// Identity and conversation errors.
var (
	// ErrInvalidPhone is returned when a phone normalizes to no digits.
	ErrInvalidPhone = errors.New("phone number has no digits")

	// ErrConversationNotFound indicates that the conversation does not exist.
	ErrConversationNotFound = errors.New("conversation not found")
)

// Dispatch errors.
var (
	// ErrValidation wraps every rejected compose request. The wrapping error
	// names the offending field.
	ErrValidation = errors.New("invalid send request")

	// ErrCredentialsNotFound is returned when the staff user has no row for
	// the requested gateway instance.
	ErrCredentialsNotFound = errors.New("instance credentials not found")

	// ErrCredentialsIncomplete is returned when the credentials row lacks the
	// gateway URL or key.
	ErrCredentialsIncomplete = errors.New("instance credentials are incomplete")

	// ErrMediaUpload is returned when an outbound attachment cannot be stored.
	ErrMediaUpload = errors.New("media upload failed")

	// ErrProvider wraps gateway failures. errors.As with
	// *evolution.ProviderError recovers the status and body.
	ErrProvider = errors.New("provider request failed")

	// ErrIdempotencyConflict is returned when an Idempotency-Key is reused
	// for a different conversation.
	ErrIdempotencyConflict = errors.New("idempotency key already used for another conversation")
)
