package errors

import "errors"

// Domain errors
var (
	// Input errors
	ErrInvalidInput = errors.New("invalid input")

	// Lookup errors
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Lifecycle errors
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrReportSealed      = errors.New("report is sealed")
	ErrUnimplemented     = errors.New("unimplemented")

	// Repository errors
	ErrRepositoryOperation   = errors.New("repository operation failed")
	ErrSerializationFailed   = errors.New("serialization failed")
	ErrDeserializationFailed = errors.New("deserialization failed")
)
