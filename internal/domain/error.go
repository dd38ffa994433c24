package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// Generation jobs
	ErrUnknownJobType = errors.New("unknown job type")
	ErrNotTerminal    = errors.New("job is not in a terminal state")
	ErrPipelineBusy   = errors.New("workspace already has a generation in flight")
	ErrJobStalled     = errors.New("lost contact with generation job")
	ErrJobTimedOut    = errors.New("generation job exceeded its maximum wait")
	ErrJobClaimed     = errors.New("job is already observed by another poller")

	// Chat
	ErrStreamActive = errors.New("a reply is already streaming for this workspace")

	// Credentials
	ErrCredentialMissing = errors.New("no bearer credential configured")
	ErrCredentialExpired = errors.New("bearer credential has expired")
)
