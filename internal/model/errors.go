package model

import "errors"

var (
	// ErrBlankResponderName is returned when a responder has no name
	ErrBlankResponderName = errors.New("responder name is blank")

	// ErrBlankResponderContact is returned when a responder has no contact address
	ErrBlankResponderContact = errors.New("responder contact is blank")

	// ErrBlankTargetAddress is returned when a target resolves to an empty address
	ErrBlankTargetAddress = errors.New("target address is blank")

	// ErrEmptyLevel is returned when an escalation level has no targets
	ErrEmptyLevel = errors.New("escalation level has no targets")

	// ErrNonPositiveTimeout is returned when a level timeout is zero or negative
	ErrNonPositiveTimeout = errors.New("acknowledge timeout must be positive")

	// ErrEmptyPolicy is returned when a policy has no levels
	ErrEmptyPolicy = errors.New("escalation policy has no levels")
)
