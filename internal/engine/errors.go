package engine

import "errors"

var (
	// ErrPolicyNotFound is returned when no escalation policy exists for a priority
	ErrPolicyNotFound = errors.New("no escalation policy for priority")

	// ErrEmptyMessage is returned when an alert is raised with a blank message
	ErrEmptyMessage = errors.New("alert message is empty")
)
