package model

import "errors"

var (
	// ErrEndpointNotFound is returned when no endpoint has the requested id.
	ErrEndpointNotFound = errors.New("endpoint not found")
	// ErrGroupNotFound is returned when no group has the requested id.
	ErrGroupNotFound = errors.New("group not found")
	// ErrQueueEmpty is returned when no queued push is due for reservation.
	ErrQueueEmpty = errors.New("no queued pushes available")
)
