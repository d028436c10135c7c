// Copyright 2025 OneCore Project

package connection

import "errors"

// Sentinel errors for the framed connection and request multiplexer.
var (
	// ErrClosed is returned by Send/Receive once Close has been called.
	ErrClosed = errors.New("connection closed")
	// ErrTimeout is returned by WaitForMessage when no matching frame
	// arrives before the deadline.
	ErrTimeout = errors.New("timed out waiting for message")
	// ErrUnsendableValue is returned when encoding a message payload that
	// contains NaN, +/-Inf, or another value with no wire representation.
	ErrUnsendableValue = errors.New("value cannot be sent over a connection")
	// ErrUnknownService is returned when a request names a service that was
	// never registered with AddService.
	ErrUnknownService = errors.New("unknown service")
	// ErrDuplicateService is returned by AddService when the name is
	// already registered.
	ErrDuplicateService = errors.New("service already registered")
	// ErrRequestNotFound is returned when a response frame names a request
	// id this side never issued (or already completed).
	ErrRequestNotFound = errors.New("no pending request with that id")
)
