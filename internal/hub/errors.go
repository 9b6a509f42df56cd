// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package hub

import (
	"errors"
	"fmt"
)

// ErrNotConnected indicates an operation that requires a live session was
// attempted while no session exists. The call fails fast and is never
// queued; callers must ensure the connection is started first.
var ErrNotConnected = errors.New("hub: not connected")

// ErrStopped indicates the connection was stopped while an operation was
// in progress.
var ErrStopped = errors.New("hub: connection stopped")

// ErrAlreadyStarted indicates Start was called while a connect or
// reconnect was already in progress.
var ErrAlreadyStarted = errors.New("hub: connect already in progress")

// ConnectError reports a failed connection establishment. It is returned
// from Start only; transient mid-session losses are recovered internally
// and never surface as ConnectError.
type ConnectError struct {
	Endpoint string
	Err      error
}

// Error implements the error interface.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("hub: connect %s: %v", e.Endpoint, e.Err)
}

// Unwrap returns the underlying dial error.
func (e *ConnectError) Unwrap() error {
	return e.Err
}

// InvokeError reports a server-side rejection of a specific invocation.
// The call is not retried.
type InvokeError struct {
	Target  string
	Message string
}

// Error implements the error interface.
func (e *InvokeError) Error() string {
	return fmt.Sprintf("hub: invoke %s: %s", e.Target, e.Message)
}
