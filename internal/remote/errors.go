// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package remote

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrTransport matches every remote failure, including malformed responses.
	ErrTransport = errors.New("transport error")
	// ErrNotTransmitted matches failures where the request never reached the
	// server, so nothing was applied remotely.
	ErrNotTransmitted = errors.New("request not transmitted")
)

// TransportError is a failed remote call.
type TransportError struct {
	Op         string // "chat", "image", "audio"
	StatusCode int    // 0 when no response was received
	Message    string // server-provided error text, if any
	// NotTransmitted is set when the request was rejected before it was sent.
	NotTransmitted bool
	Err            error
}

func (e *TransportError) Error() string {
	switch {
	case e.Message != "" && e.StatusCode != 0:
		return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s failed: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return e.Op + " failed"
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is matches ErrTransport, and ErrNotTransmitted when applicable.
func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return true
	case ErrNotTransmitted:
		return e.NotTransmitted
	}
	return false
}

// MalformedResponseError is a successful response missing expected fields.
// It is handled exactly like a TransportError.
type MalformedResponseError struct {
	Op     string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Op, e.Reason)
}

// Is matches ErrTransport.
func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrTransport
}

// UserMessage returns a short description of err for a notification.
func UserMessage(err error) string {
	var te *TransportError
	var me *MalformedResponseError
	switch {
	case errors.As(err, &me):
		return "The server sent an unexpected " + me.Op + " response"
	case errors.As(err, &te) && te.NotTransmitted:
		return "Could not reach the server; nothing was sent"
	case errors.As(err, &te) && te.Message != "":
		return te.Message
	case errors.As(err, &te) && te.StatusCode != 0:
		return fmt.Sprintf("The server returned an error (%d)", te.StatusCode)
	case err != nil:
		return err.Error()
	}
	return ""
}
