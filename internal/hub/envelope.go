// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hub implements the real-time connection to an Encadri hub
// endpoint: one logical websocket session carrying named invocations with
// correlated replies and server-pushed events, with automatic reconnection.
package hub

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// WIRE ENVELOPE
// =============================================================================

// EnvelopeType identifies the kind of frame on the wire.
type EnvelopeType string

const (
	// TypeInvocation is a client request for a named hub method.
	TypeInvocation EnvelopeType = "invocation"
	// TypeCompletion is the server reply to an invocation, matched by ID.
	TypeCompletion EnvelopeType = "completion"
	// TypeEvent is a server-pushed event for a named event target.
	TypeEvent EnvelopeType = "event"
	// TypePing and TypePong are application-level keepalive frames.
	TypePing EnvelopeType = "ping"
	TypePong EnvelopeType = "pong"
)

// Envelope wraps every frame exchanged with a hub.
//
// Invocations carry ID, Target and Args. Completions echo the ID and carry
// either Result or Error. Events carry Target and Data.
type Envelope struct {
	Type   EnvelopeType    `json:"type"`
	ID     string          `json:"id,omitempty"`
	Target string          `json:"target,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// NewInvocation builds an invocation envelope for a hub method call.
func NewInvocation(id, target string, args []any) (*Envelope, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("hub: marshal args for %s: %w", target, err)
	}
	return &Envelope{Type: TypeInvocation, ID: id, Target: target, Args: raw}, nil
}

// ParseEnvelope decodes a wire frame into an envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("hub: parse envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("hub: envelope missing type")
	}
	return &env, nil
}
