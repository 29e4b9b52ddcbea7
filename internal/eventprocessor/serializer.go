// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package eventprocessor

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Event is implemented by every payload published on the lookalike stream.
type Event interface {
	Validate() error
}

// Marshal validates an event and converts it to JSON bytes.
func Marshal(event Event) ([]byte, error) {
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("validate event: %w", err)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Unmarshal decodes and validates an event.
func Unmarshal[T any, PT interface {
	*T
	Event
}](data []byte) (*T, error) {
	var event T
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if err := PT(&event).Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}

// DecodeJobRequested decodes a job request payload.
func DecodeJobRequested(data []byte) (*JobRequested, error) {
	return Unmarshal[JobRequested](data)
}

// DecodeJobCompleted decodes a completion payload.
func DecodeJobCompleted(data []byte) (*JobCompleted, error) {
	return Unmarshal[JobCompleted](data)
}
