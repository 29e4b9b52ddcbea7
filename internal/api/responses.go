// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/logging"
)

// APIResponse is the envelope of every status server response.
//
// Example success response:
//
//	{
//	  "status": "success",
//	  "data": {"job_id": "...", "percent": 42.5},
//	  "metadata": {"timestamp": "2026-03-01T12:00:00Z", "cached": false}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response bookkeeping.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	Cached    bool      `json:"cached,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, response *APIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondData(w http.ResponseWriter, status int, data interface{}, cached bool) {
	respondJSON(w, status, &APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: Metadata{Timestamp: time.Now(), Cached: cached},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", code).Err(err).Msg("API error")
	}

	respondJSON(w, status, &APIResponse{
		Status:   "error",
		Metadata: Metadata{Timestamp: time.Now()},
		Error:    &APIError{Code: code, Message: message},
	})
}
