// Package models defines the data structures shared between the API layer
// and the audit backends.
package models

import (
	"time"

	"github.com/Immortalbear27/log_level_api/pkg/levels"
)

// BatchAudit is the durable record of one served batch: what was asked,
// how it classified, and how long it took.
type BatchAudit struct {
	// Time is when the batch finished.
	Time time.Time `json:"time"`

	// Endpoint is the request path that carried the batch.
	Endpoint string `json:"endpoint"`

	// Mode is the parse mode the caller asked for. Empty for hash batches,
	// which have no parse mode.
	Mode string `json:"mode,omitempty"`

	// Lines is the batch size as submitted.
	Lines int `json:"lines"`

	// Counts holds the per-level classification results. Nil for hash
	// batches.
	Counts levels.Tally `json:"counts,omitempty"`

	// Failed is the number of lines whose op faulted.
	Failed int `json:"failed"`

	// Duration is the server-side processing time.
	Duration time.Duration `json:"duration"`
}
