// Package audit keeps a durable trail of batch classifications: one record
// per served batch, written through a pluggable backend.
package audit

import (
	"context"

	"github.com/Immortalbear27/log_level_api/pkg/models"
)

// Recorder persists batch audit records. Record is best-effort: it enqueues
// and returns, and implementations flush in the background so a slow sink
// never stalls a request. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, e models.BatchAudit) error
	Backend() string
	Close(ctx context.Context) error
}

// NopRecorder discards every record. It is the default when auditing is
// not configured.
type NopRecorder struct{}

// NewNop returns a recorder that keeps nothing.
func NewNop() *NopRecorder { return &NopRecorder{} }

func (*NopRecorder) Record(ctx context.Context, e models.BatchAudit) error { return nil }

func (*NopRecorder) Backend() string { return BackendNone }

func (*NopRecorder) Close(ctx context.Context) error { return nil }
