package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const auditTableDDL = `
CREATE TABLE IF NOT EXISTS batch_audit (
    recorded_at   DateTime64(3),
    endpoint      LowCardinality(String),
    mode          LowCardinality(String),
    line_count    UInt64,
    info_count    UInt64,
    warning_count UInt64,
    error_count   UInt64,
    unknown_count UInt64,
    failed_count  UInt64,
    duration_ms   UInt64
) ENGINE = MergeTree()
ORDER BY (endpoint, recorded_at)
SETTINGS index_granularity = 8192
`

// initializeSchema creates the audit table if it does not exist.
func initializeSchema(ctx context.Context, conn driver.Conn) error {
	if err := conn.Exec(ctx, auditTableDDL); err != nil {
		return fmt.Errorf("creating batch_audit table: %w", err)
	}
	return nil
}
