package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IdempotencyKey builds the canonical ledger key for an operation. Every
// write path goes through this helper so key shapes stay uniform:
//
//	usage:<user-id>:<correlation-id>
//	trial:<user-id>
//	stripe:<event-id>
//
// Callers pass the parts after the operation; parts are joined with ":".
func IdempotencyKey(operation string, parts ...string) string {
	key := operation
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

// NewCorrelationID returns a fresh correlation id for one logical
// request: millisecond timestamp plus a random suffix. The timestamp
// keeps keys roughly sortable during incident forensics.
func NewCorrelationID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
