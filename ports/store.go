package ports

import (
	"context"
	"time"
)

// ChallengeLedger records consumed challenges so each one can
// authenticate at most once while it is remembered
type ChallengeLedger interface {
	// Consume marks id as used for ttl and reports whether it was unused
	Consume(ctx context.Context, id string, ttl time.Duration) (bool, error)
}
