package ports

import (
	"context"

	"github.com/layer-3/xrpauth/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishAuthenticated(ctx context.Context, session core.Session) error
}
