package ports

import (
	"context"

	"github.com/layer-3/xrpauth/core"
)

// PayloadService registers and looks up out-of-band sign requests
type PayloadService interface {
	CreateSignIn(ctx context.Context) (*core.PayloadChallenge, error)
	GetPayload(ctx context.Context, id string) (*core.PayloadDetails, error)
}
