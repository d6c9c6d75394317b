package goTenant

import (
	"context"

	"github.com/MrEthical07/goTenant/gateway"
)

// WithRequestID pins the X-Request-ID sent with gateway calls made under
// ctx. Without it every call gets a fresh id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return gateway.WithRequestID(ctx, id)
}
