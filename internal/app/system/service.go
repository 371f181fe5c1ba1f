package system

import "context"

// Service is a background component owned by the Manager. Start must not
// block; long-running work belongs in a goroutine that Stop ends. Both calls
// may be repeated.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
