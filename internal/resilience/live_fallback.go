package resilience

import (
	"context"

	"github.com/MrWong99/tutorvoice/pkg/provider/live"
)

// LiveFallback implements [live.Provider] with failover across live
// endpoints. Only the handshake is protected; a session that dies after
// Connect returned is reported to its owner, not retried here.
type LiveFallback struct {
	group *FallbackGroup[live.Provider]
}

var _ live.Provider = (*LiveFallback)(nil)

// NewLiveFallback creates a [LiveFallback] with primary as the preferred
// endpoint.
func NewLiveFallback(primary live.Provider, primaryName string, cfg FallbackConfig) *LiveFallback {
	return &LiveFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional live provider.
func (f *LiveFallback) AddFallback(name string, provider live.Provider) {
	f.group.AddFallback(name, provider)
}

// Healthy reports whether any endpoint would currently accept a connect.
func (f *LiveFallback) Healthy() bool { return f.group.Healthy() }

// Connect opens a session on the first healthy endpoint.
func (f *LiveFallback) Connect(ctx context.Context, cfg live.SessionConfig) (live.Session, error) {
	return ExecuteWithResult(f.group, func(p live.Provider) (live.Session, error) {
		return p.Connect(ctx, cfg)
	})
}
