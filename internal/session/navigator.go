package session

import (
	"context"
	"sync"
)

type navKey struct{}

// Navigation collects the location a session transition asked for while
// one portal request was being handled. The last call wins.
type Navigation struct {
	mu       sync.Mutex
	location string
}

func (n *Navigation) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

// WithNavigation attaches an empty Navigation slot to ctx.
func WithNavigation(ctx context.Context) (context.Context, *Navigation) {
	n := &Navigation{}
	return context.WithValue(ctx, navKey{}, n), n
}

// ContextNavigator writes locations into the slot carried by the context.
// Navigations outside a request, such as from background revalidation, are
// dropped; the next guarded request redirects instead.
type ContextNavigator struct{}

func (ContextNavigator) Navigate(ctx context.Context, location string) {
	if n, ok := ctx.Value(navKey{}).(*Navigation); ok {
		n.mu.Lock()
		n.location = location
		n.mu.Unlock()
	}
}
