package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/puzzle-proxy/internal/resolver"
)

// ErrDisabled is returned when rendering is requested but headless is off.
var ErrDisabled = errors.New("headless fetcher not configured")

// Noop stands in for the browser when headless.enabled is false. Rendered
// candidates then fail as transport errors and the chain advances.
type Noop struct{}

// NewNoop creates a Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails with ErrDisabled.
func (Noop) Fetch(_ context.Context, _ resolver.FetchRequest) (resolver.FetchResponse, error) {
	return resolver.FetchResponse{}, ErrDisabled
}
