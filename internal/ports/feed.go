package ports

import (
	"context"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// BarFeed delivers closed bars in timestamp order through a
// single-consumer channel. Run owns the connection (and any reconnect
// loop) and closes the channel when the context is done or the source
// is exhausted.
type BarFeed interface {
	Bars() <-chan domain.Bar
	Run(ctx context.Context) error
}
