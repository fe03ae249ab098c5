package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/Klingon-tech/shieldwallet/internal/signer"
)

// DefaultPollInterval is the recovery interval used when none is configured.
const DefaultPollInterval = 30 * time.Second

// Poller runs account recovery in the background.
type Poller struct {
	core     *Core
	interval time.Duration
}

// NewPoller creates a poller for core. A non-positive interval uses
// DefaultPollInterval.
func NewPoller(core *Core, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{core: core, interval: interval}
}

// Run recovers once immediately and then on every tick until ctx is done.
// Failed passes are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	_, err := p.core.Recover(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
	case errors.Is(err, signer.ErrSignerUnreachable):
		p.core.logger.Info().Msg("Signer not running, recovery postponed")
	default:
		p.core.logger.Error().Err(err).Msg("Background recovery failed")
	}
}
